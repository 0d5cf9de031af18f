package manifest

import (
	"github.com/cockroachdb/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ChildDescriptor is the desired state of one child object.
type ChildDescriptor struct {
	Kind   Kind
	Name   string
	Object client.Object
	Owner  Parent
}

type buildFunc func(spec *AppSpec) client.Object

//nolint:gochecknoglobals // static dispatch table, never mutated
var builders = map[Kind]buildFunc{
	KindDeployment: buildDeployment,
	KindAutoscaler: buildAutoscaler,
	KindService:    buildService,
	KindIngress:    buildIngress,
}

// Build returns the descriptor of a single child kind.
//
//nolint:wrapcheck // errors.Newf creates new errors
func Build(spec *AppSpec, kind Kind) (ChildDescriptor, error) {
	if !kind.Valid() {
		return ChildDescriptor{}, errors.Newf("unknown child kind %q", kind)
	}

	return describe(spec, kind, builders[kind]), nil
}

// BuildAll returns the descriptors of all four children in AllKinds order.
func BuildAll(spec *AppSpec) []ChildDescriptor {
	kinds := AllKinds()
	descriptors := make([]ChildDescriptor, 0, len(kinds))

	for _, kind := range kinds {
		descriptors = append(descriptors, describe(spec, kind, builders[kind]))
	}

	return descriptors
}

func describe(spec *AppSpec, kind Kind, build buildFunc) ChildDescriptor {
	return ChildDescriptor{
		Kind:   kind,
		Name:   ChildName(spec.Parent.Name, kind),
		Object: build(spec),
		Owner:  spec.Parent,
	}
}

func objectMeta(spec *AppSpec, kind Kind) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      ChildName(spec.Parent.Name, kind),
		Namespace: spec.Parent.Namespace,
		Labels:    CommonLabels(spec.Parent.Name),
	}
}
