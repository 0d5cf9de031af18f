// Package diff compares the owned fields of a desired child object with its
// live counterpart and produces the patched object.
//
// Only fields the controller sets are compared. Everything else on the live
// object (cluster-assigned IPs, defaulted container fields, foreign labels and
// annotations) is left untouched by Apply.
package diff

import (
	"fmt"

	"github.com/cockroachdb/errors"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lexfrei/webapp-operator/internal/manifest"
)

// ErrKindMismatch is returned when an object does not have the Go type of its kind.
var ErrKindMismatch = errors.New("object does not match child kind")

// Options tune which owned fields are compared.
type Options struct {
	// IgnoreReplicas leaves the Deployment replica count to the autoscaler.
	IgnoreReplicas bool
}

// Result lists the owned fields that differ, in a stable order.
type Result struct {
	Fields []string
}

// Empty reports whether desired and live agree on every owned field.
func (r Result) Empty() bool {
	return len(r.Fields) == 0
}

// ownedField binds one owned field of desired to the same field of a target object.
type ownedField struct {
	path  string
	equal func() bool
	apply func()
}

// Compute returns the owned fields where live differs from desired.
func Compute(kind manifest.Kind, desired, live client.Object, opts Options) (Result, error) {
	_, fields, err := ownedFields(kind, desired, live, opts)
	if err != nil {
		return Result{}, err
	}

	var result Result

	for _, owned := range fields {
		if !owned.equal() {
			result.Fields = append(result.Fields, owned.path)
		}
	}

	return result, nil
}

// Apply returns a deep copy of live with every differing owned field taken
// from desired. live itself is not modified.
func Apply(kind manifest.Kind, desired, live client.Object, opts Options) (client.Object, error) {
	target, fields, err := ownedFields(kind, desired, live, opts)
	if err != nil {
		return nil, err
	}

	for _, owned := range fields {
		if !owned.equal() {
			owned.apply()
		}
	}

	return target, nil
}

func ownedFields(
	kind manifest.Kind,
	desired, live client.Object,
	opts Options,
) (client.Object, []ownedField, error) {
	switch kind {
	case manifest.KindDeployment:
		want, have, err := pair[*appsv1.Deployment](kind, desired, live)
		if err != nil {
			return nil, nil, err
		}

		return have, deploymentFields(want, have, opts), nil
	case manifest.KindAutoscaler:
		want, have, err := pair[*autoscalingv2.HorizontalPodAutoscaler](kind, desired, live)
		if err != nil {
			return nil, nil, err
		}

		return have, autoscalerFields(want, have), nil
	case manifest.KindService:
		want, have, err := pair[*corev1.Service](kind, desired, live)
		if err != nil {
			return nil, nil, err
		}

		return have, serviceFields(want, have), nil
	case manifest.KindIngress:
		want, have, err := pair[*networkingv1.Ingress](kind, desired, live)
		if err != nil {
			return nil, nil, err
		}

		return have, ingressFields(want, have), nil
	default:
		return nil, nil, errors.Newf("unknown child kind %q", kind)
	}
}

// pair returns deep copies of desired and live typed as T. The live copy is
// the mutation target, so neither input is ever modified.
func pair[T client.Object](kind manifest.Kind, desired, live client.Object) (T, T, error) {
	var zero T

	if desired == nil || live == nil {
		return zero, zero, errors.Wrapf(ErrKindMismatch, "%s: nil object", kind)
	}

	want, ok := desired.DeepCopyObject().(T)
	if !ok {
		return zero, zero, errors.Wrapf(ErrKindMismatch, "desired %s is %T", kind, desired)
	}

	have, ok := live.DeepCopyObject().(T)
	if !ok {
		return zero, zero, errors.Wrapf(ErrKindMismatch, "live %s is %T", kind, live)
	}

	return want, have, nil
}

func labelFields(path string, desired map[string]string, target *map[string]string) ownedField {
	return ownedField{
		path: path,
		equal: func() bool {
			for key, value := range desired {
				current, ok := (*target)[key]
				if !ok || current != value {
					return false
				}
			}

			return true
		},
		apply: func() {
			if *target == nil {
				*target = make(map[string]string, len(desired))
			}

			for key, value := range desired {
				(*target)[key] = value
			}
		},
	}
}

// semanticField compares with equality.Semantic so nil and empty collections
// are equal and quantities compare by value.
func semanticField[T any](path string, desired T, target *T) ownedField {
	return ownedField{
		path:  path,
		equal: func() bool { return equality.Semantic.DeepEqual(desired, *target) },
		apply: func() { *target = desired },
	}
}

func containerPath(name, field string) string {
	return fmt.Sprintf("spec.template.spec.containers[%s].%s", name, field)
}
