package manifest

import (
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Kind is the closed set of child kinds managed per App.
type Kind string

const (
	KindDeployment Kind = "Deployment"
	KindAutoscaler Kind = "HorizontalPodAutoscaler"
	KindService    Kind = "Service"
	KindIngress    Kind = "Ingress"
)

// Label keys and values stamped on every child.
const (
	LabelName      = "app.kubernetes.io/name"
	LabelInstance  = "app.kubernetes.io/instance"
	LabelManagedBy = "app.kubernetes.io/managed-by"

	NameLabelValue      = "webapp"
	ManagedByLabelValue = "webapp-operator"
)

const (
	// ContainerName is the name of the application container in the pod template.
	ContainerName = "app"

	// PortName names the container and service port.
	PortName = "http"
)

// AllKinds returns every child kind in build order.
func AllKinds() []Kind {
	return []Kind{KindDeployment, KindAutoscaler, KindService, KindIngress}
}

// Valid reports whether k is one of the managed kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeployment, KindAutoscaler, KindService, KindIngress:
		return true
	default:
		return false
	}
}

func (k Kind) suffix() string {
	switch k {
	case KindDeployment:
		return "deploy"
	case KindAutoscaler:
		return "hpa"
	case KindService:
		return "svc"
	case KindIngress:
		return "ing"
	default:
		return ""
	}
}

// NewObject returns an empty typed object for k, suitable as a Get target.
// It returns nil for unknown kinds.
func (k Kind) NewObject() client.Object {
	switch k {
	case KindDeployment:
		return &appsv1.Deployment{}
	case KindAutoscaler:
		return &autoscalingv2.HorizontalPodAutoscaler{}
	case KindService:
		return &corev1.Service{}
	case KindIngress:
		return &networkingv1.Ingress{}
	default:
		return nil
	}
}

// ChildName derives the name of the child of the given kind for a parent.
// It is the only place child names are computed.
func ChildName(parent string, kind Kind) string {
	return parent + "-" + kind.suffix()
}

// CommonLabels returns the labels applied to every child object.
func CommonLabels(parent string) map[string]string {
	return map[string]string{
		LabelName:      NameLabelValue,
		LabelInstance:  parent,
		LabelManagedBy: ManagedByLabelValue,
	}
}

// SelectorLabels returns the labels that identify the pods of a parent.
// The Deployment selector, the pod template and the Service selector all use them.
func SelectorLabels(parent string) map[string]string {
	return map[string]string{
		LabelName:     NameLabelValue,
		LabelInstance: parent,
	}
}
