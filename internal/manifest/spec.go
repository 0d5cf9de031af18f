package manifest

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
)

// Parent identifies the App that owns a set of children.
type Parent struct {
	Namespace  string
	Name       string
	UID        types.UID
	Generation int64
}

// AppSpec is the validated, normalized form of an App.
// Only validation.Validate produces it; builders may assume every field is valid.
type AppSpec struct {
	Parent Parent

	Image     string
	Port      int32
	Resources corev1.ResourceRequirements

	MinReplicas          int32
	MaxReplicas          int32
	TargetCPUUtilization int32

	IngressClassName string
	Host             string

	Env []corev1.EnvVar
}
