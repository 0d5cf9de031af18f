package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Condition types reported on App status.
const (
	// ConditionTypeReady is True when all four children were applied successfully.
	ConditionTypeReady = "Ready"

	// ConditionTypeProgressing is True while the workload rollout is not yet observed available.
	ConditionTypeProgressing = "Progressing"

	// ConditionTypeDegraded is True when the spec is invalid or any child failed to apply.
	ConditionTypeDegraded = "Degraded"
)

// ResourceList holds cpu and memory quantities as strings, e.g. "250m" or "512Mi".
type ResourceList struct {
	// +optional
	CPU string `json:"cpu,omitempty"`

	// +optional
	Memory string `json:"memory,omitempty"`
}

// ResourceConfig describes container resource requests and limits.
type ResourceConfig struct {
	// +optional
	Requests ResourceList `json:"requests,omitempty"`

	// +optional
	Limits ResourceList `json:"limits,omitempty"`
}

// DeploymentConfig configures the workload container.
type DeploymentConfig struct {
	// Image is the container image, including tag.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Image string `json:"image"`

	// Port the application listens on. Exposed by the Service under the same number.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	Port int32 `json:"port"`

	// +optional
	Resources ResourceConfig `json:"resources,omitempty"`
}

// AutoscaleConfig configures the HorizontalPodAutoscaler.
type AutoscaleConfig struct {
	// Min is the minimum replica count and the initial Deployment replica count.
	// +optional
	// +kubebuilder:default=1
	// +kubebuilder:validation:Minimum=1
	Min *int32 `json:"min,omitempty"`

	// Max is the maximum replica count. Defaults to Min.
	// +optional
	Max *int32 `json:"max,omitempty"`

	// TargetCPUUtilizationPercentage is the average CPU utilization the autoscaler aims for.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=100
	TargetCPUUtilizationPercentage int32 `json:"targetCPUUtilizationPercentage"`
}

// IngressConfig configures the external route.
type IngressConfig struct {
	// IngressClassName selects the ingress controller. Empty means the cluster default class.
	// +optional
	IngressClassName string `json:"ingressClassName,omitempty"`

	// Host is the DNS name routed to the application.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Host string `json:"host"`
}

// EnvVar is a single environment variable passed to the container.
// Values may reference earlier variables with $(NAME); $$ escapes a literal $.
type EnvVar struct {
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name"`

	// +optional
	Value string `json:"value,omitempty"`
}

// AppSpec defines the desired state of App.
type AppSpec struct {
	// +kubebuilder:validation:Required
	Deployment DeploymentConfig `json:"deployment"`

	// +kubebuilder:validation:Required
	Autoscale AutoscaleConfig `json:"autoscale"`

	// +kubebuilder:validation:Required
	Ingress IngressConfig `json:"ingress"`

	// Env is an ordered list of environment variables. Names must be unique.
	// +optional
	// +listType=atomic
	Env []EnvVar `json:"env,omitempty"`
}

// ChildReference identifies a child object managed for an App.
type ChildReference struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// AppStatus defines the observed state of App.
type AppStatus struct {
	// ObservedGeneration is the generation of the spec last reconciled.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Conditions describe the current state of the App.
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// Children lists the child objects that exist for this App.
	// +optional
	Children []ChildReference `json:"children,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=wapp
// +kubebuilder:printcolumn:name="Image",type=string,JSONPath=`.spec.deployment.image`
// +kubebuilder:printcolumn:name="Host",type=string,JSONPath=`.spec.ingress.host`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// App is the Schema for the apps API.
// It describes a web application served by a Deployment, a HorizontalPodAutoscaler,
// a Service and an Ingress that the controller keeps in sync.
type App struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   AppSpec   `json:"spec,omitempty"`
	Status AppStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// AppList contains a list of App.
type AppList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []App `json:"items"`
}

func init() {
	SchemeBuilder.Register(&App{}, &AppList{})
}

// GetMinReplicas returns the minimum replica count, defaulting to 1.
func (c *AutoscaleConfig) GetMinReplicas() int32 {
	if c.Min == nil {
		return 1
	}
	return *c.Min
}

// GetMaxReplicas returns the maximum replica count, defaulting to the minimum.
func (c *AutoscaleConfig) GetMaxReplicas() int32 {
	if c.Max == nil {
		return c.GetMinReplicas()
	}
	return *c.Max
}

// IsEmpty reports whether neither cpu nor memory is set.
func (l ResourceList) IsEmpty() bool {
	return l.CPU == "" && l.Memory == ""
}
