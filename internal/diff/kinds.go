package diff

import (
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"

	"github.com/lexfrei/webapp-operator/internal/manifest"
)

func deploymentFields(desired, target *appsv1.Deployment, opts Options) []ownedField {
	fields := []ownedField{
		labelFields("metadata.labels", desired.Labels, &target.Labels),
	}

	if !opts.IgnoreReplicas {
		fields = append(fields, ownedField{
			path: "spec.replicas",
			equal: func() bool {
				return desired.Spec.Replicas != nil && target.Spec.Replicas != nil &&
					*desired.Spec.Replicas == *target.Spec.Replicas
			},
			apply: func() { target.Spec.Replicas = desired.Spec.Replicas },
		})
	}

	fields = append(fields,
		semanticField("spec.selector", desired.Spec.Selector, &target.Spec.Selector),
		labelFields("spec.template.metadata.labels", desired.Spec.Template.Labels, &target.Spec.Template.Labels),
	)

	return append(fields, containerFields(desired, target)...)
}

// containerFields owns only the application container. Sidecars injected by
// admission webhooks and fields defaulted by the API server are ignored.
func containerFields(desired, target *appsv1.Deployment) []ownedField {
	want := findContainer(desired.Spec.Template.Spec.Containers, manifest.ContainerName)
	if want == nil {
		return nil
	}

	have := findContainer(target.Spec.Template.Spec.Containers, manifest.ContainerName)
	if have == nil {
		return []ownedField{{
			path:  containerPath(want.Name, "*"),
			equal: func() bool { return false },
			apply: func() {
				target.Spec.Template.Spec.Containers = append(target.Spec.Template.Spec.Containers, *want)
			},
		}}
	}

	return []ownedField{
		semanticField(containerPath(want.Name, "image"), want.Image, &have.Image),
		semanticField(containerPath(want.Name, "ports"), want.Ports, &have.Ports),
		semanticField(containerPath(want.Name, "env"), want.Env, &have.Env),
		semanticField(containerPath(want.Name, "resources"), want.Resources, &have.Resources),
	}
}

func findContainer(containers []corev1.Container, name string) *corev1.Container {
	for idx := range containers {
		if containers[idx].Name == name {
			return &containers[idx]
		}
	}

	return nil
}

func autoscalerFields(desired, target *autoscalingv2.HorizontalPodAutoscaler) []ownedField {
	return []ownedField{
		labelFields("metadata.labels", desired.Labels, &target.Labels),
		semanticField("spec.scaleTargetRef", desired.Spec.ScaleTargetRef, &target.Spec.ScaleTargetRef),
		semanticField("spec.minReplicas", desired.Spec.MinReplicas, &target.Spec.MinReplicas),
		semanticField("spec.maxReplicas", desired.Spec.MaxReplicas, &target.Spec.MaxReplicas),
		semanticField("spec.metrics", desired.Spec.Metrics, &target.Spec.Metrics),
	}
}

// serviceFields never owns clusterIP, clusterIPs or ipFamilies; the API server assigns them.
func serviceFields(desired, target *corev1.Service) []ownedField {
	return []ownedField{
		labelFields("metadata.labels", desired.Labels, &target.Labels),
		semanticField("spec.type", desired.Spec.Type, &target.Spec.Type),
		semanticField("spec.selector", desired.Spec.Selector, &target.Spec.Selector),
		semanticField("spec.ports", desired.Spec.Ports, &target.Spec.Ports),
	}
}

func ingressFields(desired, target *networkingv1.Ingress) []ownedField {
	fields := []ownedField{
		labelFields("metadata.labels", desired.Labels, &target.Labels),
	}

	// An unset class is filled in by the DefaultIngressClass admission plugin.
	if desired.Spec.IngressClassName != nil {
		fields = append(fields,
			semanticField("spec.ingressClassName", desired.Spec.IngressClassName, &target.Spec.IngressClassName))
	}

	return append(fields, semanticField("spec.rules", desired.Spec.Rules, &target.Spec.Rules))
}
