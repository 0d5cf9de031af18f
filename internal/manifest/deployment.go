package manifest

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// buildDeployment sets replicas to the autoscaler minimum. Once the autoscaler
// exists it owns the live replica count; the diff package stops comparing it.
func buildDeployment(spec *AppSpec) client.Object {
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			APIVersion: appsv1.SchemeGroupVersion.String(),
			Kind:       string(KindDeployment),
		},
		ObjectMeta: objectMeta(spec, KindDeployment),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(spec.MinReplicas),
			Selector: &metav1.LabelSelector{
				MatchLabels: SelectorLabels(spec.Parent.Name),
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: SelectorLabels(spec.Parent.Name),
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{appContainer(spec)},
				},
			},
		},
	}
}

// appContainer returns the desired application container.
func appContainer(spec *AppSpec) corev1.Container {
	var env []corev1.EnvVar
	if len(spec.Env) > 0 {
		env = make([]corev1.EnvVar, len(spec.Env))
		copy(env, spec.Env)
	}

	return corev1.Container{
		Name:  ContainerName,
		Image: spec.Image,
		Ports: []corev1.ContainerPort{
			{
				Name:          PortName,
				ContainerPort: spec.Port,
				Protocol:      corev1.ProtocolTCP,
			},
		},
		Env:       env,
		Resources: *spec.Resources.DeepCopy(),
	}
}
