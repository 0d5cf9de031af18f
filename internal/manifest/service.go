package manifest

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

func buildService(spec *AppSpec) client.Object {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			APIVersion: corev1.SchemeGroupVersion.String(),
			Kind:       string(KindService),
		},
		ObjectMeta: objectMeta(spec, KindService),
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: SelectorLabels(spec.Parent.Name),
			Ports: []corev1.ServicePort{
				{
					Name:       PortName,
					Protocol:   corev1.ProtocolTCP,
					Port:       spec.Port,
					TargetPort: intstr.FromInt32(spec.Port),
				},
			},
		},
	}
}
