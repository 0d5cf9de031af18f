package manifest

import (
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// rootPath is the single path routed to the backend.
const rootPath = "/"

func buildIngress(spec *AppSpec) client.Object {
	var className *string
	if spec.IngressClassName != "" {
		className = ptr.To(spec.IngressClassName)
	}

	return &networkingv1.Ingress{
		TypeMeta: metav1.TypeMeta{
			APIVersion: networkingv1.SchemeGroupVersion.String(),
			Kind:       string(KindIngress),
		},
		ObjectMeta: objectMeta(spec, KindIngress),
		Spec: networkingv1.IngressSpec{
			IngressClassName: className,
			Rules: []networkingv1.IngressRule{
				{
					Host: spec.Host,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{
									Path:     rootPath,
									PathType: ptr.To(networkingv1.PathTypePrefix),
									Backend: networkingv1.IngressBackend{
										Service: &networkingv1.IngressServiceBackend{
											Name: ChildName(spec.Parent.Name, KindService),
											Port: networkingv1.ServiceBackendPort{
												Number: spec.Port,
											},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}
