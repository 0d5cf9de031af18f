package manifest_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/lexfrei/webapp-operator/internal/manifest"
)

func exampleSpec() *manifest.AppSpec {
	return &manifest.AppSpec{
		Parent: manifest.Parent{
			Namespace: "default",
			Name:      "app",
			UID:       "uid-1",
		},
		Image: "app:v1",
		Port:  8000,
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("100m"),
				corev1.ResourceMemory: resource.MustParse("128Mi"),
			},
		},
		MinReplicas:          2,
		MaxReplicas:          10,
		TargetCPUUtilization: 70,
		IngressClassName:     "nginx",
		Host:                 "a.example.com",
		Env: []corev1.EnvVar{
			{Name: "MODE", Value: "prod"},
		},
	}
}

func TestChildName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind     manifest.Kind
		expected string
	}{
		{kind: manifest.KindDeployment, expected: "app-deploy"},
		{kind: manifest.KindAutoscaler, expected: "app-hpa"},
		{kind: manifest.KindService, expected: "app-svc"},
		{kind: manifest.KindIngress, expected: "app-ing"},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, manifest.ChildName("app", tc.kind))
		})
	}
}

func TestChildName_UniqueAcrossKinds(t *testing.T) {
	t.Parallel()

	seen := make(map[string]manifest.Kind)

	for _, kind := range manifest.AllKinds() {
		name := manifest.ChildName("app", kind)
		other, dup := seen[name]
		assert.False(t, dup, "%s collides with %s", kind, other)

		seen[name] = kind
	}

	assert.Len(t, seen, 4)
}

func TestKind_NewObject(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &appsv1.Deployment{}, manifest.KindDeployment.NewObject())
	assert.IsType(t, &autoscalingv2.HorizontalPodAutoscaler{}, manifest.KindAutoscaler.NewObject())
	assert.IsType(t, &corev1.Service{}, manifest.KindService.NewObject())
	assert.IsType(t, &networkingv1.Ingress{}, manifest.KindIngress.NewObject())
	assert.Nil(t, manifest.Kind("ConfigMap").NewObject())
	assert.False(t, manifest.Kind("ConfigMap").Valid())
}

func TestBuild_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := manifest.Build(exampleSpec(), manifest.Kind("ConfigMap"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown child kind")
}

func TestBuildAll_Example(t *testing.T) {
	t.Parallel()

	spec := exampleSpec()
	descriptors := manifest.BuildAll(spec)

	require.Len(t, descriptors, 4)

	for i, kind := range manifest.AllKinds() {
		assert.Equal(t, kind, descriptors[i].Kind)
		assert.Equal(t, manifest.ChildName("app", kind), descriptors[i].Name)
		assert.Equal(t, descriptors[i].Name, descriptors[i].Object.GetName())
		assert.Equal(t, "default", descriptors[i].Object.GetNamespace())
		assert.Equal(t, spec.Parent, descriptors[i].Owner)
		assert.Equal(t, manifest.CommonLabels("app"), descriptors[i].Object.GetLabels())
	}
}

func TestBuildDeployment(t *testing.T) {
	t.Parallel()

	desc, err := manifest.Build(exampleSpec(), manifest.KindDeployment)
	require.NoError(t, err)

	deploy, ok := desc.Object.(*appsv1.Deployment)
	require.True(t, ok)

	require.NotNil(t, deploy.Spec.Replicas)
	assert.Equal(t, int32(2), *deploy.Spec.Replicas)
	assert.Equal(t, manifest.SelectorLabels("app"), deploy.Spec.Selector.MatchLabels)
	assert.Equal(t, manifest.SelectorLabels("app"), deploy.Spec.Template.Labels)

	require.Len(t, deploy.Spec.Template.Spec.Containers, 1)
	container := deploy.Spec.Template.Spec.Containers[0]
	assert.Equal(t, manifest.ContainerName, container.Name)
	assert.Equal(t, "app:v1", container.Image)
	require.Len(t, container.Ports, 1)
	assert.Equal(t, int32(8000), container.Ports[0].ContainerPort)
	assert.Equal(t, corev1.ProtocolTCP, container.Ports[0].Protocol)
	assert.Equal(t, []corev1.EnvVar{{Name: "MODE", Value: "prod"}}, container.Env)
	assert.True(t, container.Resources.Requests.Cpu().Equal(resource.MustParse("100m")))
}

func TestBuildDeployment_DoesNotAliasSpec(t *testing.T) {
	t.Parallel()

	spec := exampleSpec()
	desc, err := manifest.Build(spec, manifest.KindDeployment)
	require.NoError(t, err)

	deploy := desc.Object.(*appsv1.Deployment)
	deploy.Spec.Template.Spec.Containers[0].Env[0].Value = "mutated"
	deploy.Spec.Template.Spec.Containers[0].Resources.Requests[corev1.ResourceCPU] = resource.MustParse("9")

	assert.Equal(t, "prod", spec.Env[0].Value)
	assert.True(t, spec.Resources.Requests.Cpu().Equal(resource.MustParse("100m")))
}

func TestBuildDeployment_NoEnv(t *testing.T) {
	t.Parallel()

	spec := exampleSpec()
	spec.Env = nil

	desc, err := manifest.Build(spec, manifest.KindDeployment)
	require.NoError(t, err)

	deploy := desc.Object.(*appsv1.Deployment)
	assert.Nil(t, deploy.Spec.Template.Spec.Containers[0].Env)
}

func TestBuildAutoscaler_TargetsDeploymentByName(t *testing.T) {
	t.Parallel()

	for _, parent := range []string{"app", "shop-frontend", "a"} {
		spec := exampleSpec()
		spec.Parent.Name = parent

		descriptors := manifest.BuildAll(spec)
		deployment := descriptors[0]
		hpa, ok := descriptors[1].Object.(*autoscalingv2.HorizontalPodAutoscaler)
		require.True(t, ok)

		assert.Equal(t, deployment.Name, hpa.Spec.ScaleTargetRef.Name, "parent %s", parent)
		assert.Equal(t, deployment.Object.GetName(), hpa.Spec.ScaleTargetRef.Name)
		assert.Equal(t, "Deployment", hpa.Spec.ScaleTargetRef.Kind)
		assert.Equal(t, "apps/v1", hpa.Spec.ScaleTargetRef.APIVersion)
	}
}

func TestBuildAutoscaler(t *testing.T) {
	t.Parallel()

	desc, err := manifest.Build(exampleSpec(), manifest.KindAutoscaler)
	require.NoError(t, err)

	hpa := desc.Object.(*autoscalingv2.HorizontalPodAutoscaler)
	assert.Equal(t, "app-hpa", hpa.Name)
	require.NotNil(t, hpa.Spec.MinReplicas)
	assert.Equal(t, int32(2), *hpa.Spec.MinReplicas)
	assert.Equal(t, int32(10), hpa.Spec.MaxReplicas)

	require.Len(t, hpa.Spec.Metrics, 1)
	metric := hpa.Spec.Metrics[0]
	require.NotNil(t, metric.Resource)
	assert.Equal(t, corev1.ResourceCPU, metric.Resource.Name)
	assert.Equal(t, autoscalingv2.UtilizationMetricType, metric.Resource.Target.Type)
	require.NotNil(t, metric.Resource.Target.AverageUtilization)
	assert.Equal(t, int32(70), *metric.Resource.Target.AverageUtilization)
}

func TestBuildService(t *testing.T) {
	t.Parallel()

	desc, err := manifest.Build(exampleSpec(), manifest.KindService)
	require.NoError(t, err)

	svc := desc.Object.(*corev1.Service)
	assert.Equal(t, "app-svc", svc.Name)
	assert.Equal(t, corev1.ServiceTypeClusterIP, svc.Spec.Type)
	assert.Equal(t, manifest.SelectorLabels("app"), svc.Spec.Selector)
	assert.Empty(t, svc.Spec.ClusterIP)

	require.Len(t, svc.Spec.Ports, 1)
	assert.Equal(t, int32(8000), svc.Spec.Ports[0].Port)
	assert.Equal(t, intstr.FromInt32(8000), svc.Spec.Ports[0].TargetPort)
}

func TestBuildService_SelectsDeploymentPods(t *testing.T) {
	t.Parallel()

	descriptors := manifest.BuildAll(exampleSpec())
	deploy := descriptors[0].Object.(*appsv1.Deployment)
	svc := descriptors[2].Object.(*corev1.Service)

	for key, value := range svc.Spec.Selector {
		assert.Equal(t, value, deploy.Spec.Template.Labels[key])
	}
}

func TestBuildIngress(t *testing.T) {
	t.Parallel()

	desc, err := manifest.Build(exampleSpec(), manifest.KindIngress)
	require.NoError(t, err)

	ing := desc.Object.(*networkingv1.Ingress)
	assert.Equal(t, "app-ing", ing.Name)
	require.NotNil(t, ing.Spec.IngressClassName)
	assert.Equal(t, "nginx", *ing.Spec.IngressClassName)

	require.Len(t, ing.Spec.Rules, 1)
	rule := ing.Spec.Rules[0]
	assert.Equal(t, "a.example.com", rule.Host)
	require.NotNil(t, rule.HTTP)
	require.Len(t, rule.HTTP.Paths, 1)

	path := rule.HTTP.Paths[0]
	assert.Equal(t, "/", path.Path)
	require.NotNil(t, path.PathType)
	assert.Equal(t, networkingv1.PathTypePrefix, *path.PathType)
	require.NotNil(t, path.Backend.Service)
	assert.Equal(t, manifest.ChildName("app", manifest.KindService), path.Backend.Service.Name)
	assert.Equal(t, int32(8000), path.Backend.Service.Port.Number)
}

func TestBuildIngress_DefaultClass(t *testing.T) {
	t.Parallel()

	spec := exampleSpec()
	spec.IngressClassName = ""

	desc, err := manifest.Build(spec, manifest.KindIngress)
	require.NoError(t, err)

	assert.Nil(t, desc.Object.(*networkingv1.Ingress).Spec.IngressClassName)
}

func TestBuildAll_Deterministic(t *testing.T) {
	t.Parallel()

	first := manifest.BuildAll(exampleSpec())
	second := manifest.BuildAll(exampleSpec())

	require.Len(t, second, len(first))

	for i := range first {
		firstJSON, err := json.Marshal(first[i].Object)
		require.NoError(t, err)

		secondJSON, err := json.Marshal(second[i].Object)
		require.NoError(t, err)

		assert.Equal(t, string(firstJSON), string(secondJSON), "kind %s", first[i].Kind)
		assert.Empty(t, cmp.Diff(first[i].Owner, second[i].Owner))
	}
}
