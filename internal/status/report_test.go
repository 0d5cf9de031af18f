package status_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lexfrei/webapp-operator/api/v1alpha1"
	"github.com/lexfrei/webapp-operator/internal/manifest"
	"github.com/lexfrei/webapp-operator/internal/status"
	"github.com/lexfrei/webapp-operator/internal/validation"
)

func children(result status.Result) []status.ChildOutcome {
	outcomes := make([]status.ChildOutcome, 0, len(manifest.AllKinds()))

	for _, kind := range manifest.AllKinds() {
		outcomes = append(outcomes, status.ChildOutcome{
			Kind:   kind,
			Name:   manifest.ChildName("app", kind),
			Result: result,
			Exists: true,
		})
	}

	return outcomes
}

func condition(t *testing.T, st v1alpha1.AppStatus, condType string) *metav1.Condition {
	t.Helper()

	cond := meta.FindStatusCondition(st.Conditions, condType)
	require.NotNil(t, cond, "condition %s missing", condType)

	return cond
}

func TestReport_AllCreated(t *testing.T) {
	t.Parallel()

	now := metav1.NewTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	st := status.Report(v1alpha1.AppStatus{}, status.Outcome{
		Generation: 1,
		Children:   children(status.ResultCreated),
	}, now)

	assert.Equal(t, int64(1), st.ObservedGeneration)
	assert.Equal(t, metav1.ConditionTrue, condition(t, st, v1alpha1.ConditionTypeReady).Status)
	assert.Equal(t, metav1.ConditionTrue, condition(t, st, v1alpha1.ConditionTypeProgressing).Status)
	assert.Equal(t, metav1.ConditionFalse, condition(t, st, v1alpha1.ConditionTypeDegraded).Status)
	assert.Equal(t, []v1alpha1.ChildReference{
		{Kind: "Deployment", Name: "app-deploy"},
		{Kind: "HorizontalPodAutoscaler", Name: "app-hpa"},
		{Kind: "Service", Name: "app-svc"},
		{Kind: "Ingress", Name: "app-ing"},
	}, st.Children)

	for _, cond := range st.Conditions {
		assert.Equal(t, int64(1), cond.ObservedGeneration)
		assert.Equal(t, now, cond.LastTransitionTime)
	}
}

func TestReport_AvailableStopsProgressing(t *testing.T) {
	t.Parallel()

	st := status.Report(v1alpha1.AppStatus{}, status.Outcome{
		Generation:          2,
		Children:            children(status.ResultUnchanged),
		DeploymentAvailable: true,
	}, metav1.Now())

	progressing := condition(t, st, v1alpha1.ConditionTypeProgressing)
	assert.Equal(t, metav1.ConditionFalse, progressing.Status)
	assert.Equal(t, status.ReasonAvailable, progressing.Reason)
}

func TestReport_InvalidSpec(t *testing.T) {
	t.Parallel()

	app := &v1alpha1.App{
		ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "default", Generation: 4},
	}
	app.Spec.Deployment = v1alpha1.DeploymentConfig{Image: "app:v1", Port: 8000}
	app.Spec.Autoscale.Min = new(int32)
	*app.Spec.Autoscale.Min = 5
	app.Spec.Autoscale.Max = new(int32)
	*app.Spec.Autoscale.Max = 3
	app.Spec.Autoscale.TargetCPUUtilizationPercentage = 70
	app.Spec.Ingress.Host = "a.example.com"

	_, err := validation.Validate(app)
	require.Error(t, err)

	previous := v1alpha1.AppStatus{
		ObservedGeneration: 3,
		Children:           []v1alpha1.ChildReference{{Kind: "Deployment", Name: "app-deploy"}},
	}

	st := status.Report(previous, status.Outcome{Generation: 4, Validation: err}, metav1.Now())

	assert.Equal(t, int64(4), st.ObservedGeneration)
	assert.Equal(t, previous.Children, st.Children)

	ready := condition(t, st, v1alpha1.ConditionTypeReady)
	assert.Equal(t, metav1.ConditionFalse, ready.Status)
	assert.Equal(t, string(status.ReasonInvalidSpec), ready.Reason)
	assert.Contains(t, ready.Message, "autoscale.max")
	assert.Contains(t, ready.Message, "max<min")

	degraded := condition(t, st, v1alpha1.ConditionTypeDegraded)
	assert.Equal(t, metav1.ConditionTrue, degraded.Status)
	assert.Contains(t, degraded.Message, "autoscale.max")
}

func TestReport_InvalidSpecWithoutChildren(t *testing.T) {
	t.Parallel()

	st := status.Report(v1alpha1.AppStatus{}, status.Outcome{
		Generation: 1,
		Validation: errors.New("broken"),
	}, metav1.Now())

	assert.Empty(t, st.Children)
	assert.Contains(t, condition(t, st, v1alpha1.ConditionTypeDegraded).Message, "broken")
}

func TestReport_PartialFailure(t *testing.T) {
	t.Parallel()

	outcomes := children(status.ResultUnchanged)
	outcomes[2] = status.ChildOutcome{
		Kind:    manifest.KindService,
		Name:    "app-svc",
		Result:  status.ResultFailed,
		Reason:  status.ReasonConflict,
		Message: "object was modified",
		Exists:  true,
	}
	outcomes[3] = status.ChildOutcome{
		Kind:    manifest.KindIngress,
		Name:    "app-ing",
		Result:  status.ResultFailed,
		Reason:  status.ReasonPermissionDenied,
		Message: "forbidden",
	}

	st := status.Report(v1alpha1.AppStatus{}, status.Outcome{Generation: 1, Children: outcomes}, metav1.Now())

	assert.Equal(t, metav1.ConditionFalse, condition(t, st, v1alpha1.ConditionTypeReady).Status)
	assert.Equal(t, metav1.ConditionFalse, condition(t, st, v1alpha1.ConditionTypeProgressing).Status)

	degraded := condition(t, st, v1alpha1.ConditionTypeDegraded)
	assert.Equal(t, metav1.ConditionTrue, degraded.Status)
	assert.Equal(t, status.ReasonMultiple, degraded.Reason)
	assert.Contains(t, degraded.Message, "Service app-svc: Conflict")
	assert.Contains(t, degraded.Message, "Ingress app-ing: PermissionDenied")

	assert.Equal(t, []v1alpha1.ChildReference{
		{Kind: "Deployment", Name: "app-deploy"},
		{Kind: "HorizontalPodAutoscaler", Name: "app-hpa"},
		{Kind: "Service", Name: "app-svc"},
	}, st.Children)
}

func TestReport_SingleFailureReason(t *testing.T) {
	t.Parallel()

	outcomes := children(status.ResultCreated)
	outcomes[0].Result = status.ResultFailed
	outcomes[0].Reason = status.ReasonTimeout

	st := status.Report(v1alpha1.AppStatus{}, status.Outcome{Generation: 1, Children: outcomes}, metav1.Now())

	assert.Equal(t, string(status.ReasonTimeout), condition(t, st, v1alpha1.ConditionTypeDegraded).Reason)
}

func TestReport_Idempotent(t *testing.T) {
	t.Parallel()

	first := metav1.NewTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := metav1.NewTime(first.Add(time.Hour))

	outcome := status.Outcome{Generation: 1, Children: children(status.ResultUnchanged), DeploymentAvailable: true}

	once := status.Report(v1alpha1.AppStatus{}, outcome, first)
	twice := status.Report(once, outcome, later)

	assert.True(t, equality.Semantic.DeepEqual(once, twice))
}

func TestReport_TransitionMovesTime(t *testing.T) {
	t.Parallel()

	first := metav1.NewTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := metav1.NewTime(first.Add(time.Hour))

	healthy := status.Report(v1alpha1.AppStatus{}, status.Outcome{
		Generation: 1, Children: children(status.ResultUnchanged), DeploymentAvailable: true,
	}, first)

	failing := children(status.ResultUnchanged)
	failing[0].Result = status.ResultFailed
	failing[0].Reason = status.ReasonAPIError

	degraded := status.Report(healthy, status.Outcome{Generation: 2, Children: failing}, later)

	assert.Equal(t, later, condition(t, degraded, v1alpha1.ConditionTypeReady).LastTransitionTime)
	assert.Equal(t, later, condition(t, degraded, v1alpha1.ConditionTypeDegraded).LastTransitionTime)
	assert.Equal(t, first, condition(t, degraded, v1alpha1.ConditionTypeProgressing).LastTransitionTime)
	assert.Equal(t, metav1.ConditionTrue, condition(t, healthy, v1alpha1.ConditionTypeReady).Status,
		"previous status must not be modified")
}

func TestReasonRetriable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason   status.Reason
		expected bool
	}{
		{reason: status.ReasonConflict, expected: true},
		{reason: status.ReasonTimeout, expected: true},
		{reason: status.ReasonAPIError, expected: true},
		{reason: status.ReasonInvalidSpec, expected: false},
		{reason: status.ReasonPermissionDenied, expected: false},
		{reason: status.ReasonAlreadyOwned, expected: false},
	}

	for _, tc := range tests {
		t.Run(string(tc.reason), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, tc.reason.Retriable())
		})
	}
}

func TestOutcomeRetriable(t *testing.T) {
	t.Parallel()

	assert.False(t, status.Outcome{Children: children(status.ResultCreated)}.Retriable())
	assert.False(t, status.Outcome{Validation: errors.New("bad")}.Retriable())

	denied := children(status.ResultCreated)
	denied[1].Result = status.ResultFailed
	denied[1].Reason = status.ReasonPermissionDenied
	assert.False(t, status.Outcome{Children: denied}.Retriable())

	denied[2].Result = status.ResultFailed
	denied[2].Reason = status.ReasonConflict
	assert.True(t, status.Outcome{Children: denied}.Retriable())
}

func TestIsDeploymentAvailable(t *testing.T) {
	t.Parallel()

	available := func(generation, observed int64, condStatus corev1.ConditionStatus) *appsv1.Deployment {
		return &appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Generation: generation},
			Status: appsv1.DeploymentStatus{
				ObservedGeneration: observed,
				Conditions: []appsv1.DeploymentCondition{
					{Type: appsv1.DeploymentProgressing, Status: corev1.ConditionTrue},
					{Type: appsv1.DeploymentAvailable, Status: condStatus},
				},
			},
		}
	}

	assert.True(t, status.IsDeploymentAvailable(available(2, 2, corev1.ConditionTrue)))
	assert.False(t, status.IsDeploymentAvailable(available(3, 2, corev1.ConditionTrue)))
	assert.False(t, status.IsDeploymentAvailable(available(2, 2, corev1.ConditionFalse)))
	assert.False(t, status.IsDeploymentAvailable(&appsv1.Deployment{}))
	assert.False(t, status.IsDeploymentAvailable(nil))
}
