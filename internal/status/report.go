package status

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lexfrei/webapp-operator/api/v1alpha1"
	"github.com/lexfrei/webapp-operator/internal/validation"
)

// Condition reasons that are not failure reasons.
const (
	ReasonReconciled      = "Reconciled"
	ReasonReconcileFailed = "ReconcileFailed"
	ReasonRollingOut      = "RollingOut"
	ReasonAvailable       = "Available"
	ReasonAsExpected      = "AsExpected"
	ReasonMultiple        = "MultipleFailures"
)

// Report folds outcome into previous and returns the new status.
// previous is not modified. Conditions keep their lastTransitionTime unless
// their status flips, so reporting the same outcome twice yields equal statuses.
func Report(previous v1alpha1.AppStatus, outcome Outcome, now metav1.Time) v1alpha1.AppStatus {
	next := *previous.DeepCopy()
	next.ObservedGeneration = outcome.Generation

	if outcome.Validation != nil {
		reportInvalid(&next, outcome, now)

		return next
	}

	failures := outcome.Failures()

	setCondition(&next, outcome.Generation, now, readyCondition(outcome, failures))
	setCondition(&next, outcome.Generation, now, progressingCondition(outcome, failures))
	setCondition(&next, outcome.Generation, now, degradedCondition(failures))

	next.Children = childReferences(outcome)

	return next
}

// reportInvalid keeps the previous children: an invalid spec touches nothing,
// so whatever existed before still exists.
func reportInvalid(next *v1alpha1.AppStatus, outcome Outcome, now metav1.Time) {
	message := "spec is invalid: " + validationMessage(outcome.Validation)

	setCondition(next, outcome.Generation, now, metav1.Condition{
		Type:    v1alpha1.ConditionTypeReady,
		Status:  metav1.ConditionFalse,
		Reason:  string(ReasonInvalidSpec),
		Message: message,
	})
	setCondition(next, outcome.Generation, now, metav1.Condition{
		Type:    v1alpha1.ConditionTypeProgressing,
		Status:  metav1.ConditionFalse,
		Reason:  string(ReasonInvalidSpec),
		Message: "reconciliation blocked until the spec is fixed",
	})
	setCondition(next, outcome.Generation, now, metav1.Condition{
		Type:    v1alpha1.ConditionTypeDegraded,
		Status:  metav1.ConditionTrue,
		Reason:  string(ReasonInvalidSpec),
		Message: message,
	})
}

func readyCondition(outcome Outcome, failures []ChildOutcome) metav1.Condition {
	if outcome.Succeeded() {
		return metav1.Condition{
			Type:    v1alpha1.ConditionTypeReady,
			Status:  metav1.ConditionTrue,
			Reason:  ReasonReconciled,
			Message: "all children are in sync",
		}
	}

	return metav1.Condition{
		Type:    v1alpha1.ConditionTypeReady,
		Status:  metav1.ConditionFalse,
		Reason:  ReasonReconcileFailed,
		Message: fmt.Sprintf("%d of %d children failed", len(failures), len(outcome.Children)),
	}
}

func progressingCondition(outcome Outcome, failures []ChildOutcome) metav1.Condition {
	switch {
	case len(failures) > 0:
		return metav1.Condition{
			Type:    v1alpha1.ConditionTypeProgressing,
			Status:  metav1.ConditionFalse,
			Reason:  ReasonReconcileFailed,
			Message: "reconciliation failed, see the Degraded condition",
		}
	case !outcome.DeploymentAvailable:
		return metav1.Condition{
			Type:    v1alpha1.ConditionTypeProgressing,
			Status:  metav1.ConditionTrue,
			Reason:  ReasonRollingOut,
			Message: "waiting for the deployment to become available",
		}
	default:
		return metav1.Condition{
			Type:    v1alpha1.ConditionTypeProgressing,
			Status:  metav1.ConditionFalse,
			Reason:  ReasonAvailable,
			Message: "deployment is available",
		}
	}
}

func degradedCondition(failures []ChildOutcome) metav1.Condition {
	if len(failures) == 0 {
		return metav1.Condition{
			Type:    v1alpha1.ConditionTypeDegraded,
			Status:  metav1.ConditionFalse,
			Reason:  ReasonAsExpected,
			Message: "no failures",
		}
	}

	reason := string(failures[0].Reason)
	parts := make([]string, 0, len(failures))

	for _, failure := range failures {
		if string(failure.Reason) != reason {
			reason = ReasonMultiple
		}

		parts = append(parts, fmt.Sprintf("%s %s: %s: %s", failure.Kind, failure.Name, failure.Reason, failure.Message))
	}

	return metav1.Condition{
		Type:    v1alpha1.ConditionTypeDegraded,
		Status:  metav1.ConditionTrue,
		Reason:  reason,
		Message: strings.Join(parts, "; "),
	}
}

func setCondition(next *v1alpha1.AppStatus, generation int64, now metav1.Time, cond metav1.Condition) {
	cond.ObservedGeneration = generation
	cond.LastTransitionTime = now

	meta.SetStatusCondition(&next.Conditions, cond)
}

func childReferences(outcome Outcome) []v1alpha1.ChildReference {
	var refs []v1alpha1.ChildReference

	for _, child := range outcome.Children {
		if child.Exists {
			refs = append(refs, v1alpha1.ChildReference{Kind: string(child.Kind), Name: child.Name})
		}
	}

	return refs
}

func validationMessage(err error) string {
	if validationErr, ok := validation.AsError(err); ok {
		return strings.Join(validationErr.Messages(), "; ")
	}

	return err.Error()
}
