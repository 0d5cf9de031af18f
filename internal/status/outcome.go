// Package status models the outcome of one reconcile pass and folds it into
// the App status subresource.
package status

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/lexfrei/webapp-operator/internal/manifest"
)

// Result is what happened to one child during a pass.
type Result string

const (
	ResultCreated   Result = "Created"
	ResultUpdated   Result = "Updated"
	ResultUnchanged Result = "Unchanged"
	ResultFailed    Result = "Failed"
)

// Reason classifies a failure.
type Reason string

const (
	ReasonInvalidSpec      Reason = "InvalidSpec"
	ReasonConflict         Reason = "Conflict"
	ReasonTimeout          Reason = "Timeout"
	ReasonPermissionDenied Reason = "PermissionDenied"
	ReasonAlreadyOwned     Reason = "AlreadyOwned"
	ReasonAPIError         Reason = "APIError"
)

// Retriable reports whether a later pass may succeed without a spec change.
func (r Reason) Retriable() bool {
	switch r {
	case ReasonConflict, ReasonTimeout, ReasonAPIError:
		return true
	case ReasonInvalidSpec, ReasonPermissionDenied, ReasonAlreadyOwned:
		return false
	default:
		return false
	}
}

// ChildOutcome is the result for one child kind.
type ChildOutcome struct {
	Kind    manifest.Kind
	Name    string
	Result  Result
	Reason  Reason
	Message string

	// Changed lists the owned fields that were patched or found drifting.
	Changed []string

	// Exists is true when the child is known to exist after the pass.
	Exists bool
}

// Succeeded reports whether the child reached its desired state.
func (c ChildOutcome) Succeeded() bool {
	switch c.Result {
	case ResultCreated, ResultUpdated, ResultUnchanged:
		return true
	case ResultFailed:
		return false
	default:
		return false
	}
}

// Outcome aggregates a whole pass.
type Outcome struct {
	// Generation is the App generation the pass reconciled.
	Generation int64

	// Validation is non-nil when the spec was rejected. No child was touched.
	Validation error

	Children []ChildOutcome

	// DeploymentAvailable is true when the live Deployment was unchanged and
	// reports the Available condition.
	DeploymentAvailable bool
}

// Failures returns the children that failed, in pass order.
func (o Outcome) Failures() []ChildOutcome {
	var failed []ChildOutcome

	for _, child := range o.Children {
		if !child.Succeeded() {
			failed = append(failed, child)
		}
	}

	return failed
}

// Retriable reports whether the pass should be requeued with backoff.
// An invalid spec is never retried; it waits for the next spec change.
func (o Outcome) Retriable() bool {
	if o.Validation != nil {
		return false
	}

	for _, child := range o.Failures() {
		if child.Reason.Retriable() {
			return true
		}
	}

	return false
}

// Succeeded reports whether the spec was valid and every child kind succeeded.
func (o Outcome) Succeeded() bool {
	if o.Validation != nil || len(o.Children) != len(manifest.AllKinds()) {
		return false
	}

	return len(o.Failures()) == 0
}

// IsDeploymentAvailable reports whether the controller has observed the
// current Deployment generation and marked it Available.
func IsDeploymentAvailable(deployment *appsv1.Deployment) bool {
	if deployment == nil || deployment.Status.ObservedGeneration < deployment.Generation {
		return false
	}

	for _, cond := range deployment.Status.Conditions {
		if cond.Type == appsv1.DeploymentAvailable {
			return cond.Status == corev1.ConditionTrue
		}
	}

	return false
}
