package reconciler

import (
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lexfrei/webapp-operator/api/v1alpha1"
	"github.com/lexfrei/webapp-operator/internal/status"
)

// Phase is a step of one reconcile pass.
type Phase string

const (
	PhaseValidating Phase = "Validating"
	PhaseBuilding   Phase = "Building"
	PhaseDiffing    Phase = "Diffing"
	PhaseApplying   Phase = "Applying"
	PhaseReporting  Phase = "Reporting"
	PhaseDone       Phase = "Done"

	// PhaseFailed means the status could not be written.
	PhaseFailed Phase = "Failed"
)

// EventKind is why a pass was triggered.
type EventKind string

const (
	EventCreate             EventKind = "Create"
	EventUpdate             EventKind = "Update"
	EventResume             EventKind = "Resume"
	EventDeleteNotification EventKind = "DeleteNotification"
)

// Skip reasons reported in Result.Skipped.
const (
	SkipDeleted = "deleted"
	SkipStale   = "stale"
)

// Request is one unit of work for the engine.
type Request struct {
	Key client.ObjectKey

	// App is the snapshot to reconcile. It is never modified and may be nil
	// for EventDeleteNotification.
	App *v1alpha1.App

	Event EventKind
}

// Result describes how a pass ended.
type Result struct {
	// Phase is PhaseDone or PhaseFailed.
	Phase Phase

	// Skipped is non-empty when the pass did no work.
	Skipped string

	Outcome status.Outcome
	Status  v1alpha1.AppStatus

	// StatusWritten is false when the status was unchanged or the write failed.
	StatusWritten bool

	// Err is the status write error, set only with PhaseFailed.
	Err error
}

// Retriable reports whether the request should be retried with backoff.
func (r Result) Retriable() bool {
	return r.Err != nil || r.Outcome.Retriable()
}
