// Package reconciler turns one App snapshot into created, patched or
// untouched children and a status report.
//
// The engine is independent of controller-runtime's manager: it consumes a
// store.Store and an explicit Request, and always ends a pass with a status
// report attempt. Conflicts are reported, never retried in place; retrying is
// the caller's job.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/lexfrei/webapp-operator/api/v1alpha1"
	"github.com/lexfrei/webapp-operator/internal/diff"
	"github.com/lexfrei/webapp-operator/internal/manifest"
	"github.com/lexfrei/webapp-operator/internal/metrics"
	"github.com/lexfrei/webapp-operator/internal/status"
	"github.com/lexfrei/webapp-operator/internal/store"
	"github.com/lexfrei/webapp-operator/internal/validation"
)

// Reconcile duration result labels.
const (
	resultSuccess = "success"
	resultInvalid = "invalid"
	resultFailed  = "failed"
	resultSkipped = "skipped"
)

// Status write result labels.
const (
	statusWritten   = "written"
	statusUnchanged = "unchanged"
	statusFailed    = "failed"
)

// Engine reconciles App snapshots. It holds no per-App state and is safe for
// concurrent use by multiple workers.
type Engine struct {
	store   store.Store
	scheme  *runtime.Scheme
	metrics metrics.Collector
	logger  *slog.Logger
	clock   clock.PassiveClock
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for condition transition times.
func WithClock(c clock.PassiveClock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// NewEngine creates an Engine. scheme must know the App type and the four
// child types. nil collector and logger fall back to no-op metrics and slog.Default.
func NewEngine(
	objectStore store.Store,
	scheme *runtime.Scheme,
	collector metrics.Collector,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		store:   objectStore,
		scheme:  scheme,
		metrics: collector,
		logger:  logger.With("component", "reconciler"),
		clock:   clock.RealClock{},
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// fetched is the live state of one child.
type fetched struct {
	object client.Object
	found  bool
	err    error
}

// pass carries the state of one Reconcile call.
type pass struct {
	app    *v1alpha1.App
	logger *slog.Logger
	phase  Phase
}

func (p *pass) enter(phase Phase) {
	p.phase = phase
	p.logger.Debug("entering phase", "phase", phase)
}

// Reconcile runs one pass for req. It never returns early without a Result;
// child failures are reported in Result.Outcome, and only a failed status
// write ends in PhaseFailed.
func (e *Engine) Reconcile(ctx context.Context, req Request) Result {
	start := e.clock.Now()
	logger := e.logger.With("app", req.Key.String(), "event", string(req.Event))

	if req.Event == EventDeleteNotification || req.App == nil {
		return e.skip(ctx, logger, start, SkipDeleted)
	}

	app := req.App

	if app.Generation < app.Status.ObservedGeneration {
		logger.Debug("skipping stale snapshot",
			"generation", app.Generation,
			"observedGeneration", app.Status.ObservedGeneration,
		)

		return e.skip(ctx, logger, start, SkipStale)
	}

	run := &pass{app: app, logger: logger.With("generation", app.Generation)}

	outcome := e.reconcileChildren(ctx, run)

	run.enter(PhaseReporting)

	result := e.report(ctx, run, outcome)

	e.recordPass(ctx, result, start)

	return result
}

func (e *Engine) skip(ctx context.Context, logger *slog.Logger, start time.Time, reason string) Result {
	logger.Debug("reconcile skipped", "reason", reason)
	e.metrics.RecordSkippedReconcile(ctx, reason)
	e.metrics.RecordReconcileDuration(ctx, resultSkipped, e.clock.Since(start))

	return Result{Phase: PhaseDone, Skipped: reason}
}

func (e *Engine) reconcileChildren(ctx context.Context, run *pass) status.Outcome {
	outcome := status.Outcome{Generation: run.app.Generation}

	run.enter(PhaseValidating)

	spec, err := validation.Validate(run.app)
	if err != nil {
		outcome.Validation = err

		violations := 1
		if validationErr, ok := validation.AsError(err); ok {
			violations = len(validationErr.Errs)
		}

		e.metrics.RecordValidationFailure(ctx, violations)
		run.logger.Info("spec rejected", "violations", violations, "error", err)

		return outcome
	}

	run.enter(PhaseBuilding)

	descriptors := manifest.BuildAll(spec)

	run.enter(PhaseDiffing)

	live := e.fetchAll(ctx, run.app, descriptors)
	opts := diff.Options{IgnoreReplicas: autoscalerMayExist(descriptors, live)}

	run.enter(PhaseApplying)

	outcome.Children = e.applyAll(ctx, run, descriptors, live, opts)

	for idx, child := range outcome.Children {
		e.metrics.RecordChildOutcome(ctx, string(child.Kind), string(child.Result))

		if child.Kind == manifest.KindDeployment && child.Result == status.ResultUnchanged {
			deployment, _ := live[idx].object.(*appsv1.Deployment)
			outcome.DeploymentAvailable = status.IsDeploymentAvailable(deployment)
		}
	}

	return outcome
}

// fetchAll reads every child concurrently. A missing child is a normal result.
func (e *Engine) fetchAll(
	ctx context.Context,
	app *v1alpha1.App,
	descriptors []manifest.ChildDescriptor,
) []fetched {
	live := make([]fetched, len(descriptors))

	var group errgroup.Group

	for idx, desc := range descriptors {
		group.Go(func() error {
			obj := desc.Kind.NewObject()
			found, err := e.store.Get(ctx, client.ObjectKey{Namespace: app.Namespace, Name: desc.Name}, obj)
			live[idx] = fetched{object: obj, found: found, err: err}

			return nil
		})
	}

	_ = group.Wait()

	return live
}

// autoscalerMayExist is true when a live autoscaler was found or its fetch
// failed. In both cases the Deployment replica count must not be touched.
func autoscalerMayExist(descriptors []manifest.ChildDescriptor, live []fetched) bool {
	for idx, desc := range descriptors {
		if desc.Kind == manifest.KindAutoscaler {
			return live[idx].found || live[idx].err != nil
		}
	}

	return false
}

// applyAll applies every child concurrently. One child's failure never
// prevents the others from being applied.
func (e *Engine) applyAll(
	ctx context.Context,
	run *pass,
	descriptors []manifest.ChildDescriptor,
	live []fetched,
	opts diff.Options,
) []status.ChildOutcome {
	outcomes := make([]status.ChildOutcome, len(descriptors))

	var group errgroup.Group

	for idx, desc := range descriptors {
		group.Go(func() error {
			outcomes[idx] = e.applyChild(ctx, run, desc, live[idx], opts)

			return nil
		})
	}

	_ = group.Wait()

	return outcomes
}

func (e *Engine) applyChild(
	ctx context.Context,
	run *pass,
	desc manifest.ChildDescriptor,
	live fetched,
	opts diff.Options,
) status.ChildOutcome {
	logger := run.logger.With("kind", string(desc.Kind), "name", desc.Name)
	outcome := status.ChildOutcome{Kind: desc.Kind, Name: desc.Name}

	if live.err != nil {
		outcome.Exists = listedInStatus(run.app, desc)

		return failed(logger, outcome, live.err, "failed to read child")
	}

	if err := controllerutil.SetControllerReference(run.app, desc.Object, e.scheme); err != nil {
		return failed(logger, outcome, err, "failed to set owner reference")
	}

	if !live.found {
		return e.createChild(ctx, run, logger, desc, opts)
	}

	return e.patchChild(ctx, run, logger, desc, live.object, opts)
}

func (e *Engine) createChild(
	ctx context.Context,
	run *pass,
	logger *slog.Logger,
	desc manifest.ChildDescriptor,
	opts diff.Options,
) status.ChildOutcome {
	outcome := status.ChildOutcome{Kind: desc.Kind, Name: desc.Name}

	err := e.store.Create(ctx, desc.Object)

	switch {
	case err == nil:
		outcome.Result = status.ResultCreated
		outcome.Exists = true

		logger.Info("child created")

		return outcome
	case !apierrors.IsAlreadyExists(err):
		return failed(logger, outcome, err, "failed to create child")
	}

	// Someone created it since the fetch. Identical owned fields are fine;
	// anything else is a conflict for the next pass to resolve.
	current := desc.Kind.NewObject()

	found, getErr := e.store.Get(ctx, client.ObjectKeyFromObject(desc.Object), current)
	if getErr != nil {
		outcome.Exists = true

		return failed(logger, outcome, getErr, "failed to re-read child after create conflict")
	}

	if !found {
		outcome.Reason = status.ReasonConflict

		return failed(logger, outcome, err, "child vanished after create conflict")
	}

	outcome.Exists = true

	if owned, ownErr := checkOwner(run.app, desc.Kind, current); !owned {
		outcome.Exists = false

		return failedWith(logger, outcome, status.ReasonAlreadyOwned, ownErr.Error())
	}

	drift, diffErr := diff.Compute(desc.Kind, desc.Object, current, opts)
	if diffErr != nil {
		return failed(logger, outcome, diffErr, "failed to diff child")
	}

	if drift.Empty() && hasControllerRef(run.app, current) {
		outcome.Result = status.ResultUnchanged

		return outcome
	}

	outcome.Changed = drift.Fields

	return failedWith(logger, outcome, status.ReasonConflict, "child was created concurrently with different content")
}

func (e *Engine) patchChild(
	ctx context.Context,
	run *pass,
	logger *slog.Logger,
	desc manifest.ChildDescriptor,
	live client.Object,
	opts diff.Options,
) status.ChildOutcome {
	outcome := status.ChildOutcome{Kind: desc.Kind, Name: desc.Name, Exists: true}

	if owned, err := checkOwner(run.app, desc.Kind, live); !owned {
		outcome.Exists = false

		return failedWith(logger, outcome, status.ReasonAlreadyOwned, err.Error())
	}

	drift, err := diff.Compute(desc.Kind, desc.Object, live, opts)
	if err != nil {
		return failed(logger, outcome, err, "failed to diff child")
	}

	adopt := !hasControllerRef(run.app, live)

	if drift.Empty() && !adopt {
		outcome.Result = status.ResultUnchanged

		logger.Debug("child unchanged")

		return outcome
	}

	modified, err := diff.Apply(desc.Kind, desc.Object, live, opts)
	if err != nil {
		return failed(logger, outcome, err, "failed to apply owned fields")
	}

	changed := drift.Fields

	if adopt {
		if err := controllerutil.SetControllerReference(run.app, modified, e.scheme); err != nil {
			return failed(logger, outcome, err, "failed to adopt child")
		}

		changed = append(changed, "metadata.ownerReferences")
	}

	outcome.Changed = changed

	if err := e.store.Patch(ctx, live, modified); err != nil {
		return failed(logger, outcome, err, "failed to patch child")
	}

	outcome.Result = status.ResultUpdated

	logger.Info("child updated", "fields", changed)

	return outcome
}

// checkOwner reports whether obj may be managed for app: it is either
// controlled by app or has no controller at all.
func checkOwner(app *v1alpha1.App, kind manifest.Kind, obj client.Object) (bool, error) {
	ref := metav1.GetControllerOf(obj)
	if ref == nil || ref.UID == app.UID {
		return true, nil
	}

	return false, errors.Newf("%s %s is controlled by %s %s", kind, obj.GetName(), ref.Kind, ref.Name)
}

func hasControllerRef(app *v1alpha1.App, obj client.Object) bool {
	ref := metav1.GetControllerOf(obj)

	return ref != nil && ref.UID == app.UID
}

func listedInStatus(app *v1alpha1.App, desc manifest.ChildDescriptor) bool {
	for _, child := range app.Status.Children {
		if child.Kind == string(desc.Kind) && child.Name == desc.Name {
			return true
		}
	}

	return false
}

// failed marks outcome as failed, classifying err unless a reason is already set.
func failed(logger *slog.Logger, outcome status.ChildOutcome, err error, msg string) status.ChildOutcome {
	reason := outcome.Reason
	if reason == "" {
		reason = classify(err)
	}

	return failedWith(logger, outcome, reason, errors.Wrap(err, msg).Error())
}

func failedWith(
	logger *slog.Logger,
	outcome status.ChildOutcome,
	reason status.Reason,
	message string,
) status.ChildOutcome {
	outcome.Result = status.ResultFailed
	outcome.Reason = reason
	outcome.Message = message

	logger.Warn("child failed", "reason", string(reason), "message", message)

	return outcome
}

// report folds the outcome into the status and writes it unless nothing changed.
func (e *Engine) report(ctx context.Context, run *pass, outcome status.Outcome) Result {
	now := metav1.NewTime(e.clock.Now())
	next := status.Report(run.app.Status, outcome, now)

	result := Result{Phase: PhaseDone, Outcome: outcome, Status: next}

	if equality.Semantic.DeepEqual(next, run.app.Status) {
		e.metrics.RecordStatusWrite(ctx, statusUnchanged)
		run.enter(PhaseDone)

		return result
	}

	updated := run.app.DeepCopy()
	updated.Status = next

	if err := e.store.UpdateStatus(ctx, updated); err != nil {
		e.metrics.RecordStatusWrite(ctx, statusFailed)
		run.logger.Error("failed to write status", "error", err)
		run.enter(PhaseFailed)

		result.Phase = PhaseFailed
		result.Err = errors.Wrap(err, "failed to write status")

		return result
	}

	e.metrics.RecordStatusWrite(ctx, statusWritten)
	run.enter(PhaseDone)

	result.StatusWritten = true

	return result
}

func (e *Engine) recordPass(ctx context.Context, result Result, start time.Time) {
	label := resultSuccess

	switch {
	case result.Outcome.Validation != nil:
		label = resultInvalid
	case result.Phase == PhaseFailed || !result.Outcome.Succeeded():
		label = resultFailed
	}

	e.metrics.RecordReconcileDuration(ctx, label, e.clock.Since(start))
}
