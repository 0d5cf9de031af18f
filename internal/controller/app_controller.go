package controller

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/util/workqueue"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	crcontroller "sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/lexfrei/webapp-operator/api/v1alpha1"
	"github.com/lexfrei/webapp-operator/internal/reconciler"
)

// ErrIncomplete is returned to the workqueue when a pass should be retried with backoff.
var ErrIncomplete = errors.New("reconcile incomplete")

// Engine runs one reconcile pass. *reconciler.Engine implements it.
type Engine interface {
	Reconcile(ctx context.Context, req reconciler.Request) reconciler.Result
}

// AppReconciler adapts controller-runtime requests to engine requests.
// It reads the App, derives the event kind and turns retriable outcomes
// into errors so the workqueue backs off.
type AppReconciler struct {
	client.Client

	Engine Engine
}

// +kubebuilder:rbac:groups=webapp.k8s.lex.la,resources=apps,verbs=get;list;watch
// +kubebuilder:rbac:groups=webapp.k8s.lex.la,resources=apps/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;create;patch
// +kubebuilder:rbac:groups=autoscaling,resources=horizontalpodautoscalers,verbs=get;list;watch;create;patch
// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;patch
// +kubebuilder:rbac:groups=networking.k8s.io,resources=ingresses,verbs=get;list;watch;create;patch

func (r *AppReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	var app v1alpha1.App

	err := r.Get(ctx, req.NamespacedName, &app)
	if err != nil {
		if apierrors.IsNotFound(err) {
			r.Engine.Reconcile(ctx, reconciler.Request{
				Key:   req.NamespacedName,
				Event: reconciler.EventDeleteNotification,
			})

			return ctrl.Result{}, nil
		}

		return ctrl.Result{}, errors.Wrap(err, "failed to get App")
	}

	event := EventKindFor(&app)

	result := r.Engine.Reconcile(ctx, reconciler.Request{
		Key:   req.NamespacedName,
		App:   &app,
		Event: event,
	})

	if result.Skipped != "" {
		logger.V(1).Info("reconcile skipped", "reason", result.Skipped)

		return ctrl.Result{}, nil
	}

	if result.Err != nil {
		return ctrl.Result{}, errors.Wrapf(result.Err, "reconcile of %s failed", req.NamespacedName)
	}

	if result.Retriable() {
		return ctrl.Result{}, errors.Wrapf(ErrIncomplete, "%s: %s", req.NamespacedName, failureSummary(result))
	}

	logger.V(1).Info("reconcile finished", "event", string(event), "statusWritten", result.StatusWritten)

	return ctrl.Result{}, nil
}

// EventKindFor derives why app is being reconciled.
func EventKindFor(app *v1alpha1.App) reconciler.EventKind {
	switch {
	case !app.DeletionTimestamp.IsZero():
		return reconciler.EventDeleteNotification
	case app.Status.ObservedGeneration == 0:
		return reconciler.EventCreate
	case app.Generation > app.Status.ObservedGeneration:
		return reconciler.EventUpdate
	default:
		return reconciler.EventResume
	}
}

func failureSummary(result reconciler.Result) string {
	failures := result.Outcome.Failures()
	parts := make([]string, 0, len(failures))

	for _, failure := range failures {
		parts = append(parts, string(failure.Kind)+"="+string(failure.Reason))
	}

	return strings.Join(parts, ", ")
}

// SetupOptions tune the App controller.
type SetupOptions struct {
	MaxConcurrentReconciles int
	BackoffBase             time.Duration
	BackoffMax              time.Duration
}

// SetupWithManager sets up the controller with the Manager.
// Spec changes of the App and any change of an owned child enqueue the App;
// App status writes do not.
func (r *AppReconciler) SetupWithManager(mgr ctrl.Manager, opts SetupOptions) error {
	//nolint:wrapcheck // controller-runtime builder pattern
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.App{}, builder.WithPredicates(predicate.GenerationChangedPredicate{})).
		Owns(&appsv1.Deployment{}).
		Owns(&autoscalingv2.HorizontalPodAutoscaler{}).
		Owns(&corev1.Service{}).
		Owns(&networkingv1.Ingress{}).
		WithOptions(crcontroller.Options{
			MaxConcurrentReconciles: opts.MaxConcurrentReconciles,
			RateLimiter: workqueue.NewTypedItemExponentialFailureRateLimiter[reconcile.Request](
				opts.BackoffBase, opts.BackoffMax,
			),
		}).
		Complete(r)
}
