// Package store is the declarative object store the reconcile engine talks to.
//
// KubeStore backs it with a controller-runtime client. Every call runs under
// its own deadline and is recorded in metrics, so the engine never needs to
// know about either.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lexfrei/webapp-operator/api/v1alpha1"
	"github.com/lexfrei/webapp-operator/internal/metrics"
)

// DefaultTimeout bounds a single API call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Store reads and writes App children and App status.
type Store interface {
	// Get fills obj with the object at key. A missing object is reported as
	// found == false with a nil error.
	Get(ctx context.Context, key client.ObjectKey, obj client.Object) (bool, error)

	// Create creates obj.
	Create(ctx context.Context, obj client.Object) error

	// Patch sends a JSON merge patch from live to modified, guarded by the
	// resourceVersion of live.
	Patch(ctx context.Context, live, modified client.Object) error

	// UpdateStatus writes the status subresource of app.
	UpdateStatus(ctx context.Context, app *v1alpha1.App) error
}

// KubeStore implements Store on top of a controller-runtime client.
// Reads go through reader, which defaults to the client itself.
type KubeStore struct {
	client  client.Client
	reader  client.Reader
	timeout time.Duration
	metrics metrics.Collector
	logger  *slog.Logger
}

// Option configures a KubeStore.
type Option func(*KubeStore)

// WithReader serves Get from reader instead of the client. Managers pass their
// API reader here so every fetch hits the API server rather than the informer cache.
func WithReader(reader client.Reader) Option {
	return func(s *KubeStore) {
		if reader != nil {
			s.reader = reader
		}
	}
}

// NewKubeStore creates a KubeStore. A zero timeout means DefaultTimeout; nil
// collector and logger fall back to no-op metrics and slog.Default.
func NewKubeStore(
	kubeClient client.Client,
	timeout time.Duration,
	collector metrics.Collector,
	logger *slog.Logger,
	opts ...Option,
) *KubeStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	if logger == nil {
		logger = slog.Default()
	}

	kubeStore := &KubeStore{
		client:  kubeClient,
		reader:  kubeClient,
		timeout: timeout,
		metrics: collector,
		logger:  logger.With("component", "store"),
	}

	for _, opt := range opts {
		opt(kubeStore)
	}

	return kubeStore
}

// Get implements Store.
func (s *KubeStore) Get(ctx context.Context, key client.ObjectKey, obj client.Object) (bool, error) {
	err := s.call(ctx, "get", obj, func(callCtx context.Context) error {
		return s.reader.Get(callCtx, key, obj)
	})

	switch {
	case err == nil:
		return true, nil
	case apierrors.IsNotFound(err):
		return false, nil
	default:
		return false, errors.Wrapf(err, "failed to get %s", key)
	}
}

// Create implements Store.
func (s *KubeStore) Create(ctx context.Context, obj client.Object) error {
	err := s.call(ctx, "create", obj, func(callCtx context.Context) error {
		return s.client.Create(callCtx, obj)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", client.ObjectKeyFromObject(obj))
	}

	return nil
}

// Patch implements Store.
func (s *KubeStore) Patch(ctx context.Context, live, modified client.Object) error {
	patch := client.MergeFromWithOptions(live, client.MergeFromWithOptimisticLock{})

	err := s.call(ctx, "patch", modified, func(callCtx context.Context) error {
		return s.client.Patch(callCtx, modified, patch)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to patch %s", client.ObjectKeyFromObject(modified))
	}

	return nil
}

// UpdateStatus implements Store. The write carries the resourceVersion app was
// read at, so a concurrent spec change surfaces as a conflict.
func (s *KubeStore) UpdateStatus(ctx context.Context, app *v1alpha1.App) error {
	err := s.call(ctx, "update_status", app, func(callCtx context.Context) error {
		return s.client.Status().Update(callCtx, app)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to update status of %s", client.ObjectKeyFromObject(app))
	}

	return nil
}

func (s *KubeStore) call(
	ctx context.Context,
	method string,
	obj client.Object,
	fn func(ctx context.Context) error,
) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resource := s.resourceName(obj)
	start := time.Now()

	err := fn(callCtx)

	status := "success"
	if err != nil && !(method == "get" && apierrors.IsNotFound(err)) {
		status = "error"
		errorType := metrics.ClassifyAPIError(err)

		s.metrics.RecordAPIError(ctx, method, errorType)
		s.logger.Debug("kubernetes API call failed",
			"method", method,
			"resource", resource,
			"name", obj.GetName(),
			"error_type", errorType,
			"error", err,
		)
	}

	s.metrics.RecordAPICall(ctx, method, resource, status, time.Since(start))

	return err //nolint:wrapcheck // callers wrap with operation context
}

func (s *KubeStore) resourceName(obj client.Object) string {
	gvk, err := s.client.GroupVersionKindFor(obj)
	if err != nil {
		return "unknown"
	}

	return gvk.Kind
}
