package controller

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/lexfrei/webapp-operator/api/v1alpha1"
	"github.com/lexfrei/webapp-operator/internal/config"
	"github.com/lexfrei/webapp-operator/internal/metrics"
	"github.com/lexfrei/webapp-operator/internal/reconciler"
	"github.com/lexfrei/webapp-operator/internal/store"
)

// NewScheme returns a scheme with the built-in types and the App API.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))

	return scheme
}

// ManagerOptions translates cfg into controller-runtime manager options.
func ManagerOptions(cfg *config.Config, scheme *runtime.Scheme) ctrl.Options {
	mgrOptions := ctrl.Options{
		Scheme: scheme,
		Metrics: server.Options{
			BindAddress: cfg.MetricsAddr,
		},
		HealthProbeBindAddress: cfg.HealthAddr,
	}

	if cfg.LeaderElect {
		mgrOptions.LeaderElection = true
		mgrOptions.LeaderElectionID = cfg.LeaderElectName
		mgrOptions.LeaderElectionNamespace = cfg.LeaderElectNS
	}

	if cfg.WatchNamespace != "" {
		mgrOptions.Cache = cache.Options{
			DefaultNamespaces: map[string]cache.Config{cfg.WatchNamespace: {}},
		}
	}

	return mgrOptions
}

// Run initializes and starts the controller manager with the provided configuration.
// It blocks until the context is cancelled or an error occurs.
//
// The function performs the following steps:
//  1. Initializes controller-runtime manager with metrics and health endpoints
//  2. Registers the Prometheus collector on the manager's registry
//  3. Wires the store and reconcile engine into the App controller
//  4. Starts the manager and blocks until shutdown
func Run(ctx context.Context, cfg *config.Config) error {
	logger := log.FromContext(ctx).WithName("manager")
	logger.Info("initializing controller manager")

	mgrOptions := ManagerOptions(cfg, NewScheme())

	if cfg.LeaderElect {
		logger.Info("leader election enabled",
			"id", cfg.LeaderElectName,
			"namespace", cfg.LeaderElectNS,
		)
	}

	if cfg.WatchNamespace != "" {
		logger.Info("watching a single namespace", "namespace", cfg.WatchNamespace)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), mgrOptions)
	if err != nil {
		return errors.Wrap(err, "failed to create manager")
	}

	collector := metrics.NewCollector(ctrlmetrics.Registry)
	kubeStore := store.NewKubeStore(mgr.GetClient(), cfg.APITimeout, collector, slog.Default(),
		store.WithReader(mgr.GetAPIReader()))
	engine := reconciler.NewEngine(kubeStore, mgr.GetScheme(), collector, slog.Default())

	appReconciler := &AppReconciler{
		Client: mgr.GetClient(),
		Engine: engine,
	}

	err = appReconciler.SetupWithManager(mgr, SetupOptions{
		MaxConcurrentReconciles: cfg.MaxConcurrentReconciles,
		BackoffBase:             cfg.BackoffBase,
		BackoffMax:              cfg.BackoffMax,
	})
	if err != nil {
		return errors.Wrap(err, "failed to setup app controller")
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up health check")
	}

	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up ready check")
	}

	logger.Info("starting manager")

	if err := mgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start manager")
	}

	return nil
}
