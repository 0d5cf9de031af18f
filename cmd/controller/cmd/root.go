package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/lexfrei/webapp-operator/internal/config"
	"github.com/lexfrei/webapp-operator/internal/controller"
)

//nolint:gochecknoglobals // set by SetVersion from main
var (
	version = "development"
	gitsha  = "development"
)

func SetVersion(ver, sha string) {
	version = ver
	gitsha = sha
}

//nolint:gochecknoglobals // cobra command pattern
var rootCmd = &cobra.Command{
	Use:   "webapp-operator",
	Short: "Kubernetes operator for simple web applications",
	Long: `A Kubernetes controller that watches App resources and keeps a Deployment,
HorizontalPodAutoscaler, Service and Ingress in sync with each App's spec.`,
	RunE:          runController,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String(config.KeyLogLevel, config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String(config.KeyLogFormat, config.DefaultLogFormat, "Log format (json, text)")

	rootCmd.Flags().String(config.KeyMetricsAddr, config.DefaultMetricsAddr, "Address for metrics endpoint")
	rootCmd.Flags().String(config.KeyHealthAddr, config.DefaultHealthAddr, "Address for health probe endpoint")
	rootCmd.Flags().String(config.KeyWatchNamespace, "", "Only reconcile Apps in this namespace (default: all namespaces)")

	// Leader election flags
	rootCmd.Flags().Bool(config.KeyLeaderElect, false, "Enable leader election for high availability")
	rootCmd.Flags().String(config.KeyLeaderElectNamespace, "", "Namespace for leader election lease (defaults to controller namespace)")
	rootCmd.Flags().String(config.KeyLeaderElectName, config.DefaultLeaderElectName, "Name of the leader election lease")

	// Reconcile tuning flags
	rootCmd.Flags().Int(config.KeyMaxConcurrentReconciles, config.DefaultMaxConcurrentReconciles, "Number of Apps reconciled in parallel")
	rootCmd.Flags().Duration(config.KeyAPITimeout, config.DefaultAPITimeout, "Timeout of a single Kubernetes API call")
	rootCmd.Flags().Duration(config.KeyBackoffBase, config.DefaultBackoffBase, "Initial retry delay after a failed reconcile")
	rootCmd.Flags().Duration(config.KeyBackoffMax, config.DefaultBackoffMax, "Maximum retry delay after repeated failures")

	_ = viper.BindPFlags(rootCmd.Flags())
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	config.BindEnv(viper.GetViper())
	config.SetDefaults(viper.GetViper())
}

func Execute() error {
	return errors.Wrap(rootCmd.Execute(), "command execution failed")
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.FromViper(v)
	if err == nil {
		return cfg, nil
	}

	if config.IsInvalid(err) {
		return nil, errors.Wrap(err, "invalid configuration (check flags and WEBAPP_* environment variables)")
	}

	return nil, errors.Wrap(err, "failed to load configuration")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

//nolint:noinlineerr // inline error handling is fine here
func runController(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)

	ctrl.SetLogger(logr.FromSlogHandler(logger.Handler()))

	logger.Info("starting webapp-operator",
		"version", version,
		"gitsha", gitsha,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := controller.Run(ctx, cfg); err != nil {
		return errors.Wrap(err, "failed to run controller")
	}

	return nil
}
