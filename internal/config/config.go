// Package config loads controller settings from flags and WEBAPP_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by the controller.
const EnvPrefix = "WEBAPP"

// Keys shared by flags, environment variables and viper.
const (
	KeyMetricsAddr             = "metrics-addr"
	KeyHealthAddr              = "health-addr"
	KeyLeaderElect             = "leader-elect"
	KeyLeaderElectNamespace    = "leader-election-namespace"
	KeyLeaderElectName         = "leader-election-name"
	KeyWatchNamespace          = "watch-namespace"
	KeyMaxConcurrentReconciles = "max-concurrent-reconciles"
	KeyAPITimeout              = "api-timeout"
	KeyBackoffBase             = "backoff-base"
	KeyBackoffMax              = "backoff-max"
	KeyLogLevel                = "log-level"
	KeyLogFormat               = "log-format"
)

// Defaults.
const (
	DefaultMetricsAddr             = ":8080"
	DefaultHealthAddr              = ":8081"
	DefaultLeaderElectName         = "webapp-operator-leader"
	DefaultMaxConcurrentReconciles = 4
	DefaultAPITimeout              = 10 * time.Second
	DefaultBackoffBase             = 500 * time.Millisecond
	DefaultBackoffMax              = 5 * time.Minute
	DefaultLogLevel                = "info"
	DefaultLogFormat               = "json"
)

var (
	errInvalidValue = errors.New("invalid configuration value")
	errRequired     = errors.New("required configuration value missing")
)

// Config holds all configuration options for the controller manager.
type Config struct {
	// MetricsAddr is the address for the Prometheus metrics endpoint.
	MetricsAddr string

	// HealthAddr is the address for health and readiness probe endpoints.
	HealthAddr string

	// LeaderElect enables leader election for high availability.
	LeaderElect bool

	// LeaderElectNS is the namespace for the leader election lease.
	LeaderElectNS string

	// LeaderElectName is the name of the leader election lease.
	LeaderElectName string

	// WatchNamespace restricts the controller to one namespace. Empty watches all.
	WatchNamespace string

	// MaxConcurrentReconciles is how many Apps are reconciled in parallel.
	MaxConcurrentReconciles int

	// APITimeout bounds every Kubernetes API call.
	APITimeout time.Duration

	// BackoffBase and BackoffMax bound the per-App retry delay.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	LogLevel  string
	LogFormat string
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMetricsAddr, DefaultMetricsAddr)
	v.SetDefault(KeyHealthAddr, DefaultHealthAddr)
	v.SetDefault(KeyLeaderElect, false)
	v.SetDefault(KeyLeaderElectName, DefaultLeaderElectName)
	v.SetDefault(KeyMaxConcurrentReconciles, DefaultMaxConcurrentReconciles)
	v.SetDefault(KeyAPITimeout, DefaultAPITimeout)
	v.SetDefault(KeyBackoffBase, DefaultBackoffBase)
	v.SetDefault(KeyBackoffMax, DefaultBackoffMax)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
}

// BindEnv makes v read WEBAPP_* variables, with dashes mapped to underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// FromViper reads a Config from v and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		MetricsAddr:             v.GetString(KeyMetricsAddr),
		HealthAddr:              v.GetString(KeyHealthAddr),
		LeaderElect:             v.GetBool(KeyLeaderElect),
		LeaderElectNS:           v.GetString(KeyLeaderElectNamespace),
		LeaderElectName:         v.GetString(KeyLeaderElectName),
		WatchNamespace:          v.GetString(KeyWatchNamespace),
		MaxConcurrentReconciles: v.GetInt(KeyMaxConcurrentReconciles),
		APITimeout:              v.GetDuration(KeyAPITimeout),
		BackoffBase:             v.GetDuration(KeyBackoffBase),
		BackoffMax:              v.GetDuration(KeyBackoffMax),
		LogLevel:                strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:               strings.ToLower(v.GetString(KeyLogFormat)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxConcurrentReconciles < 1 {
		errs = append(errs, errors.Wrapf(errInvalidValue, "%s must be at least 1, got %d",
			KeyMaxConcurrentReconciles, c.MaxConcurrentReconciles))
	}

	if c.APITimeout <= 0 {
		errs = append(errs, errors.Wrapf(errInvalidValue, "%s must be positive, got %s", KeyAPITimeout, c.APITimeout))
	}

	if c.BackoffBase <= 0 {
		errs = append(errs, errors.Wrapf(errInvalidValue, "%s must be positive, got %s", KeyBackoffBase, c.BackoffBase))
	}

	if c.BackoffMax < c.BackoffBase {
		errs = append(errs, errors.Wrapf(errInvalidValue, "%s (%s) must not be below %s (%s)",
			KeyBackoffMax, c.BackoffMax, KeyBackoffBase, c.BackoffBase))
	}

	if c.LeaderElect && c.LeaderElectName == "" {
		errs = append(errs, errors.Wrapf(errRequired, "%s is required when %s is enabled",
			KeyLeaderElectName, KeyLeaderElect))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, errors.Wrapf(errInvalidValue, "%s must be one of debug, info, warn, error, got %q",
			KeyLogLevel, c.LogLevel))
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, errors.Wrapf(errInvalidValue, "%s must be json or text, got %q",
			KeyLogFormat, c.LogFormat))
	}

	return errors.Join(errs...)
}

// IsInvalid reports whether err came from Validate.
func IsInvalid(err error) bool {
	return errors.Is(err, errInvalidValue) || errors.Is(err, errRequired)
}
