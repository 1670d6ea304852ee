package config

import "time"

// TimeoutConfig holds timeout settings for various operations.
// These can be configured in the config file to tune behaviour for different environments.
type TimeoutConfig struct {
	// Request is the per-request timeout applied by the HTTP router.
	// Default: 60s
	Request time.Duration `yaml:"request"`

	// Shutdown is how long in-flight requests get to finish on shutdown.
	// Default: 30s
	Shutdown time.Duration `yaml:"shutdown"`

	// Ping is the timeout for pinging a single pool during startup and
	// health checks. Default: 5s
	Ping time.Duration `yaml:"ping"`
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Request:  60 * time.Second,
		Shutdown: 30 * time.Second,
		Ping:     5 * time.Second,
	}
}
