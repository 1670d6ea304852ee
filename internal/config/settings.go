package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// SettingsGetter is an interface for retrieving raw setting values
type SettingsGetter interface {
	GetSetting(key string) (string, error)
}

// EnvSettings reads settings from environment variables. Keys are
// upper-cased, dots and dashes become underscores, and Prefix is prepended.
type EnvSettings struct {
	Prefix string
}

// GetSetting returns the environment value for key, empty if unset
func (e EnvSettings) GetSetting(key string) (string, error) {
	name := strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToUpper(key))
	return os.Getenv(e.Prefix + name), nil
}

// Loader provides typed access to settings with default values
type Loader struct {
	db SettingsGetter
}

// NewLoader creates a new settings loader
func NewLoader(db SettingsGetter) *Loader {
	return &Loader{db: db}
}

// Int retrieves an integer setting, returning defaultVal if not found or invalid
func (l *Loader) Int(key string, defaultVal int) int {
	if val, _ := l.db.GetSetting(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			return v
		}
	}
	return defaultVal
}

// Bool retrieves a boolean setting, returning defaultVal if not found
// Recognizes "true" as true, anything else (including "false") as false
func (l *Loader) Bool(key string, defaultVal bool) bool {
	if val, _ := l.db.GetSetting(key); val != "" {
		return val == "true"
	}
	return defaultVal
}

// String retrieves a string setting, returning defaultVal if not found or empty
func (l *Loader) String(key, defaultVal string) string {
	if val, _ := l.db.GetSetting(key); val != "" {
		return val
	}
	return defaultVal
}

// Duration retrieves a duration setting, returning defaultVal if not found or invalid
// Expects the value to be in Go duration format (e.g., "1h30m", "5s")
func (l *Loader) Duration(key string, defaultVal time.Duration) time.Duration {
	if val, _ := l.db.GetSetting(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
