// Package settings manages persistent user settings for the edgelinkctl CLI.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// DefaultInterfacesDir is the default directory edgelinkctl scans for
// interface schema files when --interfaces-dir is not given.
const DefaultInterfacesDir = "/etc/edgelinkctl/interfaces"

// Settings holds persistent CLI preferences, stored as JSON at
// ~/.edgelinkctl/settings.json — the CLI's own convenience config, distinct
// from deviceagent.Config, which configures one running agent instance.
type Settings struct {
	// DefaultRealm is the realm name to use when --realm is not specified.
	DefaultRealm string `json:"default_realm,omitempty"`

	// DefaultDeviceID is the device id to use when --device-id is not specified.
	DefaultDeviceID string `json:"default_device_id,omitempty"`

	// InterfacesDir overrides the default interface-schema directory.
	InterfacesDir string `json:"interfaces_dir,omitempty"`

	// PairingBaseURL is the platform pairing API base URL used when
	// --pairing-url is not specified.
	PairingBaseURL string `json:"pairing_base_url,omitempty"`

	// LogLevel sets logrus's level ("debug", "info", "warn", "error").
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat selects logrus's formatter ("text" or "json").
	LogFormat string `json:"log_format,omitempty"`

	// AllowInsecureBroker permits a non-TLS mqtt:// broker URL, for local
	// development against a broker without client-certificate auth.
	AllowInsecureBroker bool `json:"allow_insecure_broker,omitempty"`

	// SessionLogPath overrides the default session-log path.
	SessionLogPath string `json:"session_log_path,omitempty"`

	// SessionLogMaxSizeMB is the max session log size in MB before rotation (default: 10).
	SessionLogMaxSizeMB int `json:"session_log_max_size_mb,omitempty"`

	// SessionLogMaxBackups is the max number of rotated session log files to retain (default: 10).
	SessionLogMaxBackups int `json:"session_log_max_backups,omitempty"`
}

const (
	// DefaultSessionLogMaxSizeMB is the default maximum session log size in megabytes.
	DefaultSessionLogMaxSizeMB = 10

	// DefaultSessionLogMaxBackups is the default maximum number of rotated session log files.
	DefaultSessionLogMaxBackups = 10
)

// DefaultSettingsPath returns the default path for the settings file.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "edgelinkctl_settings.json"
	}
	return filepath.Join(home, ".edgelinkctl", "settings.json")
}

// Load reads settings from the default location.
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist.
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location.
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path.
func (s *Settings) SaveTo(path string) error {
	// Ensure directory exists.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetInterfacesDir returns the interface-schema directory, with fallback.
func (s *Settings) GetInterfacesDir() string {
	if s.InterfacesDir != "" {
		return s.InterfacesDir
	}
	return DefaultInterfacesDir
}

// GetLogLevel returns the configured log level, defaulting to "info".
func (s *Settings) GetLogLevel() string {
	if s.LogLevel != "" {
		return s.LogLevel
	}
	return "info"
}

// GetLogFormat returns the configured log formatter, defaulting to "text".
func (s *Settings) GetLogFormat() string {
	if s.LogFormat != "" {
		return s.LogFormat
	}
	return "text"
}

// GetSessionLogPath returns the session log path, with a fallback that
// depends on interfacesDir: if non-empty, uses interfacesDir/session.log;
// otherwise uses /var/log/edgelinkctl/session.log.
func (s *Settings) GetSessionLogPath(interfacesDir string) string {
	if s.SessionLogPath != "" {
		return s.SessionLogPath
	}
	if interfacesDir != "" {
		return filepath.Join(interfacesDir, "session.log")
	}
	return "/var/log/edgelinkctl/session.log"
}

// GetSessionLogMaxSizeMB returns the session log max size in MB, defaulting to 10.
func (s *Settings) GetSessionLogMaxSizeMB() int {
	if s.SessionLogMaxSizeMB > 0 {
		return s.SessionLogMaxSizeMB
	}
	return DefaultSessionLogMaxSizeMB
}

// GetSessionLogMaxBackups returns the session log max backups, defaulting to 10.
func (s *Settings) GetSessionLogMaxBackups() int {
	if s.SessionLogMaxBackups > 0 {
		return s.SessionLogMaxBackups
	}
	return DefaultSessionLogMaxBackups
}

// Clear resets all settings to defaults.
func (s *Settings) Clear() {
	*s = Settings{}
}
