package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PottierLoic/Remotely/internal/audit"
	"github.com/PottierLoic/Remotely/internal/registry"
	"github.com/PottierLoic/Remotely/internal/storage"
	jsonStore "github.com/PottierLoic/Remotely/internal/storage/json"
	"github.com/PottierLoic/Remotely/internal/storage/sqlite"
	yamlStore "github.com/PottierLoic/Remotely/internal/storage/yaml"
	"github.com/PottierLoic/Remotely/pkg/errors"
	"github.com/PottierLoic/Remotely/pkg/fileio"
	"github.com/PottierLoic/Remotely/pkg/logger"
	"github.com/PottierLoic/Remotely/pkg/platform"
)

const (
	DefaultConfigDir  = "remotely"
	DefaultConfigFile = "config.yaml"
	DefaultBridgeAddr = "127.0.0.1:7450"
)

// Settings is the on-disk application configuration
type Settings struct {
	StorageDriver   string `yaml:"storage_driver" json:"storage_driver"`
	DataDir         string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
	StrictIDs       bool   `yaml:"strict_ids" json:"strict_ids"`
	LogFormat       string `yaml:"log_format" json:"log_format"`
	LogLevel        string `yaml:"log_level" json:"log_level"`
	BridgeAddr      string `yaml:"bridge_addr" json:"bridge_addr"`
	BridgeSecret    string `yaml:"bridge_secret,omitempty" json:"-"`
	AuditMaxEntries int    `yaml:"audit_max_entries" json:"audit_max_entries"`
}

// DefaultSettings returns the settings used when no config file exists
func DefaultSettings() *Settings {
	return &Settings{
		StorageDriver:   storage.DriverJSON,
		LogFormat:       "text",
		LogLevel:        "warn",
		BridgeAddr:      DefaultBridgeAddr,
		AuditMaxEntries: audit.DefaultMaxEntries,
	}
}

// Manager handles configuration persistence and builds the objects it configures
type Manager struct {
	configPath string
	settings   *Settings
}

// NewManager creates a new configuration manager. An empty path means
// <user config dir>/remotely/config.yaml.
func NewManager(configPath string) (*Manager, error) {
	if configPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user config directory: %w", err)
		}
		configPath = filepath.Join(dir, DefaultConfigDir, DefaultConfigFile)
	}

	return &Manager{configPath: configPath}, nil
}

// GetConfigPath returns the path to the configuration file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Load reads the configuration file. A missing file leaves the defaults in place.
func (m *Manager) Load() error {
	settings := DefaultSettings()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.settings = settings
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return errors.WrapWithSuggestion(err, errors.ErrInvalidInput, "config.Load",
			"failed to parse config file "+m.configPath,
			"Fix the YAML or delete the file to restore defaults")
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	m.settings = settings
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileio.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Get returns the current settings
func (m *Manager) Get() *Settings {
	if m.settings == nil {
		m.settings = DefaultSettings()
	}
	return m.settings
}

// Validate checks enumerated settings
func (s *Settings) Validate() error {
	if !slices.Contains(storage.Drivers, s.StorageDriver) {
		return errors.New(errors.ErrInvalidInput, "config.Validate",
			fmt.Sprintf("unknown storage driver %q", s.StorageDriver)).
			WithSuggestion("Use one of: " + strings.Join(storage.Drivers, ", "))
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		return errors.New(errors.ErrInvalidInput, "config.Validate",
			fmt.Sprintf("unknown log format %q (must be text or json)", s.LogFormat))
	}
	return nil
}

// Set assigns a single setting by its YAML key
func (m *Manager) Set(key, value string) error {
	s := *m.Get()

	switch key {
	case "storage_driver":
		s.StorageDriver = value
	case "data_dir":
		s.DataDir = value
	case "strict_ids":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		s.StrictIDs = v
	case "log_format":
		s.LogFormat = value
	case "log_level":
		s.LogLevel = value
	case "bridge_addr":
		s.BridgeAddr = value
	case "bridge_secret":
		s.BridgeSecret = value
	case "audit_max_entries":
		v, err := strconv.Atoi(value)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid positive integer: %s", value)
		}
		s.AuditMaxEntries = v
	default:
		return errors.New(errors.ErrInvalidInput, "config.Set", fmt.Sprintf("unknown setting %q", key)).
			WithSuggestion("Run 'remotely config show' to list settings")
	}

	if err := s.Validate(); err != nil {
		return err
	}

	m.settings = &s
	return m.Save()
}

// DataDir returns the configured data directory, falling back to the platform one
func (m *Manager) DataDir() (string, error) {
	if dir := m.Get().DataDir; dir != "" && os.Getenv(platform.DataDirEnv) == "" {
		return dir, nil
	}
	return platform.DataDir()
}

// OpenStore builds the host store for the configured driver
func (m *Manager) OpenStore() (storage.HostStore, error) {
	dir, err := m.DataDir()
	if err != nil {
		return nil, err
	}

	switch m.Get().StorageDriver {
	case storage.DriverYAML:
		return yamlStore.NewStore(platform.FileIn(dir, yamlStore.DefaultFile)), nil
	case storage.DriverSQLite:
		return sqlite.NewStore(platform.FileIn(dir, sqlite.DefaultFile)), nil
	case storage.DriverJSON, "":
		return jsonStore.NewStore(platform.FileIn(dir, platform.HostsFile)), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", m.Get().StorageDriver)
	}
}

// OpenAudit opens the audit log in the data directory
func (m *Manager) OpenAudit() (*audit.AuditLogger, error) {
	dir, err := m.DataDir()
	if err != nil {
		return nil, err
	}
	return audit.NewAuditLogger(dir, m.Get().AuditMaxEntries)
}

// OpenRegistry wires the configured store, audit log and logger into a Registry
func (m *Manager) OpenRegistry() (*registry.Registry, error) {
	store, err := m.OpenStore()
	if err != nil {
		return nil, err
	}

	auditor, err := m.OpenAudit()
	if err != nil {
		return nil, err
	}

	return registry.New(store, registry.Options{
		StrictIDs: m.Get().StrictIDs,
		Auditor:   auditor,
		Logger:    logger.With("component", "registry"),
	}), nil
}
