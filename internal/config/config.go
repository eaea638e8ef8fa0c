// Package config loads farcalld's settings the way
// _examples/ehrlich-b-wingthing/internal/config does: a user-level file
// merged with a project-level override, except here the format is YAML
// via gopkg.in/yaml.v3 (SPEC_FULL.md §1.3) rather than JSON, since a
// listen address and codec preference list reads more naturally as YAML
// and every other ambient-stack choice in this
// module already leans on the same library (cmd/farcalld's cobra flags).
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs a farcalld instance can load from disk.
// Zero values mean "unset, fall through to the next layer's value or the
// built-in default" exactly as that package's settings.json did.
type Config struct {
	// Listen is the network/address pair the daemon binds, e.g.
	// "tcp://0.0.0.0:7878" or "unix:///var/run/farcalld.sock".
	Listen string `yaml:"listen,omitempty"`

	// Compression lists the codecs offered during handshake, in the
	// server's preference order. Empty means compression is not offered.
	Compression []CompressionPreference `yaml:"compression,omitempty"`

	// Encryption lists the AEADs offered during handshake, in preference
	// order. When neither config file sets it, the merged value is
	// ["xchacha20poly1305"].
	Encryption []string `yaml:"encryption,omitempty"`

	// BackupCapacity bounds the resynchronize-after-reconnect log kept per
	// transport (§4.1.5), in frames.
	BackupCapacity int `yaml:"backup_capacity,omitempty"`

	// SearchThreads is loaded and merged but not read by internal/search,
	// whose worker pool is always runtime.NumCPU() capped at 12.
	SearchThreads int `yaml:"search_threads,omitempty"`

	// ReconnectBackoffMs is the client-side initial backoff, in milliseconds,
	// between reconnect attempts after an unexpected transport error.
	ReconnectBackoffMs int `yaml:"reconnect_backoff_ms,omitempty"`

	// ReconnectBackoffMaxMs caps the exponential backoff growth.
	ReconnectBackoffMaxMs int `yaml:"reconnect_backoff_max_ms,omitempty"`

	// LogLevel is one of "debug", "info", "warn", "error" (internal/logger).
	LogLevel string `yaml:"log_level,omitempty"`
}

// CompressionPreference names an algorithm and the level to request it at.
type CompressionPreference struct {
	Algo  string `yaml:"algo"`
	Level int    `yaml:"level,omitempty"`
}

// Manager loads and merges a user-level and a project-level Config, the
// same two-tier shape _examples/ehrlich-b-wingthing/internal/config.Manager used.
type Manager struct {
	userConfig    *Config
	projectConfig *Config
	merged        *Config
}

func NewManager() *Manager {
	return &Manager{
		userConfig:    &Config{},
		projectConfig: &Config{},
		merged:        &Config{},
	}
}

// Load reads "<userConfigDir>/config.yaml" and "<projectDir>/.farcall/config.yaml",
// tolerating either being absent, then merges them (project overrides user).
func (m *Manager) Load(userConfigDir, projectDir string) error {
	userPath := filepath.Join(userConfigDir, "config.yaml")
	if err := m.loadConfig(userPath, m.userConfig); err != nil {
		return err
	}

	projectPath := filepath.Join(projectDir, ".farcall", "config.yaml")
	if err := m.loadConfig(projectPath, m.projectConfig); err != nil {
		return err
	}

	m.mergeConfigs()
	return nil
}

func (m *Manager) loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (m *Manager) mergeConfigs() {
	m.merged = &Config{
		Listen:                firstNonEmpty(m.projectConfig.Listen, m.userConfig.Listen, "tcp://127.0.0.1:7878"),
		Compression:           firstNonEmptySlice(m.projectConfig.Compression, m.userConfig.Compression),
		Encryption:            firstNonEmptyStrSlice(m.projectConfig.Encryption, m.userConfig.Encryption, []string{"xchacha20poly1305"}),
		BackupCapacity:        firstNonZero(m.projectConfig.BackupCapacity, m.userConfig.BackupCapacity, 256),
		SearchThreads:         firstNonZero(m.projectConfig.SearchThreads, m.userConfig.SearchThreads, 0),
		ReconnectBackoffMs:    firstNonZero(m.projectConfig.ReconnectBackoffMs, m.userConfig.ReconnectBackoffMs, 250),
		ReconnectBackoffMaxMs: firstNonZero(m.projectConfig.ReconnectBackoffMaxMs, m.userConfig.ReconnectBackoffMaxMs, 30000),
		LogLevel:              firstNonEmpty(m.projectConfig.LogLevel, m.userConfig.LogLevel, "info"),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonEmptySlice(project, user []CompressionPreference) []CompressionPreference {
	if len(project) > 0 {
		return project
	}
	return user
}

func firstNonEmptyStrSlice(project, user, def []string) []string {
	if len(project) > 0 {
		return project
	}
	if len(user) > 0 {
		return user
	}
	return def
}

func (m *Manager) Get() *Config {
	return m.merged
}

func (m *Manager) SaveUserConfig(userConfigDir string) error {
	if err := os.MkdirAll(userConfigDir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.userConfig)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(userConfigDir, "config.yaml"), data, 0o644)
}

func (m *Manager) SaveProjectConfig(projectDir string) error {
	dir := filepath.Join(projectDir, ".farcall")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.projectConfig)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644)
}
