// Package file provides the TOML-backed configuration store for the
// CLI layer. The core receives plain values; parsing and defaults stay
// here.
package file

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is a file-based implementation of driven.ConfigStore
// using TOML. Configuration lives in a single file under the harvest
// config directory.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.harvest/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".harvest")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
		data:     make(map[string]any),
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

// Get retrieves a configuration value by key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}

// GetString retrieves a string configuration value.
func (s *ConfigStore) GetString(key string) string {
	val, ok := s.Get(key)
	if !ok {
		return ""
	}

	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// GetInt retrieves an integer configuration value.
func (s *ConfigStore) GetInt(key string) int {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	// TOML integers are parsed as int64
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// GetFloat retrieves a float configuration value.
func (s *ConfigStore) GetFloat(key string) float64 {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// GetBool retrieves a boolean configuration value.
func (s *ConfigStore) GetBool(key string) bool {
	val, ok := s.Get(key)
	if !ok {
		return false
	}

	b, ok := val.(bool)
	if !ok {
		return false
	}
	return b
}

// Set stores a configuration value and persists immediately.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return s.save()
}

// save writes configuration to the TOML file (caller must hold lock).
func (s *ConfigStore) save() error {
	data, err := toml.Marshal(s.data)
	if err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// Load reads configuration from the TOML file.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet - that's fine, start empty
			s.data = make(map[string]any)
			return nil
		}
		return err
	}

	var loaded map[string]any
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return err
	}

	if loaded == nil {
		loaded = make(map[string]any)
	}

	// Flatten nested maps into dot-notation keys for easier access
	s.data = flattenMap(loaded, "")
	return nil
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			// Recursively flatten nested maps
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// Settings is the typed view of the configuration the CLI consumes.
type Settings struct {
	// LedgerPath is the JSONL audit log location.
	LedgerPath string

	// AutoSnapshotInterval enables opportunistic compaction when > 0.
	AutoSnapshotInterval time.Duration

	// FeedRoot is the directory the built-in jsonl adapter reads from.
	FeedRoot string

	// DataDir holds the checkpoint database.
	DataDir string

	// BufferSize, ProgressInterval and CheckpointInterval tune the
	// event stream; zero values defer to the orchestrator's defaults.
	BufferSize         int
	ProgressInterval   int
	CheckpointInterval int

	// RateLimitRPS paces the shared HTTP client; zero disables pacing.
	RateLimitRPS float64

	// LogPath and LogLevel configure the structured logger.
	LogPath  string
	LogLevel string
}

// Settings reads the typed settings, applying defaults for anything
// the file does not set.
func (s *ConfigStore) Settings() Settings {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".harvest")

	settings := Settings{
		LedgerPath:         filepath.Join(base, "ledger.jsonl"),
		FeedRoot:           filepath.Join(base, "feeds"),
		DataDir:            filepath.Join(base, "data"),
		BufferSize:         s.GetInt("stream.buffer_size"),
		ProgressInterval:   s.GetInt("stream.progress_interval"),
		CheckpointInterval: s.GetInt("stream.checkpoint_interval"),
		RateLimitRPS:       s.GetFloat("http.rate_limit_rps"),
		LogPath:            s.GetString("log.path"),
		LogLevel:           s.GetString("log.level"),
	}

	if path := s.GetString("ledger.path"); path != "" {
		settings.LedgerPath = path
	}
	if secs := s.GetInt("ledger.auto_snapshot_seconds"); secs > 0 {
		settings.AutoSnapshotInterval = time.Duration(secs) * time.Second
	}
	if root := s.GetString("feeds.root"); root != "" {
		settings.FeedRoot = root
	}
	if dir := s.GetString("checkpoint.data_dir"); dir != "" {
		settings.DataDir = dir
	}
	return settings
}
