// Package config loads and persists host configuration from TOML files
// under the base directory, layered with environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	tomlparser "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/smykla-skalski/vigil/pkg/config"
)

var (
	// ErrInvalidTOML is returned when a TOML file cannot be parsed.
	ErrInvalidTOML = errors.New("invalid TOML")

	// ErrInvalidPermissions is returned when a config file is world-writable.
	ErrInvalidPermissions = errors.New("config file has insecure permissions")

	// ErrInvalidConfig is returned when a configuration document is unusable.
	ErrInvalidConfig = errors.New("invalid config")
)

const (
	// GlobalConfigFile is the name of the global configuration file.
	GlobalConfigFile = "config.toml"

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "VIGIL_"
)

// Store loads the global document and per-plugin documents from the base
// directory, caching results between loads. Precedence (highest to lowest):
// environment variables (VIGIL_*), TOML file, defaults.
type Store struct {
	mu      sync.RWMutex
	baseDir string
	global  *config.Global
}

// NewStore creates a Store rooted at the user's base directory.
func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get home directory")
	}

	return NewStoreWithDir(filepath.Join(homeDir, config.DefaultBaseDir)), nil
}

// NewStoreWithDir creates a Store rooted at a custom base directory (for
// testing).
func NewStoreWithDir(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the directory holding all configuration files.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// GlobalConfigPath returns the path to the global configuration file.
func (s *Store) GlobalConfigPath() string {
	return filepath.Join(s.baseDir, GlobalConfigFile)
}

// PluginConfigPath returns the path to a plugin configuration file.
// Documents live at <base>/<kind>s/<name>.toml, e.g. providers/heartbeat.toml.
func (s *Store) PluginConfigPath(kind, name string) string {
	return filepath.Join(s.baseDir, kind+"s", name+".toml")
}

// LoadGlobal loads the global configuration document. The result is cached
// until ReloadAll is called. If no file exists, the defaults are
// materialized to disk so the user has a document to edit.
func (s *Store) LoadGlobal() (*config.Global, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.global != nil {
		return s.global, nil
	}

	cfg, err := s.loadGlobalLocked()
	if err != nil {
		return nil, err
	}

	s.global = cfg

	return cfg, nil
}

func (s *Store) loadGlobalLocked() (*config.Global, error) {
	k := koanf.New(".")

	// 1. Defaults (lowest priority).
	if err := k.Load(confmap.Provider(defaultGlobalMap(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	// 2. Global config: <base>/config.toml.
	path := s.GlobalConfigPath()
	if err := loadTOMLFile(k, path); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed to load global config")
		}

		// Materialize defaults so the file exists for editing.
		if werr := NewWriter(s.baseDir).WriteGlobal(config.DefaultGlobal()); werr != nil {
			return nil, errors.Wrap(werr, "failed to materialize default config")
		}
	}

	// 3. Environment variables: VIGIL_*.
	envOpt := env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envTransform,
	}

	if err := k.Load(env.Provider(".", envOpt), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load env vars")
	}

	var cfg config.Global

	unmarshalConf := koanf.UnmarshalConf{
		Tag:       "koanf",
		FlatPaths: false,
	}

	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	return &cfg, nil
}

// LoadPluginConfig loads a plugin configuration document, merging the file
// over the provided defaults. A missing file materializes the defaults to
// disk. Environment overrides use the prefix VIGIL_<KIND>S_<NAME>_*.
func LoadPluginConfig[T any](s *Store, kind, name string, defaults *T) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PluginConfigPath(kind, name)

	k := koanf.New(".")

	if defaults != nil {
		defaultsMap, err := structToMap(defaults)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to map defaults for %s/%s", kind, name)
		}

		if err := k.Load(confmap.Provider(defaultsMap, "."), nil); err != nil {
			return nil, errors.Wrapf(err, "failed to load defaults for %s/%s", kind, name)
		}
	}

	if err := loadTOMLFile(k, path); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to load config for %s/%s", kind, name)
		}

		if defaults != nil {
			if werr := NewWriter(s.baseDir).WriteFile(path, defaults); werr != nil {
				return nil, errors.Wrapf(werr, "failed to materialize config for %s/%s", kind, name)
			}
		}
	}

	prefix := EnvPrefix + strings.ToUpper(kind) + "S_" + strings.ToUpper(name) + "_"

	envOpt := env.Opt{
		Prefix: prefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, prefix)
			key = strings.ToLower(key)
			key = strings.ReplaceAll(key, "_", ".")

			return key, value
		},
	}

	if err := k.Load(env.Provider(".", envOpt), nil); err != nil {
		return nil, errors.Wrapf(err, "failed to load env vars for %s/%s", kind, name)
	}

	cfg := new(T)

	unmarshalConf := koanf.UnmarshalConf{
		Tag:       "koanf",
		FlatPaths: false,
	}

	if err := k.UnmarshalWithConf("", cfg, unmarshalConf); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config for %s/%s", kind, name)
	}

	return cfg, nil
}

// ReloadAll invalidates every cached document so the next load re-reads
// from disk.
func (s *Store) ReloadAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.global = nil
}

// SetPluginEnabled persists the enabled flag of a plugin document without
// touching its other fields. The file is created from scratch when missing.
func (s *Store) SetPluginEnabled(kind, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PluginConfigPath(kind, name)

	doc := make(map[string]any)

	k := koanf.New(".")
	if err := loadTOMLFile(k, path); err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to load config for %s/%s", kind, name)
		}
	} else {
		doc = k.Raw()
	}

	doc["enabled"] = enabled

	if err := NewWriter(s.baseDir).WriteFile(path, doc); err != nil {
		return errors.Wrapf(err, "failed to persist enabled flag for %s/%s", kind, name)
	}

	return nil
}

// loadTOMLFile loads a TOML file into k with a permission check.
// World-writable files are rejected.
func loadTOMLFile(k *koanf.Koanf, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.Mode().Perm()&0o002 != 0 {
		return errors.Wrapf(
			ErrInvalidPermissions,
			"%s is world-writable (mode: %s)",
			path,
			info.Mode().Perm(),
		)
	}

	if err := k.Load(file.Provider(path), tomlparser.Parser()); err != nil {
		return errors.Wrapf(ErrInvalidTOML, "%s: %v", path, err)
	}

	return nil
}

// envTransform maps environment variable names to config paths.
// VIGIL_HOST_SOCKET_PATH → host.socket.path
func envTransform(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", ".")

	return key, value
}

// defaultGlobalMap converts the default global document to a map for koanf
// loading.
func defaultGlobalMap() map[string]any {
	defaults := config.DefaultGlobal()

	m, err := structToMap(defaults)
	if err != nil {
		// DefaultGlobal is a static document; a marshal failure here is a
		// programming error.
		panic("failed to map default config: " + err.Error())
	}

	return m
}
