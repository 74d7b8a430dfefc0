package config

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/smykla-skalski/vigil/pkg/config"
)

const (
	// ConfigFileMode is the file mode for configuration files (user read/write only).
	ConfigFileMode = 0o600

	// ConfigDirMode is the file mode for configuration directories (user rwx only).
	ConfigDirMode = 0o700
)

// Writer persists configuration documents to TOML files under the base
// directory.
type Writer struct {
	baseDir string
}

// NewWriter creates a Writer rooted at baseDir.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// WriteGlobal writes the global configuration document.
func (w *Writer) WriteGlobal(cfg *config.Global) error {
	if cfg == nil {
		return errors.Wrap(ErrInvalidConfig, "config is nil")
	}

	return w.WriteFile(filepath.Join(w.baseDir, GlobalConfigFile), cfg)
}

// WriteFile encodes doc as indented TOML and writes it to path with secure
// permissions, creating parent directories as needed.
func (w *Writer) WriteFile(path string, doc any) error {
	if doc == nil {
		return errors.Wrap(ErrInvalidConfig, "document is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, ConfigDirMode); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	var buf bytes.Buffer

	encoder := toml.NewEncoder(&buf)
	encoder.SetIndentTables(true)

	if err := encoder.Encode(doc); err != nil {
		return errors.Wrap(err, "failed to encode document to TOML")
	}

	if err := os.WriteFile(path, buf.Bytes(), ConfigFileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}

	return nil
}

// EnsureBaseDir ensures the base configuration directory exists.
func (w *Writer) EnsureBaseDir() error {
	if err := os.MkdirAll(w.baseDir, ConfigDirMode); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", w.baseDir)
	}

	return nil
}

// structToMap round-trips a document through TOML to produce the nested
// map form koanf's confmap provider expects.
func structToMap(doc any) (map[string]any, error) {
	raw, err := toml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal document")
	}

	m := make(map[string]any)
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal document map")
	}

	return m, nil
}
