// Package listeners holds the built-in event consumers.
package listeners

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	cfgstore "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/internal/pathutil"
	"github.com/smykla-skalski/vigil/pkg/config"
	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
	"github.com/smykla-skalski/vigil/pkg/plugin"
)

// JournalName is the journal listener's registry name.
const JournalName = "journal"

const journalFileMode = 0o600

// Journal appends every delivered event to a JSONL file, truncating it
// when the configured size threshold is exceeded.
type Journal struct {
	store  *cfgstore.Store
	logger logger.Logger

	mu       sync.Mutex
	path     string
	maxSize  uint64
	file     *os.File
	appended uint64
	rotated  uint64
}

// NewJournal constructs the journal listener.
func NewJournal(store *cfgstore.Store, log logger.Logger) (plugin.Plugin, error) {
	return &Journal{
		store:  store,
		logger: log,
	}, nil
}

// Name implements plugin.Plugin.
func (j *Journal) Name() string {
	return JournalName
}

// RequiresElevation implements plugin.Plugin.
func (*Journal) RequiresElevation() bool {
	return false
}

// Initialize reads the listener's document and parses the size bound.
func (j *Journal) Initialize(context.Context) error {
	cfg, err := cfgstore.LoadPluginConfig(
		j.store, "listener", JournalName, config.DefaultJournalConfig(),
	)
	if err != nil {
		return err
	}

	maxSizeStr := cfg.MaxSize
	if maxSizeStr == "" {
		maxSizeStr = config.DefaultJournalMaxSize
	}

	maxSize, err := humanize.ParseBytes(maxSizeStr)
	if err != nil {
		return errors.Wrapf(err, "invalid max_size %q", maxSizeStr)
	}

	path, err := pathutil.ExpandPath(cfg.Path)
	if err != nil {
		return errors.Wrap(err, "invalid journal path")
	}

	if path == "" {
		path = filepath.Join(j.store.BaseDir(), "journal.jsonl")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.path = path
	j.maxSize = maxSize

	return nil
}

// Start opens the journal file for appending.
func (j *Journal) Start(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		return nil
	}

	file, err := openAppend(j.path)
	if err != nil {
		return err
	}

	j.file = file

	return nil
}

// Stop closes the journal file. Idempotent.
func (j *Journal) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}

	err := j.file.Close()
	j.file = nil

	return errors.Wrap(err, "failed to close journal")
}

// DebugSnapshot implements plugin.Plugin.
func (j *Journal) DebugSnapshot() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()

	return map[string]any{
		"path":     j.path,
		"max_size": humanize.Bytes(j.maxSize),
		"appended": j.appended,
		"rotated":  j.rotated,
		"open":     j.file != nil,
	}
}

// Handle appends the event as one JSON line.
func (j *Journal) Handle(_ context.Context, evt *event.Event) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New("journal is not open")
	}

	if err := j.rotateLocked(int64(len(line)) + 1); err != nil {
		return err
	}

	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return errors.Wrapf(err, "failed to append to %s", j.path)
	}

	j.appended++

	return nil
}

// rotateLocked truncates the journal when the pending write would push
// it past the size bound.
func (j *Journal) rotateLocked(pending int64) error {
	info, err := j.file.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat journal")
	}

	if uint64(info.Size()+pending) <= j.maxSize {
		return nil
	}

	if err := j.file.Close(); err != nil {
		return errors.Wrap(err, "failed to close journal for rotation")
	}

	j.file = nil

	if err := os.Truncate(j.path, 0); err != nil {
		return errors.Wrapf(err, "failed to truncate %s", j.path)
	}

	file, err := openAppend(j.path)
	if err != nil {
		return err
	}

	j.file = file
	j.rotated++
	j.logger.Info("journal rotated", "path", j.path, "max_size", humanize.Bytes(j.maxSize))

	return nil
}

func openAppend(path string) (*os.File, error) {
	if err := pathutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, errors.Wrapf(err, "failed to create journal directory for %s", path)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, journalFileMode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open journal %s", path)
	}

	return file, nil
}
