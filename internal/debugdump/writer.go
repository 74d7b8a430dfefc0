package debugdump

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/smykla-skalski/vigil/pkg/logger"
)

const (
	// FilePerm is the file permission for dump files.
	FilePerm fs.FileMode = 0o600

	// TempSuffix is the suffix for temporary files during atomic writes.
	TempSuffix = ".tmp"

	// filePrefix is the dump file name prefix.
	filePrefix = "vigil-debug-"

	// timestampLayout orders dump files lexicographically by creation time.
	timestampLayout = "20060102-150405"
)

// ErrWriteFailed is returned when writing a dump fails.
var ErrWriteFailed = errors.New("failed to write debug dump")

// Writer persists dumps as timestamped JSON files.
type Writer struct {
	dir    string
	logger logger.Logger
	now    func() time.Time
}

// NewWriter creates a Writer targeting dir; an empty dir means the
// system temp directory.
func NewWriter(dir string, log logger.Logger) *Writer {
	if dir == "" {
		dir = os.TempDir()
	}

	return &Writer{
		dir:    dir,
		logger: log,
		now:    time.Now,
	}
}

// Write marshals the dump and writes it atomically (temp file + rename),
// returning the final path.
func (w *Writer) Write(dump *Dump) (string, error) {
	if dump == nil {
		return "", errors.Wrap(ErrWriteFailed, "dump is nil")
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", errors.Wrap(ErrWriteFailed, "failed to marshal dump")
	}

	fileName := filePrefix + w.now().Format(timestampLayout) + ".json"
	filePath := filepath.Join(w.dir, fileName)
	tempPath := filePath + TempSuffix

	if err := os.WriteFile(tempPath, data, FilePerm); err != nil {
		return "", errors.Wrap(ErrWriteFailed, err.Error())
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)

		return "", errors.Wrap(ErrWriteFailed, err.Error())
	}

	w.logger.Info("debug dump written",
		"path", filePath,
		"size", humanize.Bytes(uint64(len(data))),
	)

	return filePath, nil
}
