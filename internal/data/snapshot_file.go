package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/target/transcode-dispatch/internal/domain/model"
)

// ReadSnapshotFile loads a snapshot from path. Absent, empty, and malformed
// files all yield an empty snapshot so a damaged state file never blocks
// startup; the condition is logged.
func ReadSnapshotFile(path string, logger *slog.Logger) *model.Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no state file found, starting with empty state", "path", path)
		return model.NewSnapshot()
	}
	if err != nil {
		logger.Warn("state file unreadable, starting with empty state", "path", path, "error", err)
		return model.NewSnapshot()
	}
	if len(raw) == 0 {
		logger.Warn("state file empty, starting with empty state", "path", path)
		return model.NewSnapshot()
	}

	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logger.Warn("state file malformed, starting with empty state", "path", path, "error", err)
		return model.NewSnapshot()
	}
	if snap.Jobs == nil {
		snap.Jobs = make(map[string]*model.Job)
	}
	if snap.Engines == nil {
		snap.Engines = make(map[string]*model.Engine)
	}
	return &snap
}

// WriteSnapshotFile serializes the snapshot to path atomically: the document
// goes to a temporary file in the same directory, is fsynced, and is renamed
// over the previous file. Either the old state or the new state is on disk,
// never a torn mix.
func WriteSnapshotFile(path string, snap *model.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
