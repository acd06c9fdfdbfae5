package fileio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AtomicWriter writes to a temp file next to the target and renames it into
// place on Commit, so readers never observe a partially written target.
type AtomicWriter struct {
	targetPath string
	perm       os.FileMode
	tempFile   *os.File
}

// NewAtomicWriter creates a new atomic writer for path. The temp file lives in
// the same directory so the final rename never crosses filesystems.
func NewAtomicWriter(path string, perm os.FileMode) (*AtomicWriter, error) {
	tempFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	return &AtomicWriter{
		targetPath: path,
		perm:       perm,
		tempFile:   tempFile,
	}, nil
}

// Write writes data to the temporary file
func (aw *AtomicWriter) Write(p []byte) (n int, err error) {
	return aw.tempFile.Write(p)
}

// Commit syncs the temp file and renames it over the target
func (aw *AtomicWriter) Commit() error {
	if err := aw.tempFile.Chmod(aw.perm); err != nil {
		aw.Abort()
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := aw.tempFile.Sync(); err != nil {
		aw.Abort()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := aw.tempFile.Close(); err != nil {
		os.Remove(aw.tempFile.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(aw.tempFile.Name(), aw.targetPath); err != nil {
		os.Remove(aw.tempFile.Name())
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Abort discards the write and removes the temp file
func (aw *AtomicWriter) Abort() error {
	aw.tempFile.Close()
	return os.Remove(aw.tempFile.Name())
}

// WriteFile replaces path with data atomically.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	aw, err := NewAtomicWriter(path, perm)
	if err != nil {
		return err
	}

	if _, err := aw.Write(data); err != nil {
		aw.Abort()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	return aw.Commit()
}

// Quarantine renames path aside to path.<tag>-<timestamp> and returns the new name.
func Quarantine(path, tag string, now time.Time) (string, error) {
	dest := fmt.Sprintf("%s.%s-%s", path, tag, now.Format("20060102-150405"))
	if _, err := os.Stat(dest); err == nil {
		dest = fmt.Sprintf("%s.%d", dest, now.UnixNano())
	}

	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s aside: %w", path, err)
	}
	return dest, nil
}
