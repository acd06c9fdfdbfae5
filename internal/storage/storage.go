package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/pkg/errors"
	"github.com/PottierLoic/Remotely/pkg/fileio"
)

// Storage drivers selectable through the app configuration
const (
	DriverJSON   = "json"
	DriverYAML   = "yaml"
	DriverSQLite = "sqlite"
)

// Drivers lists every supported driver
var Drivers = []string{DriverJSON, DriverYAML, DriverSQLite}

var (
	// ErrNoData is returned by Load when nothing has been persisted yet.
	ErrNoData = stderrors.New("storage: no data stored")
	// ErrMalformed is returned by Load when the stored content cannot be decoded.
	ErrMalformed = stderrors.New("storage: malformed content")
)

// HostStore persists the whole host sequence as one unit. Every call resolves
// its backing path again and keeps no state between calls.
type HostStore interface {
	// Load returns the stored hosts in insertion order
	Load(ctx context.Context) ([]models.Host, error)
	// Save replaces the stored hosts with hosts
	Save(ctx context.Context, hosts []models.Host) error
	// Quarantine moves the backing file aside and returns its new path
	Quarantine(ctx context.Context, now time.Time) (string, error)
	// Path resolves the backing file
	Path() (string, error)
	Close() error
}

// Malformed wraps a decode failure so callers can match it with errors.Is(err, ErrMalformed).
func Malformed(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
}

// ReadFile reads path, mapping a missing file to ErrNoData.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoData
		}
		return nil, errors.Wrap(err, errors.ErrRead, "storage.ReadFile", "failed to read "+path)
	}
	return data, nil
}

// WriteFile atomically replaces path with data (0600).
func WriteFile(path string, data []byte) error {
	if err := fileio.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrWrite, "storage.WriteFile", "failed to write "+path)
	}
	return nil
}

// QuarantineFile renames path aside with a "corrupt" tag.
func QuarantineFile(path string, now time.Time) (string, error) {
	dest, err := fileio.Quarantine(path, "corrupt", now)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrWrite, "storage.Quarantine", "failed to preserve unreadable file")
	}
	return dest, nil
}

// ValidateAll runs Validate on every host, reporting the first failure as malformed.
func ValidateAll(path string, hosts []models.Host) error {
	for _, h := range hosts {
		if err := h.Validate(); err != nil {
			return Malformed(path, err)
		}
	}
	return nil
}
