package json

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/internal/storage"
	"github.com/PottierLoic/Remotely/pkg/errors"
	"github.com/PottierLoic/Remotely/pkg/platform"
)

// Store implements storage.HostStore over a pretty-printed JSON array
type Store struct {
	locate platform.Locator
}

var _ storage.HostStore = (*Store)(nil)

// NewStore creates a JSON store. A nil locator means the platform hosts.json.
func NewStore(locate platform.Locator) *Store {
	if locate == nil {
		locate = platform.ResolveDataFile
	}
	return &Store{locate: locate}
}

func (s *Store) Path() (string, error) {
	return s.locate()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Load(ctx context.Context) ([]models.Host, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.locate()
	if err != nil {
		return nil, err
	}

	data, err := storage.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var hosts []models.Host
	if err := json.Unmarshal(data, &hosts); err != nil {
		return nil, storage.Malformed(path, err)
	}
	// A literal null decodes without error but is not a host sequence
	if hosts == nil {
		return nil, storage.Malformed(path, fmt.Errorf("expected an array"))
	}
	if err := storage.ValidateAll(path, hosts); err != nil {
		return nil, err
	}

	return hosts, nil
}

func (s *Store) Save(ctx context.Context, hosts []models.Host) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.locate()
	if err != nil {
		return err
	}

	if hosts == nil {
		hosts = []models.Host{}
	}

	data, err := json.MarshalIndent(hosts, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrSerialization, "json.Save", "failed to encode hosts")
	}

	return storage.WriteFile(path, data)
}

func (s *Store) Quarantine(ctx context.Context, now time.Time) (string, error) {
	path, err := s.locate()
	if err != nil {
		return "", err
	}
	return storage.QuarantineFile(path, now)
}
