package yaml

import (
	"context"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/internal/storage"
	"github.com/PottierLoic/Remotely/pkg/errors"
	"github.com/PottierLoic/Remotely/pkg/platform"
)

// DefaultFile is the file name used when the YAML driver is the primary store
const DefaultFile = "hosts.yaml"

// Store implements storage.HostStore for a YAML file
type Store struct {
	locate platform.Locator
}

var _ storage.HostStore = (*Store)(nil)

// NewStore creates a new YAML store. A nil locator means hosts.yaml in the
// platform data directory.
func NewStore(locate platform.Locator) *Store {
	if locate == nil {
		locate = platform.FileIn("", DefaultFile)
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

	hosts, err := Decode(data)
	if err != nil {
		return nil, storage.Malformed(path, err)
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

	data, err := Encode(hosts)
	if err != nil {
		return err
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

// Encode serializes hosts as a YAML sequence. Export uses it directly.
func Encode(hosts []models.Host) ([]byte, error) {
	if hosts == nil {
		hosts = []models.Host{}
	}
	data, err := yaml.Marshal(hosts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrSerialization, "yaml.Encode", "failed to encode hosts")
	}
	return data, nil
}

// Decode parses a YAML sequence of hosts. An empty document is an empty list.
func Decode(data []byte) ([]models.Host, error) {
	var hosts []models.Host
	if err := yaml.Unmarshal(data, &hosts); err != nil {
		return nil, err
	}
	if hosts == nil {
		hosts = []models.Host{}
	}
	return hosts, nil
}
