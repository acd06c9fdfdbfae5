package registry

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/internal/storage"
	jsonStore "github.com/PottierLoic/Remotely/internal/storage/json"
	"github.com/PottierLoic/Remotely/internal/storage/sqlite"
	yamlStore "github.com/PottierLoic/Remotely/internal/storage/yaml"
	"github.com/PottierLoic/Remotely/pkg/errors"
	"github.com/PottierLoic/Remotely/pkg/logger"
	"github.com/PottierLoic/Remotely/pkg/platform"
)

type recordingAuditor struct {
	mu        sync.Mutex
	added     []uint64
	removed   map[uint64]int
	recovered []string
}

func (a *recordingAuditor) LogHostAdded(host models.Host) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.added = append(a.added, host.ID)
	return nil
}

func (a *recordingAuditor) LogHostsRemoved(id uint64, removed int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.removed == nil {
		a.removed = map[uint64]int{}
	}
	a.removed[id] += removed
	return nil
}

func (a *recordingAuditor) LogRecovered(path, quarantinePath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recovered = append(a.recovered, quarantinePath)
	return nil
}

func host(id uint64, name string) models.Host {
	return models.Host{ID: id, Name: name, Address: name + ".lan", Protocol: models.ProtocolSSH}
}

func ids(hosts []models.Host) []uint64 {
	out := make([]uint64, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, h.ID)
	}
	return out
}

func newRegistry(t *testing.T, opts Options) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	store := jsonStore.NewStore(platform.FileIn(dir, platform.HostsFile))
	return New(store, opts), filepath.Join(dir, platform.HostsFile)
}

func TestRoundTripOverEveryDriver(t *testing.T) {
	drivers := map[string]func(dir string) storage.HostStore{
		storage.DriverJSON: func(dir string) storage.HostStore {
			return jsonStore.NewStore(platform.FileIn(dir, platform.HostsFile))
		},
		storage.DriverYAML: func(dir string) storage.HostStore {
			return yamlStore.NewStore(platform.FileIn(dir, yamlStore.DefaultFile))
		},
		storage.DriverSQLite: func(dir string) storage.HostStore {
			return sqlite.NewStore(platform.FileIn(dir, sqlite.DefaultFile))
		},
	}

	want := []models.Host{
		host(5, "five"),
		{ID: 2, Name: "web", Address: "https://web", Protocol: models.ProtocolHTTPS,
			Username: models.StringPtr("u"), Password: models.StringPtr("p")},
		host(5, "five-again"),
	}

	for name, build := range drivers {
		t.Run(name, func(t *testing.T) {
			reg := New(build(t.TempDir()), Options{Logger: logger.Discard()})
			ctx := context.Background()

			require.NoError(t, reg.Save(ctx, want))
			got, err := reg.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for i := range want {
				assert.True(t, want[i].Equal(got[i]), "host %d differs", i)
			}
		})
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	reg, path := newRegistry(t, Options{})

	res, err := reg.Inspect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Hosts)
	assert.NotNil(t, res.Hosts)
	assert.Equal(t, StatusMissing, res.Status)
	assert.NoFileExists(t, path)
}

func TestLoadCorruptFileIsEmptyAndPreserved(t *testing.T) {
	auditor := &recordingAuditor{}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	reg, path := newRegistry(t, Options{Auditor: auditor, Now: func() time.Time { return now }})
	require.NoError(t, os.WriteFile(path, []byte("\xff\xfe garbage {"), 0600))

	hosts, err := reg.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hosts)

	quarantined := path + ".corrupt-20250102-030405"
	data, err := os.ReadFile(quarantined)
	require.NoError(t, err)
	assert.Equal(t, "\xff\xfe garbage {", string(data))
	assert.Equal(t, []string{quarantined}, auditor.recovered)

	// The next load sees a missing file, not another recovery
	res, err := reg.Inspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, res.Status)
}

func TestInspectReportsRecovery(t *testing.T) {
	reg, path := newRegistry(t, Options{})
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":1}]`), 0600))

	res, err := reg.Inspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRecovered, res.Status)
	assert.FileExists(t, res.QuarantinePath)
}

func TestLoadCorruptFileThatCannotBeMovedIsStillEmpty(t *testing.T) {
	auditor := &recordingAuditor{}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	reg, path := newRegistry(t, Options{Auditor: auditor, Now: func() time.Time { return now }})
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	// Occupy both names the file would be moved to
	first := path + ".corrupt-20250102-030405"
	second := first + "." + strconv.FormatInt(now.UnixNano(), 10)
	for _, dir := range []string{first, second} {
		require.NoError(t, os.MkdirAll(dir, 0700))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0600))
	}

	ctx := context.Background()
	hosts, err := reg.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, hosts)

	res, err := reg.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRecovered, res.Status)
	assert.Empty(t, res.QuarantinePath)
	assert.Contains(t, auditor.recovered, "")

	// Writes refuse to replace content that was never preserved
	err = reg.Add(ctx, host(1, "h1"))
	assert.True(t, errors.IsCode(err, errors.ErrWrite), "got %v", err)
	_, err = reg.Remove(ctx, 1)
	assert.True(t, errors.IsCode(err, errors.ErrWrite), "got %v", err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "not json", string(data))
}

// pathlessStore holds unreadable content but cannot name its backing file
type pathlessStore struct {
	quarantined bool
}

func (s *pathlessStore) Load(ctx context.Context) ([]models.Host, error) {
	if s.quarantined {
		return nil, storage.ErrNoData
	}
	return nil, storage.Malformed("hosts", stderrors.New("bad"))
}

func (s *pathlessStore) Save(ctx context.Context, hosts []models.Host) error { return nil }

func (s *pathlessStore) Quarantine(ctx context.Context, now time.Time) (string, error) {
	s.quarantined = true
	return "hosts.corrupt", nil
}

func (s *pathlessStore) Path() (string, error) { return "", stderrors.New("no data directory") }

func (s *pathlessStore) Close() error { return nil }

func TestRecoveryWithoutStorePathOmitsIt(t *testing.T) {
	var buf bytes.Buffer
	auditor := &recordingAuditor{}
	reg := New(&pathlessStore{}, Options{Auditor: auditor, Logger: logger.New(&buf, "text", "debug")})

	res, err := reg.Inspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRecovered, res.Status)
	assert.Equal(t, "hosts.corrupt", res.QuarantinePath)
	assert.Equal(t, []string{"hosts.corrupt"}, auditor.recovered)

	assert.Contains(t, buf.String(), "quarantined_to=hosts.corrupt")
	assert.NotContains(t, buf.String(), " path=")
}

func TestAddAppends(t *testing.T) {
	auditor := &recordingAuditor{}
	reg, _ := newRegistry(t, Options{Auditor: auditor})
	ctx := context.Background()

	require.NoError(t, reg.Save(ctx, []models.Host{host(1, "h1"), host(2, "h2")}))
	require.NoError(t, reg.Add(ctx, host(3, "h3")))

	hosts, err := reg.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids(hosts))
	assert.Equal(t, "h3", hosts[2].Name)
	assert.Equal(t, []uint64{3}, auditor.added)
}

func TestAddAllowsDuplicateIDsByDefault(t *testing.T) {
	reg, _ := newRegistry(t, Options{})
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, host(1, "a")))
	require.NoError(t, reg.Add(ctx, host(1, "b")))

	hosts, err := reg.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 1}, ids(hosts))
}

func TestAddStrictIDsRejectsDuplicate(t *testing.T) {
	reg, _ := newRegistry(t, Options{StrictIDs: true})
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, host(1, "a")))
	err := reg.Add(ctx, host(1, "b"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDuplicateID))

	hosts, err := reg.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, hosts, 1)
}

func TestAddRejectsInvalidProtocol(t *testing.T) {
	reg, path := newRegistry(t, Options{})

	err := reg.Add(context.Background(), models.Host{ID: 1, Protocol: "RDP"})
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput))
	assert.NoFileExists(t, path)
}

func TestRemoveFiltersEveryMatch(t *testing.T) {
	auditor := &recordingAuditor{}
	reg, _ := newRegistry(t, Options{Auditor: auditor})
	ctx := context.Background()

	require.NoError(t, reg.Save(ctx, []models.Host{host(1, "a"), host(2, "b"), host(1, "c")}))
	removed, err := reg.Remove(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	hosts, err := reg.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, ids(hosts))
	assert.Equal(t, 2, auditor.removed[1])
}

func TestRemoveUnknownIDIsNoop(t *testing.T) {
	reg, _ := newRegistry(t, Options{})
	ctx := context.Background()

	require.NoError(t, reg.Save(ctx, []models.Host{host(1, "a")}))
	removed, err := reg.Remove(ctx, 99)
	require.NoError(t, err)
	assert.Zero(t, removed)

	hosts, err := reg.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids(hosts))
}

func TestRemoveOnMissingFileCreatesEmptyRegistry(t *testing.T) {
	reg, path := newRegistry(t, Options{})

	_, err := reg.Remove(context.Background(), 1)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	reg, _ := newRegistry(t, Options{})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			assert.NoError(t, reg.Add(ctx, host(id, "h")))
		}(uint64(i))
	}
	wg.Wait()

	hosts, err := reg.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, hosts, n)
}

func TestNextID(t *testing.T) {
	reg, _ := newRegistry(t, Options{})
	ctx := context.Background()

	next, err := reg.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	require.NoError(t, reg.Save(ctx, []models.Host{host(4, "a"), host(9, "b"), host(2, "c")}))
	next, err = reg.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), next)
}

func TestTypedErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("directory create", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0600))
		store := jsonStore.NewStore(platform.FileIn(filepath.Join(blocker, "data"), platform.HostsFile))
		reg := New(store, Options{Logger: logger.Discard()})

		_, err := reg.Load(ctx)
		assert.True(t, errors.IsCode(err, errors.ErrDirectoryCreate), "got %v", err)
	})

	t.Run("read", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, platform.HostsFile), 0700))
		reg := New(jsonStore.NewStore(platform.FileIn(dir, platform.HostsFile)), Options{Logger: logger.Discard()})

		_, err := reg.Load(ctx)
		assert.True(t, errors.IsCode(err, errors.ErrRead), "got %v", err)
	})

	t.Run("serialization", func(t *testing.T) {
		reg, _ := newRegistry(t, Options{})
		err := reg.Save(ctx, []models.Host{{ID: 1, Protocol: "???"}})
		assert.True(t, errors.IsCode(err, errors.ErrSerialization), "got %v", err)
	})
}
