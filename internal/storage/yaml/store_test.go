package yaml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/internal/storage"
	"github.com/PottierLoic/Remotely/pkg/platform"
)

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(platform.FileIn(dir, DefaultFile))
	ctx := context.Background()

	want := []models.Host{
		{ID: 2, Name: "desk", Address: "10.0.0.2", Protocol: models.ProtocolVNC, Password: models.StringPtr("pw")},
		{ID: 1, Name: "jump", Address: "jump.example.com", Protocol: models.ProtocolSSH, Username: models.StringPtr("ops")},
	}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "host %d differs", i)
	}

	data, err := os.ReadFile(filepath.Join(dir, DefaultFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "protocol: VNC")
	assert.Contains(t, string(data), "ip: jump.example.com")
}

func TestLoadMissingAndMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	store := NewStore(platform.FileIn(dir, DefaultFile))
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrNoData)

	require.NoError(t, os.WriteFile(path, []byte("- id: [unclosed"), 0600))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrMalformed)

	require.NoError(t, os.WriteFile(path, []byte("- id: 1\n  name: a\n  ip: b\n  protocol: RDP\n"), 0600))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrMalformed)
}

func TestLoadRejectsMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	store := NewStore(platform.FileIn(dir, DefaultFile))

	require.NoError(t, os.WriteFile(path, []byte("- id: 1\n  protocol: SSH\n"), 0600))
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrMalformed)
}

func TestDecodeEmptyDocument(t *testing.T) {
	hosts, err := Decode([]byte(""))
	require.NoError(t, err)
	assert.NotNil(t, hosts)
	assert.Empty(t, hosts)
}
