// Package registry is the single authority for reading and writing the host
// list. Every operation is a fresh load, mutate, store cycle against the
// backing HostStore; nothing is cached between calls.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/internal/storage"
	"github.com/PottierLoic/Remotely/pkg/errors"
	"github.com/PottierLoic/Remotely/pkg/logger"
)

// Status describes what Inspect found on disk
type Status string

const (
	StatusMissing   Status = "missing"   // nothing persisted yet
	StatusOK        Status = "ok"        // content decoded
	StatusRecovered Status = "recovered" // content was unreadable and moved aside
)

// LoadResult is the outcome of Inspect
type LoadResult struct {
	Hosts  []models.Host
	Status Status
	// QuarantinePath is where unreadable content was moved, for StatusRecovered.
	// It is empty when the content could not be moved.
	QuarantinePath string

	// preserveErr is set when unreadable content is still in place. Writes
	// must not proceed while it is.
	preserveErr error
}

// Auditor receives registry events. *audit.AuditLogger satisfies it.
type Auditor interface {
	LogHostAdded(host models.Host) error
	LogHostsRemoved(id uint64, removed int) error
	LogRecovered(path, quarantinePath string) error
}

// Options configures a Registry
type Options struct {
	// StrictIDs rejects Add when the id is already present
	StrictIDs bool
	Auditor   Auditor
	Logger    *slog.Logger
	// Now is used to name quarantined files; defaults to time.Now
	Now func() time.Time
}

// Registry owns the persisted host list
type Registry struct {
	store     storage.HostStore
	strictIDs bool
	auditor   Auditor
	log       *slog.Logger
	now       func() time.Time

	// mu serializes read-modify-write cycles within this process
	mu sync.Mutex
}

// New creates a registry over store
func New(store storage.HostStore, opts Options) *Registry {
	r := &Registry{
		store:     store,
		strictIDs: opts.StrictIDs,
		auditor:   opts.Auditor,
		log:       opts.Logger,
		now:       opts.Now,
	}
	if r.log == nil {
		r.log = logger.Log
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Path returns the backing file of the underlying store
func (r *Registry) Path() (string, error) {
	return r.store.Path()
}

// Load returns the persisted hosts in insertion order. A missing or
// unreadable file yields an empty list rather than an error.
func (r *Registry) Load(ctx context.Context) ([]models.Host, error) {
	res, err := r.Inspect(ctx)
	if err != nil {
		return nil, err
	}
	return res.Hosts, nil
}

// Inspect is Load with a report of what was found on disk.
func (r *Registry) Inspect(ctx context.Context) (LoadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// Save replaces the persisted list with hosts
func (r *Registry) Save(ctx context.Context, hosts []models.Host) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, hosts)
}

// Add appends host to the end of the list. Duplicate ids are accepted unless
// the registry runs with StrictIDs.
func (r *Registry) Add(ctx context.Context, host models.Host) error {
	if err := host.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrInvalidInput, "registry.Add", "invalid host")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.loadForWrite(ctx)
	if err != nil {
		return err
	}

	if r.strictIDs {
		for _, existing := range res.Hosts {
			if existing.ID == host.ID {
				return errors.New(errors.ErrDuplicateID, "registry.Add",
					fmt.Sprintf("a host with id %d already exists", host.ID)).
					WithSuggestion("Pick another id or remove the existing host first")
			}
		}
	}

	hosts := append(res.Hosts, host)
	if err := r.save(ctx, hosts); err != nil {
		return err
	}

	r.logFor(ctx).Info("host added", "id", host.ID, "name", host.Name, "protocol", host.Protocol)
	if r.auditor != nil {
		if err := r.auditor.LogHostAdded(host); err != nil {
			r.logFor(ctx).Warn("failed to audit host add", "error", err)
		}
	}
	return nil
}

// Remove drops every host with the given id. An unknown id leaves the list
// unchanged and is not an error. It returns how many records were dropped.
func (r *Registry) Remove(ctx context.Context, id uint64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.loadForWrite(ctx)
	if err != nil {
		return 0, err
	}

	kept := make([]models.Host, 0, len(res.Hosts))
	for _, h := range res.Hosts {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	removed := len(res.Hosts) - len(kept)

	if err := r.save(ctx, kept); err != nil {
		return 0, err
	}

	r.logFor(ctx).Info("host removed", "id", id, "removed", removed)
	if r.auditor != nil {
		if err := r.auditor.LogHostsRemoved(id, removed); err != nil {
			r.logFor(ctx).Warn("failed to audit host removal", "error", err)
		}
	}
	return removed, nil
}

// NextID returns one more than the largest id in use, or 1 for an empty registry.
func (r *Registry) NextID(ctx context.Context) (uint64, error) {
	hosts, err := r.Load(ctx)
	if err != nil {
		return 0, err
	}

	var max uint64
	for _, h := range hosts {
		if h.ID > max {
			max = h.ID
		}
	}
	if max == ^uint64(0) {
		return 0, errors.New(errors.ErrConflict, "registry.NextID", "host ids are exhausted")
	}
	return max + 1, nil
}

func (r *Registry) load(ctx context.Context) (LoadResult, error) {
	hosts, err := r.store.Load(ctx)
	switch {
	case err == nil:
		r.logFor(ctx).Debug("registry loaded", "hosts", len(hosts))
		return LoadResult{Hosts: hosts, Status: StatusOK}, nil
	case errors.Is(err, storage.ErrNoData):
		return LoadResult{Hosts: []models.Host{}, Status: StatusMissing}, nil
	case errors.Is(err, storage.ErrMalformed):
		return r.recover(ctx, err), nil
	default:
		return LoadResult{}, err
	}
}

// loadForWrite is load for callers about to save. Saving over content that
// could not be moved aside would destroy it, so that case is an error here.
func (r *Registry) loadForWrite(ctx context.Context) (LoadResult, error) {
	res, err := r.load(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	if res.preserveErr != nil {
		return LoadResult{}, res.preserveErr
	}
	return res, nil
}

// recover moves unreadable content aside so the next save cannot destroy it,
// then reports an empty registry. A failed move is logged and left for the
// next write to report.
func (r *Registry) recover(ctx context.Context, cause error) LoadResult {
	log := r.logFor(ctx).With("cause", cause)

	path, err := r.store.Path()
	if err != nil {
		log.Debug("store has no backing file", "error", err)
	} else {
		log = log.With("path", path)
	}

	dest, err := r.store.Quarantine(ctx, r.now())
	if err != nil {
		log.Warn("registry file is unreadable and could not be moved aside, starting empty", "error", err)
		r.auditRecovered(ctx, path, "")
		return LoadResult{Hosts: []models.Host{}, Status: StatusRecovered, preserveErr: err}
	}

	log.Warn("registry file was unreadable, starting empty", "quarantined_to", dest)
	r.auditRecovered(ctx, path, dest)

	return LoadResult{Hosts: []models.Host{}, Status: StatusRecovered, QuarantinePath: dest}
}

func (r *Registry) auditRecovered(ctx context.Context, path, dest string) {
	if r.auditor == nil {
		return
	}
	if err := r.auditor.LogRecovered(path, dest); err != nil {
		r.logFor(ctx).Warn("failed to audit recovery", "error", err)
	}
}

func (r *Registry) save(ctx context.Context, hosts []models.Host) error {
	if err := r.store.Save(ctx, hosts); err != nil {
		return err
	}
	r.logFor(ctx).Debug("registry saved", "hosts", len(hosts))
	return nil
}

// logFor prefers a request-scoped logger carried by ctx.
func (r *Registry) logFor(ctx context.Context) *slog.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l.With("component", "registry")
	}
	return r.log
}
