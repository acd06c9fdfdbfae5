package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/pkg/errors"
)

// Command names invoked by the UI shell
const (
	GetHostList = "get_host_list"
	AddHost     = "add_host"
	DeleteHost  = "delete_host"
)

// HostRegistry is the subset of *registry.Registry the command surface needs
type HostRegistry interface {
	Load(ctx context.Context) ([]models.Host, error)
	Add(ctx context.Context, host models.Host) error
	Remove(ctx context.Context, id uint64) (int, error)
}

// Handler exposes registry operations to the shell
type Handler struct {
	registry HostRegistry
}

// NewHandler creates a command handler over reg
func NewHandler(reg HostRegistry) *Handler {
	return &Handler{registry: reg}
}

// GetHostList returns every stored host
func (h *Handler) GetHostList(ctx context.Context) ([]models.Host, error) {
	return h.registry.Load(ctx)
}

// AddHost appends newHost to the registry
func (h *Handler) AddHost(ctx context.Context, newHost models.Host) error {
	return h.registry.Add(ctx, newHost)
}

// DeleteHost removes every host with id
func (h *Handler) DeleteHost(ctx context.Context, id uint64) error {
	_, err := h.registry.Remove(ctx, id)
	return err
}

// The shell sends camelCase argument names; snake_case is accepted too.
type addHostArgs struct {
	NewHost      *models.Host `json:"newHost"`
	NewHostSnake *models.Host `json:"new_host"`
}

type deleteHostArgs struct {
	ID *uint64 `json:"id"`
}

// Names lists the commands Invoke understands
func Names() []string {
	names := []string{GetHostList, AddHost, DeleteHost}
	sort.Strings(names)
	return names
}

// Invoke dispatches a command by name with JSON-encoded arguments. Commands
// without a result return nil.
func (h *Handler) Invoke(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case GetHostList:
		return h.GetHostList(ctx)

	case AddHost:
		var in addHostArgs
		if err := decodeArgs(name, args, &in); err != nil {
			return nil, err
		}
		newHost := in.NewHost
		if newHost == nil {
			newHost = in.NewHostSnake
		}
		if newHost == nil {
			return nil, errors.New(errors.ErrInvalidInput, name, "missing argument newHost")
		}
		return nil, h.AddHost(ctx, *newHost)

	case DeleteHost:
		var in deleteHostArgs
		if err := decodeArgs(name, args, &in); err != nil {
			return nil, err
		}
		if in.ID == nil {
			return nil, errors.New(errors.ErrInvalidInput, name, "missing argument id")
		}
		return nil, h.DeleteHost(ctx, *in.ID)

	default:
		return nil, errors.New(errors.ErrNotFound, "commands.Invoke", fmt.Sprintf("unknown command %q", name)).
			WithSuggestion(fmt.Sprintf("Known commands: %v", Names()))
	}
}

func decodeArgs(name string, raw json.RawMessage, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, errors.ErrInvalidInput, name, "invalid arguments")
	}
	return nil
}
