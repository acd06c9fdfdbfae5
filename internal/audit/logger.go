package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/pkg/fileio"
)

// LogFile is the audit log file name inside the data directory
const LogFile = "audit.log"

// DefaultMaxEntries bounds the log when no limit is configured
const DefaultMaxEntries = 1000

// EventType represents the type of audit event
type EventType string

const (
	EventHostAdded         EventType = "host_added"
	EventHostRemoved       EventType = "host_removed"
	EventRegistryRecovered EventType = "registry_recovered"
	EventBackupCreated     EventType = "backup_created"
	EventBackupRestored    EventType = "backup_restored"
)

// EventTypes lists every event the log records
var EventTypes = []EventType{
	EventHostAdded,
	EventHostRemoved,
	EventRegistryRecovered,
	EventBackupCreated,
	EventBackupRestored,
}

// AuditEntry represents a single audit log entry
type AuditEntry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Result    string                 `json:"result"` // success, failure
	Error     string                 `json:"error,omitempty"`
}

// AuditLogger keeps a bounded list of entries and rewrites it on every Log
type AuditLogger struct {
	logFile    string
	mu         sync.Mutex
	maxEntries int
	entries    []AuditEntry
}

// NewAuditLogger creates a new audit logger writing to dir/audit.log
func NewAuditLogger(dir string, maxEntries int) (*AuditLogger, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	al := &AuditLogger{
		logFile:    filepath.Join(dir, LogFile),
		maxEntries: maxEntries,
		entries:    []AuditEntry{},
	}

	if err := al.load(); err != nil {
		return nil, err
	}

	return al, nil
}

// Path returns the log file location
func (al *AuditLogger) Path() string {
	return al.logFile
}

// Log logs an audit entry
func (al *AuditLogger) Log(entry AuditEntry) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Result == "" {
		entry.Result = "success"
	}

	al.entries = append(al.entries, entry)

	if len(al.entries) > al.maxEntries {
		al.entries = al.entries[len(al.entries)-al.maxEntries:]
	}

	return al.save()
}

// LogHostAdded records an add. Credentials are never logged.
func (al *AuditLogger) LogHostAdded(host models.Host) error {
	return al.Log(AuditEntry{
		EventType: EventHostAdded,
		Action:    "Added host",
		Resource:  fmt.Sprintf("%d", host.ID),
		Details: map[string]interface{}{
			"name":     host.Name,
			"address":  host.Address,
			"protocol": string(host.Protocol),
		},
	})
}

// LogHostsRemoved records a remove-by-id and how many records it dropped
func (al *AuditLogger) LogHostsRemoved(id uint64, removed int) error {
	return al.Log(AuditEntry{
		EventType: EventHostRemoved,
		Action:    "Removed host",
		Resource:  fmt.Sprintf("%d", id),
		Details: map[string]interface{}{
			"removed": removed,
		},
	})
}

// LogRecovered records that an unreadable registry file was moved aside
func (al *AuditLogger) LogRecovered(path, quarantinePath string) error {
	return al.Log(AuditEntry{
		EventType: EventRegistryRecovered,
		Action:    "Recovered from unreadable registry file",
		Resource:  path,
		Details: map[string]interface{}{
			"quarantined_to": quarantinePath,
		},
	})
}

// LogBackup records a backup creation or restore
func (al *AuditLogger) LogBackup(eventType EventType, path string, err error) error {
	entry := AuditEntry{
		EventType: eventType,
		Action:    strings.ReplaceAll(string(eventType), "_", " "),
		Resource:  path,
	}
	if err != nil {
		entry.Result = "failure"
		entry.Error = err.Error()
	}
	return al.Log(entry)
}

// Query returns entries matching filter, oldest first
func (al *AuditLogger) Query(filter AuditFilter) []AuditEntry {
	al.mu.Lock()
	defer al.mu.Unlock()

	var results []AuditEntry
	for _, entry := range al.entries {
		if filter.Matches(entry) {
			results = append(results, entry)
		}
	}
	return results
}

// GetRecent returns the last n entries
func (al *AuditLogger) GetRecent(n int) []AuditEntry {
	al.mu.Lock()
	defer al.mu.Unlock()

	if n > len(al.entries) {
		n = len(al.entries)
	}

	out := make([]AuditEntry, n)
	copy(out, al.entries[len(al.entries)-n:])
	return out
}

func (al *AuditLogger) load() error {
	data, err := os.ReadFile(al.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	// An unreadable audit log starts over rather than blocking registry writes
	if err := json.Unmarshal(data, &al.entries); err != nil {
		al.entries = []AuditEntry{}
	}

	return nil
}

func (al *AuditLogger) save() error {
	if err := os.MkdirAll(filepath.Dir(al.logFile), 0700); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	data, err := json.MarshalIndent(al.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal audit entries: %w", err)
	}

	if err := fileio.WriteFile(al.logFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	return nil
}

// AuditFilter filters audit entries
type AuditFilter struct {
	EventType EventType
	Resource  string
	StartTime time.Time
	EndTime   time.Time
	Result    string
}

// Matches checks if an entry matches the filter
func (f AuditFilter) Matches(entry AuditEntry) bool {
	if f.EventType != "" && entry.EventType != f.EventType {
		return false
	}
	if f.Resource != "" && entry.Resource != f.Resource {
		return false
	}
	if !f.StartTime.IsZero() && entry.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && entry.Timestamp.After(f.EndTime) {
		return false
	}
	if f.Result != "" && entry.Result != f.Result {
		return false
	}
	return true
}
