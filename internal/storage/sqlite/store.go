package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/internal/storage"
	"github.com/PottierLoic/Remotely/pkg/errors"
	"github.com/PottierLoic/Remotely/pkg/platform"
)

// DefaultFile is the database file name inside the data directory
const DefaultFile = "hosts.db"

// Store implements storage.HostStore on an SQLite database. The database is
// opened for the duration of a single Load or Save.
type Store struct {
	locate platform.Locator
}

var _ storage.HostStore = (*Store)(nil)

// NewStore creates a new SQLite store. A nil locator means hosts.db in the
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

// seq keeps insertion order; id is caller-assigned and may repeat.
const schema = `CREATE TABLE IF NOT EXISTS hosts (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id INTEGER NOT NULL,
	name TEXT NOT NULL,
	ip TEXT NOT NULL,
	protocol TEXT NOT NULL,
	username TEXT,
	password TEXT
)`

func open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (s *Store) Load(ctx context.Context) ([]models.Host, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.locate()
	if err != nil {
		return nil, err
	}

	// sql.Open would create an empty database; a missing file means nothing stored yet
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNoData
		}
		return nil, errors.Wrap(err, errors.ErrRead, "sqlite.Load", "failed to stat "+path)
	}

	db, err := open(ctx, path)
	if err != nil {
		if isNotADatabase(err) {
			return nil, storage.Malformed(path, err)
		}
		return nil, errors.Wrap(err, errors.ErrRead, "sqlite.Load", "failed to open "+path)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT id, name, ip, protocol, username, password FROM hosts ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRead, "sqlite.Load", "failed to query hosts")
	}
	defer rows.Close()

	hosts := []models.Host{}
	for rows.Next() {
		var (
			h                  models.Host
			id                 int64
			protocol           string
			username, password sql.NullString
		)
		if err := rows.Scan(&id, &h.Name, &h.Address, &protocol, &username, &password); err != nil {
			return nil, errors.Wrap(err, errors.ErrRead, "sqlite.Load", "failed to scan host")
		}
		h.ID = uint64(id)
		h.Protocol = models.Protocol(protocol)
		if username.Valid {
			h.Username = &username.String
		}
		if password.Valid {
			h.Password = &password.String
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrRead, "sqlite.Load", "failed to read hosts")
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

	for _, h := range hosts {
		if err := h.Validate(); err != nil {
			return errors.Wrap(err, errors.ErrSerialization, "sqlite.Save", "refusing to store invalid host")
		}
	}

	path, err := s.locate()
	if err != nil {
		return err
	}

	db, err := open(ctx, path)
	if err != nil {
		return errors.Wrap(err, errors.ErrWrite, "sqlite.Save", "failed to open "+path)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrWrite, "sqlite.Save", "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM hosts`); err != nil {
		return errors.Wrap(err, errors.ErrWrite, "sqlite.Save", "failed to clear hosts")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO hosts (id, name, ip, protocol, username, password) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, errors.ErrWrite, "sqlite.Save", "failed to prepare insert")
	}
	defer stmt.Close()

	for _, h := range hosts {
		// database/sql rejects uint64 with the high bit set, so store the bit pattern
		_, err := stmt.ExecContext(ctx, int64(h.ID), h.Name, h.Address, string(h.Protocol),
			nullable(h.Username), nullable(h.Password))
		if err != nil {
			return errors.Wrap(err, errors.ErrWrite, "sqlite.Save", fmt.Sprintf("failed to insert host %d", h.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrWrite, "sqlite.Save", "failed to commit")
	}
	return nil
}

func (s *Store) Quarantine(ctx context.Context, now time.Time) (string, error) {
	path, err := s.locate()
	if err != nil {
		return "", err
	}
	return storage.QuarantineFile(path, now)
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isNotADatabase(err error) bool {
	var se *sqlite.Error
	if stderrors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_NOTADB {
		return true
	}
	return strings.Contains(err.Error(), "not a database")
}
