package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultBackupDir is where backups are stored, relative to the data dir
const DefaultBackupDir = "backups"

const (
	filePrefix = "remotely-backup-"
	fileSuffix = ".zip"
)

// Manager snapshots and restores the registry data directory
type Manager struct {
	dataDir   string
	backupDir string
	now       func() time.Time
}

// NewManager creates a new backup manager for dataDir
func NewManager(dataDir string) *Manager {
	return &Manager{
		dataDir:   dataDir,
		backupDir: filepath.Join(dataDir, DefaultBackupDir),
		now:       time.Now,
	}
}

// Dir returns the directory holding the backups
func (m *Manager) Dir() string {
	return m.backupDir
}

// Create zips every file of the data directory except the backups themselves
// and quarantined registry files.
func (m *Manager) Create(message string) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := filePrefix + m.now().Format("20060102-150405")
	if message != "" {
		name += "-" + sanitize(message)
	}
	destPath := filepath.Join(m.backupDir, name+fileSuffix)

	zipFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	archive := zip.NewWriter(zipFile)
	walkErr := filepath.WalkDir(m.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == m.backupDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.Contains(d.Name(), ".corrupt-") || strings.Contains(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(m.dataDir, path)
		if err != nil {
			return err
		}
		return addFile(archive, path, filepath.ToSlash(rel))
	})

	closeErr := archive.Close()
	if err := zipFile.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if walkErr != nil || closeErr != nil {
		os.Remove(destPath)
		if walkErr != nil {
			return "", fmt.Errorf("failed to archive data directory: %w", walkErr)
		}
		return "", fmt.Errorf("failed to finalize backup: %w", closeErr)
	}

	return destPath, nil
}

func addFile(archive *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	writer, err := archive.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(writer, file)
	return err
}

// BackupInfo contains info about a backup
type BackupInfo struct {
	Name      string
	Path      string
	Size      int64
	Timestamp time.Time
}

// List returns the available backups, newest first
func (m *Manager) List() ([]BackupInfo, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []BackupInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []BackupInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Name:      entry.Name(),
			Path:      filepath.Join(m.backupDir, entry.Name()),
			Size:      info.Size(),
			Timestamp: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Name > backups[j].Name
		}
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// Resolve maps a bare backup name to its path in the backup directory.
// Anything containing a separator is returned unchanged.
func (m *Manager) Resolve(nameOrPath string) string {
	if filepath.Base(nameOrPath) == nameOrPath {
		return filepath.Join(m.backupDir, nameOrPath)
	}
	return nameOrPath
}

// Restore extracts a backup over the data directory
func (m *Manager) Restore(backupPath string) error {
	reader, err := zip.OpenReader(backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer reader.Close()

	root := filepath.Clean(m.dataDir) + string(os.PathSeparator)
	for _, file := range reader.File {
		path := filepath.Join(m.dataDir, filepath.FromSlash(file.Name))

		// Zip Slip
		if !strings.HasPrefix(path, root) {
			return fmt.Errorf("illegal file path in backup: %s", file.Name)
		}
		if file.FileInfo().IsDir() {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return err
		}
		if err := extract(file, path); err != nil {
			return fmt.Errorf("failed to restore %s: %w", file.Name, err)
		}
	}

	return nil
}

func extract(file *zip.File, path string) error {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Delete deletes a backup by file name
func (m *Manager) Delete(name string) error {
	if filepath.Base(name) != name || !strings.HasSuffix(name, fileSuffix) {
		return fmt.Errorf("invalid backup name: %s", name)
	}

	path := filepath.Join(m.backupDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("backup %s not found", name)
	}
	return os.Remove(path)
}

func sanitize(message string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, message)
}
