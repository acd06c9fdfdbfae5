package platform

import (
	"os"
	"path/filepath"

	"github.com/PottierLoic/Remotely/pkg/errors"
)

// Application identity, in reverse-domain order: com.remotely.app
const (
	Qualifier    = "com"
	Organization = "remotely"
	AppName      = "app"
)

// HostsFile is the file name the registry persists to.
const HostsFile = "hosts.json"

// DataDirEnv overrides the platform data directory when set.
const DataDirEnv = "REMOTELY_DATA_DIR"

// BundleID returns the reverse-domain application identifier.
func BundleID() string {
	return Qualifier + "." + Organization + "." + AppName
}

// DataDir returns the application-scoped data directory without creating it.
func DataDir() (string, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return filepath.Clean(dir), nil
	}

	dir, err := baseDataDir()
	if err != nil {
		return "", errors.WrapWithSuggestion(err, errors.ErrPathResolution, "platform.DataDir",
			"cannot determine the platform data directory",
			"Set "+DataDirEnv+" to a writable directory")
	}
	return dir, nil
}

// EnsureDir creates dir and any missing parents. Calling it on an existing
// directory is a no-op.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, errors.ErrDirectoryCreate, "platform.EnsureDir",
			"failed to create data directory "+dir)
	}
	return nil
}

// ResolveFile returns <data dir>/name, creating the data directory first.
func ResolveFile(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ResolveDataFile returns the path of hosts.json, creating its directory if needed.
func ResolveDataFile() (string, error) {
	return ResolveFile(HostsFile)
}

// Locator resolves the file a store reads and writes. It is called at the
// start of every store operation.
type Locator func() (string, error)

// FileIn returns a Locator for name inside dir. An empty dir means the
// platform data directory.
func FileIn(dir, name string) Locator {
	if dir == "" {
		return func() (string, error) { return ResolveFile(name) }
	}
	return func() (string, error) {
		if err := EnsureDir(dir); err != nil {
			return "", err
		}
		return filepath.Join(dir, name), nil
	}
}
