//go:build darwin

package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// baseDataDir returns ~/Library/Application Support/<bundle id>
func baseDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "Library", "Application Support", BundleID()), nil
}
