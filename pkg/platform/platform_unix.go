//go:build !windows && !darwin

package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// baseDataDir follows the XDG base directory layout: $XDG_DATA_HOME/<app>, falling
// back to ~/.local/share/<app>. Relative XDG values are ignored.
func baseDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, AppName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", AppName), nil
}
