//go:build windows

package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// baseDataDir returns %APPDATA%\<organization>\<app>\data
func baseDataDir() (string, error) {
	appData, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate roaming app data: %w", err)
	}
	return filepath.Join(appData, Organization, AppName, "data"), nil
}
