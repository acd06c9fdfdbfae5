package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/PottierLoic/Remotely/internal/registry"
	"github.com/PottierLoic/Remotely/internal/storage"
	jsonStore "github.com/PottierLoic/Remotely/internal/storage/json"
	"github.com/PottierLoic/Remotely/internal/storage/sqlite"
	yamlStore "github.com/PottierLoic/Remotely/internal/storage/yaml"
	"github.com/PottierLoic/Remotely/pkg/errors"
)

func openRegistry() (*registry.Registry, error) {
	reg, err := configManager.OpenRegistry()
	if err != nil {
		return nil, err
	}
	if path, err := reg.Path(); err == nil {
		LogVerbose("Using registry: %s", path)
	}
	return reg, nil
}

// fileStore opens a standalone store over path for import and export. An
// empty format is inferred from the file extension.
func fileStore(path, format string) (storage.HostStore, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = storage.DriverYAML
		case ".db", ".sqlite":
			format = storage.DriverSQLite
		default:
			format = storage.DriverJSON
		}
	}

	locate := func() (string, error) { return path, nil }
	switch format {
	case storage.DriverJSON:
		return jsonStore.NewStore(locate), nil
	case storage.DriverYAML:
		return yamlStore.NewStore(locate), nil
	case storage.DriverSQLite:
		return sqlite.NewStore(locate), nil
	default:
		return nil, errors.New(errors.ErrInvalidInput, "cli.fileStore", fmt.Sprintf("unknown format %q", format)).
			WithSuggestion("Use one of: " + strings.Join(storage.Drivers, ", "))
	}
}

// readPassword reads a secret without echo when in is a terminal, or a single
// line otherwise.
func readPassword(in io.Reader, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
