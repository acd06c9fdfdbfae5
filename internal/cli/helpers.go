package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// LogVerbose prints verbose output if verbose mode is enabled
func LogVerbose(format string, args ...interface{}) {
	if IsVerbose() {
		fmt.Fprintln(os.Stderr, color.HiBlackString("» %s", fmt.Sprintf(format, args...)))
	}
}

// Success prints a success message
func Success(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, color.GreenString("✓"), fmt.Sprintf(format, args...))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, color.YellowString("!"), fmt.Sprintf(format, args...))
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
