package interactive

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// OpenPDF opens path in the operating system's default PDF viewer.
func OpenPDF(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("PDF file not found: %w", err)
	}
	name, args := viewerCommand(runtime.GOOS, path)
	if out, err := exec.Command(name, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

func viewerCommand(goos, path string) (string, []string) {
	switch goos {
	case "windows":
		return "cmd", []string{"/c", "start", "", path}
	case "darwin":
		return "open", []string{path}
	default:
		return "xdg-open", []string{path}
	}
}
