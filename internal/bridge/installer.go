package bridge

import (
	"os/exec"
	"runtime"
)

// OSInstaller hands files and links to the desktop opener.
type OSInstaller struct{}

func (OSInstaller) Install(path string) error { return openWithOS(path) }

func (OSInstaller) Open(url string) error { return openWithOS(url) }

func openWithOS(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", target)
	case "darwin":
		cmd = exec.Command("open", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}
