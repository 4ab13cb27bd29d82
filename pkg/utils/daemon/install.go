package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	unitName = "smuseq.service"
	unitPath = "/etc/systemd/system/" + unitName
)

// systemctl is replaced in tests.
var systemctl = func(args ...string) error {
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

const unitTemplate = `[Unit]
Description=smuseq bias/pulse sequencing daemon
After=network.target

[Service]
Type=simple
ExecStart=/path/to/smuseq daemon --config=CONFIG --daemon-socket=SOCKET
Restart=on-failure
# SIGTERM parks every channel at 0 V before exit.
KillSignal=SIGTERM
TimeoutStopSec=15

[Install]
WantedBy=multi-user.target
`

// Unit renders the systemd unit for the given binary and paths.
func Unit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"/path/to/smuseq", exePath,
		"CONFIG", configPath,
		"SOCKET", socketPath,
	).Replace(unitTemplate)
}

func Install(configPath, socketPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	err = os.MkdirAll(filepath.Dir(unitPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	// warn if the file already exists
	_, err = os.Stat(unitPath)
	if err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	logrus.Infof("writing systemd unit to %s", unitPath)
	err = os.WriteFile(unitPath, []byte(Unit(exePath, configPath, socketPath)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting smuseq")

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	if err := systemctl("enable", "--now", unitName); err != nil {
		return fmt.Errorf("failed to enable %s: %w", unitName, err)
	}

	return nil
}
