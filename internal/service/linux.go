//go:build linux

package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const systemdUserUnit = `[Unit]
Description=zowe daemon
Documentation=https://docs.zowe.org

[Service]
Type=simple
ExecStart=%s %s
Restart=on-failure
RestartSec=5
KillSignal=SIGTERM

[Install]
WantedBy=default.target
`

type linuxInstaller struct {
	unitPath string
	execPath string
}

// NewInstaller returns a systemd user unit installer
func NewInstaller() Installer {
	home, _ := os.UserHomeDir()
	return &linuxInstaller{
		unitPath: filepath.Join(home, ".config", "systemd", "user", Name+".service"),
		execPath: executable("/usr/local/bin/zowe"),
	}
}

func renderUnit(execPath string) string {
	return fmt.Sprintf(systemdUserUnit, execPath, strings.Join(launchArgs(), " "))
}

func systemctl(args ...string) *exec.Cmd {
	return exec.Command("systemctl", append([]string{"--user"}, args...)...)
}

func (i *linuxInstaller) Install() error {
	if i.IsInstalled() {
		return ErrAlreadyInstalled
	}

	if err := os.MkdirAll(filepath.Dir(i.unitPath), 0755); err != nil {
		return fmt.Errorf("create systemd user dir: %w", err)
	}

	if err := os.WriteFile(i.unitPath, []byte(renderUnit(i.execPath)), 0644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	if err := systemctl("daemon-reload").Run(); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w", err)
	}
	if err := systemctl("enable", Name).Run(); err != nil {
		return fmt.Errorf("systemctl enable: %w", err)
	}

	return nil
}

func (i *linuxInstaller) Uninstall() error {
	if !i.IsInstalled() {
		return ErrNotInstalled
	}

	i.Stop()
	systemctl("disable", Name).Run()

	if err := os.Remove(i.unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file: %w", err)
	}

	systemctl("daemon-reload").Run()
	return nil
}

func (i *linuxInstaller) IsInstalled() bool {
	_, err := os.Stat(i.unitPath)
	return err == nil
}

func (i *linuxInstaller) Start() error {
	if !i.IsInstalled() {
		return ErrNotInstalled
	}

	if err := systemctl("start", Name).Run(); err != nil {
		return fmt.Errorf("systemctl start: %w", err)
	}
	return nil
}

func (i *linuxInstaller) Stop() error {
	if !i.IsInstalled() {
		return ErrNotInstalled
	}

	if err := systemctl("stop", Name).Run(); err != nil {
		return fmt.Errorf("systemctl stop: %w", err)
	}
	return nil
}

func (i *linuxInstaller) Status() (ServiceStatus, error) {
	status := ServiceStatus{}

	if !i.IsInstalled() {
		return status, nil
	}
	status.Installed = true

	output, _ := systemctl("is-active", Name).Output()
	status.Running = strings.TrimSpace(string(output)) == "active"

	if status.Running {
		pidOutput, _ := systemctl("show", Name, "--property=MainPID", "--value").Output()
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidOutput))); err == nil {
			status.PID = pid
		}

		uptimeOutput, _ := systemctl("show", Name, "--property=ActiveEnterTimestamp", "--value").Output()
		if t, err := time.Parse("Mon 2006-01-02 15:04:05 MST", strings.TrimSpace(string(uptimeOutput))); err == nil {
			status.Uptime = time.Since(t)
		}
	}

	return status, nil
}
