//go:build windows

package service

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"zowe.dev/go/zowe/internal/client"
)

type windowsInstaller struct {
	taskName string
	execPath string
}

// NewInstaller returns a task scheduler installer that starts the daemon
// at logon
func NewInstaller() Installer {
	return &windowsInstaller{
		taskName: Name,
		execPath: executable(`C:\Program Files\Zowe\zowe.exe`),
	}
}

func (i *windowsInstaller) Install() error {
	if i.IsInstalled() {
		return ErrAlreadyInstalled
	}

	cmd := exec.Command("schtasks", "/Create",
		"/TN", i.taskName,
		"/TR", fmt.Sprintf(`"%s" %s`, i.execPath, strings.Join(launchArgs(), " ")),
		"/SC", "ONLOGON",
		"/RL", "LIMITED",
		"/F",
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("create scheduled task: %w", err)
	}
	return nil
}

func (i *windowsInstaller) Uninstall() error {
	if !i.IsInstalled() {
		return ErrNotInstalled
	}

	i.Stop()

	if err := exec.Command("schtasks", "/Delete", "/TN", i.taskName, "/F").Run(); err != nil {
		return fmt.Errorf("delete scheduled task: %w", err)
	}
	return nil
}

func (i *windowsInstaller) IsInstalled() bool {
	return exec.Command("schtasks", "/Query", "/TN", i.taskName).Run() == nil
}

func (i *windowsInstaller) Start() error {
	if !i.IsInstalled() {
		return ErrNotInstalled
	}

	if err := exec.Command("schtasks", "/Run", "/TN", i.taskName).Run(); err != nil {
		return fmt.Errorf("run scheduled task: %w", err)
	}
	return nil
}

// Stop asks the daemon to shut down over its pipe; there is no signal to
// send a detached process on Windows
func (i *windowsInstaller) Stop() error {
	if !i.IsInstalled() {
		return ErrNotInstalled
	}

	c, err := client.Connect()
	if err != nil {
		return nil
	}
	defer c.Close()
	return c.Shutdown()
}

func (i *windowsInstaller) Status() (ServiceStatus, error) {
	status := ServiceStatus{}

	if !i.IsInstalled() {
		return status, nil
	}
	status.Installed = true

	c, err := client.Connect()
	if err != nil {
		return status, nil
	}
	defer c.Close()

	daemonStatus, err := c.Status()
	if err != nil {
		return status, nil
	}
	status.Running = true
	status.PID = daemonStatus.PID
	if !daemonStatus.StartTime.IsZero() {
		status.Uptime = time.Since(daemonStatus.StartTime)
	}
	return status, nil
}
