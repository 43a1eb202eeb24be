//go:build darwin

package service

import (
	"fmt"
	"html"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const launchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
%s    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>StandardOutPath</key>
    <string>%s</string>
    <key>StandardErrorPath</key>
    <string>%s</string>
</dict>
</plist>
`

type darwinInstaller struct {
	plistPath string
	logPath   string
	execPath  string
}

// NewInstaller returns a launchd agent installer
func NewInstaller() Installer {
	home, _ := os.UserHomeDir()
	return &darwinInstaller{
		plistPath: filepath.Join(home, "Library", "LaunchAgents", Label+".plist"),
		logPath:   filepath.Join(home, "Library", "Logs", "zowe", "daemon.log"),
		execPath:  executable("/usr/local/bin/zowe"),
	}
}

func renderPlist(execPath, logPath string) string {
	var args strings.Builder
	for _, arg := range launchArgs() {
		fmt.Fprintf(&args, "        <string>%s</string>\n", html.EscapeString(arg))
	}
	log := html.EscapeString(logPath)
	return fmt.Sprintf(launchAgentPlist, Label, html.EscapeString(execPath), args.String(), log, log)
}

func (i *darwinInstaller) Install() error {
	if i.IsInstalled() {
		return ErrAlreadyInstalled
	}

	if err := os.MkdirAll(filepath.Dir(i.plistPath), 0755); err != nil {
		return fmt.Errorf("create LaunchAgents dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(i.logPath), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	if err := os.WriteFile(i.plistPath, []byte(renderPlist(i.execPath, i.logPath)), 0644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	return nil
}

func (i *darwinInstaller) Uninstall() error {
	if !i.IsInstalled() {
		return ErrNotInstalled
	}

	i.Stop()

	if err := os.Remove(i.plistPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

func (i *darwinInstaller) IsInstalled() bool {
	_, err := os.Stat(i.plistPath)
	return err == nil
}

func (i *darwinInstaller) Start() error {
	if !i.IsInstalled() {
		return ErrNotInstalled
	}

	if err := exec.Command("launchctl", "load", i.plistPath).Run(); err != nil {
		return fmt.Errorf("launchctl load: %w", err)
	}
	return nil
}

func (i *darwinInstaller) Stop() error {
	if !i.IsInstalled() {
		return ErrNotInstalled
	}

	// unload fails when the agent is not loaded
	exec.Command("launchctl", "unload", i.plistPath).Run()
	return nil
}

func (i *darwinInstaller) Status() (ServiceStatus, error) {
	status := ServiceStatus{}

	if !i.IsInstalled() {
		return status, nil
	}
	status.Installed = true

	output, err := exec.Command("launchctl", "list", Label).Output()
	if err != nil {
		return status, nil
	}

	for _, line := range strings.Split(string(output), "\n") {
		if !strings.Contains(line, `"PID"`) {
			continue
		}
		fields := strings.Fields(strings.Trim(strings.TrimSpace(line), ";"))
		if len(fields) >= 3 {
			if pid, err := strconv.Atoi(fields[2]); err == nil {
				status.PID = pid
				status.Running = true
			}
		}
	}

	if status.PID > 0 {
		psOutput, err := exec.Command("ps", "-o", "lstart=", "-p", strconv.Itoa(status.PID)).Output()
		if err == nil {
			if t, err := time.Parse("Mon Jan 2 15:04:05 2006", strings.TrimSpace(string(psOutput))); err == nil {
				status.Uptime = time.Since(t)
			}
		}
	}

	return status, nil
}
