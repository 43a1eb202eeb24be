// Package service registers the daemon with the platform's per-user
// service manager so it starts at login.
package service

import (
	"errors"
	"os"
	"time"

	"zowe.dev/go/zowe/internal/daemon"
)

const (
	// Name identifies the service to systemd and the task scheduler
	Name = "zowe-daemon"
	// Label identifies the launchd agent
	Label = "org.zowe.daemon"
)

// ServiceStatus represents the status of the installed service
type ServiceStatus struct {
	Installed bool          `json:"installed"`
	Running   bool          `json:"running"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Installer is implemented per platform
type Installer interface {
	Install() error
	Uninstall() error
	IsInstalled() bool
	Start() error
	Stop() error
	Status() (ServiceStatus, error)
}

var (
	// ErrNotInstalled is returned when the service is not installed
	ErrNotInstalled = errors.New("service not installed")
	// ErrAlreadyInstalled is returned when installing twice
	ErrAlreadyInstalled = errors.New("service already installed")
)

// executable returns the binary the service manager should launch
func executable(fallback string) string {
	exe, err := os.Executable()
	if err != nil || exe == "" {
		return fallback
	}
	return exe
}

// launchArgs are the arguments that put the binary in daemon mode
func launchArgs() []string {
	return []string{daemon.LaunchMarker}
}
