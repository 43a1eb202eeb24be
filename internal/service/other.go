//go:build !linux && !darwin && !windows

package service

import (
	"fmt"
	"runtime"
)

type unsupportedInstaller struct{}

// NewInstaller returns an installer that reports the platform as unsupported
func NewInstaller() Installer {
	return unsupportedInstaller{}
}

func (unsupportedInstaller) err() error {
	return fmt.Errorf("service install is not supported on %s", runtime.GOOS)
}

func (u unsupportedInstaller) Install() error { return u.err() }
func (u unsupportedInstaller) Uninstall() error { return u.err() }
func (unsupportedInstaller) IsInstalled() bool { return false }
func (u unsupportedInstaller) Start() error { return u.err() }
func (u unsupportedInstaller) Stop() error { return u.err() }
func (unsupportedInstaller) Status() (ServiceStatus, error) { return ServiceStatus{}, nil }
