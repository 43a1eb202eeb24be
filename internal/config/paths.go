package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
)

// DaemonEnvVar overrides the daemon address when set
const DaemonEnvVar = "ZOWE_DAEMON"

// ConfigEnvVar overrides the daemon config file location
const ConfigEnvVar = "ZOWE_DAEMON_CONFIG"

// AddressKind identifies which local IPC mechanism an address refers to
type AddressKind string

const (
	KindUnixPath  AddressKind = "unix-path"
	KindNamedPipe AddressKind = "named-pipe"
)

// pipePrefix is the Windows named pipe namespace
const pipePrefix = `\\.\pipe\`

// DaemonAddress is the local IPC endpoint of the daemon. Value holds the
// socket path for KindUnixPath and the full pipe name for KindNamedPipe.
type DaemonAddress struct {
	Kind  AddressKind `json:"kind"`
	Value string      `json:"value"`
}

// Network returns the network name used to listen on or dial the address
func (a DaemonAddress) Network() string {
	if a.Kind == KindNamedPipe {
		return "pipe"
	}
	return "unix"
}

func (a DaemonAddress) String() string {
	return a.Value
}

// Resolve computes the daemon address for a platform. It performs no I/O;
// a malformed override is returned as-is and only fails at bind time.
func Resolve(platform, homeDir, username, override string) DaemonAddress {
	if platform == "windows" {
		if override != "" {
			return DaemonAddress{Kind: KindNamedPipe, Value: pipePrefix + override}
		}
		return DaemonAddress{Kind: KindNamedPipe, Value: pipePrefix + username + `\ZoweDaemon`}
	}

	if override != "" {
		return DaemonAddress{Kind: KindUnixPath, Value: override}
	}
	return DaemonAddress{Kind: KindUnixPath, Value: filepath.Join(homeDir, ".zowe", "daemon.sock")}
}

// ResolveAddress resolves the daemon address for the running process
func ResolveAddress() (DaemonAddress, error) {
	home, err := os.UserHomeDir()
	if err != nil && runtime.GOOS != "windows" {
		return DaemonAddress{}, fmt.Errorf("get home directory: %w", err)
	}

	username, err := CurrentUser()
	if err != nil {
		return DaemonAddress{}, err
	}

	return Resolve(runtime.GOOS, home, username, os.Getenv(DaemonEnvVar)), nil
}

// CurrentUser returns the login name of the process owner. On Windows the
// DOMAIN\ prefix reported by os/user is dropped.
func CurrentUser() (string, error) {
	u, err := user.Current()
	if err == nil && u.Username != "" {
		name := u.Username
		if i := strings.LastIndex(name, `\`); i >= 0 {
			name = name[i+1:]
		}
		return name, nil
	}

	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}

	if err == nil {
		err = fmt.Errorf("empty username")
	}
	return "", fmt.Errorf("get current user: %w", err)
}

// Paths holds the on-disk locations used by the daemon
type Paths struct {
	ConfigDir  string // ~/.zowe
	ConfigFile string // ~/.zowe/daemon.toml
	LogFile    string // ~/.zowe/daemon.log, written by 'daemon start'
}

// GetPaths returns the daemon paths for the current user
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".zowe")
	configFile := filepath.Join(configDir, "daemon.toml")
	if env := os.Getenv(ConfigEnvVar); env != "" {
		configFile = env
	}

	return &Paths{
		ConfigDir:  configDir,
		ConfigFile: configFile,
		LogFile:    filepath.Join(configDir, "daemon.log"),
	}, nil
}

// LockFile returns the advisory lock path guarding a unix socket address
func LockFile(addr DaemonAddress) string {
	return addr.Value + ".lock"
}
