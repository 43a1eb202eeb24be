package daemon

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"zowe.dev/go/zowe/internal/config"
)

// LaunchMarker is the undocumented argument that starts the persistent
// listener instead of running a single command.
const LaunchMarker = "--daemon"

// markerIndex is the only argument position scanned for LaunchMarker:
// the first entry after the program and script slots.
const markerIndex = 2

// ErrAlreadyDecided is returned when Decide is called more than once
var ErrAlreadyDecided = errors.New("mode already decided for this process")

// StartupParameters is the raw argument list in launcher layout:
// program, script, then user arguments.
type StartupParameters []string

// NewStartupParameters captures argv in launcher layout. A Go binary has
// no separate script, so the resolved executable fills that slot.
func NewStartupParameters(argv []string) StartupParameters {
	program := ""
	if len(argv) > 0 {
		program = argv[0]
	}

	script, err := os.Executable()
	if err != nil {
		script = program
	}

	params := make(StartupParameters, 0, len(argv)+1)
	params = append(params, program, script)
	if len(argv) > 1 {
		params = append(params, argv[1:]...)
	}
	return params
}

// UserArgs returns the arguments after the program and script slots
func (p StartupParameters) UserArgs() []string {
	if len(p) <= markerIndex {
		return nil
	}
	return append([]string(nil), p[markerIndex:]...)
}

// ModeDecision records whether this process is a daemon launch. Address and
// Owner are only set when IsDaemon is true.
type ModeDecision struct {
	IsDaemon bool
	Address  *config.DaemonAddress
	Owner    string
}

// identityProbe reports the process owner and the daemon address
type identityProbe func() (string, config.DaemonAddress, error)

var decided atomic.Bool

// Decide inspects the startup parameters once per process.
//
// Matching is a substring search on the third entry, so "--daemonize" or
// "x--daemon" also start the listener.
func Decide(params StartupParameters) (ModeDecision, error) {
	if !decided.CompareAndSwap(false, true) {
		return ModeDecision{}, ErrAlreadyDecided
	}
	return decide(params, probeProcessIdentity)
}

func decide(params StartupParameters, probe identityProbe) (ModeDecision, error) {
	if len(params) <= markerIndex || !strings.Contains(params[markerIndex], LaunchMarker) {
		return ModeDecision{}, nil
	}

	owner, addr, err := probe()
	if err != nil {
		return ModeDecision{}, fmt.Errorf("resolve daemon identity: %w", err)
	}

	return ModeDecision{
		IsDaemon: true,
		Address:  &addr,
		Owner:    owner,
	}, nil
}

func probeProcessIdentity() (string, config.DaemonAddress, error) {
	owner, err := config.CurrentUser()
	if err != nil {
		return "", config.DaemonAddress{}, err
	}

	addr, err := config.ResolveAddress()
	if err != nil {
		return "", config.DaemonAddress{}, err
	}

	return owner, addr, nil
}
