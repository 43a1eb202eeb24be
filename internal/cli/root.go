package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

// IOStreams are the standard streams of one command invocation
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// StdStreams returns the process streams
func StdStreams() IOStreams {
	return IOStreams{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr}
}

// exitCodeError carries a non-zero exit status without an error message
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// NewRootCmd builds a fresh command tree. Daemon sessions execute
// concurrently, so every invocation gets its own tree and flag values.
func NewRootCmd(streams IOStreams) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zowe",
		Short: "Command line interface for z/OS",
		Long: `zowe - Command line interface for z/OS

Run with --daemon to keep a resident server that executes commands on
behalf of lightweight clients. The daemon listens on a per-user socket
(or named pipe on Windows), overridable with ZOWE_DAEMON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetIn(streams.In)
	rootCmd.SetOut(streams.Out)
	rootCmd.SetErr(streams.ErrOut)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newDaemonCmd())

	return rootCmd
}

// Execute runs one command line from the process arguments
func Execute() error {
	return NewRootCmd(StdStreams()).Execute()
}

// Run executes args on behalf of a daemon client and returns the exit code.
// Errors are written to streams.ErrOut the way main reports them.
func Run(ctx context.Context, args []string, streams IOStreams) int {
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	cmd := NewRootCmd(streams)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		var exitErr *exitCodeError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(streams.ErrOut, "Error: %v\n", err)
		}
	}
	return ExitCode(err)
}

// ExitCode maps a command error to a process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

// IsExitCode reports whether err only carries an exit status
func IsExitCode(err error) bool {
	var exitErr *exitCodeError
	return errors.As(err, &exitErr)
}
