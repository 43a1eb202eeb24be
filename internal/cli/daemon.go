package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zowe.dev/go/zowe/internal/client"
	"zowe.dev/go/zowe/internal/config"
	"zowe.dev/go/zowe/internal/daemon"
	"zowe.dev/go/zowe/internal/service"
)

func newDaemonCmd() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon management commands",
		Long: `Control the resident zowe daemon.

The daemon is started with 'zowe --daemon' and serves commands for
clients of the same user over a local socket or named pipe.`,
	}

	daemonCmd.AddCommand(newDaemonStartCmd())
	daemonCmd.AddCommand(newDaemonStopCmd())
	daemonCmd.AddCommand(newDaemonStatusCmd())
	daemonCmd.AddCommand(newDaemonLogsCmd())
	daemonCmd.AddCommand(newDaemonExecCmd())
	daemonCmd.AddCommand(newDaemonAddressCmd())
	daemonCmd.AddCommand(newDaemonInstallCmd())
	daemonCmd.AddCommand(newDaemonUninstallCmd())

	return daemonCmd
}

func newDaemonStartCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start daemon in background",
		Long: `Start the daemon in the background.

The daemon will continue running after this command exits. Its output is
written to ~/.zowe/daemon.log. Use 'zowe daemon status' to check on it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStart(cmd, wait)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the daemon to bind")
	return cmd
}

func runDaemonStart(cmd *cobra.Command, wait time.Duration) error {
	w := cmd.OutOrStdout()

	if client.IsRunning() {
		fmt.Fprintln(w, "Daemon is already running.")
		return nil
	}

	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("get paths: %w", err)
	}
	if err := os.MkdirAll(paths.ConfigDir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable: %w", err)
	}

	logFile, err := os.OpenFile(paths.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	daemonProc := exec.Command(exe, daemon.LaunchMarker)
	daemonProc.Stdout = logFile
	daemonProc.Stderr = logFile
	detach(daemonProc)

	if err := daemonProc.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- daemonProc.Wait()
	}()

	timeout := time.After(wait)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon failed to start: %w (see %s)", err, paths.LogFile)
			}
			return fmt.Errorf("daemon exited unexpectedly (see %s)", paths.LogFile)

		case <-ticker.C:
			if client.IsRunning() {
				fmt.Fprintf(w, "Daemon started (PID %d).\n", daemonProc.Process.Pid)
				fmt.Fprintln(w, "Use 'zowe daemon status' for details.")
				return nil
			}

		case <-timeout:
			fmt.Fprintln(w, "Timeout waiting for daemon to start.")
			fmt.Fprintln(w, "The daemon process may still be running in the background.")
			return nil
		}
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE:  runDaemonStop,
	}
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	c, err := client.Connect()
	if err != nil {
		fmt.Fprintln(w, "Daemon is not running.")
		return nil
	}
	defer c.Close()

	if err := c.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	for i := 0; i < 30; i++ {
		if !client.IsRunning() {
			fmt.Fprintln(w, "Daemon stopped.")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(w, "Daemon did not stop in time.")
	return nil
}

func newDaemonStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStatus(cmd, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func runDaemonStatus(cmd *cobra.Command, asJSON bool) error {
	w := cmd.OutOrStdout()

	c, err := client.Connect()
	if err != nil {
		fmt.Fprintln(w, "Daemon is not running.")
		if svc, err := service.NewInstaller().Status(); err == nil && svc.Installed {
			fmt.Fprintln(w, "The daemon service is installed; it starts at next login.")
		}
		return nil
	}
	defer c.Close()

	status, err := c.Status()
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	if asJSON {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	printStatus(w, status)
	return nil
}

func printStatus(w io.Writer, status *daemon.Status) {
	fmt.Fprintln(w, "Daemon Status")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  State:       %s\n", status.State)
	fmt.Fprintf(w, "  PID:         %d\n", status.PID)
	fmt.Fprintf(w, "  Uptime:      %s\n", status.Uptime)
	fmt.Fprintf(w, "  Owner:       %s\n", status.Owner)
	fmt.Fprintf(w, "  Address:     %s\n", status.Address.Value)
	fmt.Fprintf(w, "  Connections: %d/%d active\n", status.Limiter.CurrentConnections, status.Limiter.MaxConnections)

	if m := status.Metrics; m != nil {
		fmt.Fprintf(w, "  Requests:    %d served, %d failed\n", m.Counters.RequestsServed, m.Counters.RequestErrors)
		fmt.Fprintf(w, "  Latency:     avg %.1fms, p95 %.1fms\n", m.Latency.AvgMs, m.Latency.P95Ms)

		if len(m.RequestsByType) > 0 {
			methods := make([]string, 0, len(m.RequestsByType))
			for method := range m.RequestsByType {
				methods = append(methods, method)
			}
			sort.Strings(methods)

			fmt.Fprintln(w)
			fmt.Fprintln(w, "  By method:")
			for _, method := range methods {
				fmt.Fprintf(w, "    %-10s %d\n", method, m.RequestsByType[method])
			}
		}
	}
}

func newDaemonLogsCmd() *cobra.Command {
	var level string
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log entries",
		Long: `Show log entries buffered by the running daemon.

Examples:
  zowe daemon logs
  zowe daemon logs --level warn --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonLogs(cmd, level, limit)
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "minimum level (debug, info, warn, error)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of entries")
	return cmd
}

func runDaemonLogs(cmd *cobra.Command, level string, limit int) error {
	c, err := client.Connect()
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.Logs(strings.ToUpper(level), limit)
	if err != nil {
		return fmt.Errorf("get logs: %w", err)
	}

	w := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintln(w, formatLogEntry(e))
	}
	return nil
}

func formatLogEntry(e daemon.LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Level, e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

func newDaemonExecCmd() *cobra.Command {
	var withStdin bool

	cmd := &cobra.Command{
		Use:   "exec -- <command> [args...]",
		Short: "Run a command inside the daemon",
		Long: `Run a command line inside the running daemon and print its output.

The exit status of the command becomes the exit status of this process.

Examples:
  zowe daemon exec -- version
  echo data | zowe daemon exec --stdin -- some command`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonExec(cmd, args, withStdin)
		},
	}
	cmd.Flags().BoolVar(&withStdin, "stdin", false, "forward standard input to the command")
	// Flags after the command name belong to the command
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runDaemonExec(cmd *cobra.Command, args []string, withStdin bool) error {
	var stdin []byte
	if withStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		stdin = data
	}

	c, err := client.Connect()
	if err != nil {
		if errors.Is(err, client.ErrDaemonNotRunning) {
			return fmt.Errorf("%w. Start it with 'zowe daemon start'", client.ErrDaemonNotRunning)
		}
		return err
	}
	defer c.Close()
	c.SetTimeout(0)

	result, err := c.Exec(args, stdin)
	if err != nil {
		return err
	}

	cmd.OutOrStdout().Write(result.Stdout)
	cmd.ErrOrStderr().Write(result.Stderr)

	if result.ExitCode != 0 {
		return &exitCodeError{code: result.ExitCode}
	}
	return nil
}

func newDaemonAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the daemon address",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := config.ResolveAddress()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr.Value)
			return nil
		},
	}
}

func newDaemonInstallCmd() *cobra.Command {
	var noStart bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Start the daemon at login",
		Long: `Register the daemon with the user service manager (systemd on Linux,
launchd on macOS, Task Scheduler on Windows) and start it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonInstall(cmd, service.NewInstaller(), !noStart)
		},
	}
	cmd.Flags().BoolVar(&noStart, "no-start", false, "register without starting")
	return cmd
}

func runDaemonInstall(cmd *cobra.Command, installer service.Installer, start bool) error {
	w := cmd.OutOrStdout()

	if err := installer.Install(); err != nil {
		if errors.Is(err, service.ErrAlreadyInstalled) {
			fmt.Fprintln(w, "Daemon service is already installed.")
			return nil
		}
		return err
	}
	fmt.Fprintln(w, "Daemon service installed.")

	if !start {
		return nil
	}
	if client.IsRunning() {
		fmt.Fprintln(w, "A daemon is already running; the service takes over at next login.")
		return nil
	}
	if err := installer.Start(); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	fmt.Fprintln(w, "Daemon service started.")
	return nil
}

func newDaemonUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Stop starting the daemon at login",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonUninstall(cmd, service.NewInstaller())
		},
	}
}

func runDaemonUninstall(cmd *cobra.Command, installer service.Installer) error {
	w := cmd.OutOrStdout()

	if err := installer.Uninstall(); err != nil {
		if errors.Is(err, service.ErrNotInstalled) {
			fmt.Fprintln(w, "Daemon service is not installed.")
			return nil
		}
		return err
	}
	fmt.Fprintln(w, "Daemon service removed.")
	return nil
}
