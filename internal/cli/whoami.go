package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"zowe.dev/go/zowe/internal/config"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user and daemon address",
		Long: `Display the user this process runs as and the daemon address
derived from it. Does not require the daemon to be running.

Examples:
  zowe whoami
  ZOWE_DAEMON=/tmp/zowe.sock zowe whoami`,
		RunE: runWhoami,
	}
}

func runWhoami(cmd *cobra.Command, args []string) error {
	user, err := config.CurrentUser()
	if err != nil {
		return err
	}
	addr, err := config.ResolveAddress()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "User:    %s\n", user)
	fmt.Fprintf(w, "Daemon:  %s (%s)\n", addr.Value, addr.Kind)
	return nil
}
