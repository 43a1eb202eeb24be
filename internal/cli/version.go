package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Set via ldflags
	commit    = "unknown"
	buildDate = "unknown"
)

// SetBuildInfo sets build information from ldflags
func SetBuildInfo(c, d string) {
	commit = c
	buildDate = d
}

func newVersionCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print version information. Use --full for detailed output including commit, build date, Go version, and dependencies.`,
		Run: func(cmd *cobra.Command, args []string) {
			runVersion(cmd.OutOrStdout(), full)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print detailed version information")
	return cmd
}

func runVersion(w io.Writer, full bool) {
	fmt.Fprintf(w, "zowe version %s\n", version)

	if full {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Commit:     %s\n", getCommit())
		fmt.Fprintf(w, "  Built:      %s\n", getBuildDate())
		fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
		fmt.Fprintf(w, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)

		if info, ok := debug.ReadBuildInfo(); ok && len(info.Deps) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "  Dependencies:")
			for _, dep := range info.Deps {
				if dep.Replace != nil {
					fmt.Fprintf(w, "    %s => %s %s\n", dep.Path, dep.Replace.Path, dep.Replace.Version)
				} else {
					fmt.Fprintf(w, "    %s %s\n", dep.Path, dep.Version)
				}
			}
		}
	}
}

func getCommit() string {
	if commit != "unknown" {
		return commit
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				if len(setting.Value) > 8 {
					return setting.Value[:8]
				}
				return setting.Value
			}
		}
	}
	return "unknown"
}

func getBuildDate() string {
	if buildDate != "unknown" {
		return buildDate
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				return setting.Value
			}
		}
	}
	return "unknown"
}
