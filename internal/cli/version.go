package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"modelrunner/internal/runner"
)

// Version is set at link time with -ldflags "-X modelrunner/internal/cli.Version=...".
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// The version does not depend on configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			inproc := "not built"
			if runner.LlamaBuilt {
				inproc = "built"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "modelrunner %s %s/%s (in-process llama: %s)\n", Version, runtime.GOOS, runtime.GOARCH, inproc)
			return nil
		},
	}
}

// newCompletionCmd emits shell completion scripts for root.
func newCompletionCmd(root *cobra.Command) *cobra.Command {
	completionCmd := &cobra.Command{
		Use:               "completion",
		Short:             "Generate the autocompletion script for the specified shell",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error {
		return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
	}})
	return completionCmd
}
