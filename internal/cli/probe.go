package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"modelrunner/internal/runner"
)

func newProbeCmd(a *app) *cobra.Command {
	var apiKeyEnv string
	cmd := &cobra.Command{
		Use:     "probe <base-url>",
		Short:   "Check that a llama.cpp server answers its health probe",
		Example: "  modelrunner probe http://127.0.0.1:8081",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if apiKeyEnv != "" {
				key = os.Getenv(apiKeyEnv)
			}
			r := runner.NewLlamaHTTP(runner.Capabilities{ID: "probe", Text: true}, runner.HTTPOptions{
				BaseURL:      args[0],
				APIKey:       key,
				ProbeTimeout: time.Duration(a.cfg.ProbeTimeoutMs) * time.Millisecond,
				Logger:       a.log,
			})
			defer func() { _ = r.Unload() }()
			start := time.Now()
			r.Init(cmd.Context())
			if !r.Ready() {
				return fmt.Errorf("%s not ready: %w", r.BaseURL(), r.LastError())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ready %s (%dms)\n", r.BaseURL(), time.Since(start).Milliseconds())
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKeyEnv, "api-key-env", "", "Environment variable holding a bearer token")
	return cmd
}
