package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modelrunner/internal/httpapi"
	"modelrunner/internal/manager"
	"modelrunner/pkg/types"
)

func newModelsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the registry describes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := manager.New(managerConfig(a.cfg, a.log))
			mgr.LoadRegistry()
			entries := mgr.Entries()
			out := types.ModelsResponse{Models: make([]types.Model, 0, len(entries))}
			for _, e := range entries {
				out.Models = append(out.Models, httpapi.ModelInfo(e, nil))
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tBACKEND\tMODALITIES\tLOCATION")
			for _, m := range out.Models {
				loc := m.Path
				if loc == "" {
					loc = m.Endpoint
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, orDash(m.Backend), orDash(strings.Join(m.Modalities, ",")), orDash(loc))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
