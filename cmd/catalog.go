package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// newCatalogCmd creates the `catalog` command, printing the fixed action
// table the decision policies choose from.
func newCatalogCmd() *cobra.Command {
	var asJSON bool

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the action catalog",
		Long: `Prints every action the agent can take, its target and message
requirements, and the screens it is valid on. The same table is served to
the model as the tool contract, so this is the authoritative list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			entries := schemas.Catalog()

			if asJSON {
				doc := map[string]any{
					"catalog_version": schemas.CatalogVersion,
					"actions":         entries,
				}
				data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(doc, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal catalog: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "Action catalog %s (%d actions)\n\n", schemas.CatalogVersion, len(entries))
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACTION\tTARGET\tMESSAGE\tSURFACES\tDESCRIPTION")
			for _, e := range entries {
				target := "-"
				if e.RequiresTarget {
					target = string(e.TargetKind)
				}
				message := "-"
				if e.RequiresMessage {
					message = "required"
				}
				surfaces := "any"
				if len(e.Surfaces) > 0 {
					names := make([]string, len(e.Surfaces))
					for i, s := range e.Surfaces {
						names[i] = string(s)
					}
					surfaces = strings.Join(names, ",")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ActionID, target, message, surfaces, e.Description)
			}
			return w.Flush()
		},
	}

	catalogCmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	return catalogCmd
}
