package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// Version is the application version.
// This value is intended to be set at build time using ldflags.
// Example: go build -ldflags "-X github.com/xkilldash9x/wingman-cli/cmd.Version=1.0.0"
var Version = "0.1.0"

// newVersionCmd creates the `version` command. Besides the binary version it
// prints the pinned contract versions, which is what actually matters when
// two hosts disagree about an artifact.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wingman version and artifact contract versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wingman %s\n", Version)
			fmt.Fprintf(out, "  action catalog   %s\n", schemas.CatalogVersion)
			fmt.Fprintf(out, "  quality score    %s\n", schemas.QualityScoreVersion)
			fmt.Fprintf(out, "  regression case  %s\n", schemas.RegressionCaseContract)
			fmt.Fprintf(out, "  baseline         %s\n", schemas.BaselineContract)
			fmt.Fprintf(out, "  dataset meta     %s\n", schemas.DatasetMetaContract)
			fmt.Fprintf(out, "  judge rubric     %s\n", schemas.JudgeRubricVersion)
			return nil
		},
	}
}
