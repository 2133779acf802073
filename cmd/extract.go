package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wingman-cli/internal/artifacts"
	"github.com/xkilldash9x/wingman-cli/internal/observability"
)

// newExtractCmd creates the `extract` command, the offline path over
// previously captured accessibility snapshots. No device is involved.
func newExtractCmd() *cobra.Command {
	var (
		artifactsDir string
		xmlGlob      string
		outDir       string
		prefix       string
		maxFiles     int
		nodeRows     bool
		packages     []string
	)

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Re-run perception over captured XML snapshots and export JSONL",
		Long: `Parses every captured accessibility XML under the artifacts directory and
exports one screens JSONL row per snapshot (screen type, quality score,
accessible strings), plus an optional per-node export. Useful for reworking
old captures after a parser change without touching a device.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if artifactsDir == "" {
				artifactsDir = cfg.Capture.ArtifactsDir
			}

			res, err := artifacts.RunExtraction(cmd.Context(), artifacts.ExtractConfig{
				ArtifactsDir:      artifactsDir,
				XMLGlob:           xmlGlob,
				OutputDir:         outDir,
				OutputPrefix:      prefix,
				MaxFiles:          maxFiles,
				IncludeNodeRows:   nodeRows,
				PackageAllowlist:  packages,
				MaxNodesPerScreen: 0,
			}, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Extracted %d snapshot(s)", res.Processed)
			if res.Failed > 0 {
				fmt.Fprintf(out, ", %d failed", res.Failed)
			}
			if res.SkippedByPackage > 0 {
				fmt.Fprintf(out, ", %d skipped by package", res.SkippedByPackage)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  screens: %s\n", res.ScreensPath)
			if res.NodesPath != "" {
				fmt.Fprintf(out, "  nodes:   %s\n", res.NodesPath)
			}
			fmt.Fprintf(out, "  summary: %s\n", res.SummaryPath)
			return nil
		},
	}

	extractCmd.Flags().StringVar(&artifactsDir, "artifacts-dir", "", "Directory holding captured XML snapshots (default: capture.artifacts_dir)")
	extractCmd.Flags().StringVar(&xmlGlob, "glob", "*.xml", "Glob matching snapshot files inside the artifacts directory")
	extractCmd.Flags().StringVar(&outDir, "out", "", "Output directory (default: <artifacts-dir>/offline_exports)")
	extractCmd.Flags().StringVar(&prefix, "prefix", "", "Filename prefix for the export files")
	extractCmd.Flags().IntVar(&maxFiles, "max-files", 0, "Stop after this many snapshots (0 = all)")
	extractCmd.Flags().BoolVar(&nodeRows, "nodes", false, "Also export one JSONL row per UI node")
	extractCmd.Flags().StringSliceVar(&packages, "package", nil, "Only include snapshots from these app packages")

	return extractCmd
}
