package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/judge"
	"github.com/xkilldash9x/wingman-cli/internal/observability"
	"github.com/xkilldash9x/wingman-cli/internal/regression"
	"github.com/xkilldash9x/wingman-cli/internal/store"
)

// newRegressCmd creates the `regress` command. Exit status: 0 for a clean
// pass, 1 for expectation failures or drift, 2 when the pass itself could
// not run.
func newRegressCmd() *cobra.Command {
	var (
		datasetPath   string
		baselinePath  string
		writeBaseline bool
		useJudge      bool
		judgeBudget   int
	)

	regressCmd := &cobra.Command{
		Use:   "regress",
		Short: "Replay a recorded dataset and compare decisions against the baseline",
		Long: `Replays every case of a recorded dataset through the decision engine and
checks per-case expectations. With a baseline, any changed decision is
reported as drift; with --write-baseline, the pass's decisions become the new
accepted snapshot instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			runCfg := *cfg
			if cmd.Flags().Changed("judge") {
				runCfg.Judge.Enabled = useJudge
			}
			if cmd.Flags().Changed("budget") {
				runCfg.Judge.MaxCalls = judgeBudget
			}
			if err := runCfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if datasetPath == "" {
				datasetPath = filepath.Join(runCfg.Regression.CasesDir, "cases.jsonl")
			}
			if baselinePath == "" {
				baselinePath = runCfg.Regression.BaselinePath
			}

			return runRegress(ctx, logger, &runCfg, datasetPath, baselinePath, writeBaseline, cmd.OutOrStdout())
		},
	}

	regressCmd.Flags().StringVar(&datasetPath, "dataset", "", "Path to the cases.jsonl file (default: <regression.cases_dir>/cases.jsonl)")
	regressCmd.Flags().StringVar(&baselinePath, "baseline", "", "Path to the baseline file (default: regression.baseline_path)")
	regressCmd.Flags().BoolVar(&writeBaseline, "write-baseline", false, "Accept this pass's decisions as the new baseline instead of comparing")
	regressCmd.Flags().BoolVar(&useJudge, "judge", false, "Score replayed decisions with the LLM judge (overrides config)")
	regressCmd.Flags().IntVar(&judgeBudget, "budget", 0, "Maximum judge model calls for this pass (overrides config)")

	regressCmd.AddCommand(newRegressBuildCmd())
	return regressCmd
}

// runRegress contains the core, testable logic for one regression pass.
func runRegress(ctx context.Context, logger *zap.Logger, cfg *config.Config, datasetPath, baselinePath string, writeBaseline bool, out io.Writer) error {
	ds, err := regression.LoadDataset(datasetPath)
	if err != nil {
		return &codedError{code: 2, err: err}
	}

	var client schemas.LLMClient
	if cfg.Decision.Mode == config.ModeLLM {
		client, err = newLLMClient(ctx, cfg.Decision.LLM, logger)
		if err != nil {
			return &codedError{code: 2, err: err}
		}
		defer client.Close()
	}

	var j *judge.Judge
	if cfg.Judge.Enabled {
		judgeClient, err := newLLMClient(ctx, judgeModelConfig(cfg.Judge), logger)
		if err != nil {
			return &codedError{code: 2, err: err}
		}
		defer judgeClient.Close()

		cache, err := judge.OpenCache(cfg.Judge.CachePath)
		if err != nil {
			return &codedError{code: 2, err: err}
		}
		j = judge.New(judgeClient, cfg.Judge, cache, logger)
	}

	runner, err := regression.NewRunner(cfg, client, j, logger)
	if err != nil {
		return &codedError{code: 2, err: err}
	}

	// A missing baseline only matters when comparing against it. Any other
	// load failure is fatal either way.
	var baseline *schemas.Baseline
	if !writeBaseline {
		baseline, err = regression.LoadBaseline(baselinePath)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return &codedError{code: 2, err: err}
			}
			baseline = nil
			logger.Warn("No baseline found; drift will not be checked", zap.String("path", baselinePath))
			fmt.Fprintf(out, "Warning: no baseline at %s; run with --write-baseline to create one.\n", baselinePath)
		}
	}

	report, err := runner.Run(ctx, ds, baseline)
	if err != nil {
		return &codedError{code: 2, err: err}
	}
	report.BaselinePath = baselinePath

	if writeBaseline {
		nb, err := runner.NewBaseline(report)
		if err != nil {
			return &codedError{code: 2, err: fmt.Errorf("cannot write baseline: %w", err)}
		}
		if err := regression.WriteBaseline(baselinePath, nb); err != nil {
			return &codedError{code: 2, err: err}
		}
		fmt.Fprintf(out, "Baseline written: %s (%d entries)\n", baselinePath, len(nb.Entries))

		if cfg.Store.Enabled {
			if err := persistBaseline(cfg, nb, logger); err != nil {
				logger.Error("Failed to persist baseline to store", zap.Error(err))
			}
		}
	}

	printRegressReport(out, report, baseline != nil)

	if report.Errored > 0 {
		return &codedError{code: 2, err: fmt.Errorf("%d case(s) errored", report.Errored)}
	}
	if report.Failed > 0 || len(report.Drifts) > 0 {
		return &codedError{code: 1, err: fmt.Errorf("%d failure(s), %d drift(s)", report.Failed, len(report.Drifts))}
	}
	return nil
}

func printRegressReport(out io.Writer, report *schemas.RunReport, compared bool) {
	fmt.Fprintf(out, "\nRegression: %d cases, %d passed, %d failed, %d errored",
		report.Cases, report.Passed, report.Failed, report.Errored)
	if report.JudgeSkipped > 0 {
		fmt.Fprintf(out, ", %d judge_skipped", report.JudgeSkipped)
	}
	fmt.Fprintln(out)

	for _, res := range report.Results {
		if res.Err != "" {
			fmt.Fprintf(out, "  ERROR %s: %s\n", res.CaseID, res.Err)
			continue
		}
		for _, f := range res.ExpectationFailures {
			fmt.Fprintf(out, "  FAIL  %s: %s\n", res.CaseID, f)
		}
	}

	if !compared {
		return
	}
	if len(report.Drifts) == 0 {
		fmt.Fprintln(out, "No drift against baseline.")
		return
	}
	fmt.Fprintf(out, "Drift: %d case(s) changed\n", len(report.Drifts))
	for _, d := range report.Drifts {
		if d.ActionChanged {
			fmt.Fprintf(out, "  DRIFT %s: action %s -> %s\n", d.CaseID, d.BaselineAction, d.ObservedAction)
			continue
		}
		if d.MessageDelta != nil {
			fmt.Fprintf(out, "  DRIFT %s: message changed:\n%s\n", d.CaseID, *d.MessageDelta)
		}
	}
}

// judgeModelConfig adapts the judge config section to the model client
// shape. Judging is scoring, so it runs cold and short.
func judgeModelConfig(j config.JudgeConfig) config.LLMModelConfig {
	return config.LLMModelConfig{
		Model:       j.Model,
		APIKey:      j.APIKey,
		APIKeyEnv:   j.APIKeyEnv,
		APITimeout:  j.APITimeout,
		Temperature: 0,
		MaxTokens:   512,
	}
}

func persistBaseline(cfg *config.Config, b *schemas.Baseline, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Store.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	st, err := store.New(ctx, pool, logger)
	if err != nil {
		return err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	return st.SaveBaseline(ctx, b)
}

// newRegressBuildCmd creates `regress build`, which converts a recorded
// packet log into a portable replay dataset.
func newRegressBuildCmd() *cobra.Command {
	var (
		packetLog  string
		outDir     string
		note       string
		profileRef string
		maxCases   int
		screens    []string
		copyShots  bool
		embedShots bool
	)

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a replayable dataset from a recorded packet log",
		Long: `Converts one run's packet log into a cases.jsonl dataset plus metadata.
Recorded outcomes are kept as reference only; replay recomputes decisions
from the observation fields. Review the dataset before sharing, it contains
on-screen text from real profiles.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			screenTypes := make([]schemas.ScreenType, 0, len(screens))
			for _, s := range screens {
				screenTypes = append(screenTypes, schemas.ScreenType(s))
			}

			res, err := regression.BuildDataset(regression.BuildOptions{
				PacketLogPath:    packetLog,
				OutDir:           outDir,
				Query:            note,
				ProfileRef:       profileRef,
				MaxCases:         maxCases,
				ScreenTypes:      screenTypes,
				CopyScreenshots:  copyShots,
				EmbedScreenshots: embedShots,
			}, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dataset built: %s (%d cases, %d packets skipped)\n", res.Dir, res.Cases, res.Skipped)
			fmt.Fprintf(out, "  cases: %s\n", res.CasesPath)
			fmt.Fprintf(out, "  meta:  %s\n", res.MetaPath)
			return nil
		},
	}

	buildCmd.Flags().StringVar(&packetLog, "packet-log", "", "Packet log to convert (required)")
	buildCmd.Flags().StringVar(&outDir, "out", "", "Output directory for the dataset (required)")
	buildCmd.Flags().StringVar(&note, "query", "", "Directive the run was recorded under, kept as dataset metadata")
	buildCmd.Flags().StringVar(&profileRef, "profile-ref", "", "Profile name the run was recorded under, kept as dataset metadata")
	buildCmd.Flags().IntVar(&maxCases, "max-cases", 0, "Stop after this many cases (0 = all)")
	buildCmd.Flags().StringSliceVar(&screens, "screens", nil, "Only include these screen types (e.g. discover_card,chat_thread)")
	buildCmd.Flags().BoolVar(&copyShots, "copy-screenshots", false, "Copy screenshots into the dataset directory")
	buildCmd.Flags().BoolVar(&embedShots, "embed-screenshots", false, "Embed screenshots into cases.jsonl as base64")
	_ = buildCmd.MarkFlagRequired("packet-log")
	_ = buildCmd.MarkFlagRequired("out")

	return buildCmd
}
