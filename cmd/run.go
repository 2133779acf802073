package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/artifacts"
	"github.com/xkilldash9x/wingman-cli/internal/capture"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/llmclient"
	"github.com/xkilldash9x/wingman-cli/internal/observability"
	"github.com/xkilldash9x/wingman-cli/internal/session"
	"github.com/xkilldash9x/wingman-cli/internal/store"
)

// Injection points for tests: building a live device session or a model
// client requires external services, so commands construct both through
// these variables.
var (
	newDriver = func(ctx context.Context, cfg config.DeviceConfig, logger *zap.Logger) (schemas.Driver, error) {
		client, err := capture.NewWebDriverClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := client.Start(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}
	newLLMClient = llmclient.NewClient
)

// newRunCmd creates the `run` command: one live decision loop against the
// connected device, bounded by the session budgets.
func newRunCmd() *cobra.Command {
	var (
		name       string
		query      string
		profile    string
		mode       string
		dryRun     bool
		maxActions int
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the live decision loop against the connected device",
		Long: `Starts one bounded session: observe the screen, classify it, decide on an
action, execute it, and validate the result, cycle after cycle until a budget
is exhausted or the run aborts. Every cycle is recorded as one packet line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Layer explicit flags over the loaded config, then re-validate:
			// an override can produce an invalid combination.
			runCfg := *cfg
			if cmd.Flags().Changed("profile") {
				runCfg.Profile.Name = profile
			}
			if cmd.Flags().Changed("mode") {
				runCfg.Decision.Mode = mode
			}
			if cmd.Flags().Changed("dry-run") {
				runCfg.Session.DryRun = dryRun
			}
			if cmd.Flags().Changed("max-actions") {
				runCfg.Session.MaxActions = maxActions
			}
			if err := runCfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return runLive(ctx, logger, &runCfg, name, query, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().StringVar(&name, "name", "cli", "Session name used in logs and artifacts")
	runCmd.Flags().StringVarP(&query, "query", "q", "", "Free-text directive for this run (e.g. 'send 2 messages then stop')")
	runCmd.Flags().StringVar(&profile, "profile", "", "Behavior profile name (overrides config)")
	runCmd.Flags().StringVar(&mode, "mode", "", "Decision mode: 'deterministic' or 'llm' (overrides config)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Decide and log but never touch the device (overrides config)")
	runCmd.Flags().IntVar(&maxActions, "max-actions", 0, "Maximum decision cycles for this run (overrides config)")

	return runCmd
}

// runLive contains the core, testable logic for one live session.
func runLive(ctx context.Context, logger *zap.Logger, cfg *config.Config, name, query string, out io.Writer) error {
	driver, err := newDriver(ctx, cfg.Device, logger)
	if err != nil {
		return fmt.Errorf("failed to start device session: %w", err)
	}

	var client schemas.LLMClient
	if cfg.Decision.Mode == config.ModeLLM {
		client, err = newLLMClient(ctx, cfg.Decision.LLM, logger)
		if err != nil {
			_ = driver.Close()
			return err
		}
	}

	sess, err := session.New(name, cfg, query, driver, client, logger)
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		_ = driver.Close()
		return err
	}

	runID := sess.RunID()
	packetLogPath := sess.PacketLogPath()
	summaryPath := sess.SummaryPath()

	logger.Info("Live run starting",
		zap.String("run_id", runID),
		zap.String("packet_log", packetLogPath),
	)

	summary, runErr := sess.Run(ctx)
	if err := sess.Close(); err != nil {
		logger.Warn("Session close reported an error", zap.Error(err))
	}

	printRunSummary(out, &summary, packetLogPath, summaryPath)

	if cfg.Store.Enabled {
		// The JSONL artifacts already hold the run; a store failure is
		// reported but does not fail the command.
		if err := persistRun(cfg, &summary, packetLogPath, logger); err != nil {
			logger.Error("Failed to persist run to store", zap.Error(err))
		}
	}

	return runErr
}

func printRunSummary(out io.Writer, summary *schemas.RunSummary, packetLogPath, summaryPath string) {
	fmt.Fprintf(out, "\nRun %s finished: %s\n", summary.RunID, summary.Termination)
	if summary.Error != "" {
		fmt.Fprintf(out, "  error:      %s\n", summary.Error)
	}
	fmt.Fprintf(out, "  cycles:     %d\n", summary.Cycles)
	fmt.Fprintf(out, "  likes:      %d\n", summary.Likes)
	fmt.Fprintf(out, "  passes:     %d\n", summary.Passes)
	fmt.Fprintf(out, "  messages:   %d\n", summary.Messages)
	fmt.Fprintf(out, "  packet log: %s\n", packetLogPath)
	fmt.Fprintf(out, "  summary:    %s\n", summaryPath)
}

// persistRun copies a finished run into Postgres. It runs on its own
// deadline because the command context is typically already canceled when a
// run ends via Ctrl+C.
func persistRun(cfg *config.Config, summary *schemas.RunSummary, packetLogPath string, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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
	if err := st.SaveRun(ctx, *summary); err != nil {
		return err
	}

	packets, malformed, err := artifacts.ReadPacketLog(packetLogPath)
	if err != nil {
		return fmt.Errorf("failed to read packet log: %w", err)
	}
	if malformed > 0 {
		logger.Warn("Skipping malformed packet log lines", zap.Int("lines", malformed))
	}
	if err := st.SavePackets(ctx, summary.RunID, packets); err != nil {
		return err
	}

	logger.Info("Run persisted to store",
		zap.String("run_id", summary.RunID),
		zap.Int("packets", len(packets)),
	)
	return nil
}
