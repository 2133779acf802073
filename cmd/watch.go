package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/observability"
)

// newWatchCmd creates the `watch` command: a human-readable live view over
// a packet log, one line per decision cycle.
func newWatchCmd() *cobra.Command {
	var follow bool

	watchCmd := &cobra.Command{
		Use:   "watch <packet-log>",
		Short: "Tail a packet log and print one line per decision cycle",
		Long: `Follows a session's packet log and prints a compact line for every cycle:
screen type, quality score, the chosen action and its source, and the
validation verdict. Point it at the packet log path that run and serve
report on startup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchPacketLog(cmd.Context(), args[0], follow, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	watchCmd.Flags().BoolVarP(&follow, "follow", "f", true, "Keep waiting for new packets; --follow=false prints the log and exits")
	return watchCmd
}

func watchPacketLog(ctx context.Context, path string, follow bool, out io.Writer, logger *zap.Logger) error {
	tailCfg := tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	}
	if follow {
		// A watch is about what happens next; skip the backlog.
		tailCfg.Location = &tail.SeekInfo{Offset: 0, Whence: 2}
	}

	t, err := tail.TailFile(path, tailCfg)
	if err != nil {
		return fmt.Errorf("failed to tail packet log: %w", err)
	}
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	var printed, skipped int
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				if skipped > 0 {
					fmt.Fprintf(out, "%d unparsable line(s) skipped\n", skipped)
				}
				return nil
			}
			if line.Err != nil {
				logger.Warn("Error reading packet log", zap.Error(line.Err))
				continue
			}
			if line.Text == "" {
				continue
			}

			var p schemas.Packet
			if err := json.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(line.Text), &p); err != nil {
				skipped++
				logger.Debug("Skipping unparsable packet line", zap.Error(err))
				continue
			}
			printed++
			fmt.Fprintln(out, formatPacketLine(printed, &p))
		}
	}
}

// formatPacketLine renders one packet as a single status line.
func formatPacketLine(n int, p *schemas.Packet) string {
	action, source, reason := "-", "", ""
	if p.Decision != nil {
		action = string(p.Decision.ActionID)
		source = string(p.Decision.Source)
		reason = p.Decision.Reason
	}

	line := fmt.Sprintf("#%-3d %s  %-16s q=%-3d %-14s",
		n, p.Timestamp.Local().Format("15:04:05"), p.ScreenType, p.QualityScore, action)
	if source != "" {
		line = fmt.Sprintf("%s [%s]", line, source)
	}
	if p.Validation != nil {
		if p.Validation.Passed {
			line += " ok"
		} else {
			line += " FAIL"
		}
	}
	if reason != "" {
		line += "  " + reason
	}
	return line
}
