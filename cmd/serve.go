package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/control"
	"github.com/xkilldash9x/wingman-cli/internal/observability"
	"github.com/xkilldash9x/wingman-cli/internal/session"
)

// newServeCmd creates the `serve` command, which exposes the session
// lifecycle over the loopback control API instead of running one loop
// directly.
func newServeCmd() *cobra.Command {
	var (
		listen  string
		subject string
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose sessions over the local control API",
		Long: `Runs the control server: start, inspect, step, and stop sessions over
HTTP. Requests carry a bearer token minted from the shared secret
(WINGMAN_CONTROL_SECRET); use --mint-token to issue one for an operator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Running `serve` is opting in; the enabled switch only gates
			// implicit starts from other entry points.
			serveCfg := *cfg
			serveCfg.Control.Enabled = true
			if cmd.Flags().Changed("listen") {
				serveCfg.Control.ListenAddr = listen
			}
			if err := serveCfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if subject != "" {
				if serveCfg.Control.AuthSecret == "" {
					return fmt.Errorf("cannot mint a token: control.auth_secret is not set (set WINGMAN_CONTROL_SECRET)")
				}
				token, err := control.MintToken(serveCfg.Control.AuthSecret, subject, serveCfg.Control.TokenTTL)
				if err != nil {
					return fmt.Errorf("failed to mint token: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}

			registry := session.NewRegistry(logger)
			server := control.NewServer(serveCfg.Control, registry, sessionFactory(&serveCfg, logger), logger)
			return server.Start(ctx)
		},
	}

	serveCmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides control.listen_addr)")
	serveCmd.Flags().StringVar(&subject, "mint-token", "", "Mint a bearer token for the given subject and exit")

	return serveCmd
}

// sessionFactory builds sessions for control API start requests. Request
// fields layer over the server's base config per session; the merged result
// is re-validated so a bad override fails the request, not the server.
func sessionFactory(base *config.Config, logger *zap.Logger) control.SessionFactory {
	return func(ctx context.Context, req control.StartSessionRequest) (*session.Session, error) {
		cfg := *base
		if req.Profile != "" {
			cfg.Profile.Name = req.Profile
		}
		if req.Mode != "" {
			cfg.Decision.Mode = req.Mode
		}
		if req.DryRun != nil {
			cfg.Session.DryRun = *req.DryRun
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		driver, err := newDriver(ctx, cfg.Device, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start device session: %w", err)
		}

		var client schemas.LLMClient
		if cfg.Decision.Mode == config.ModeLLM {
			client, err = newLLMClient(ctx, cfg.Decision.LLM, logger)
			if err != nil {
				_ = driver.Close()
				return nil, err
			}
		}

		sess, err := session.New(req.Name, &cfg, req.Query, driver, client, logger)
		if err != nil {
			if client != nil {
				_ = client.Close()
			}
			_ = driver.Close()
			return nil, err
		}
		return sess, nil
	}
}
