package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/m-mizutani/conductor"
)

func getRunCmd() *cobra.Command {
	var outputJSON bool

	runCmd := &cobra.Command{
		Use:   "run [plan-file]",
		Short: "Execute a plan against the configured MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger()

			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}

			planFile, err := loadPlanFile(args[0])
			if err != nil {
				return err
			}

			mcpClient, err := cfg.newMCPClient()
			if err != nil {
				return err
			}
			if err := mcpClient.Start(ctx); err != nil {
				return err
			}
			defer func() {
				if err := mcpClient.Close(); err != nil {
					logger.Warn("failed to close MCP client", "error", err)
				}
			}()

			options := []conductor.Option{
				conductor.WithLogger(logger),
				conductor.WithContinueOnError(cfg.ContinueOnError),
				conductor.WithSink(newStdoutSink(cmd.OutOrStdout(), outputJSON)),
			}
			if cfg.IdleTimeout > 0 {
				options = append(options, conductor.WithIdleTimeout(cfg.IdleTimeout))
			}

			coordinator, err := conductor.New(mcpClient, mcpClient, options...)
			if err != nil {
				return err
			}

			sessionID := uuid.New().String()
			plan := coordinator.NewPlan(sessionID, "", planFile.Input, planFile.Steps)

			run := coordinator.Runs().Register(plan)
			ctx = coordinator.Runs().Bind(ctx, run)
			defer coordinator.Runs().Discard(run.ID)

			if err := plan.Execute(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "plan %s finished: %s\n", plan.ID(), plan.State())
			return nil
		},
	}

	runCmd.Flags().BoolVar(&outputJSON, "json", false, "Emit progress events as JSON lines")

	return runCmd
}

func newStdoutSink(w io.Writer, asJSON bool) conductor.Sink {
	return conductor.SinkFunc(func(ctx context.Context, ev conductor.Event) error {
		if asJSON {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(data))
			return err
		}

		if ev.StepID != "" {
			_, err := fmt.Fprintf(w, "[%s] %s %s\n", ev.Time.Format("15:04:05"), ev.Type, ev.StepID)
			return err
		}
		_, err := fmt.Fprintf(w, "[%s] %s\n", ev.Time.Format("15:04:05"), ev.Type)
		return err
	})
}
