package cli

import (
	"context"

	"github.com/spf13/cobra"

	appLog "todocal/internal/log"
	"todocal/internal/scheduler"
	"todocal/internal/web"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only JSON API and run scheduled imports",
		Long: `Serve /api/occurrences, /api/events, /api/todos and /calendar.ics.
When sync.cron is set, the account import also runs on that schedule.`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}

			appLog.Info("effective config",
				"listen", a.cfg.Listen,
				"timezone", a.cfg.Timezone,
				"store_driver", a.cfg.Store.Driver,
				"sync_cron", a.cfg.Sync.Cron,
				"basic_auth", a.cfg.BasicAuth != nil,
			)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			var sched *scheduler.Scheduler

			if a.cfg.Sync.Cron != "" || a.cfg.Sync.ImportOnStart {
				sy, err := a.syncer()
				if err != nil {
					return err
				}
				if a.cfg.Sync.ImportOnStart {
					// A failed startup import is not fatal; the schedule retries.
					if _, err := sy.Import(ctx); err != nil {
						appLog.Error("startup import failed", err)
					}
				}
				if a.cfg.Sync.Cron != "" {
					sched, err = scheduler.New(a.cfg.Sync.Cron, a.loc, sy)
					if err != nil {
						return WrapExitError(ExitCommandError, "sync.cron", err)
					}
				}
			}

			schedDone := make(chan error, 1)
			if sched != nil {
				go func() { schedDone <- sched.Start(ctx) }()
			} else {
				close(schedDone)
			}

			// The server returns when ctx is cancelled or it fails to bind;
			// either way the scheduler is stopped before returning.
			err := web.NewServer(a.cfg, a.store, a.loc).ListenAndServe(ctx)
			cancel()
			if serr := <-schedDone; err == nil {
				err = serr
			}
			return err
		}),
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
