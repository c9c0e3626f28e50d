package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"todocal/internal/ics"
	"todocal/internal/reconcile"
)

// NewICSCommand creates the ics command group.
func NewICSCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ics",
		Short: "Exchange events as iCalendar",
	}
	cmd.AddCommand(newICSExportCommand(rootOpts))
	cmd.AddCommand(newICSImportCommand(rootOpts))
	return cmd
}

func newICSExportCommand(rootOpts *RootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored events as an .ics calendar",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			events, err := a.store.Events.All(ctx)
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				return ics.Encode(cmd.OutOrStdout(), events)
			}

			var buf bytes.Buffer
			if err := ics.Encode(&buf, events); err != nil {
				return err
			}
			if err := os.WriteFile(outPath, buf.Bytes(), 0o600); err != nil {
				return WrapExitError(ExitFailure, "write "+outPath, err)
			}
			a.out.VerboseLog("wrote %d event(s) to %s", len(events), outPath)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default: stdout)")
	return cmd
}

func newICSImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|url>",
		Short: "Merge events from an .ics file or feed URL",
		Long: `Merge the VEVENTs of an iCalendar file or http(s) feed into the stored
events by UID, with the same rules as the account import: the copy with
the later LAST-MODIFIED wins and local-only events are kept. Feeds are
fetched with ETag/Last-Modified revalidation and a cached fallback.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			src := args[0]

			var body []byte
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				res, err := ics.NewFetcher(a.store.Backend(), a.cfg.API.Timeout()).Fetch(ctx, src)
				if err != nil {
					return WrapExitError(ExitRemoteError, "fetch feed", err)
				}
				body = res.Body
			} else {
				data, err := os.ReadFile(src)
				if err != nil {
					return WrapExitError(ExitCommandError, "read "+src, err)
				}
				body = data
			}

			events, err := ics.Decode(bytes.NewReader(body))
			if err != nil {
				return WrapExitError(ExitCommandError, "decode calendar", err)
			}

			_, res, err := reconcile.MergeFromRemote(ctx, a.store.Events, events)
			if err != nil {
				return err
			}
			return a.out.Emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "events: %d added, %d updated, %d kept\n", res.Added, res.Updated, res.Kept)
			})
		}),
	}
}
