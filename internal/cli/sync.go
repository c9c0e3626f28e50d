package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Merge the account's events and todos into the local store",
		Long: `Fetch the remote snapshot and merge it by id: the copy with the later
updated timestamp wins, local-only records are kept.`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			sy, err := a.syncer()
			if err != nil {
				return err
			}
			res, err := sy.Import(ctx)
			if err != nil {
				return err
			}
			return a.out.Emit(res, func(w io.Writer) {
				fmt.Fprintln(w, "COLLECTION\tADDED\tUPDATED\tKEPT")
				fmt.Fprintf(w, "events\t%d\t%d\t%d\n", res.Events.Added, res.Events.Updated, res.Events.Kept)
				fmt.Fprintf(w, "todos\t%d\t%d\t%d\n", res.Todos.Added, res.Todos.Updated, res.Todos.Kept)
			})
		}),
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Push the full local events and todos to the account",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			sy, err := a.syncer()
			if err != nil {
				return err
			}
			snap, err := sy.Export(ctx)
			if err != nil {
				return err
			}
			summary := map[string]int{"events": len(snap.Events), "todos": len(snap.Todos)}
			return a.out.Emit(summary, func(w io.Writer) {
				fmt.Fprintf(w, "exported %d event(s) and %d todo(s)\n", len(snap.Events), len(snap.Todos))
			})
		}),
	}
}

// NewGoogleCommand creates the google command.
func NewGoogleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "google",
		Short: "Replace the local copy of the linked Google calendar",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			sy, err := a.syncer()
			if err != nil {
				return err
			}
			events, err := sy.ImportGoogle(ctx)
			if err != nil {
				return err
			}
			return a.out.Emit(map[string]int{"events": len(events)}, func(w io.Writer) {
				fmt.Fprintf(w, "imported %d google event(s)\n", len(events))
			})
		}),
	}
}
