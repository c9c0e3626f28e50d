package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"todocal/internal/model"
)

// NewEventsCommand creates the events command group.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage stored events",
	}
	cmd.AddCommand(newEventsListCommand(rootOpts))
	cmd.AddCommand(newEventsAddCommand(rootOpts))
	cmd.AddCommand(newEventsEditCommand(rootOpts))
	cmd.AddCommand(newEventsDeleteCommand(rootOpts))
	cmd.AddCommand(newEventsExpandCommand(rootOpts))
	return cmd
}

// eventFlags are shared by add and edit.
type eventFlags struct {
	title    string
	start    string
	end      string
	repeat   string
	color    string
	iconFont string
	iconName string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "event title")
	cmd.Flags().StringVar(&f.start, "start", "", "start time (RFC3339, YYYY-MM-DD HH:MM or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "end time (defaults to start + 1h on add)")
	cmd.Flags().StringVarP(&f.repeat, "repeat", "r", string(model.RepeatNone), "None, Daily, Weekly, Monthly or Annually")
	cmd.Flags().StringVar(&f.color, "color", "", "display color")
	cmd.Flags().StringVar(&f.iconFont, "icon-font", "", "icon font family")
	cmd.Flags().StringVar(&f.iconName, "icon-name", "", "icon glyph name")
}

// patch builds an EventPatch from the flags the user actually set.
func (f *eventFlags) patch(cmd *cobra.Command, loc *time.Location) (model.EventPatch, error) {
	var p model.EventPatch
	changed := cmd.Flags().Changed

	if changed("title") {
		p.Title = &f.title
	}
	if changed("start") {
		t, err := parseTime(f.start, loc)
		if err != nil {
			return p, err
		}
		p.Start = &t
	}
	if changed("end") {
		t, err := parseTime(f.end, loc)
		if err != nil {
			return p, err
		}
		p.End = &t
	}
	if changed("repeat") {
		r, err := model.ParseRepeat(f.repeat)
		if err != nil {
			return p, err
		}
		p.Repeat = &r
	}
	if changed("color") {
		p.Color = &f.color
	}
	if changed("icon-font") || changed("icon-name") {
		icon := model.Icon{Font: f.iconFont, Name: f.iconName}
		p.Icon = &icon
	}
	return p, nil
}

func newEventsListCommand(rootOpts *RootOptions) *cobra.Command {
	var google bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored events",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			coll := a.store.Events
			if google {
				coll = a.store.GoogleEvents
			}
			events, err := coll.All(ctx)
			if err != nil {
				return err
			}
			return a.out.Emit(events, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tTITLE\tSTART\tEND\tREPEAT\tCOLOR")
				for _, ev := range events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						ev.ID, ev.Title, formatTime(ev.Start, a.loc), formatTime(ev.End, a.loc), ev.Repeat, orDash(ev.Color))
				}
			})
		}),
	}
	cmd.Flags().BoolVar(&google, "google", false, "list the imported Google calendar events instead")
	return cmd
}

func newEventsAddCommand(rootOpts *RootOptions) *cobra.Command {
	f := &eventFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an event",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("start") {
				return NewExitError(ExitCommandError, "--start is required")
			}
			p, err := f.patch(cmd, a.loc)
			if err != nil {
				return err
			}

			ev := model.Event{Repeat: model.RepeatNone}
			p.Apply(&ev)
			if p.End == nil {
				ev.End = ev.Start.Add(time.Hour)
			}

			created, err := a.store.Events.Create(ctx, ev)
			if err != nil {
				return err
			}
			return a.out.Emit(created, func(w io.Writer) {
				fmt.Fprintf(w, "created event %s\n", created.ID)
			})
		}),
	}
	f.register(cmd)
	return cmd
}

func newEventsEditCommand(rootOpts *RootOptions) *cobra.Command {
	f := &eventFlags{}
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update fields of an event; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			p, err := f.patch(cmd, a.loc)
			if err != nil {
				return err
			}
			updated, err := a.store.Events.Update(ctx, model.ID(args[0]), p)
			if err != nil {
				return err
			}
			return a.out.Emit(updated, func(w io.Writer) {
				fmt.Fprintf(w, "updated event %s\n", updated.ID)
			})
		}),
	}
	f.register(cmd)
	return cmd
}

func newEventsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id := model.ID(args[0])
			if err := a.store.Events.Delete(ctx, id); err != nil {
				return err
			}
			return a.out.Emit(map[string]model.ID{"deleted": id}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted event %s\n", id)
			})
		}),
	}
}

// occurrenceView is the JSON shape printed by `events expand`.
type occurrenceView struct {
	EventID     model.ID     `json:"event_id"`
	InstanceKey string       `json:"instance_key"`
	Title       string       `json:"title"`
	Repeat      model.Repeat `json:"repeat"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
}

func newEventsExpandCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		from, to string
		days     int
		google   bool
	)
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "List occurrences in a time window",
		Long: `List the concrete occurrences of all stored events that overlap
[from, to). Without --from the window starts at the beginning of today;
without --to it spans --days days.`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			now := time.Now().In(a.loc)
			start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)
			if from != "" {
				t, err := parseTime(from, a.loc)
				if err != nil {
					return err
				}
				start = t
			}
			end := start.AddDate(0, 0, days)
			if to != "" {
				t, err := parseTime(to, a.loc)
				if err != nil {
					return err
				}
				end = t
			}
			if !start.Before(end) {
				return NewExitError(ExitCommandError, "--from must be before --to")
			}

			events, err := a.store.Events.All(ctx)
			if err != nil {
				return err
			}
			if google {
				gevents, err := a.store.GoogleEvents.All(ctx)
				if err != nil {
					return err
				}
				events = append(events, gevents...)
			}

			occs := a.expander.ExpandAll(events, start, end)
			a.out.VerboseLog("expanded %d event(s) into %d occurrence(s)", len(events), len(occs))

			views := make([]occurrenceView, 0, len(occs))
			for _, o := range occs {
				views = append(views, occurrenceView{
					EventID: o.EventID, InstanceKey: o.InstanceKey, Title: o.Title,
					Repeat: o.Repeat, Start: o.Start, End: o.End,
				})
			}
			return a.out.Emit(views, func(w io.Writer) {
				fmt.Fprintln(w, "START\tEND\tTITLE\tEVENT")
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", formatTime(v.Start, a.loc), formatTime(v.End, a.loc), v.Title, v.EventID)
				}
			})
		}),
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (default: today 00:00)")
	cmd.Flags().StringVar(&to, "to", "", "window end (default: from + days)")
	cmd.Flags().IntVarP(&days, "days", "d", 7, "window length in days when --to is not set")
	cmd.Flags().BoolVar(&google, "google", false, "include imported Google calendar events")
	return cmd
}
