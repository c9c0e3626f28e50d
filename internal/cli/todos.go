package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"todocal/internal/model"
)

// NewTodosCommand creates the todos command group.
func NewTodosCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todos",
		Short: "Manage stored todos",
	}
	cmd.AddCommand(newTodosListCommand(rootOpts))
	cmd.AddCommand(newTodosAddCommand(rootOpts))
	cmd.AddCommand(newTodosEditCommand(rootOpts))
	cmd.AddCommand(newTodosDeleteCommand(rootOpts))
	return cmd
}

type todoFlags struct {
	title    string
	date     string
	color    string
	iconFont string
	iconName string
}

func (f *todoFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "todo title")
	cmd.Flags().StringVar(&f.date, "date", "", "due time (RFC3339, YYYY-MM-DD HH:MM or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.color, "color", "", "display color")
	cmd.Flags().StringVar(&f.iconFont, "icon-font", "", "icon font family")
	cmd.Flags().StringVar(&f.iconName, "icon-name", "", "icon glyph name")
}

func (f *todoFlags) patch(cmd *cobra.Command, loc *time.Location) (model.TodoPatch, error) {
	var p model.TodoPatch
	changed := cmd.Flags().Changed

	if changed("title") {
		p.Title = &f.title
	}
	if changed("date") {
		t, err := parseTime(f.date, loc)
		if err != nil {
			return p, err
		}
		p.Date = &t
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

func newTodosListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored todos",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			todos, err := a.store.Todos.All(ctx)
			if err != nil {
				return err
			}
			return a.out.Emit(todos, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tTITLE\tDATE\tCOLOR")
				for _, td := range todos {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", td.ID, td.Title, formatTime(td.Date, a.loc), orDash(td.Color))
				}
			})
		}),
	}
}

func newTodosAddCommand(rootOpts *RootOptions) *cobra.Command {
	f := &todoFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a todo",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			p, err := f.patch(cmd, a.loc)
			if err != nil {
				return err
			}
			var td model.Todo
			p.Apply(&td)
			if p.Date == nil {
				td.Date = time.Now().In(a.loc)
			}

			created, err := a.store.Todos.Create(ctx, td)
			if err != nil {
				return err
			}
			return a.out.Emit(created, func(w io.Writer) {
				fmt.Fprintf(w, "created todo %s\n", created.ID)
			})
		}),
	}
	f.register(cmd)
	return cmd
}

func newTodosEditCommand(rootOpts *RootOptions) *cobra.Command {
	f := &todoFlags{}
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update fields of a todo; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			p, err := f.patch(cmd, a.loc)
			if err != nil {
				return err
			}
			updated, err := a.store.Todos.Update(ctx, model.ID(args[0]), p)
			if err != nil {
				return err
			}
			return a.out.Emit(updated, func(w io.Writer) {
				fmt.Fprintf(w, "updated todo %s\n", updated.ID)
			})
		}),
	}
	f.register(cmd)
	return cmd
}

func newTodosDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a todo",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			id := model.ID(args[0])
			if err := a.store.Todos.Delete(ctx, id); err != nil {
				return err
			}
			return a.out.Emit(map[string]model.ID{"deleted": id}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted todo %s\n", id)
			})
		}),
	}
}
