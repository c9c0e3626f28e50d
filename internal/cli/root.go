package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"todocal/internal/config"
	"todocal/internal/gateway"
	appLog "todocal/internal/log"
	"todocal/internal/reconcile"
	"todocal/internal/recur"
	"todocal/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the todocal CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "todocal",
		Short: "todocal - events and todos on your own disk",
		Long: `Keep calendar events and todos in a local store, expand recurring
events into occurrences and sync with the account API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath(), "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewTodosCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewGoogleCommand(opts))
	cmd.AddCommand(NewICSCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// app is what every command works against once the config is loaded.
type app struct {
	cfg      *config.Config
	store    *store.Store
	loc      *time.Location
	expander recur.Expander
	out      *OutputFormatter
}

func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	if opts.Verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	st, err := store.Open(ctx, store.Options{Driver: cfg.Store.Driver, Path: cfg.Store.Path})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open store", err)
	}

	return &app{
		cfg:      cfg,
		store:    st,
		loc:      loc,
		expander: recur.Expander{Location: loc},
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		appLog.Error("close store", err)
	}
}

func (a *app) gateway() (*gateway.Client, error) {
	c := gateway.NewClient(gateway.Config{
		BaseURL:  a.cfg.API.BaseURL,
		Token:    a.cfg.API.Token,
		DeviceID: a.cfg.API.DeviceID,
		Timeout:  a.cfg.API.Timeout(),
	})
	if !c.IsConfigured() {
		return nil, NewExitError(ExitCommandError, "api.base_url, api.token and api.device_id must be configured (or set "+config.EnvAPIToken+" / "+config.EnvDeviceID+")")
	}
	return c, nil
}

func (a *app) syncer() (*reconcile.Syncer, error) {
	gw, err := a.gateway()
	if err != nil {
		return nil, err
	}
	return reconcile.NewSyncer(a.store, gw), nil
}

// withApp adapts a command body that needs the loaded app into RunE.
func withApp(opts *RootOptions, fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := openApp(ctx, opts, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return classify(fn(ctx, a, cmd, args))
	}
}
