package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/pantrykit/client"
	"github.com/randalmurphal/pantrykit/transport"
)

// globalFlags are shared by every command.
type globalFlags struct {
	ConfigPath  string
	SocketPath  string
	BaseURL     string
	Credentials string
	Verbose     bool
}

// app holds what PersistentPreRunE resolves from flags, environment and
// config file.
type app struct {
	flags    globalFlags
	cfg      transport.Config
	credPath string
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "pantry",
		Short: "Client for a local pantry LLM server",
		Long: `pantry talks to a running pantry server over its unix socket, falling
back to the network address when the socket cannot be reached.

Register once with "pantry register", which stores credentials for the
other commands. Environment variables PANTRY_SOCKET_PATH, PANTRY_BASE_URL
and PANTRY_LOCAL_DIAL_TIMEOUT set the transport; a config file and flags
override them in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.flags.ConfigPath, "config", "", "config file (.yaml, .toml or .json)")
	f.StringVar(&a.flags.SocketPath, "socket", "", `unix socket path ("off" disables)`)
	f.StringVar(&a.flags.BaseURL, "base-url", "", `network base URL ("off" disables)`)
	f.StringVar(&a.flags.Credentials, "credentials", "", "credentials file (default: ~/.config/pantry/credentials.json)")
	f.BoolVarP(&a.flags.Verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		a.registerCmd(),
		a.llmsCmd(),
		a.llmStatusCmd(),
		a.requestStatusCmd(),
		a.loadCmd(),
		a.unloadCmd(),
		a.promptCmd(),
		a.interruptCmd(),
		a.schemaCmd(),
		a.waitCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if a.flags.Verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a.cfg = transport.FromEnv()
	if a.flags.ConfigPath != "" {
		fc, err := client.LoadConfig(a.flags.ConfigPath)
		if err != nil {
			return err
		}
		if a.cfg, err = fc.Apply(a.cfg); err != nil {
			return fmt.Errorf("config %s: %w", a.flags.ConfigPath, err)
		}
		a.credPath = fc.CredentialPath()
	}

	flags := cmd.Flags()
	if flags.Changed("socket") {
		a.cfg.SocketPath = transport.Address(a.flags.SocketPath)
	}
	if flags.Changed("base-url") {
		a.cfg.BaseURL = transport.Address(a.flags.BaseURL)
	}
	if a.flags.Credentials != "" {
		a.credPath = a.flags.Credentials
	}

	a.cfg = a.cfg.WithDefaults()
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.logger.Debug("transport configured",
		slog.String("socket_path", a.cfg.SocketPath),
		slog.String("base_url", a.cfg.BaseURL),
		slog.Duration("local_dial_timeout", a.cfg.LocalDialTimeout))
	return nil
}

func (a *app) clientOptions() []client.Option {
	return []client.Option{client.WithConfig(a.cfg), client.WithLogger(a.logger)}
}

// login builds a client from the stored credentials.
func (a *app) login() (*client.Client, error) {
	creds, err := client.LoadCredentials(a.credPath)
	if err != nil {
		return nil, fmt.Errorf("%w (run \"pantry register\" first)", err)
	}
	return client.LoginWithCredentials(creds, a.clientOptions()...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
