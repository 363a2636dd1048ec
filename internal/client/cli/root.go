package cli

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/vaultsync/internal/client/config"
)

type rootFlags struct {
	config   string
	server   string
	database string
	logLevel string
	timeout  time.Duration
}

// session owns the App across one invocation, or across every line of
// the shell.
type session struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	flags  rootFlags

	// loadConfig is a test seam for config.LoadConfig.
	loadConfig func() *config.Config

	app *App
}

func newSession(in io.Reader, out, errOut io.Writer) *session {
	return &session{in: bufio.NewReader(in), out: out, errOut: errOut, loadConfig: config.LoadConfig}
}

// Execute runs the CLI with args and reports a failure on errOut. It
// returns the process exit code.
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	s := newSession(in, out, errOut)
	return s.execute(ctx, args)
}

func (s *session) execute(ctx context.Context, args []string) int {
	root := s.rootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := s.close(); err == nil {
		err = cerr
	}
	if err != nil {
		Report(s.errOut, err)
		return 1
	}
	return 0
}

func (s *session) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "vaultsync",
		Short: "Encrypted vaults kept in sync across devices",
		Long: `vaultsync keeps password-protected vaults of notes, logins, cards and
files in a local database and synchronizes them with a vaultsync server.

Settings come from defaults, a JSON file (-c), the environment
(VAULTSYNC_*, .env is read) and finally the flags below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.errOut)

	pf := root.PersistentFlags()
	// config.LoadConfig reads -c from the process arguments itself.
	pf.StringVarP(&s.flags.config, "config", "c", "", "JSON config file")
	pf.StringVarP(&s.flags.server, "server", "s", "", "server URL")
	pf.StringVar(&s.flags.database, "db", "", "local database file")
	pf.StringVar(&s.flags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.DurationVar(&s.flags.timeout, "timeout", 0, "per-request timeout")

	s.addCommands(root)
	root.AddCommand(s.shellCommand())
	return root
}

// lineCommand is the command tree for one shell line. The App is already
// open, so it has no flags and no hooks of its own.
func (s *session) lineCommand() *cobra.Command {
	root := &cobra.Command{Use: "vaultsync", SilenceUsage: true, SilenceErrors: true}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.errOut)
	s.addCommands(root)
	return root
}

func (s *session) addCommands(root *cobra.Command) {
	root.AddCommand(
		s.registerCommand(),
		s.verifyCommand(),
		s.loginCommand(),
		s.logoutCommand(),
		s.vaultCommand(),
		s.itemCommand(),
		s.fileCommand(),
		s.syncCommand(),
	)
}

// open builds the App on first use. Flags given explicitly win over every
// other configuration source.
func (s *session) open(cmd *cobra.Command) error {
	if s.app != nil {
		return nil
	}

	cfg := s.loadConfig()
	s.applyFlags(cmd, cfg)

	app, err := NewApp(cmd.Context(), cfg, s.in, s.out, s.errOut)
	if err != nil {
		return err
	}
	s.app = app
	return nil
}

func (s *session) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("server") {
		cfg.ServerURL = s.flags.server
	}
	if f.Changed("db") {
		cfg.DatabasePath = s.flags.database
	}
	if f.Changed("log-level") {
		cfg.LogLevel = s.flags.logLevel
	}
	if f.Changed("timeout") {
		cfg.RequestTimeout = s.flags.timeout
	}
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	s.app = nil
	return err
}
