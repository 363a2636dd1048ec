package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	clientsync "github.com/dmitrijs2005/vaultsync/internal/client/sync"
	"github.com/dmitrijs2005/vaultsync/internal/events"
)

func (s *session) shellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session that keeps vaults unlocked and in sync",
		Long: `shell reads commands line by line, for example "vault list" or
"item add personal --type login". Vault keys stay unlocked until exit and,
while logged in, changes are synchronized in the background.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runShell(cmd.Context())
		},
	}
}

// runShell is the read-eval-print loop. It returns on EOF, on "exit" or
// "quit", or once ctx is done and the current line has been handled.
func (s *session) runShell(ctx context.Context) error {
	a := s.app

	notes := a.broadcast.Join(originCLI)
	defer a.broadcast.Leave(originCLI)

	bg := &background{app: a}
	defer bg.stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		bg.follow(ctx)
		s.drainNotes(notes)

		fmt.Fprintf(a.out, "vaultsync %s> ", bg.status())
		line, err := a.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		if fields := strings.Fields(line); len(fields) > 0 {
			switch fields[0] {
			case "exit", "quit":
				fmt.Fprintln(a.out, "Bye!")
				return nil
			case "help":
				if len(fields) == 1 {
					s.printShellHelp()
					break
				}
				s.runLine(ctx, fields)
			default:
				s.runLine(ctx, fields)
			}
		}

		if err != nil {
			fmt.Fprintln(a.out)
			return nil
		}
	}
}

func (s *session) runLine(ctx context.Context, args []string) {
	cmd := s.lineCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		Report(s.errOut, err)
	}
}

func (s *session) printShellHelp() {
	tw := tabwriter.NewWriter(s.app.out, 0, 4, 2, ' ', 0)
	for _, c := range s.lineCommand().Commands() {
		if c.Hidden || c.Name() == "help" {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\n", c.Name(), c.Short)
	}
	fmt.Fprintf(tw, "  %s\t%s\n", "exit", "Leave the shell")
	tw.Flush()
	fmt.Fprintln(s.app.out, `Run "help <command>" for details.`)
}

// drainNotes prints what background sync changed since the last prompt.
func (s *session) drainNotes(sub *events.Subscription) {
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			s.note(ev)
		default:
			return
		}
	}
}

func (s *session) note(ev events.Event) {
	if ev.SessionID != clientsync.Origin {
		return
	}
	switch ev.Type {
	case events.VaultUpdate:
		fmt.Fprintf(s.app.out, "%s vault %s was updated from the server\n", color.CyanString("↻"), ev.VaultID)
	case events.VaultDelete:
		s.app.lock(ev.VaultID)
		fmt.Fprintf(s.app.out, "%s vault %s was deleted on another device\n", color.CyanString("↻"), ev.VaultID)
	}
}

// background runs the watcher while a session token exists.
type background struct {
	app     *App
	watcher *clientsync.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func (b *background) follow(ctx context.Context) {
	_, err := b.app.auth.Restore(ctx)
	loggedIn := err == nil

	switch {
	case loggedIn && b.watcher == nil:
		wctx, cancel := context.WithCancel(ctx)
		b.watcher = b.app.watcher()
		b.cancel = cancel
		b.done = make(chan struct{})
		go func(w *clientsync.Watcher, done chan struct{}) {
			defer close(done)
			w.Run(wctx)
		}(b.watcher, b.done)
	case !loggedIn && b.watcher != nil:
		b.stop()
	}
}

func (b *background) stop() {
	if b.watcher == nil {
		return
	}
	b.cancel()
	<-b.done
	b.app.broadcast.Leave(clientsync.Origin)
	b.watcher = nil
}

func (b *background) status() string {
	switch {
	case b.watcher == nil:
		return "(logged out)"
	case b.watcher.Online():
		return color.GreenString("(online)")
	default:
		return color.YellowString("(offline)")
	}
}
