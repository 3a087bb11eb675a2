package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"client_go/internal/domain"
	"client_go/internal/tui"
	"client_go/internal/view"
)

var directFlag bool

var tailCmd = &cobra.Command{
	Use:   "tail <chat>",
	Short: "Print a conversation and follow it; lines typed on stdin are sent",
	Long: `tail prints the history of a channel or direct conversation and then
streams new messages. <chat> is an id or a name as shown by "zchat chats".
Each line read from standard input is sent as a message.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.dir.Refresh(ctx); err != nil {
			return a.fail(err)
		}
		ref, err := resolveChat(a, args[0], directFlag)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return a.runPush(gctx)
		})
		g.Go(func() error {
			defer cancel()
			return follow(gctx, a, ref, os.Stdin, cmd.OutOrStdout(), cmd.ErrOrStderr())
		})
		if err := g.Wait(); err != nil {
			return a.fail(err)
		}
		return nil
	},
}

func resolveChat(a *app, arg string, direct bool) (domain.ConversationRef, error) {
	if !direct {
		if c, ok := a.dir.Channel(arg); ok {
			return c.Ref(), nil
		}
	}
	if u, ok := a.dir.User(arg); ok {
		return u.Ref(), nil
	}

	var matches []domain.ConversationRef
	for _, e := range a.dir.Search(arg) {
		if direct && e.Ref.Kind != domain.KindDirect {
			continue
		}
		if strings.EqualFold(e.Ref.DisplayName, arg) {
			return e.Ref, nil
		}
		matches = append(matches, e.Ref)
	}
	switch len(matches) {
	case 0:
		return domain.ConversationRef{}, fmt.Errorf("no chat matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return domain.ConversationRef{}, fmt.Errorf("%q matches %d chats, use the id from `zchat chats`", arg, len(matches))
	}
}

func follow(ctx context.Context, a *app, ref domain.ConversationRef, in io.Reader, out, errOut io.Writer) error {
	a.view.Select(ctx, &ref)
	fmt.Fprintf(errOut, "Following %s. Type a message and press enter; ctrl+d to stop.\n", ref.DisplayName)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	printed := make(map[string]string)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.sess.LoggedOut():
			return tui.ErrSessionExpired
		case <-a.view.Changes():
			printNew(out, a.view.Snapshot(), printed)
		case <-a.notices.C():
			for _, n := range a.notices.Drain() {
				fmt.Fprintf(errOut, "[%s] %s\n", n.Level, n.Text)
			}
		case line, ok := <-lines:
			if !ok {
				a.view.Settle()
				printNew(out, a.view.Snapshot(), printed)
				return nil
			}
			if _, err := a.view.Send(ctx, line, ""); err != nil && !errors.Is(err, domain.ErrInvalidInput) {
				fmt.Fprintf(errOut, "[error] %v\n", err)
			}
		}
	}
}

// printNew writes messages not printed before, and bodies that changed since.
func printNew(w io.Writer, snap view.Snapshot, printed map[string]string) {
	for _, m := range snap.Messages {
		prev, seen := printed[m.ID]
		switch {
		case !seen:
			fmt.Fprintln(w, formatLine(m))
		case prev != m.Body:
			fmt.Fprintln(w, formatLine(m)+" (edited)")
		default:
			continue
		}
		printed[m.ID] = m.Body
	}
}

func formatLine(m domain.Message) string {
	if m.IsSystem() {
		return "-- " + m.Body + " --"
	}
	ts := ""
	if !m.SentAt.IsZero() {
		ts = m.SentAt.Local().Format("15:04") + " "
	}
	return ts + m.Sender.DisplayName + ": " + m.Body
}

func init() {
	tailCmd.Flags().BoolVarP(&directFlag, "direct", "d", false, "only match direct conversations")
	rootCmd.AddCommand(tailCmd)
}
