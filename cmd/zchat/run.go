package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"client_go/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the full-screen client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(parent context.Context) error {
	a, err := newApp(parent, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if a.profile.LastChat != nil {
		last := *a.profile.LastChat
		a.view.Select(ctx, &last)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runPush(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, tui.Deps{
			Conversation: a.view,
			Sidebar:      a.dir,
			Notices:      a.notices,
			LoggedOut:    a.sess.LoggedOut(),
			Status:       a.push.Status,
			Log:          a.log.Named("tui"),
		})
	})

	err = g.Wait()
	a.remember()
	if err != nil {
		return a.fail(err)
	}
	if a.sess.Token() == "" {
		return a.fail(tui.ErrSessionExpired)
	}
	return nil
}
