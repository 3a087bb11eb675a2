package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"client_go/internal/directory"
	"client_go/internal/domain"
)

var (
	tabFlag    string
	searchFlag string
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List channels and direct conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tab, err := directory.ParseTab(tabFlag)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.dir.Refresh(cmd.Context()); err != nil {
			return a.fail(err)
		}

		entries := a.dir.Entries(tab)
		if searchFlag != "" {
			entries = a.dir.Search(searchFlag)
		}
		if len(entries) == 0 {
			fmt.Println("No chats")
			return nil
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("ID", "NAME", "KIND", "UNREAD", "FLAGS", "STATUS")
		for _, e := range entries {
			t.Row(e.Ref.ID, e.Ref.DisplayName, string(e.Ref.Kind), unreadCell(e.Unread), flagsCell(e), statusCell(a, e))
		}
		fmt.Println(t.String())
		return nil
	},
}

func unreadCell(n int) string {
	if n == 0 {
		return ""
	}
	return humanize.Comma(int64(n))
}

func flagsCell(e directory.Entry) string {
	var s string
	if e.IsStarred {
		s += "starred "
	}
	if e.IsArchived {
		s += "archived "
	}
	if e.IsMuted {
		s += "muted"
	}
	return s
}

func statusCell(a *app, e directory.Entry) string {
	if e.Ref.Kind == domain.KindGroup {
		if c, ok := a.dir.Channel(e.Ref.ID); ok {
			return strconv.Itoa(len(c.Members)) + " members, active " + humanize.Time(c.UpdatedAt)
		}
		return e.Detail
	}
	if e.IsOnline {
		return "online"
	}
	if u, ok := a.dir.User(e.Ref.ID); ok && !u.LastSeen.IsZero() {
		return "seen " + humanize.Time(u.LastSeen)
	}
	return e.Detail
}

func init() {
	chatsCmd.Flags().StringVarP(&tabFlag, "tab", "t", "all", "all, archived or starred")
	chatsCmd.Flags().StringVarP(&searchFlag, "search", "s", "", "filter by name")
	rootCmd.AddCommand(chatsCmd)
}
