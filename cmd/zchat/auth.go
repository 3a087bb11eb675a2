package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"client_go/internal/api"
	"client_go/internal/session"
)

var usernameFlag string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session for this profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		username := strings.TrimSpace(usernameFlag)
		if username == "" {
			fmt.Print("Username: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read username: %w", err)
			}
			username = strings.TrimSpace(line)
		}

		password, err := readPassword(reader)
		if err != nil {
			return err
		}
		return login(cmd.Context(), username, password)
	},
}

// readPassword reads without echo on a terminal and falls back to a plain
// line for piped input.
func readPassword(reader *bufio.Reader) (string, error) {
	fmt.Print("Password: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	log, err := newLogger(false)
	if err != nil {
		return err
	}
	defer log.Sync()

	client := api.New(cfg.APIURL, nil, cfg.HTTPTimeout, log)
	res, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	user := res.User
	if err := session.SaveProfile(cfg.ProfileDir(), &session.Profile{
		APIURL: cfg.APIURL,
		Token:  res.AccessToken,
		User:   &user,
	}); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", user.Name)
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := session.ClearProfile(cfg.ProfileDir()); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		me, err := a.api.Me(cmd.Context())
		if err != nil {
			return a.fail(err)
		}
		fmt.Printf("%s <%s>\n", me.Name, me.Email)
		fmt.Printf("id:      %s\n", me.ID)
		fmt.Printf("profile: %s\n", cfg.Profile)
		if exp := a.sess.ExpiresAt(); !exp.IsZero() {
			if exp.After(time.Now()) {
				fmt.Printf("session: expires %s\n", humanize.Time(exp))
			} else {
				fmt.Printf("session: expired %s\n", humanize.Time(exp))
			}
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&usernameFlag, "username", "u", "", "account name")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
