package cmd

import (
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with the system browser",
	Long: `Opens the authorization server's sign-in page in the system browser and
waits until the browser redirects back.

Starting a new login while another is pending is allowed; each completes or
fails on its own. Press Ctrl+C to abandon the wait.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		if err := withSpinner(cmd, "Waiting for sign-in to complete in your browser...", func() error {
			return client.Login(cmd.Context())
		}); err != nil {
			return err
		}
		printf(cmd, "%s\n", text.FgGreen.Sprint("Signed in"))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out locally and at the authorization server",
	Long: `Drops the stored tokens and opens the authorization server's end-session
page so the browser session ends too. Does nothing when no ID token is held.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		if err := withSpinner(cmd, "Signing out...", func() error {
			return client.Logout(cmd.Context())
		}); err != nil {
			return err
		}
		printf(cmd, "Signed out\n")
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the access token with the refresh token",
	Long: `Exchanges the refresh token for a new access token. If the authorization
server rejects the refresh token, the local login state is cleared and a new
sign-in is required.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		if err := client.Refresh(cmd.Context()); err != nil {
			return err
		}
		// A rejected refresh token clears the login state without an error.
		if _, err := client.AccessToken(cmd.Context()); err != nil {
			return err
		}
		printf(cmd, "Access token renewed\n")
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the stored tokens without contacting the authorization server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		if err := client.Clear(cmd.Context()); err != nil {
			return err
		}
		printf(cmd, "Login state cleared\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, refreshCmd, clearCmd)
}
