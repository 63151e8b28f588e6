package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the current access token",
	Long: `Prints the access token for use in scripts, for example:

  curl -H "Authorization: Bearer $(deskauth token)" https://api.example.com/

Exits with code 2 when no one is signed in.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		token, err := client.AccessToken(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Invalidate held tokens to exercise renewal paths",
	Long: `Corrupts the held tokens in place so they are rejected on next use.

  deskauth expire access    the next API call gets a 401 and triggers a refresh
  deskauth expire refresh   the refresh is rejected as well and a new sign-in is required`,
}

var expireAccessCmd = &cobra.Command{
	Use:   "access",
	Short: "Invalidate the access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		if err := client.ExpireAccessToken(cmd.Context()); err != nil {
			return err
		}
		printf(cmd, "Access token expired\n")
		return nil
	},
}

var expireRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Invalidate the refresh token and the access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		if err := client.ExpireRefreshToken(cmd.Context()); err != nil {
			return err
		}
		printf(cmd, "Refresh token expired\n")
		return nil
	},
}

var redirectCmd = &cobra.Command{
	Use:   "redirect <url>",
	Short: "Deliver a deep-link redirect to the running authenticator",
	Long: `Forwards a redirect URL received by the operating system's URL handler
(for example com.example.desktop:/callback?code=...&state=...) to the
authenticator that is waiting for it.

Register this command as the handler for the private-use URI scheme used in
redirectURI and postLogoutRedirectURI.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		delivered, err := client.Redirect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !delivered {
			return fmt.Errorf("redirect did not match a pending sign-in or sign-out")
		}
		printf(cmd, "Redirect delivered\n")
		return nil
	},
}

func init() {
	expireCmd.AddCommand(expireAccessCmd, expireRefreshCmd)
	rootCmd.AddCommand(tokenCmd, expireCmd, redirectCmd)
}
