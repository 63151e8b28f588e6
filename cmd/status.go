package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/giantswarm/deskauth/internal/oauth"
	"github.com/giantswarm/deskauth/internal/resource"
)

var outputJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local login state",
	Long: `Shows which tokens are held and who they belong to, without contacting
the authorization server. The identity comes from the ID token's claims,
which are displayed but not verified.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		status, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), status)
		}
		renderStatus(cmd.OutOrStdout(), status, time.Now())
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user as reported by the user info endpoint",
	Long: `Calls the authorization server's user info endpoint with the access token.
An expired access token is renewed once automatically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient(cfg)
		if err != nil {
			return err
		}
		info, err := client.UserInfo(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), info)
		}
		renderUserInfo(cmd.OutOrStdout(), info)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "Print JSON instead of a table")
	whoamiCmd.Flags().BoolVar(&outputJSON, "json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(statusCmd, whoamiCmd)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func presence(held bool) string {
	if held {
		return text.FgGreen.Sprint("held")
	}
	return text.FgYellow.Sprint("none")
}

func renderStatus(w io.Writer, s oauth.Status, now time.Time) {
	t := newTable(w)
	if s.LoggedIn {
		t.AppendRow(table.Row{"Status", text.FgGreen.Sprint("Signed in")})
	} else {
		t.AppendRow(table.Row{"Status", text.FgYellow.Sprint("Signed out")})
	}
	t.AppendRow(table.Row{"Access token", presence(s.HasAccessToken)})
	t.AppendRow(table.Row{"Refresh token", presence(s.HasRefreshToken)})
	t.AppendRow(table.Row{"ID token", presence(s.HasIDToken)})
	if s.Subject != "" {
		t.AppendRow(table.Row{"Subject", s.Subject})
	}
	if s.Name != "" {
		t.AppendRow(table.Row{"Name", s.Name})
	}
	if s.Email != "" {
		t.AppendRow(table.Row{"Email", s.Email})
	}
	if !s.IDTokenExpiry.IsZero() {
		t.AppendRow(table.Row{"ID token expiry", formatExpiry(s.IDTokenExpiry, now)})
	}
	if s.PendingLogins > 0 {
		t.AppendRow(table.Row{"Pending sign-ins", s.PendingLogins})
	}
	if s.PendingLogout {
		t.AppendRow(table.Row{"Pending sign-out", "yes"})
	}
	t.Render()
}

func renderUserInfo(w io.Writer, info *resource.UserInfo) {
	t := newTable(w)
	t.AppendRow(table.Row{"Subject", info.Subject})
	if info.Name != "" {
		t.AppendRow(table.Row{"Name", info.Name})
	}
	if info.PreferredUsername != "" {
		t.AppendRow(table.Row{"Username", info.PreferredUsername})
	}
	if info.Email != "" {
		email := info.Email
		if info.EmailVerified {
			email += " " + text.FgGreen.Sprint("(verified)")
		}
		t.AppendRow(table.Row{"Email", email})
	}
	t.Render()
}

// formatExpiry renders an absolute time with a relative hint.
func formatExpiry(at, now time.Time) string {
	d := at.Sub(now).Round(time.Second)
	local := at.Local().Format("2006-01-02 15:04:05")
	if d < 0 {
		return fmt.Sprintf("%s (%s)", local, text.FgRed.Sprintf("expired %s ago", -d))
	}
	return fmt.Sprintf("%s (in %s)", local, d)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
