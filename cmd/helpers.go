package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/giantswarm/deskauth/internal/config"
	"github.com/giantswarm/deskauth/internal/ipc"
)

func secretFilePath(c config.Config) string {
	if c.IPC.SecretFile != "" {
		return c.IPC.SecretFile
	}
	return ipc.DefaultSecretFile()
}

// newIPCClient connects to the running `deskauth serve` process.
var newIPCClient = func(c config.Config) (*ipc.Client, error) {
	secret, err := ipc.ReadSecret(secretFilePath(c))
	if err != nil {
		return nil, err
	}
	return ipc.NewClient(c.IPC.Address, secret, nil), nil
}

// withSpinner runs fn while showing a spinner on stderr, unless --quiet.
func withSpinner(cmd *cobra.Command, suffix string, fn func() error) error {
	if quiet {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " " + suffix
	s.Start()
	err := fn()
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("Failed") + "\n"
	}
	s.Stop()
	return err
}

// printf writes progress output unless --quiet.
func printf(cmd *cobra.Command, format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
