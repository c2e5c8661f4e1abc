package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haio/mountctl/internal/haioerr"
)

func init() {
	rootCmd.AddCommand(loginCmd())
}

func loginCmd() *cobra.Command {
	var account, username, password string
	var remember bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "authenticate against the object-storage account and save the session",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			if password == "" {
				fmt.Fprint(os.Stderr, "Password: ")
				pw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return err
				}
				password = string(pw)
			}

			token, storageURL, err := a.api.Authenticate(c.Context(), account, username, password)
			if err != nil {
				return err
			}

			savedPassword := ""
			if remember {
				savedPassword = password
			}
			if err := a.creds.Save(username, token, savedPassword, storageURL, ""); err != nil {
				return haioerr.Wrap(haioerr.KindServerError, err, "failed to save session")
			}

			fmt.Printf("logged in as %s\n", username)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&account, "account", "", "account name")
	flags.StringVar(&username, "username", "", "username")
	flags.StringVar(&password, "password", "", "password (prompted if omitted)")
	flags.BoolVar(&remember, "remember-password", false, "persist the password encrypted at rest")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}
