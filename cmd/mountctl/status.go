package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haio/mountctl/internal/mountsvc"
)

func init() {
	rootCmd.AddCommand(statusCmd())
}

func statusCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "list known containers and their mount state",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			token, _, storageURL, _, err := a.creds.Load(username)
			if err != nil {
				return err
			}
			a.api.RestoreSession(username, token, storageURL)

			containers, err := a.api.ListContainers(c.Context())
			if err != nil {
				return err
			}

			for _, ct := range containers {
				state := mountsvc.Unmounted
				if m, ok := a.mounts.Get(mountsvc.Key{Username: username, Container: ct.Name}); ok {
					state = m.State
				}
				fmt.Printf("%-24s %-10s %8d objects %10d bytes\n", ct.Name, state, ct.Count, ct.Bytes)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&username, "username", "", "username")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
