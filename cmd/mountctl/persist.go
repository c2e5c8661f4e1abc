package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haio/mountctl/internal/haioerr"
	"github.com/haio/mountctl/internal/persistence"
)

func init() {
	p := &cobra.Command{
		Use:   "persist",
		Short: "manage boot-persistence for a mount",
	}
	p.AddCommand(persistInstallCmd())
	p.AddCommand(persistRemoveCmd())
	rootCmd.AddCommand(p)
}

func persistInstallCmd() *cobra.Command {
	var username, container string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "install a boot-time auto-mount entry",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			agentPath, err := a.agent.Resolve()
			if err != nil {
				return err
			}
			entry := persistence.Entry{Username: username, Container: container}
			if err := a.persist.Install(entry, agentPath); err != nil {
				he, ok := err.(*haioerr.Error)
				if ok && he.Kind == haioerr.KindPersistUserCancelled {
					fmt.Println("elevation declined, persistence not installed")
					return he
				}
				return err
			}
			fmt.Println("persistence installed")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&username, "username", "", "username")
	flags.StringVar(&container, "container", "", "container name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("container")
	return cmd
}

func persistRemoveCmd() *cobra.Command {
	var username, container string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "remove a boot-time auto-mount entry",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			entry := persistence.Entry{Username: username, Container: container}
			if err := a.persist.Remove(entry); err != nil {
				he, ok := err.(*haioerr.Error)
				if ok && he.Kind == haioerr.KindPersistUserCancelled {
					fmt.Println("elevation declined, persistence not removed")
					return he
				}
				return err
			}
			fmt.Println("persistence removed")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&username, "username", "", "username")
	flags.StringVar(&container, "container", "", "container name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("container")
	return cmd
}
