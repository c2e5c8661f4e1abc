package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haio/mountctl/internal/mountpoint"
	"github.com/haio/mountctl/internal/mountsvc"
)

func init() {
	rootCmd.AddCommand(mountCmd())
	rootCmd.AddCommand(unmountCmd())
}

func mountCmd() *cobra.Command {
	var username, container string

	cmd := &cobra.Command{
		Use:   "mount",
		Short: "mount a single container",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := agentAvailable(a); err != nil {
				return err
			}

			token, _, storageURL, _, err := a.creds.Load(username)
			if err != nil {
				return err
			}
			a.api.RestoreSession(username, token, storageURL)

			mp, err := mountpoint.For(a.cfg, username, container)
			if err != nil {
				return err
			}

			key := mountsvc.Key{Username: username, Container: container}
			if err := a.mounts.Mount(c.Context(), key, mp, a.cfg.BaseURL, username, token); err != nil {
				return err
			}

			fmt.Println(mp)
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

func unmountCmd() *cobra.Command {
	var username, container string

	cmd := &cobra.Command{
		Use:   "unmount",
		Short: "unmount a single container",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			key := mountsvc.Key{Username: username, Container: container}
			return a.mounts.Unmount(c.Context(), key)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&username, "username", "", "username")
	flags.StringVar(&container, "container", "", "container name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("container")
	return cmd
}

// agentAvailable is a thin helper the mount command uses to surface
// AGENT_NOT_FOUND early, before attempting any mount.
func agentAvailable(a *app) error {
	_, err := a.agent.Resolve()
	return err
}
