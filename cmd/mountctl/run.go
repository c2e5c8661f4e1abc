package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haio/mountctl/internal/haioerr"
	"github.com/haio/mountctl/internal/reconcile"
	"github.com/haio/mountctl/internal/tempurl"
	"github.com/haio/mountctl/internal/viewmodel"
)

func init() {
	rootCmd.AddCommand(runCmd())
}

// runCmd is rootCmd's default action (spec.md §6): start the supervisor and
// reconciliation engine for one account and drive the view-model bus from a
// stdio event ticker, standing in for a GUI frontend.
func runCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the mount control plane for one account (default command)",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			if username == "" {
				known, err := a.creds.ListKnown()
				if err != nil {
					return err
				}
				if len(known) == 0 {
					return haioerr.New(haioerr.KindAuthInvalid, "no saved session; run 'mountctl login' first")
				}
				username = known[0]
			}

			token, _, storageURL, tempURLKey, err := a.creds.Load(username)
			if err != nil {
				return err
			}
			if token == "" {
				return haioerr.New(haioerr.KindAuthExpired, "no saved session for "+username+"; run 'mountctl login' first")
			}
			a.api.RestoreSession(username, token, storageURL)

			if _, err := a.agent.Resolve(); err != nil {
				return err
			}

			urls := tempurl.NewManager(a.api.SetAccountMeta, headAccountAdapter(a.api))
			urls.LoadKey(tempURLKey)

			ctx := c.Context()

			bus := viewmodel.New(log.Logger)
			engine := reconcile.New(log.Logger, a.api, a.mounts, a.persist, username, bus)
			dispatcher := viewmodel.NewDispatcher(log.Logger, a.cfg, bus, a.api, a.mounts, a.persist, a.agent, urls, username, a.cfg.BaseURL, nil)

			if known, err := a.inspect.FindOrphanMounts(ctx, username, a.mounts.KnownMountPoints()); err == nil {
				engine.StartupCheck(known)
			}

			go engine.Run(ctx, a.cfg.ReconcileInterval)
			go a.mounts.RunHealthLoop(ctx)
			go dispatcher.Run(ctx)

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-bus.Events():
					printEvent(ev)
				}
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&username, "username", "", "account to run the control plane for (defaults to the only saved session)")
	return cmd
}

func printEvent(ev viewmodel.Event) {
	switch ev.Kind {
	case viewmodel.EvtStatusMessage:
		fmt.Println(ev.Text)
	case viewmodel.EvtProgressStep:
		fmt.Printf("%s: step %d/%d\n", ev.Op, ev.Step, ev.Total)
	case viewmodel.EvtError:
		fmt.Println("error:", ev.Err.Error())
	case viewmodel.EvtPrompt:
		fmt.Printf("prompt[%s]: %v\n", ev.PromptKind, ev.Payload)
	}
}
