package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haio/mountctl/internal/haioapi"
	"github.com/haio/mountctl/internal/tempurl"
)

func init() {
	tu := &cobra.Command{
		Use:   "tempurl",
		Short: "sign and validate TempURLs",
	}
	tu.AddCommand(tempurlSignCmd())
	tu.AddCommand(tempurlValidateCmd())
	rootCmd.AddCommand(tu)
}

func tempurlSignCmd() *cobra.Command {
	var username, container, object, method string
	var duration time.Duration
	var prefix bool
	var ip string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "sign an object path into a TempURL",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			_, _, storageURL, tempURLKey, err := a.creds.Load(username)
			if err != nil {
				return err
			}
			a.api.RestoreSession(username, "", storageURL)

			mgr := tempurl.NewManager(a.api.SetAccountMeta, headAccountAdapter(a.api))
			mgr.LoadKey(tempURLKey)
			key, err := mgr.Ensure(c.Context())
			if err != nil {
				return err
			}
			if err := a.creds.Save(username, a.api.Token(), "", storageURL, key); err != nil {
				return err
			}

			objectPath := fmt.Sprintf("/v1/AUTH_%s/%s/%s", username, container, object)
			signed, err := tempurl.Sign(key, method, objectPath, duration, ip, prefix)
			if err != nil {
				return err
			}

			fmt.Println(a.cfg.BaseURL + signed)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&username, "username", "", "username")
	flags.StringVar(&container, "container", "", "container name")
	flags.StringVar(&object, "object", "", "object path within the container")
	flags.StringVar(&method, "method", "GET", "HTTP method the URL authorizes")
	flags.DurationVar(&duration, "duration", time.Hour, "how long the URL stays valid")
	flags.BoolVar(&prefix, "prefix", false, "sign a prefix rather than a single object")
	flags.StringVar(&ip, "ip", "", "restrict the URL to a single client IP")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("container")
	return cmd
}

func tempurlValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [url]",
		Short: "check a TempURL's expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			res, err := tempurl.Validate(args[0])
			if err != nil {
				return err
			}
			if res.Valid {
				fmt.Printf("valid, %s remaining\n", res.TimeRemaining.Round(time.Second))
			} else {
				fmt.Printf("invalid: %s\n", res.Reason)
			}
			return nil
		},
	}
	return cmd
}

// headAccountAdapter adapts haioapi.Client.HeadAccount's http.Header return
// to the map[string][]string shape tempurl.Manager is constructed against.
func headAccountAdapter(c *haioapi.Client) func(ctx context.Context) (map[string][]string, error) {
	return func(ctx context.Context) (map[string][]string, error) {
		h, err := c.HeadAccount(ctx)
		if err != nil {
			return nil, err
		}
		return map[string][]string(h), nil
	}
}
