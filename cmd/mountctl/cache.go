package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haio/mountctl/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "commands for working with the mount agent's VFS cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "clear the VFS cache",
	RunE: func(_ *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return cache.Clear(a.cfg.CacheDir())
	},
}

var cacheLocationCmd = &cobra.Command{
	Use:   "location",
	Short: "print the VFS cache location",
	RunE: func(_ *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		fmt.Println(a.cfg.CacheDir())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheLocationCmd)
	rootCmd.AddCommand(cacheCmd)
}
