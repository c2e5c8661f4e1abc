package main

import (
	"github.com/rs/zerolog/log"

	"github.com/haio/mountctl/internal/config"
	"github.com/haio/mountctl/internal/credstore"
	"github.com/haio/mountctl/internal/haioapi"
	"github.com/haio/mountctl/internal/mountagent"
	"github.com/haio/mountctl/internal/mountfs"
	"github.com/haio/mountctl/internal/mountsvc"
	"github.com/haio/mountctl/internal/persistence"
)

// app bundles the constructed components every subcommand needs, built
// once from the process-wide Config (the teacher's "global settings
// singleton -> explicit Config" redesign made concrete).
type app struct {
	cfg     *config.Config
	creds   *credstore.Store
	api     *haioapi.Client
	agent   *mountagent.Adapter
	inspect *mountfs.Inspector
	mounts  *mountsvc.Supervisor
	persist *persistence.Installer
}

func newApp() (*app, error) {
	cfg := config.Default()
	if _, err := cfg.EnsureConfigDir(); err != nil {
		return nil, err
	}

	logger := log.Logger
	creds := credstore.New(cfg.AccountsPath(), logger)
	api := haioapi.New(cfg, logger)
	agent := mountagent.New(cfg, logger)
	inspect := mountfs.New(logger, cfg.ClassifyWatchdog)
	mounts := mountsvc.New(cfg, logger, agent, inspect)
	persist := persistence.New(logger, elevationHelper())

	return &app{
		cfg:     cfg,
		creds:   creds,
		api:     api,
		agent:   agent,
		inspect: inspect,
		mounts:  mounts,
		persist: persist,
	}, nil
}
