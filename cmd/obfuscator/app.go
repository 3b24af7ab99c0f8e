// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/obfuscator/pkg/logging"
	"github.com/AleutianAI/obfuscator/services/obfuscator"
	"github.com/AleutianAI/obfuscator/services/obfuscator/archive"
	"github.com/AleutianAI/obfuscator/services/obfuscator/config"
)

// app bundles what every command needs: configuration, logger and service.
type app struct {
	cfg    config.Config
	logger *logging.Logger
	svc    *obfuscator.Service
	store  *archive.Store
}

// loadApp reads configuration, applies the persistent flags and builds
// the service. The archive is opened only when withArchive is set and the
// configuration enables it.
func loadApp(cmd *cobra.Command, withArchive bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Logging.JSON = logJSON
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})

	svcCfg, err := obfuscator.ServiceConfigFrom(cfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	opts := []obfuscator.ServiceOption{obfuscator.WithLogger(logger.Slog())}

	if withArchive && cfg.Archive.Enabled {
		store, err := archive.Open(archive.Config{
			Path:           config.ExpandHome(cfg.Archive.Path),
			InMemory:       cfg.Archive.InMemory,
			SyncWrites:     true,
			GCInterval:     cfg.Archive.GCInterval,
			GCDiscardRatio: 0.5,
			Logger:         logger.Slog().With("component", "archive"),
		})
		if err != nil {
			logger.Close()
			return nil, err
		}
		a.store = store
		opts = append(opts, obfuscator.WithArchive(store))
	}

	a.svc, err = obfuscator.NewService(svcCfg, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the archive and flushes the logger.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}
