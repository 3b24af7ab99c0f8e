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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/obfuscator/services/obfuscator"
	"github.com/AleutianAI/obfuscator/services/obfuscator/mcp"
	"github.com/AleutianAI/obfuscator/services/obfuscator/telemetry"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("port") {
		a.cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromConfig(a.cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			a.logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	debug := a.cfg.Logging.Level == "debug"
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := obfuscator.RouterConfig{
		ServiceName:    a.cfg.Telemetry.ServiceName,
		RateLimit:      a.cfg.Server.RateLimit,
		Burst:          a.cfg.Server.Burst,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		AccessLog:      debug,
	}
	if a.cfg.Telemetry.Metrics == "prometheus" {
		routerCfg.Metrics = telemetry.MetricsHandler()
	}
	a.logger.SetDefault()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           obfuscator.NewRouter(a.svc, routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting obfuscator server",
			slog.String("address", srv.Addr),
			slog.String("version", version),
			slog.Bool("archive", a.svc.ArchiveEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down obfuscator server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mcp.NewServer(a.svc, version, a.logger.Slog()).Run(ctx)
}
