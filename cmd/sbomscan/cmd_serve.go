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
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/sbomscan/pkg/logging"
	"github.com/AleutianAI/sbomscan/services/scanner/config"
	"github.com/AleutianAI/sbomscan/services/scanner/report"
	"github.com/AleutianAI/sbomscan/services/scanner/routes"
	"github.com/AleutianAI/sbomscan/services/scanner/scan"
)

// runServe hosts the scanner service in the foreground, sharing the
// configuration surface of the containerized deployment.
func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(os.Getenv("SBOMSCAN_CONFIG"))
	if err != nil {
		log.Fatalf("FATAL: could not load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "scanner",
	})
	defer logger.Close()
	logger.Install()

	store, err := report.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("FATAL: could not open the report store: %v", err)
	}
	defer store.Close()

	svc := scan.New(cfg, store, nil)

	router := gin.Default()
	routes.SetupRoutes(router, svc)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		slog.Info("starting the scanner server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-stop.Done()

	slog.Info("shutting down, waiting for in-flight jobs")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("job drain timed out", "error", err)
	}
}
