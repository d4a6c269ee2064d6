// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/creatorscope/channelintel/internal/api"
	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/jobs"
	"github.com/creatorscope/channelintel/internal/core/store"
	"github.com/creatorscope/channelintel/internal/telemetry"
)

func main() {
	telemetry.SetupLogging()
	slog.Info("Logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := cloud.NewConfig()
	cloud.LoadConfig(config)

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		slog.Error("Failed to initialize cloud clients", "error", err)
		log.Fatal(err)
	}
	defer clients.Close()

	db, err := store.Open(config.Database)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		log.Fatal(err)
	}
	repository := store.NewStore(db)

	events := cloud.NewJobEventPublisher(clients.PubsubClient, config.Topics.JobEvents)
	orchestrator := jobs.NewOrchestrator(ctx, repository, events, config.Application.JobWorkerSlots)

	server := api.NewServer(config, clients, repository, orchestrator)

	r := gin.Default()
	r.Use(otelgin.Middleware(config.Application.Name))
	r.Use(cors.Default())
	server.RegisterRoutes(r.Group("/api/v1"))

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen", "error", err)
		}
	}()
	slog.Info("Server Ready on port 8080")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}

	// Running jobs get to finish their terminal transition before exit.
	orchestrator.Wait()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("Telemetry shutdown failed", "error", err)
	}

	log.Println("Server exiting")
}
