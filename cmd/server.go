/*
Copyright 2024 NetPlay Hub Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/netplayhub/hubsync"
	"github.com/netplayhub/hubsync/api"
	"github.com/netplayhub/hubsync/config"
	"github.com/spf13/cobra"
)

/*
serveTLS starts an HTTPS server with TLS enabled using CertMagic for
automatic certificate management. If no domain is configured the
server defaults to localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "path/to/certmagic/storage"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start HTTPS server: %v", err)
	}

	return nil
}

func initializeRouter(h *hubsyncInstance) *gin.Engine {
	return api.NewAPI(h.hub).Router()
}

// initializeMonitor builds and starts the background monitor that
// drives health probes, status refreshes and crash-recovery scans.
func initializeMonitor(h *hubsyncInstance) *hubsync.MonitorService {
	mon := hubsync.NewMonitorService(
		h.hub,
		time.Duration(h.cnf.Monitor.HealthCheckIntervalSec)*time.Second,
		time.Duration(h.cnf.Monitor.StatusSyncIntervalSec)*time.Second,
		time.Duration(h.cnf.Monitor.RecoveryScanIntervalSec)*time.Second,
	)
	mon.Start(context.Background())
	return mon
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting server on http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

/*
serverCommands returns the Cobra command responsible for starting the
hubsync server. It wires the API routes and the background monitor
before launching the HTTP listener.
*/
func serverCommands(h *hubsyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start hubsync server",
		Run: func(cmd *cobra.Command, args []string) {
			router := initializeRouter(h)

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			mon := initializeMonitor(h)
			defer mon.Stop()
			defer h.hub.Close()

			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
