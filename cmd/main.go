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
	"fmt"
	"log"
	"os"

	"github.com/netplayhub/hubsync"
	"github.com/netplayhub/hubsync/config"
	"github.com/netplayhub/hubsync/database"
	"github.com/netplayhub/hubsync/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Hubsync wraps the root Cobra command for the CLI application.
type Hubsync struct {
	cmd *cobra.Command
}

// hubsyncInstance holds the runtime service instance and its
// configuration so that subcommands share one initialized stack.
type hubsyncInstance struct {
	hub *hubsync.Hubsync
	cnf *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the Hubsync instance
// before any subcommand executes.
func preRun(app *hubsyncInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newHub, err := setupHubsync(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.hub = newHub
		app.cnf = cnf

		return nil
	}
}

// setupHubsync connects the data source and assembles the service.
func setupHubsync(cfg *config.Configuration) (*hubsync.Hubsync, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newHub, err := hubsync.NewHubsync(db)
	if err != nil {
		return nil, fmt.Errorf("error creating hubsync: %v", err)
	}
	return newHub, nil
}

// NewCLI builds the command-line interface with the server, worker,
// migration and config subcommands attached.
func NewCLI() *Hubsync {
	var configFile string
	h := &hubsyncInstance{}

	var rootCmd = &cobra.Command{
		Use:   "hubsync",
		Short: "HubSoft integration resilience layer",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./hubsync.json", "Configuration file for hubsync")

	rootCmd.PersistentPreRunE = preRun(h, &configFile)

	rootCmd.AddCommand(serverCommands(h))
	rootCmd.AddCommand(workerCommands(h))
	rootCmd.AddCommand(migrateCommands(h))
	rootCmd.AddCommand(configCommands())

	return &Hubsync{cmd: rootCmd}
}

func (w Hubsync) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
