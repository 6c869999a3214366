/*
Copyright 2024 Blnk Finance Authors.

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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/database"
	"github.com/blnkfinance/custody/internal/notification"
)

// CLI wraps the root cobra command.
type CLI struct {
	cmd *cobra.Command
}

// custodyInstance holds the service and the configuration it was built from.
type custodyInstance struct {
	custody *custody.Custody
	cnf     *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file and builds the service before any subcommand runs.
func preRun(app *custodyInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		// migrate and config only need the configuration
		if cmd.Name() == "up" || cmd.Name() == "down" || cmd.Name() == "config" {
			app.cnf = cnf
			return nil
		}

		svc, err := setupCustody(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.custody = svc
		app.cnf = cnf
		return nil
	}
}

func setupCustody(cfg *config.Configuration) (*custody.Custody, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	svc, err := custody.NewCustody(db)
	if err != nil {
		return nil, fmt.Errorf("error creating custody service: %v", err)
	}
	return svc, nil
}

func NewCLI() *CLI {
	var configFile string
	app := &custodyInstance{}

	var rootCmd = &cobra.Command{
		Use:   "custody",
		Short: "Custody and settlement service for wagers, tips, events and subscriptions",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./custody.json", "Configuration file")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(configCommands(app))

	return &CLI{cmd: rootCmd}
}

func (c CLI) executeCLI() {
	if err := c.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
