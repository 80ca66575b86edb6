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

	"github.com/blnkfinance/collector"
	"github.com/blnkfinance/collector/config"
	"github.com/blnkfinance/collector/database"
	"github.com/blnkfinance/collector/internal/analytics"
	"github.com/blnkfinance/collector/internal/metrics"
	"github.com/blnkfinance/collector/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Collector represents the CLI application, encapsulating the root Cobra command.
type Collector struct {
	cmd *cobra.Command
}

// collectorInstance holds what every subcommand needs at runtime.
type collectorInstance struct {
	collector *collector.Collector
	cnf       *config.Configuration
	metrics   *metrics.PrometheusSink
	analytics analytics.Tracker
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file and builds the collector before any command runs.
func preRun(app *collectorInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		app.metrics = metrics.NewPrometheusSink(nil)
		app.analytics, err = analytics.NewTracker(cnf.Analytics.PostHogKey, cnf.Analytics.PostHogEndpoint)
		if err != nil {
			logrus.WithError(err).Warn("analytics disabled")
			app.analytics = analytics.Noop{}
		}

		c, err := setupCollector(cnf, app)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.collector = c
		app.cnf = cnf
		return nil
	}
}

func setupCollector(cfg *config.Configuration, app *collectorInstance) (*collector.Collector, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	c, err := collector.NewCollector(db,
		collector.WithMetrics(app.metrics),
		collector.WithAnalytics(app.analytics),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating collector: %v", err)
	}
	return c, nil
}

// NewCLI creates the root command and registers every subcommand.
func NewCLI() *Collector {
	var configFile string
	app := &collectorInstance{}

	var rootCmd = &cobra.Command{
		Use:   "collector",
		Short: "Advance collection dispatcher",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./collector.json", "Configuration file for the collector")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if app.analytics != nil {
			if err := app.analytics.Close(); err != nil {
				logrus.WithError(err).Warn("failed to flush analytics")
			}
		}
	}

	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(scanCommands(app))
	rootCmd.AddCommand(collectCommands(app))
	rootCmd.AddCommand(paymentCommands(app))
	rootCmd.AddCommand(cronCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(configCommands())

	return &Collector{cmd: rootCmd}
}

func (c Collector) executeCLI() {
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
