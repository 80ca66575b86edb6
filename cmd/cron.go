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
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blnkfinance/collector"
	"github.com/blnkfinance/collector/internal/notification"
	"github.com/blnkfinance/collector/model"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// dailyScanJob runs the daily cron scan. Overlapping runs are skipped by the scan lock.
func dailyScanJob(app *collectorInstance) func() {
	return func() {
		result, err := app.collector.RunScan(context.Background(), model.TriggerDailyCronjob, time.Now())
		if errors.Is(err, collector.ErrScanInProgress) {
			return
		}
		if err != nil {
			logrus.WithError(err).Error("daily collection scan failed")
			notification.NotifyError(err)
			return
		}
		logrus.WithFields(logrus.Fields{
			"pages":  result.Pages,
			"rows":   result.Rows,
			"failed": result.Failed,
		}).Info("daily collection scan done")
	}
}

// cronCommands schedules the daily collection scan and blocks until interrupted.
func cronCommands(app *collectorInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "run the scheduled collection scans",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			shutdown, err := initializeObservability(ctx, app.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			scheduler := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(logrus.StandardLogger())))
			schedule := app.cnf.Cron.DailyCollectionSchedule
			if _, err := scheduler.AddFunc(schedule, dailyScanJob(app)); err != nil {
				log.Fatalf("invalid daily collection schedule %q: %v", schedule, err)
			}

			metricsServer := serveMetrics(app)
			defer metricsServer.Close()

			scheduler.Start()
			logrus.WithField("schedule", schedule).Info("collection cron started")

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			<-scheduler.Stop().Done()
		},
	}

	return cmd
}
