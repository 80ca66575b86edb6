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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/blnkfinance/collector"
	"github.com/blnkfinance/collector/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		log.Fatalf("Error printing result: %v\n", err)
	}
	fmt.Println(string(data))
}

// scanCommands runs one scheduled scan immediately.
func scanCommands(app *collectorInstance) *cobra.Command {
	var trigger, date string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "scan collectible advances and dispatch their collection",
		Run: func(cmd *cobra.Command, args []string) {
			runDate := time.Now()
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					log.Fatalf("invalid --date %q: %v", date, err)
				}
				runDate = parsed
			}

			result, err := app.collector.RunScan(context.Background(), model.Trigger(trigger), runDate)
			if errors.Is(err, collector.ErrScanInProgress) {
				logrus.Warn(err)
				return
			}
			if err != nil {
				log.Fatal(err)
			}
			printJSON(result)
		},
	}

	cmd.Flags().StringVar(&trigger, "trigger", string(model.TriggerDailyCronjob), "collection trigger the scan runs for")
	cmd.Flags().StringVar(&date, "date", "", "run date as YYYY-MM-DD, defaults to today")
	return cmd
}

// collectCommands collects a single advance, mostly for operators retrying one advance by hand.
func collectCommands(app *collectorInstance) *cobra.Command {
	var advanceID int64
	var trigger string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "evaluate and dispatch the collection of one advance",
		Run: func(cmd *cobra.Command, args []string) {
			if advanceID <= 0 {
				log.Fatal("--advance is required")
			}

			outcome, err := app.collector.CollectAdvance(context.Background(), advanceID, model.Trigger(trigger))
			if err != nil {
				log.Fatal(err)
			}
			printJSON(outcome)
		},
	}

	cmd.Flags().Int64Var(&advanceID, "advance", 0, "advance id")
	cmd.Flags().StringVar(&trigger, "trigger", string(model.TriggerAdmin), "collection trigger")
	return cmd
}

// paymentCommands prints the payments recorded for an advance.
func paymentCommands(app *collectorInstance) *cobra.Command {
	var advanceID int64

	cmd := &cobra.Command{
		Use:   "payments",
		Short: "list the payments recorded for one advance",
		Run: func(cmd *cobra.Command, args []string) {
			if advanceID <= 0 {
				log.Fatal("--advance is required")
			}

			payments, err := app.collector.PaymentHistory(context.Background(), advanceID)
			if err != nil {
				log.Fatal(err)
			}
			printJSON(payments)
		},
	}

	cmd.Flags().Int64Var(&advanceID, "advance", 0, "advance id")
	return cmd
}
