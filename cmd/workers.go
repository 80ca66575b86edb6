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
	"fmt"
	"log"
	"net/http"

	"github.com/blnkfinance/collector"
	"github.com/blnkfinance/collector/config"
	"github.com/blnkfinance/collector/internal/notification"
	"github.com/blnkfinance/collector/internal/payments"
	redis_db "github.com/blnkfinance/collector/internal/redis-db"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// initializeQueues weights the API queue above the fire-and-forget queue so manual payments
// are not stuck behind a daily batch.
func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.APITaskQueue: 6,
		conf.Queue.TaskQueue:    3,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.AsynqOption(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency: conf.Queue.WorkerConcurrency,
		Queues:      queues,
		Logger:      logrus.StandardLogger(),
		ErrorHandler: taskErrorHandler(notification.NotifyError),
	}), nil
}

// retriesExhausted reports whether asynq will not run the task again.
func retriesExhausted(ctx context.Context, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// taskErrorHandler logs every failed run and calls notify once a task has given up.
func taskErrorHandler(notify func(error)) asynq.ErrorHandlerFunc {
	return func(ctx context.Context, task *asynq.Task, err error) {
		taskID, _ := asynq.GetTaskID(ctx)
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logrus.WithFields(logrus.Fields{
			"task_id":   taskID,
			"type":      task.Type(),
			"retried":   retried,
			"max_retry": maxRetry,
			"error":     err,
		}).Error("repayment task failed")

		if retriesExhausted(ctx, err) {
			notify(fmt.Errorf("task %s (%s) failed permanently: %w", taskID, task.Type(), err))
		}
	}
}

func initializeTaskHandlers(worker *collector.Worker, mux *asynq.ServeMux) {
	mux.HandleFunc(collector.TypeAdvanceRepayment, worker.ProcessTask)
}

// serveMetrics exposes the collector's prometheus registry.
func serveMetrics(app *collectorInstance) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	srv := &http.Server{Addr: app.cnf.Metrics.Addr, Handler: mux}

	go func() {
		log.Printf("Metrics server listening on %s/metrics", app.cnf.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("metrics server stopped")
		}
	}()
	return srv
}

// workerCommands defines the "workers" command that executes repayment tasks.
func workerCommands(app *collectorInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start repayment workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := app.cnf

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			queue, err := collector.NewQueue(conf)
			if err != nil {
				log.Fatal(err)
			}
			defer queue.Close()

			srv, err := initializeWorkerServer(conf, initializeQueues(conf))
			if err != nil {
				log.Fatal(err)
			}

			worker := collector.NewWorker(app.collector, payments.NewHTTPProcessor(conf.PaymentProcessor), queue)
			mux := asynq.NewServeMux()
			initializeTaskHandlers(worker, mux)

			metricsServer := serveMetrics(app)
			defer metricsServer.Close()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
