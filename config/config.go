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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PAGE_SIZE             = 10000
	DEFAULT_SCAN_CONCURRENCY      = 25
	DEFAULT_ACTIVE_COLLECTION_TTL = 604800
	DEFAULT_POLL_TIMEOUT_SEC      = 30
	DEFAULT_POLL_INTERVAL_SEC     = 0.5
	DEFAULT_TASK_QUEUE            = "tivan:tasks"
	DEFAULT_API_TASK_QUEUE        = "tivan:api"
	DEFAULT_LEGACY_QUEUE          = "legacy:collect-advance"
	DEFAULT_DAILY_SCHEDULE        = "0 14 * * *"
	DEFAULT_METRICS_ADDR          = ":9090"
	MAX_ROLLOUT                   = 10000
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"COLLECTOR_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"COLLECTOR_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"COLLECTOR_REDIS_SKIP_TLS_VERIFY"`
}

// QueueConfig names the asynq queues used to talk to the task executor.
type QueueConfig struct {
	TaskQueue         string `json:"task_queue" envconfig:"COLLECTOR_QUEUE_TASK_QUEUE"`
	APITaskQueue      string `json:"api_task_queue" envconfig:"COLLECTOR_QUEUE_API_TASK_QUEUE"`
	LegacyQueue       string `json:"legacy_queue" envconfig:"COLLECTOR_QUEUE_LEGACY_QUEUE"`
	WorkerConcurrency int    `json:"worker_concurrency" envconfig:"COLLECTOR_QUEUE_WORKER_CONCURRENCY"`
	MaxRetry          int    `json:"max_retry" envconfig:"COLLECTOR_QUEUE_MAX_RETRY"`
	ResultRetention   int    `json:"result_retention_hours" envconfig:"COLLECTOR_QUEUE_RESULT_RETENTION_HOURS"`
}

type ScannerConfig struct {
	PageSize         int    `json:"page_size" envconfig:"COLLECTOR_SCANNER_PAGE_SIZE"`
	Concurrency      int    `json:"concurrency" envconfig:"COLLECTOR_SCANNER_CONCURRENCY"`
	MinAdvanceAmount string `json:"min_advance_amount" envconfig:"COLLECTOR_SCANNER_MIN_ADVANCE_AMOUNT"`
	LookbackDays     int    `json:"lookback_days" envconfig:"COLLECTOR_SCANNER_LOOKBACK_DAYS"`
	LockTTLMinutes   int    `json:"lock_ttl_minutes" envconfig:"COLLECTOR_SCANNER_LOCK_TTL_MINUTES"`
}

type PollerConfig struct {
	TimeoutSec  float64 `json:"timeout_sec" envconfig:"COLLECTOR_POLLER_TIMEOUT_SEC"`
	IntervalSec float64 `json:"interval_sec" envconfig:"COLLECTOR_POLLER_INTERVAL_SEC"`
}

// ExperimentConfig holds rollouts in hundredths of a percent (0 - 10000).
type ExperimentConfig struct {
	DailyCronjobRollout      int `json:"daily_cronjob_rollout" envconfig:"COLLECTOR_EXPERIMENT_DAILY_CRONJOB_ROLLOUT"`
	BankAccountUpdateRollout int `json:"bank_account_update_rollout" envconfig:"COLLECTOR_EXPERIMENT_BANK_ACCOUNT_UPDATE_ROLLOUT"`
	UserPaymentRollout       int `json:"user_payment_rollout" envconfig:"COLLECTOR_EXPERIMENT_USER_PAYMENT_ROLLOUT"`
}

type ActiveCollectionConfig struct {
	TTLSeconds int `json:"ttl_seconds" envconfig:"COLLECTOR_ACTIVE_COLLECTION_TTL_SECONDS"`
}

type CronConfig struct {
	DailyCollectionSchedule string `json:"daily_collection_schedule" envconfig:"COLLECTOR_CRON_DAILY_COLLECTION_SCHEDULE"`
}

type PaymentProcessorConfig struct {
	Url           string `json:"url" envconfig:"COLLECTOR_PAYMENT_PROCESSOR_URL"`
	Timeout       int    `json:"timeout" envconfig:"COLLECTOR_PAYMENT_PROCESSOR_TIMEOUT"`
	Authorization string `json:"authorization" envconfig:"COLLECTOR_PAYMENT_PROCESSOR_AUTHORIZATION"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"COLLECTOR_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type AnalyticsConfig struct {
	PostHogKey      string `json:"posthog_key" envconfig:"COLLECTOR_POSTHOG_KEY"`
	PostHogEndpoint string `json:"posthog_endpoint" envconfig:"COLLECTOR_POSTHOG_ENDPOINT"`
}

type MetricsConfig struct {
	Addr string `json:"addr" envconfig:"COLLECTOR_METRICS_ADDR"`
}

type Configuration struct {
	ProjectName      string                 `json:"project_name" envconfig:"COLLECTOR_PROJECT_NAME"`
	EnableTelemetry  bool                   `json:"enable_telemetry" envconfig:"COLLECTOR_ENABLE_TELEMETRY"`
	DataSource       DataSourceConfig       `json:"data_source"`
	Redis            RedisConfig            `json:"redis"`
	Queue            QueueConfig            `json:"queue"`
	Scanner          ScannerConfig          `json:"scanner"`
	Poller           PollerConfig           `json:"poller"`
	Experiments      ExperimentConfig       `json:"experiments"`
	ActiveCollection ActiveCollectionConfig `json:"active_collection"`
	Cron             CronConfig             `json:"cron"`
	PaymentProcessor PaymentProcessorConfig `json:"payment_processor"`
	Notification     Notification           `json:"notification"`
	Analytics        AnalyticsConfig        `json:"analytics"`
	Metrics          MetricsConfig          `json:"metrics"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("collector", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called collector.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Advance Collector"
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.setDefaults()

	return validation.ValidateStruct(&cnf.Experiments,
		validation.Field(&cnf.Experiments.DailyCronjobRollout, validation.Min(0), validation.Max(MAX_ROLLOUT)),
		validation.Field(&cnf.Experiments.BankAccountUpdateRollout, validation.Min(0), validation.Max(MAX_ROLLOUT)),
		validation.Field(&cnf.Experiments.UserPaymentRollout, validation.Min(0), validation.Max(MAX_ROLLOUT)),
	)
}

func (cnf *Configuration) setDefaults() {
	if cnf.Queue.TaskQueue == "" {
		cnf.Queue.TaskQueue = DEFAULT_TASK_QUEUE
	}
	if cnf.Queue.APITaskQueue == "" {
		cnf.Queue.APITaskQueue = DEFAULT_API_TASK_QUEUE
	}
	if cnf.Queue.LegacyQueue == "" {
		cnf.Queue.LegacyQueue = DEFAULT_LEGACY_QUEUE
	}
	if cnf.Queue.WorkerConcurrency <= 0 {
		cnf.Queue.WorkerConcurrency = 10
	}
	if cnf.Queue.MaxRetry <= 0 {
		cnf.Queue.MaxRetry = 3
	}
	if cnf.Queue.ResultRetention <= 0 {
		cnf.Queue.ResultRetention = 24
	}

	if cnf.Scanner.PageSize <= 0 {
		cnf.Scanner.PageSize = DEFAULT_PAGE_SIZE
	}
	if cnf.Scanner.Concurrency <= 0 {
		cnf.Scanner.Concurrency = DEFAULT_SCAN_CONCURRENCY
		log.Printf("Warning: scanner concurrency not specified. Setting default value: %d", DEFAULT_SCAN_CONCURRENCY)
	}
	if cnf.Scanner.MinAdvanceAmount == "" {
		cnf.Scanner.MinAdvanceAmount = "0"
	}
	if cnf.Scanner.LookbackDays <= 0 {
		cnf.Scanner.LookbackDays = 30
	}
	if cnf.Scanner.LockTTLMinutes <= 0 {
		cnf.Scanner.LockTTLMinutes = 120
	}

	if cnf.Poller.TimeoutSec <= 0 {
		cnf.Poller.TimeoutSec = DEFAULT_POLL_TIMEOUT_SEC
	}
	if cnf.Poller.IntervalSec <= 0 {
		cnf.Poller.IntervalSec = DEFAULT_POLL_INTERVAL_SEC
	}

	if cnf.ActiveCollection.TTLSeconds <= 0 {
		cnf.ActiveCollection.TTLSeconds = DEFAULT_ACTIVE_COLLECTION_TTL
	}
	if cnf.Cron.DailyCollectionSchedule == "" {
		cnf.Cron.DailyCollectionSchedule = DEFAULT_DAILY_SCHEDULE
	}
	if cnf.PaymentProcessor.Timeout <= 0 {
		cnf.PaymentProcessor.Timeout = 30
	}
	if cnf.Analytics.PostHogEndpoint == "" {
		cnf.Analytics.PostHogEndpoint = "https://us.i.posthog.com"
	}
	if cnf.Metrics.Addr == "" {
		cnf.Metrics.Addr = DEFAULT_METRICS_ADDR
	}
}

// PollTimeout returns the poller timeout as a duration.
func (cnf *Configuration) PollTimeout() time.Duration {
	return secondsToDuration(cnf.Poller.TimeoutSec)
}

// PollInterval returns the poller interval as a duration.
func (cnf *Configuration) PollInterval() time.Duration {
	return secondsToDuration(cnf.Poller.IntervalSec)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.setDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
