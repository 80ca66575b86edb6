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

package collector

import (
	"embed"
	"fmt"
	"time"

	"github.com/blnkfinance/collector/config"
	"github.com/blnkfinance/collector/database"
	"github.com/blnkfinance/collector/internal/analytics"
	"github.com/blnkfinance/collector/internal/metrics"
	redis_db "github.com/blnkfinance/collector/internal/redis-db"
	"github.com/blnkfinance/collector/model"
	"github.com/redis/go-redis/v9"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Collector decides which advances are collectible and dispatches their collection.
type Collector struct {
	config     *config.Configuration
	datasource database.IDataSource
	redis      redis.UniversalClient
	executor   TaskExecutor
	legacy     LegacyPublisher
	metrics    metrics.Sink
	analytics  analytics.Tracker
	now        func() time.Time

	// weighted assigns a bucket for a non-trivial rollout.
	weighted func(experiment, unit string, rollout int) model.Bucket
}

type Option func(*Collector)

func WithRedis(client redis.UniversalClient) Option {
	return func(c *Collector) { c.redis = client }
}

func WithExecutor(executor TaskExecutor) Option {
	return func(c *Collector) { c.executor = executor }
}

func WithLegacyPublisher(publisher LegacyPublisher) Option {
	return func(c *Collector) { c.legacy = publisher }
}

func WithMetrics(sink metrics.Sink) Option {
	return func(c *Collector) { c.metrics = sink }
}

func WithAnalytics(tracker analytics.Tracker) Option {
	return func(c *Collector) { c.analytics = tracker }
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// NewCollector wires a Collector from the loaded configuration. Dependencies not passed
// as options are built from config: a redis client and the asynq backed executor and legacy publisher.
func NewCollector(db database.IDataSource, opts ...Option) (*Collector, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	c := &Collector{
		config:     configuration,
		datasource: db,
		metrics:    metrics.Noop{},
		analytics:  analytics.Noop{},
		now:        time.Now,
		weighted:   weightedBucket,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.redis == nil {
		redisClient, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns}, configuration.Redis.SkipTLSVerify)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.redis = redisClient.Client()
	}

	if c.executor == nil || c.legacy == nil {
		queue, err := NewQueue(configuration)
		if err != nil {
			return nil, err
		}
		if c.executor == nil {
			c.executor = queue
		}
		if c.legacy == nil {
			c.legacy = queue
		}
	}

	return c, nil
}

// Config returns the configuration the collector was built with.
func (c *Collector) Config() *config.Configuration {
	return c.config
}
