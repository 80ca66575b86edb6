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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	redlock "github.com/blnkfinance/collector/internal/lock"
	"github.com/blnkfinance/collector/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrScanInProgress is returned when another process holds the lock for the same scan and day.
var ErrScanInProgress = errors.New("scan already in progress")

// RowProcessor handles one collectible advance. Returned errors are counted, never fatal to the scan.
type RowProcessor func(ctx context.Context, row model.CollectibleAdvance) error

func (c *Collector) withScanDefaults(criteria model.ScanCriteria) model.ScanCriteria {
	if criteria.PageSize <= 0 {
		criteria.PageSize = c.config.Scanner.PageSize
	}
	if criteria.Concurrency <= 0 {
		criteria.Concurrency = c.config.Scanner.Concurrency
	}
	if criteria.Name == "" {
		criteria.Name = "scan"
	}
	return criteria
}

// ScanCollectibleAdvances pages through collectible advances in ascending id order and hands every row
// to process, with at most criteria.Concurrency rows in flight. A page is only requested once the previous
// page has been fully processed. The scan ends with the first page shorter than the page size.
func (c *Collector) ScanCollectibleAdvances(ctx context.Context, criteria model.ScanCriteria, process RowProcessor) (model.ScanResult, error) {
	criteria = c.withScanDefaults(criteria)

	ctx, span := otel.Tracer("collector.scanner").Start(ctx, "ScanCollectibleAdvances")
	defer span.End()

	var result model.ScanResult
	var succeeded, failed int64
	var lastSeenID int64

	for {
		page, err := c.datasource.GetCollectibleAdvancesPage(ctx, criteria, lastSeenID)
		if err != nil {
			span.RecordError(err)
			result.Succeeded, result.Failed = atomic.LoadInt64(&succeeded), atomic.LoadInt64(&failed)
			return result, fmt.Errorf("failed to fetch page after advance %d: %w", lastSeenID, err)
		}
		result.Pages++
		result.Rows += int64(len(page))

		c.processPage(ctx, criteria, page, process, &succeeded, &failed)

		if len(page) > 0 {
			lastSeenID = page[len(page)-1].AdvanceID
		}
		if len(page) < criteria.PageSize {
			break
		}
	}

	result.Succeeded, result.Failed = atomic.LoadInt64(&succeeded), atomic.LoadInt64(&failed)
	span.SetAttributes(
		attribute.Int("scan.pages", result.Pages),
		attribute.Int64("scan.rows", result.Rows),
		attribute.Int64("scan.failed", result.Failed),
	)
	c.metrics.Gauge("scanner_last_rows", float64(result.Rows), map[string]string{"scan": criteria.Name})

	logrus.WithFields(logrus.Fields{
		"scan":      criteria.Name,
		"pages":     result.Pages,
		"rows":      result.Rows,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("scan finished")
	return result, nil
}

func (c *Collector) processPage(ctx context.Context, criteria model.ScanCriteria, page []model.CollectibleAdvance, process RowProcessor, succeeded, failed *int64) {
	semaphore := make(chan struct{}, criteria.Concurrency)
	var wg sync.WaitGroup

	for _, row := range page {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(row model.CollectibleAdvance) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.processRow(ctx, row, process); err != nil {
				atomic.AddInt64(failed, 1)
				c.metrics.Increment("scanner_row_failures_total", map[string]string{"scan": criteria.Name})
				logrus.WithFields(logrus.Fields{
					"scan":       criteria.Name,
					"advance_id": row.AdvanceID,
					"error":      err,
				}).Error("failed to process advance")
				return
			}
			atomic.AddInt64(succeeded, 1)
		}(row)
	}

	wg.Wait()
}

func (c *Collector) processRow(ctx context.Context, row model.CollectibleAdvance, process RowProcessor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing advance %d: %v", row.AdvanceID, r)
		}
	}()
	return process(ctx, row)
}

// CollectRowProcessor returns a RowProcessor that collects each row for trigger.
func (c *Collector) CollectRowProcessor(trigger model.Trigger) RowProcessor {
	return func(ctx context.Context, row model.CollectibleAdvance) error {
		_, err := c.collectAdvance(ctx, row.AdvanceID, trigger, row.IsTivanAdvance)
		return err
	}
}

// ScanCriteriaForTrigger builds the criteria of the scheduled scan for trigger on runDate.
func (c *Collector) ScanCriteriaForTrigger(trigger model.Trigger, runDate time.Time) (model.ScanCriteria, error) {
	minAmount, err := decimal.NewFromString(c.config.Scanner.MinAdvanceAmount)
	if err != nil {
		return model.ScanCriteria{}, fmt.Errorf("invalid minimum advance amount %q: %w", c.config.Scanner.MinAdvanceAmount, err)
	}

	day := time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, runDate.Location())
	return c.withScanDefaults(model.ScanCriteria{
		Name:             string(trigger),
		EventName:        ExperimentForTrigger(trigger),
		MinDate:          day.AddDate(0, 0, -c.config.Scanner.LookbackDays),
		MaxDate:          day,
		MinAdvanceAmount: minAmount,
	}), nil
}

// RunScan runs the scheduled scan for trigger on runDate under a distributed lock, so overlapping runs
// for the same day do not collect twice.
func (c *Collector) RunScan(ctx context.Context, trigger model.Trigger, runDate time.Time) (model.ScanResult, error) {
	if err := trigger.Validate(); err != nil {
		return model.ScanResult{}, err
	}

	criteria, err := c.ScanCriteriaForTrigger(trigger, runDate)
	if err != nil {
		return model.ScanResult{}, err
	}

	lock := redlock.NewScanLock(c.redis, criteria.Name, runDate)
	ttl := time.Duration(c.config.Scanner.LockTTLMinutes) * time.Minute
	acquired, err := lock.TryAcquire(ctx, ttl)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	if !acquired {
		logrus.WithField("lock", lock.Key()).Warn("scan already running, skipping")
		return model.ScanResult{}, ErrScanInProgress
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logrus.WithError(err).WithField("lock", lock.Key()).Warn("failed to release scan lock")
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go keepScanLock(ctx, lock, ttl, done)

	return c.ScanCollectibleAdvances(ctx, criteria, c.CollectRowProcessor(trigger))
}

// keepScanLock extends lock every half ttl until done is closed.
func keepScanLock(ctx context.Context, lock *redlock.ScanLock, ttl time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Extend(ctx, ttl); err != nil {
				logrus.WithError(err).WithField("lock", lock.Key()).Warn("failed to extend scan lock")
			}
		}
	}
}
