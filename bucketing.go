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
	"hash/fnv"
	"strconv"

	"github.com/blnkfinance/collector/config"
	"github.com/blnkfinance/collector/internal/analytics"
	"github.com/blnkfinance/collector/internal/apierror"
	"github.com/blnkfinance/collector/model"
	"github.com/sirupsen/logrus"
)

const (
	DailyCronjobExperimentName      = "tivan-daily-cronjob"
	BankAccountUpdateExperimentName = "tivan-bank-account-update"
	UserPaymentExperimentName       = "tivan-user-payment"
)

// unitFraction maps (experiment, unit) onto [0, 1). The same pair always maps to the same value.
func unitFraction(experiment, unit string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(experiment + ":" + unit))
	return float64(h.Sum64()>>11) / float64(uint64(1)<<53)
}

// weightedBucket assigns tivan to the first rollout/10000 of the unit space.
func weightedBucket(experiment, unit string, rollout int) model.Bucket {
	weights := []struct {
		bucket model.Bucket
		weight float64
	}{
		{model.BucketTivan, float64(rollout) / config.MAX_ROLLOUT},
		{model.BucketLegacy, float64(config.MAX_ROLLOUT-rollout) / config.MAX_ROLLOUT},
	}

	x := unitFraction(experiment, unit)
	cumulative := 0.0
	for _, w := range weights {
		cumulative += w.weight
		if x < cumulative {
			return w.bucket
		}
	}
	return model.BucketLegacy
}

// assign returns the bucket for a unit without touching storage.
func (c *Collector) assign(experiment, unit string, rollout int) model.Bucket {
	if rollout <= 0 {
		return model.BucketLegacy
	}
	if rollout >= config.MAX_ROLLOUT {
		return model.BucketTivan
	}
	return c.weighted(experiment, unit, rollout)
}

// bucketAdvance returns the durable bucket for advance in experiment. An existing marker always wins.
// A zero rollout routes to legacy without writing a marker so a later rollout can still pick the advance up.
func (c *Collector) bucketAdvance(ctx context.Context, experiment string, advance *model.Advance, unit string, rollout int) (model.Bucket, error) {
	marker, err := c.datasource.FindExperimentMarker(ctx, experiment, advance.ID)
	if err == nil {
		return marker.Bucket, nil
	}
	if !errors.Is(err, apierror.Code(apierror.ErrNotFound)) {
		return "", err
	}

	if rollout <= 0 {
		return model.BucketLegacy, nil
	}

	bucket := c.assign(experiment, unit, rollout)
	created, err := c.datasource.CreateExperimentMarker(ctx, &model.ExperimentMarker{
		EventName: experiment,
		EventUUID: advance.ID,
		UserID:    advance.UserID,
		Bucket:    bucket,
	})
	if err != nil {
		if !errors.Is(err, apierror.Code(apierror.ErrConflict)) {
			return "", err
		}
		// lost the insert race, the winner's bucket is the durable one
		existing, ferr := c.datasource.FindExperimentMarker(ctx, experiment, advance.ID)
		if ferr != nil {
			return "", ferr
		}
		return existing.Bucket, nil
	}

	logrus.WithFields(logrus.Fields{
		"experiment": experiment,
		"advance_id": advance.ID,
		"bucket":     created.Bucket,
	}).Info("advance bucketed")
	c.metrics.Increment("experiment_assignments_total", map[string]string{"experiment": experiment, "bucket": string(created.Bucket)})
	c.analytics.TrackExposure(analytics.Exposure{
		Experiment: experiment,
		DistinctID: strconv.FormatInt(advance.UserID, 10),
		Bucket:     string(created.Bucket),
		AdvanceID:  advance.ID,
		UserID:     advance.UserID,
	})
	return created.Bucket, nil
}

// DailyCronjobExperiment reports whether a daily cron collection of advance goes to the task executor.
func (c *Collector) DailyCronjobExperiment(ctx context.Context, advance *model.Advance) (bool, error) {
	bucket, err := c.bucketAdvance(ctx, DailyCronjobExperimentName, advance, strconv.FormatInt(advance.ID, 10), c.config.Experiments.DailyCronjobRollout)
	return bucket == model.BucketTivan, err
}

// BankAccountUpdateExperiment reports whether a bank account update collection of advance goes to the task executor.
func (c *Collector) BankAccountUpdateExperiment(ctx context.Context, advance *model.Advance) (bool, error) {
	bucket, err := c.bucketAdvance(ctx, BankAccountUpdateExperimentName, advance, strconv.FormatInt(advance.ID, 10), c.config.Experiments.BankAccountUpdateRollout)
	return bucket == model.BucketTivan, err
}

// UserPaymentExperiment reports whether a manual payment on advance goes to the task executor.
// Staff users always do.
func (c *Collector) UserPaymentExperiment(ctx context.Context, advance *model.Advance) (bool, error) {
	user, err := c.datasource.GetUser(ctx, advance.UserID)
	if err != nil && !errors.Is(err, apierror.Code(apierror.ErrNotFound)) {
		return false, err
	}
	if user != nil && user.Staff {
		return true, nil
	}

	bucket, err := c.bucketAdvance(ctx, UserPaymentExperimentName, advance, strconv.FormatInt(advance.UserID, 10), c.config.Experiments.UserPaymentRollout)
	return bucket == model.BucketTivan, err
}

// ExperimentForTrigger returns the routing experiment name for trigger, or "" when the trigger always
// uses the legacy publisher.
func ExperimentForTrigger(trigger model.Trigger) string {
	switch trigger {
	case model.TriggerDailyCronjob:
		return DailyCronjobExperimentName
	case model.TriggerBankAccountUpdate:
		return BankAccountUpdateExperimentName
	}
	return ""
}
