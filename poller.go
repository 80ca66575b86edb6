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
	"time"

	"github.com/blnkfinance/collector/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

var errNoAttemptYet = errors.New("task has no attempt result yet")

// GetTaskStatus reduces a task to its latest attempt's latest result and the payments of that attempt
// that succeeded or are pending. It returns nil while the task has no attempt result.
func GetTaskStatus(task *model.Task) *model.TaskStatus {
	if task == nil || len(task.Attempts) == 0 {
		return nil
	}

	latest := task.Attempts[0]
	for _, attempt := range task.Attempts[1:] {
		if attempt.CreatedAt.After(latest.CreatedAt) {
			latest = attempt
		}
	}
	if len(latest.Results) == 0 {
		return nil
	}

	result := latest.Results[0]
	for _, r := range latest.Results[1:] {
		if r.CreatedAt.After(result.CreatedAt) {
			result = r
		}
	}

	successful := []model.PaymentResult{}
	for _, p := range latest.PaymentResults {
		if p.IsSuccessful() {
			successful = append(successful, p)
		}
	}

	return &model.TaskStatus{
		TaskID:             task.ID,
		Result:             result,
		SuccessfulPayments: successful,
	}
}

// WaitForTaskResult polls the executor every interval until the task has an attempt result.
// Not found errors are retried. It returns nil, nil when timeout passes first; callers treat that as pending.
// Non-positive timeout and interval use the configured defaults.
func (c *Collector) WaitForTaskResult(ctx context.Context, taskID string, timeout, interval time.Duration) (*model.TaskStatus, error) {
	if timeout <= 0 {
		timeout = c.config.PollTimeout()
	}
	if interval <= 0 {
		interval = c.config.PollInterval()
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var status *model.TaskStatus
	operation := func() error {
		task, err := c.executor.Task(pollCtx, taskID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				return err
			}
			return backoff.Permanent(err)
		}
		status = GetTaskStatus(task)
		if status == nil {
			return errNoAttemptYet
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.NewConstantBackOff(interval), pollCtx))
	if err == nil {
		return status, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if pollCtx.Err() != nil {
		logrus.WithFields(logrus.Fields{
			"task_id": taskID,
			"timeout": timeout.String(),
		}).Warn("timed out waiting for task result")
		c.metrics.Increment("task_poll_timeouts_total", nil)
		return nil, nil
	}
	return nil, err
}
