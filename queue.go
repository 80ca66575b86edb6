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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/collector/config"
	redis_db "github.com/blnkfinance/collector/internal/redis-db"
	"github.com/blnkfinance/collector/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	TypeAdvanceRepayment     = "tivan:advance-repayment"
	TypeLegacyCollectAdvance = "legacy:collect-advance"
)

// Queue is the asynq backed TaskExecutor, AttemptStore and LegacyPublisher.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	conf      *config.Configuration
}

// NewQueue initializes a new Queue instance with the provided configuration.
// It builds the asynq client and inspector for the configured redis instance.
//
// Parameters:
// - conf *config.Configuration: The collector configuration carrying the redis DSN and queue names.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
// - error: An error if the redis URL cannot be parsed.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := redis_db.AsynqOption(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis url: %w", err)
	}

	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		conf:      conf,
	}, nil
}

// Close releases the client and inspector connections.
func (q *Queue) Close() error {
	return errors.Join(q.Client.Close(), q.Inspector.Close())
}

func (q *Queue) retention() time.Duration {
	return time.Duration(q.conf.Queue.ResultRetention) * time.Hour
}

// newRepaymentTask builds the asynq task for payload on queue.
func newRepaymentTask(queue string, payload model.RepaymentPayload, opts model.TaskOptions, maxRetry int, retention time.Duration) (*asynq.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	taskOptions := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
		asynq.Retention(retention),
	}
	if opts.TaskID != "" {
		taskOptions = append(taskOptions, asynq.TaskID(opts.TaskID))
	}
	if !opts.StartTime.IsZero() {
		taskOptions = append(taskOptions, asynq.ProcessAt(opts.StartTime))
	}
	return asynq.NewTask(TypeAdvanceRepayment, b, taskOptions...), nil
}

func (q *Queue) enqueue(ctx context.Context, queue string, payload model.RepaymentPayload, opts model.TaskOptions) error {
	task, err := newRepaymentTask(queue, payload, opts, q.conf.Queue.MaxRetry, q.retention())
	if err != nil {
		return err
	}

	info, err := q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.WithField("task_id", opts.TaskID).Info("repayment task already enqueued")
		return nil
	}
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"task_id": info.ID,
		"queue":   info.Queue,
	}).Info("repayment task enqueued")
	return nil
}

// EnqueueTask adds a repayment task to the fire-and-forget queue.
// A task whose ID is already known to asynq counts as enqueued.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - payload model.RepaymentPayload: The repayment to run.
// - opts model.TaskOptions: Optional task ID and start time.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) EnqueueTask(ctx context.Context, payload model.RepaymentPayload, opts model.TaskOptions) error {
	return q.enqueue(ctx, q.conf.Queue.TaskQueue, payload, opts)
}

// EnqueueAPITask enqueues on the API queue and confirms the task is visible to the executor.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - payload model.RepaymentPayload: The repayment to run, including the manual payment.
// - opts model.TaskOptions: Optional task ID and start time.
//
// Returns:
// - error: An error if the task could not be enqueued or was not found afterwards.
func (q *Queue) EnqueueAPITask(ctx context.Context, payload model.RepaymentPayload, opts model.TaskOptions) error {
	if err := q.enqueue(ctx, q.conf.Queue.APITaskQueue, payload, opts); err != nil {
		return err
	}
	if opts.TaskID == "" {
		return nil
	}
	if _, err := q.Inspector.GetTaskInfo(q.conf.Queue.APITaskQueue, opts.TaskID); err != nil {
		return fmt.Errorf("task %s was not acknowledged: %w", opts.TaskID, err)
	}
	return nil
}

func (q *Queue) taskInfo(taskID string) (*asynq.TaskInfo, error) {
	for _, queue := range []string{q.conf.Queue.APITaskQueue, q.conf.Queue.TaskQueue} {
		info, err := q.Inspector.GetTaskInfo(queue, taskID)
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return info, nil
	}
	return nil, ErrTaskNotFound
}

// Task looks up a task on both repayment queues and decodes its attempt history.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - taskID string: The ID the task was enqueued with.
//
// Returns:
// - *model.Task: The task and the attempts recorded so far.
// - error: ErrTaskNotFound if neither queue knows the task, or a decoding error.
func (q *Queue) Task(ctx context.Context, taskID string) (*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := q.taskInfo(taskID)
	if err != nil {
		return nil, err
	}
	return decodeTaskInfo(info)
}

// Attempts returns the attempt history recorded for a task so far.
func (q *Queue) Attempts(ctx context.Context, queue, taskID string) ([]model.TaskAttempt, error) {
	info, err := q.Inspector.GetTaskInfo(queue, taskID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAttempts(info.Result)
}

// PublishCollectAdvance hands an advance to the legacy collection consumer.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - req LegacyCollectRequest: The advance and trigger to collect.
//
// Returns:
// - error: An error if the message could not be enqueued.
func (q *Queue) PublishCollectAdvance(ctx context.Context, req LegacyCollectRequest) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeLegacyCollectAdvance, b, asynq.Queue(q.conf.Queue.LegacyQueue), asynq.MaxRetry(q.conf.Queue.MaxRetry))
	if _, err := q.Client.EnqueueContext(ctx, task); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"advance_id": req.AdvanceID,
		"trigger":    req.Trigger,
	}).Info("advance published to legacy collection")
	return nil
}

func decodeAttempts(result []byte) ([]model.TaskAttempt, error) {
	if len(result) == 0 {
		return nil, nil
	}
	var attempts []model.TaskAttempt
	if err := json.Unmarshal(result, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode task attempts: %w", err)
	}
	return attempts, nil
}

func decodeTaskInfo(info *asynq.TaskInfo) (*model.Task, error) {
	task := &model.Task{ID: info.ID, State: info.State.String()}
	if err := json.Unmarshal(info.Payload, &task.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode task payload: %w", err)
	}
	attempts, err := decodeAttempts(info.Result)
	if err != nil {
		return nil, err
	}
	task.Attempts = attempts
	return task, nil
}
