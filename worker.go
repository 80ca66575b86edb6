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
	"fmt"

	"github.com/blnkfinance/collector/internal/payments"
	"github.com/blnkfinance/collector/model"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AttemptStore reads the attempt history a task has accumulated across retries.
type AttemptStore interface {
	Attempts(ctx context.Context, queue, taskID string) ([]model.TaskAttempt, error)
}

// Worker executes repayment tasks: it charges the advance, records the outcome and
// appends the attempt to the task's result so pollers can read it.
type Worker struct {
	collector *Collector
	processor payments.Processor
	attempts  AttemptStore
}

func NewWorker(c *Collector, processor payments.Processor, attempts AttemptStore) *Worker {
	return &Worker{collector: c, processor: processor, attempts: attempts}
}

func attemptResultFor(status model.PaymentStatus) model.AttemptResultStatus {
	switch status {
	case model.PaymentStatusSuccess:
		return model.AttemptResultSuccess
	case model.PaymentStatusPending:
		return model.AttemptResultPending
	case model.PaymentStatusFailure, model.PaymentStatusCanceled:
		return model.AttemptResultFailure
	}
	return model.AttemptResultError
}

// ProcessTask is the asynq handler for TypeAdvanceRepayment.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("collector.worker").Start(ctx, "Process Repayment Task", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var payload model.RepaymentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to decode repayment payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	queue, _ := asynq.GetQueueName(ctx)
	c := w.collector
	span.SetAttributes(attribute.String("task.id", taskID), attribute.Int64("advance.id", payload.AdvanceID))

	attempt := model.TaskAttempt{ID: uuid.New().String(), CreatedAt: c.now()}

	advance, err := c.datasource.GetAdvance(ctx, payload.AdvanceID)
	if err != nil {
		span.RecordError(err)
		w.finish(ctx, t, queue, taskID, attempt, model.AttemptResultError, err)
		return err
	}

	amount := advance.Outstanding
	paymentMethodID := advance.PaymentMethodID
	disableFallback := false
	if payload.Payment != nil {
		amount = payload.Payment.Amount
		paymentMethodID = payload.Payment.PaymentMethodID
		disableFallback = payload.Payment.DisableFallback
	}

	if !advance.IsCollectible() || !amount.IsPositive() {
		err := fmt.Errorf("advance %d is not collectible", advance.ID)
		w.finish(ctx, t, queue, taskID, attempt, model.AttemptResultFailure, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	resp, err := w.processor.Charge(ctx, payments.ChargeRequest{
		IdempotencyKey:  taskID,
		UserID:          advance.UserID,
		AdvanceID:       advance.ID,
		PaymentMethodID: paymentMethodID,
		Amount:          amount,
		UseCurrentBal:   payload.Process == model.ProcessAdvanceUseCurrentBalance,
		DisableFallback: disableFallback,
	})
	if err != nil {
		span.RecordError(err)
		c.metrics.Increment("worker_charges_total", map[string]string{"status": string(model.PaymentStatusError)})
		if recErr := c.datasource.RecordCollectionAttempt(ctx, &model.CollectionAttempt{
			AdvanceID: advance.ID,
			Trigger:   payload.Source,
			Amount:    amount,
			TaskID:    taskID,
		}); recErr != nil {
			logrus.WithError(recErr).WithField("advance_id", advance.ID).Error("failed to record collection attempt")
		}
		w.finish(ctx, t, queue, taskID, attempt, model.AttemptResultError, err)
		return err
	}

	payment := &model.Payment{
		AdvanceID:       advance.ID,
		UserID:          advance.UserID,
		PaymentMethodID: paymentMethodID,
		Amount:          amount,
		Status:          resp.PaymentStatus(),
		ReferenceID:     resp.ReferenceID,
		CreatedAt:       c.now(),
	}
	if resp.PaymentMethodID != 0 {
		payment.PaymentMethodID = resp.PaymentMethodID
	}
	if resp.Amount.IsPositive() {
		payment.Amount = resp.Amount
	}
	c.metrics.Increment("worker_charges_total", map[string]string{"status": string(payment.Status)})

	outstanding, err := c.datasource.RecordPayment(ctx, payment, &model.CollectionAttempt{
		AdvanceID: advance.ID,
		Trigger:   payload.Source,
		Amount:    payment.Amount,
		TaskID:    taskID,
		CreatedAt: payment.CreatedAt,
	})
	if err != nil {
		// the charge went through; retrying would charge again
		span.RecordError(err)
		logrus.WithFields(logrus.Fields{
			"task_id":      taskID,
			"advance_id":   advance.ID,
			"reference_id": payment.ReferenceID,
			"error":        err,
		}).Error("failed to record payment")
		attempt.PaymentResults = append(attempt.PaymentResults, paymentResult(payment))
		w.finish(ctx, t, queue, taskID, attempt, attemptResultFor(payment.Status), err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	attempt.PaymentResults = append(attempt.PaymentResults, paymentResult(payment))
	if payment.Status == model.PaymentStatusSuccess || payment.Status == model.PaymentStatusPending {
		w.updateActiveCollection(ctx, advance, payment, outstanding)
	}

	w.finish(ctx, t, queue, taskID, attempt, attemptResultFor(payment.Status), nil)
	return nil
}

func paymentResult(p *model.Payment) model.PaymentResult {
	return model.PaymentResult{
		PaymentID:       p.ID,
		PaymentMethodID: p.PaymentMethodID,
		Amount:          p.Amount,
		Status:          p.Status,
		ReferenceID:     p.ReferenceID,
		CreatedAt:       p.CreatedAt,
	}
}

// updateActiveCollection keeps the advance claimed for a week after a payment, and releases it once paid off.
func (w *Worker) updateActiveCollection(ctx context.Context, advance *model.Advance, payment *model.Payment, outstanding decimal.Decimal) {
	c := w.collector
	if !outstanding.IsPositive() {
		if _, err := c.ClearActiveCollection(ctx, advance.UserID, advance.ID); err != nil {
			logrus.WithError(err).WithField("advance_id", advance.ID).Warn("failed to clear active collection")
		}
		return
	}
	ttl := TTLFromPayment(payment.CreatedAt, c.now())
	if err := c.SetActiveCollection(ctx, advance.UserID, advance.ID, ttl); err != nil {
		logrus.WithError(err).WithField("advance_id", advance.ID).Warn("failed to set active collection")
	}
}

// finish appends attempt to the task's history and writes the history as the task result.
func (w *Worker) finish(ctx context.Context, t *asynq.Task, queue, taskID string, attempt model.TaskAttempt, result model.AttemptResultStatus, cause error) {
	r := model.AttemptResult{Result: result, CreatedAt: w.collector.now()}
	if cause != nil {
		r.Error = cause.Error()
	}
	attempt.Results = append(attempt.Results, r)

	var history []model.TaskAttempt
	if w.attempts != nil && taskID != "" {
		prior, err := w.attempts.Attempts(ctx, queue, taskID)
		if err != nil {
			logrus.WithError(err).WithField("task_id", taskID).Warn("failed to read attempt history")
		}
		history = prior
	}
	history = append(history, attempt)

	writer := t.ResultWriter()
	if writer == nil {
		return
	}
	b, err := json.Marshal(history)
	if err != nil {
		logrus.WithError(err).WithField("task_id", taskID).Error("failed to encode attempt history")
		return
	}
	if _, err := writer.Write(b); err != nil {
		logrus.WithError(err).WithField("task_id", taskID).Error("failed to write attempt history")
	}
}
