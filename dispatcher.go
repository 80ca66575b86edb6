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
	"fmt"
	"time"

	"github.com/blnkfinance/collector/internal/apierror"
	"github.com/blnkfinance/collector/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var dispatchTracer = otel.Tracer("collector.dispatch")

// CreateTaskID derives the idempotent task id for an advance collection created at createdAt.
func CreateTaskID(advanceID int64, trigger model.Trigger, createdAt time.Time) string {
	return fmt.Sprintf("tivan-%s_advance-id_%d-%d", trigger, advanceID, createdAt.Unix())
}

func (c *Collector) taskOptions(advance *model.Advance, trigger model.Trigger, opts model.TaskOptions) model.TaskOptions {
	if opts.TaskID == "" {
		opts.TaskID = CreateTaskID(advance.ID, trigger, c.now())
	}
	return opts
}

// CreateAdvanceRepaymentTask enqueues a fire-and-forget repayment task for advance and returns its id.
// Enqueue failures are logged and counted but not returned.
func (c *Collector) CreateAdvanceRepaymentTask(ctx context.Context, advance *model.Advance, trigger model.Trigger, opts model.TaskOptions) string {
	ctx, span := dispatchTracer.Start(ctx, "CreateAdvanceRepaymentTask", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	opts = c.taskOptions(advance, trigger, opts)
	payload := model.RepaymentPayload{
		UserID:    advance.UserID,
		AdvanceID: advance.ID,
		Process:   model.ProcessForTrigger(trigger),
		Source:    trigger,
	}
	span.SetAttributes(attribute.String("task.id", opts.TaskID), attribute.Int64("advance.id", advance.ID))

	if err := c.executor.EnqueueTask(ctx, payload, opts); err != nil {
		span.RecordError(err)
		logrus.WithFields(logrus.Fields{
			"task_id":    opts.TaskID,
			"user_id":    payload.UserID,
			"advance_id": payload.AdvanceID,
			"process":    payload.Process,
			"source":     payload.Source,
			"error":      err,
		}).Error("failed to enqueue advance repayment task")
		c.metrics.Increment("task_enqueue_errors_total", map[string]string{"trigger": string(trigger), "kind": "advance"})
		return opts.TaskID
	}

	c.metrics.Increment("tasks_enqueued_total", map[string]string{"trigger": string(trigger), "kind": "advance"})
	return opts.TaskID
}

func validateManualPayment(payment model.ManualPayment) error {
	return validation.ValidateStruct(&payment,
		validation.Field(&payment.PaymentMethodID, validation.Required),
		validation.Field(&payment.Amount, validation.By(func(value interface{}) error {
			amount, _ := value.(decimal.Decimal)
			if !amount.IsPositive() {
				return fmt.Errorf("must be greater than zero")
			}
			return nil
		})),
	)
}

// CreateUserPaymentTask enqueues a manual payment task and waits for the executor to acknowledge it.
// Only user and admin triggers may create manual payments. Any failure is returned.
func (c *Collector) CreateUserPaymentTask(ctx context.Context, advance *model.Advance, trigger model.Trigger, paymentMethodID int64, amount decimal.Decimal, opts model.TaskOptions) (string, error) {
	ctx, span := dispatchTracer.Start(ctx, "CreateUserPaymentTask", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	if !trigger.SupportsManualPayment() {
		return "", apierror.NewAPIError(apierror.ErrInvalidParameters,
			fmt.Sprintf("manual payment tasks are not supported for trigger %s", trigger),
			map[string]string{"trigger": string(trigger)})
	}

	payment := model.ManualPayment{PaymentMethodID: paymentMethodID, Amount: amount}
	if err := validateManualPayment(payment); err != nil {
		return "", apierror.NewAPIError(apierror.ErrInvalidParameters, "invalid manual payment", err)
	}

	opts = c.taskOptions(advance, trigger, opts)
	payload := model.RepaymentPayload{
		UserID:    advance.UserID,
		AdvanceID: advance.ID,
		Process:   model.ProcessForTrigger(trigger),
		Source:    trigger,
		Payment:   &payment,
	}
	span.SetAttributes(attribute.String("task.id", opts.TaskID), attribute.Int64("advance.id", advance.ID))

	if err := c.executor.EnqueueAPITask(ctx, payload, opts); err != nil {
		span.RecordError(err)
		logrus.WithFields(logrus.Fields{
			"task_id":           opts.TaskID,
			"user_id":           payload.UserID,
			"advance_id":        payload.AdvanceID,
			"source":            payload.Source,
			"payment_method_id": paymentMethodID,
			"amount":            amount.String(),
			"error":             err,
		}).Error("failed to enqueue user payment task")
		c.metrics.Increment("task_enqueue_errors_total", map[string]string{"trigger": string(trigger), "kind": "user-payment"})
		return "", apierror.NewAPIError(apierror.ErrEnqueueFailed, "failed to create user payment task", err)
	}

	c.metrics.Increment("tasks_enqueued_total", map[string]string{"trigger": string(trigger), "kind": "user-payment"})
	return opts.TaskID, nil
}
