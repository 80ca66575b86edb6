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

	"github.com/blnkfinance/collector/model"
	"github.com/shopspring/decimal"
)

// ErrTaskNotFound is returned by a TaskExecutor when it has no record of a task yet.
var ErrTaskNotFound = errors.New("task not found")

// TaskExecutor is the asynchronous executor repayment tasks are handed to.
type TaskExecutor interface {
	// EnqueueTask submits a task without waiting for the executor to acknowledge it.
	EnqueueTask(ctx context.Context, payload model.RepaymentPayload, opts model.TaskOptions) error

	// EnqueueAPITask submits a task and returns once the executor has acknowledged it.
	EnqueueAPITask(ctx context.Context, payload model.RepaymentPayload, opts model.TaskOptions) error

	// Task fetches a task with its attempt history. Unknown tasks return ErrTaskNotFound.
	Task(ctx context.Context, taskID string) (*model.Task, error)
}

// LegacyCollectRequest is the message consumed by the legacy collection publisher.
type LegacyCollectRequest struct {
	AdvanceID int64                `json:"advanceId"`
	UserID    int64                `json:"userId"`
	Trigger   model.Trigger        `json:"trigger"`
	Amount    decimal.Decimal      `json:"amount"`
	Payment   *model.ManualPayment `json:"payment,omitempty"`
}

// LegacyPublisher hands a collection to the legacy path.
type LegacyPublisher interface {
	PublishCollectAdvance(ctx context.Context, req LegacyCollectRequest) error
}
