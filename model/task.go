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

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Process string

const (
	ProcessAdvance                  Process = "advance"
	ProcessAdvanceUseCurrentBalance Process = "advance-use-current-balance"
)

// ProcessForTrigger picks the executor process for an automatic collection.
func ProcessForTrigger(trigger Trigger) Process {
	if trigger == TriggerBankAccountUpdate {
		return ProcessAdvanceUseCurrentBalance
	}
	return ProcessAdvance
}

// ManualPayment is the user or admin initiated payment carried by a repayment task.
type ManualPayment struct {
	PaymentMethodID int64           `json:"paymentMethodId"`
	Amount          decimal.Decimal `json:"amount"`
	DisableFallback bool            `json:"disableFallback,omitempty"`
}

// RepaymentPayload is the body of a repayment task handed to the executor.
type RepaymentPayload struct {
	UserID    int64          `json:"userId"`
	AdvanceID int64          `json:"advanceId"`
	Process   Process        `json:"process"`
	Source    Trigger        `json:"source"`
	Payment   *ManualPayment `json:"payment,omitempty"`
}

type TaskOptions struct {
	TaskID    string    `json:"taskId,omitempty"`
	StartTime time.Time `json:"startTime,omitempty"`
}

type AttemptResultStatus string

const (
	AttemptResultSuccess AttemptResultStatus = "SUCCESS"
	AttemptResultFailure AttemptResultStatus = "FAILURE"
	AttemptResultPending AttemptResultStatus = "PENDING"
	AttemptResultError   AttemptResultStatus = "ERROR"
)

type AttemptResult struct {
	Result    AttemptResultStatus `json:"result"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
}

type PaymentResult struct {
	PaymentID       string          `json:"paymentId"`
	PaymentMethodID int64           `json:"paymentMethodId"`
	Amount          decimal.Decimal `json:"amount"`
	Status          PaymentStatus   `json:"status"`
	ReferenceID     string          `json:"referenceId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// IsSuccessful treats pending payments as provisionally successful.
func (p PaymentResult) IsSuccessful() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusPending
}

type TaskAttempt struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"createdAt"`
	Results        []AttemptResult `json:"results"`
	PaymentResults []PaymentResult `json:"paymentResults"`
}

// Task is the executor's view of a repayment task and its attempt history.
type Task struct {
	ID       string           `json:"id"`
	State    string           `json:"state"`
	Payload  RepaymentPayload `json:"payload"`
	Attempts []TaskAttempt    `json:"attempts"`
}

// TaskStatus is the outcome of the latest attempt of a task.
type TaskStatus struct {
	TaskID             string          `json:"taskId"`
	Result             AttemptResult   `json:"result"`
	SuccessfulPayments []PaymentResult `json:"successfulPayments"`
}
