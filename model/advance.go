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

type DisbursementStatus string

const (
	DisbursementPending      DisbursementStatus = "PENDING"
	DisbursementCompleted    DisbursementStatus = "COMPLETED"
	DisbursementUnknown      DisbursementStatus = "UNKNOWN"
	DisbursementReturned     DisbursementStatus = "RETURNED"
	DisbursementCanceled     DisbursementStatus = "CANCELED"
	DisbursementNotDisbursed DisbursementStatus = "NOTDISBURSED"
)

// Advance is the snapshot of an outstanding cash advance the collection core works with.
// Outstanding can go negative for a short time after an overpayment.
type Advance struct {
	ID                 int64              `json:"id"`
	UserID             int64              `json:"user_id"`
	Amount             decimal.Decimal    `json:"amount"`
	Fee                decimal.Decimal    `json:"fee"`
	Outstanding        decimal.Decimal    `json:"outstanding"`
	PaybackDate        time.Time          `json:"payback_date"`
	PaybackFrozen      bool               `json:"payback_frozen"`
	DisbursementStatus DisbursementStatus `json:"disbursement_status"`
	PaymentMethodID    int64              `json:"payment_method_id"`
	CreatedAt          time.Time          `json:"created_at"`
}

// IsCollectible reports whether the advance passes the static collection checks.
func (a *Advance) IsCollectible() bool {
	return a.Outstanding.IsPositive() && !a.PaybackFrozen && a.DisbursementStatus == DisbursementCompleted
}

// CollectibleAdvance is one row produced by the batch scanner.
type CollectibleAdvance struct {
	AdvanceID      int64 `json:"advance_id"`
	IsTivanAdvance bool  `json:"is_tivan_advance"`
}

// User carries the user facts the routing decisions need.
type User struct {
	ID    int64 `json:"id"`
	Staff bool  `json:"staff"`
}

type PaymentStatus string

const (
	PaymentStatusSuccess  PaymentStatus = "SUCCESS"
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusFailure  PaymentStatus = "FAILURE"
	PaymentStatusError    PaymentStatus = "ERROR"
	PaymentStatusCanceled PaymentStatus = "CANCELED"
)

// Payment mirrors a row of the payment table written by the executor worker.
type Payment struct {
	ID              string          `json:"id"`
	AdvanceID       int64           `json:"advance_id"`
	UserID          int64           `json:"user_id"`
	PaymentMethodID int64           `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          PaymentStatus   `json:"status"`
	ReferenceID     string          `json:"reference_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CollectionAttempt records one attempt to collect against an advance.
type CollectionAttempt struct {
	ID        string          `json:"id"`
	AdvanceID int64           `json:"advance_id"`
	Trigger   Trigger         `json:"trigger"`
	Amount    decimal.Decimal `json:"amount"`
	PaymentID string          `json:"payment_id"`
	TaskID    string          `json:"task_id"`
	CreatedAt time.Time       `json:"created_at"`
}
