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

import "github.com/shopspring/decimal"

type ViolationType string

const (
	ViolationPaymentTooSmall                ViolationType = "payment-too-small"
	ViolationPaymentTooLarge                ViolationType = "payment-too-large"
	ViolationPaybackFrozen                  ViolationType = "payback-frozen"
	ViolationDisbursementNotComplete        ViolationType = "disbursement-not-complete"
	ViolationTooManySuccessfulCollections   ViolationType = "too-many-successful-collection-attempts"
	ViolationPaymentTooSmallForFinalAttempt ViolationType = "payment-too-small-for-final-attempt"
	ViolationCollectingAnotherAdvance       ViolationType = "collecting-another-advance"
)

// CollectionFact is the input evaluated by the eligibility rules.
type CollectionFact struct {
	Advance            *Advance
	Payment            decimal.Decimal
	Trigger            Trigger
	SuccessfulAttempts int
	IsActive           bool
}

// ViolationParams echoes the facts a violation was raised on.
type ViolationParams struct {
	AdvanceID          int64           `json:"advanceId"`
	Payment            decimal.Decimal `json:"payment"`
	Outstanding        decimal.Decimal `json:"outstanding"`
	Trigger            Trigger         `json:"trigger"`
	SuccessfulAttempts int             `json:"successfulAttempts"`
}

type Violation struct {
	Type   ViolationType   `json:"type"`
	Params ViolationParams `json:"params"`
}

// HasViolation reports whether a violation of the given type is present.
func HasViolation(violations []Violation, violationType ViolationType) bool {
	for _, v := range violations {
		if v.Type == violationType {
			return true
		}
	}
	return false
}
