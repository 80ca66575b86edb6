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
	"errors"
	"fmt"

	"github.com/blnkfinance/collector/model"
	"github.com/shopspring/decimal"
)

// minimumPayment is the smallest partial payment accepted while the balance is at least this large.
var minimumPayment = decimal.NewFromInt(5)

type collectionRule func(fact model.CollectionFact) *model.Violation

// collectionRules are evaluated in order and never short circuit.
var collectionRules = []collectionRule{
	paymentTooSmall,
	paymentTooLarge,
	paybackFrozen,
	disbursementNotComplete,
	tooManySuccessfulAttempts,
	paymentTooSmallForFinalAttempt,
	collectingAnotherAdvance,
}

func violation(t model.ViolationType, fact model.CollectionFact) *model.Violation {
	return &model.Violation{
		Type: t,
		Params: model.ViolationParams{
			AdvanceID:          fact.Advance.ID,
			Payment:            fact.Payment,
			Outstanding:        fact.Advance.Outstanding,
			Trigger:            fact.Trigger,
			SuccessfulAttempts: fact.SuccessfulAttempts,
		},
	}
}

func paymentTooSmall(fact model.CollectionFact) *model.Violation {
	payment, outstanding := fact.Payment, fact.Advance.Outstanding
	switch {
	case !payment.IsPositive():
		return violation(model.ViolationPaymentTooSmall, fact)
	case payment.LessThan(minimumPayment) && outstanding.GreaterThanOrEqual(minimumPayment):
		return violation(model.ViolationPaymentTooSmall, fact)
	case payment.LessThan(outstanding) && outstanding.LessThan(minimumPayment):
		return violation(model.ViolationPaymentTooSmall, fact)
	}
	return nil
}

func paymentTooLarge(fact model.CollectionFact) *model.Violation {
	if fact.Payment.GreaterThan(fact.Advance.Outstanding) {
		return violation(model.ViolationPaymentTooLarge, fact)
	}
	return nil
}

func paybackFrozen(fact model.CollectionFact) *model.Violation {
	if fact.Advance.PaybackFrozen {
		return violation(model.ViolationPaybackFrozen, fact)
	}
	return nil
}

func disbursementNotComplete(fact model.CollectionFact) *model.Violation {
	if fact.Advance.DisbursementStatus != model.DisbursementCompleted {
		return violation(model.ViolationDisbursementNotComplete, fact)
	}
	return nil
}

func tooManySuccessfulAttempts(fact model.CollectionFact) *model.Violation {
	if fact.Trigger.IsComplianceExempt() {
		return nil
	}
	if fact.SuccessfulAttempts >= model.MaxSuccessfulCollectionAttempts {
		return violation(model.ViolationTooManySuccessfulCollections, fact)
	}
	return nil
}

// The last allowed attempt must clear the balance.
func paymentTooSmallForFinalAttempt(fact model.CollectionFact) *model.Violation {
	if fact.Trigger.IsComplianceExempt() {
		return nil
	}
	if fact.SuccessfulAttempts == model.MaxSuccessfulCollectionAttempts-1 && fact.Payment.LessThan(fact.Advance.Outstanding) {
		return violation(model.ViolationPaymentTooSmallForFinalAttempt, fact)
	}
	return nil
}

func collectingAnotherAdvance(fact model.CollectionFact) *model.Violation {
	if !fact.IsActive && !fact.Trigger.IsComplianceExempt() {
		return violation(model.ViolationCollectingAnotherAdvance, fact)
	}
	return nil
}

func validateFact(fact model.CollectionFact) error {
	if fact.Advance == nil {
		return errors.New("collection fact has no advance")
	}
	if err := fact.Trigger.Validate(); err != nil {
		return err
	}
	if fact.SuccessfulAttempts < 0 {
		return fmt.Errorf("invalid successful attempt count %d", fact.SuccessfulAttempts)
	}
	return nil
}

// EvaluateCollection runs every collection rule against fact and returns all violations.
// An empty result means the collection is permitted. Malformed facts return an error.
func EvaluateCollection(fact model.CollectionFact) ([]model.Violation, error) {
	if err := validateFact(fact); err != nil {
		return nil, fmt.Errorf("failed to evaluate collection: %w", err)
	}

	violations := []model.Violation{}
	for _, rule := range collectionRules {
		if v := rule(fact); v != nil {
			violations = append(violations, *v)
		}
	}
	return violations, nil
}

// CanCollect reports whether fact passes every rule.
func CanCollect(fact model.CollectionFact) (bool, []model.Violation, error) {
	violations, err := EvaluateCollection(fact)
	if err != nil {
		return false, nil, err
	}
	return len(violations) == 0, violations, nil
}
