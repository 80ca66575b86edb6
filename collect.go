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

	"github.com/blnkfinance/collector/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// collectionFact loads everything the rule engine needs about advanceID.
func (c *Collector) collectionFact(ctx context.Context, advanceID int64, trigger model.Trigger, payment *decimal.Decimal) (model.CollectionFact, error) {
	advance, err := c.datasource.GetAdvance(ctx, advanceID)
	if err != nil {
		return model.CollectionFact{}, err
	}

	attempts, err := c.datasource.CountSuccessfulCollectionAttempts(ctx, advanceID, model.ComplianceExemptTriggers)
	if err != nil {
		return model.CollectionFact{}, err
	}

	amount := advance.Outstanding
	if payment != nil {
		amount = *payment
	}

	return model.CollectionFact{
		Advance:            advance,
		Payment:            amount,
		Trigger:            trigger,
		SuccessfulAttempts: attempts,
		IsActive:           c.IsActiveCollection(ctx, advance.UserID, advance.ID),
	}, nil
}

// routeAdvance decides whether trigger's collection of advance goes to the task executor.
// precomputed carries a routing decision already read by the scanner.
func (c *Collector) routeAdvance(ctx context.Context, advance *model.Advance, trigger model.Trigger, precomputed bool) (model.Bucket, error) {
	if precomputed {
		return model.BucketTivan, nil
	}

	var isTivan bool
	var err error
	switch trigger {
	case model.TriggerDailyCronjob:
		isTivan, err = c.DailyCronjobExperiment(ctx, advance)
	case model.TriggerBankAccountUpdate:
		isTivan, err = c.BankAccountUpdateExperiment(ctx, advance)
	case model.TriggerTivanRetry:
		isTivan = true
	}
	if err != nil {
		return "", err
	}
	if isTivan {
		return model.BucketTivan, nil
	}
	return model.BucketLegacy, nil
}

// CollectAdvance evaluates a full-balance collection of advanceID and dispatches it when permitted.
// Rule violations are reported in the outcome, not as an error.
func (c *Collector) CollectAdvance(ctx context.Context, advanceID int64, trigger model.Trigger) (*model.CollectionOutcome, error) {
	return c.collectAdvance(ctx, advanceID, trigger, false)
}

func (c *Collector) collectAdvance(ctx context.Context, advanceID int64, trigger model.Trigger, precomputedTivan bool) (*model.CollectionOutcome, error) {
	fact, err := c.collectionFact(ctx, advanceID, trigger, nil)
	if err != nil {
		return nil, err
	}

	outcome := &model.CollectionOutcome{AdvanceID: advanceID, Trigger: trigger}
	ok, violations, err := CanCollect(fact)
	if err != nil {
		return nil, err
	}
	outcome.Violations = violations
	if !ok {
		for _, v := range violations {
			c.metrics.Increment("collection_violations_total", map[string]string{"type": string(v.Type), "trigger": string(trigger)})
		}
		logrus.WithFields(logrus.Fields{
			"advance_id": advanceID,
			"trigger":    trigger,
			"violations": len(violations),
		}).Debug("advance not collectible")
		return outcome, nil
	}

	route, err := c.routeAdvance(ctx, fact.Advance, trigger, precomputedTivan)
	if err != nil {
		return nil, fmt.Errorf("failed to route advance %d: %w", advanceID, err)
	}
	outcome.Route = route

	if route == model.BucketTivan {
		if err := c.SetActiveCollection(ctx, fact.Advance.UserID, fact.Advance.ID, 0); err != nil {
			return nil, err
		}
		outcome.TaskID = c.CreateAdvanceRepaymentTask(ctx, fact.Advance, trigger, model.TaskOptions{})
		outcome.Dispatched = true
		return outcome, nil
	}

	err = c.legacy.PublishCollectAdvance(ctx, LegacyCollectRequest{
		AdvanceID: fact.Advance.ID,
		UserID:    fact.Advance.UserID,
		Trigger:   trigger,
		Amount:    fact.Payment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish advance %d to legacy collection: %w", advanceID, err)
	}
	outcome.Dispatched = true
	return outcome, nil
}

// CollectUserPayment evaluates a manual payment of amount against advanceID and dispatches it when permitted.
// Executor-routed payments wait for the task result; a nil Status in the outcome means still pending.
func (c *Collector) CollectUserPayment(ctx context.Context, advanceID int64, trigger model.Trigger, paymentMethodID int64, amount decimal.Decimal) (*model.CollectionOutcome, error) {
	fact, err := c.collectionFact(ctx, advanceID, trigger, &amount)
	if err != nil {
		return nil, err
	}

	outcome := &model.CollectionOutcome{AdvanceID: advanceID, Trigger: trigger}
	ok, violations, err := CanCollect(fact)
	if err != nil {
		return nil, err
	}
	outcome.Violations = violations
	if !ok {
		return outcome, nil
	}

	isTivan, err := c.UserPaymentExperiment(ctx, fact.Advance)
	if err != nil {
		return nil, err
	}

	if !isTivan {
		outcome.Route = model.BucketLegacy
		err = c.legacy.PublishCollectAdvance(ctx, LegacyCollectRequest{
			AdvanceID: fact.Advance.ID,
			UserID:    fact.Advance.UserID,
			Trigger:   trigger,
			Amount:    amount,
			Payment:   &model.ManualPayment{PaymentMethodID: paymentMethodID, Amount: amount},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to publish user payment for advance %d: %w", advanceID, err)
		}
		outcome.Dispatched = true
		return outcome, nil
	}

	outcome.Route = model.BucketTivan
	taskID, err := c.CreateUserPaymentTask(ctx, fact.Advance, trigger, paymentMethodID, amount, model.TaskOptions{})
	if err != nil {
		return nil, err
	}
	outcome.TaskID = taskID
	outcome.Dispatched = true

	status, err := c.WaitForTaskResult(ctx, taskID, 0, 0)
	if err != nil {
		return nil, err
	}
	outcome.Status = status
	return outcome, nil
}

// PaymentHistory returns every payment recorded against advanceID, oldest first.
func (c *Collector) PaymentHistory(ctx context.Context, advanceID int64) ([]model.Payment, error) {
	return c.datasource.GetPaymentsByAdvance(ctx, advanceID)
}
