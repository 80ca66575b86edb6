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
	"strconv"
	"testing"

	"github.com/blnkfinance/collector/database/mocks"
	"github.com/blnkfinance/collector/internal/apierror"
	"github.com/blnkfinance/collector/internal/payments"
	"github.com/blnkfinance/collector/model"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func repaymentTask(t *testing.T, payload model.RepaymentPayload) *asynq.Task {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TypeAdvanceRepayment, b)
}

func newTestWorker(t *testing.T) (*Worker, *testCollector, *mocks.MockDataSource, *MockProcessor) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, nil)
	processor := &MockProcessor{}
	return NewWorker(c.Collector, processor, &MockAttemptStore{}), c, ds, processor
}

func TestProcessTask_ChargesOutstandingBalance(t *testing.T) {
	w, c, ds, processor := newTestWorker(t)
	sink := newRecordingSink()
	c.metrics = sink
	advance := fakeAdvance(dec("60"))

	ds.On("GetAdvance", mock.Anything, advance.ID).Return(advance, nil)
	processor.On("Charge", mock.Anything, mock.MatchedBy(func(req payments.ChargeRequest) bool {
		return req.AdvanceID == advance.ID && req.UserID == advance.UserID && req.Amount.Equal(dec("60")) &&
			req.PaymentMethodID == advance.PaymentMethodID && !req.UseCurrentBal && !req.DisableFallback
	})).Return(&payments.ChargeResponse{ReferenceID: "ch_1", Status: "succeeded"}, nil)
	ds.On("RecordPayment", mock.Anything, mock.MatchedBy(func(p *model.Payment) bool {
		return p.Status == model.PaymentStatusSuccess && p.ReferenceID == "ch_1" && p.Amount.Equal(dec("60"))
	}), mock.MatchedBy(func(a *model.CollectionAttempt) bool {
		return a.AdvanceID == advance.ID && a.Trigger == model.TriggerDailyCronjob && a.Amount.Equal(dec("60"))
	})).Return(decimal.NewFromInt(20), nil)

	err := w.ProcessTask(context.Background(), repaymentTask(t, model.RepaymentPayload{
		UserID: advance.UserID, AdvanceID: advance.ID, Process: model.ProcessAdvance, Source: model.TriggerDailyCronjob,
	}))
	require.NoError(t, err)

	val, err := c.mr.Get(ActiveCollectionKey(advance.UserID))
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(advance.ID, 10), val)
	assert.Equal(t, TTLFromPayment(fixedNow, fixedNow), c.mr.TTL(ActiveCollectionKey(advance.UserID)))
	assert.Equal(t, float64(1), sink.count("worker_charges_total", map[string]string{"status": "SUCCESS"}))
	ds.AssertExpectations(t)
}

func TestProcessTask_PaidOffClearsActiveCollection(t *testing.T) {
	w, c, ds, processor := newTestWorker(t)
	advance := fakeAdvance(dec("60"))
	require.NoError(t, c.SetActiveCollection(context.Background(), advance.UserID, advance.ID, 0))

	ds.On("GetAdvance", mock.Anything, advance.ID).Return(advance, nil)
	processor.On("Charge", mock.Anything, mock.Anything).Return(&payments.ChargeResponse{ReferenceID: "ch_2", Status: "pending"}, nil)
	ds.On("RecordPayment", mock.Anything, mock.Anything, mock.Anything).Return(decimal.Zero, nil)

	err := w.ProcessTask(context.Background(), repaymentTask(t, model.RepaymentPayload{
		UserID: advance.UserID, AdvanceID: advance.ID, Process: model.ProcessAdvance, Source: model.TriggerDailyCronjob,
	}))
	require.NoError(t, err)
	assert.False(t, c.mr.Exists(ActiveCollectionKey(advance.UserID)))
}

func TestProcessTask_ManualPayment(t *testing.T) {
	w, _, ds, processor := newTestWorker(t)
	advance := fakeAdvance(dec("60"))

	ds.On("GetAdvance", mock.Anything, advance.ID).Return(advance, nil)
	processor.On("Charge", mock.Anything, mock.MatchedBy(func(req payments.ChargeRequest) bool {
		return req.Amount.Equal(dec("15")) && req.PaymentMethodID == 77 && req.DisableFallback && req.UseCurrentBal
	})).Return(&payments.ChargeResponse{ReferenceID: "ch_3", Status: "declined"}, nil)
	ds.On("RecordPayment", mock.Anything, mock.MatchedBy(func(p *model.Payment) bool {
		return p.Status == model.PaymentStatusFailure && p.PaymentMethodID == 77
	}), mock.MatchedBy(func(a *model.CollectionAttempt) bool {
		return a.Trigger == model.TriggerAdmin && a.Amount.Equal(dec("15"))
	})).Return(dec("60"), nil)

	err := w.ProcessTask(context.Background(), repaymentTask(t, model.RepaymentPayload{
		UserID:    advance.UserID,
		AdvanceID: advance.ID,
		Process:   model.ProcessAdvanceUseCurrentBalance,
		Source:    model.TriggerAdmin,
		Payment:   &model.ManualPayment{PaymentMethodID: 77, Amount: dec("15"), DisableFallback: true},
	}))
	require.NoError(t, err)
	processor.AssertExpectations(t)
}

func TestProcessTask_NotCollectibleSkipsRetry(t *testing.T) {
	w, _, ds, processor := newTestWorker(t)
	advance := fakeAdvance(dec("60"))
	advance.PaybackFrozen = true

	ds.On("GetAdvance", mock.Anything, advance.ID).Return(advance, nil)

	err := w.ProcessTask(context.Background(), repaymentTask(t, model.RepaymentPayload{AdvanceID: advance.ID, Source: model.TriggerDailyCronjob}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	processor.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestProcessTask_ChargeErrorRetries(t *testing.T) {
	w, _, ds, processor := newTestWorker(t)
	advance := fakeAdvance(dec("60"))
	cause := errors.New("processor unavailable")

	ds.On("GetAdvance", mock.Anything, advance.ID).Return(advance, nil)
	processor.On("Charge", mock.Anything, mock.Anything).Return(nil, cause)
	ds.On("RecordCollectionAttempt", mock.Anything, mock.MatchedBy(func(a *model.CollectionAttempt) bool {
		return a.AdvanceID == advance.ID && a.PaymentID == ""
	})).Return(nil)

	err := w.ProcessTask(context.Background(), repaymentTask(t, model.RepaymentPayload{AdvanceID: advance.ID, Source: model.TriggerDailyCronjob}))
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	ds.AssertNotCalled(t, "RecordPayment", mock.Anything, mock.Anything, mock.Anything)
	ds.AssertExpectations(t)
}

func TestProcessTask_RecordPaymentErrorSkipsRetry(t *testing.T) {
	w, _, ds, processor := newTestWorker(t)
	advance := fakeAdvance(dec("60"))

	ds.On("GetAdvance", mock.Anything, advance.ID).Return(advance, nil)
	processor.On("Charge", mock.Anything, mock.Anything).Return(&payments.ChargeResponse{ReferenceID: "ch_4", Status: "succeeded"}, nil)
	ds.On("RecordPayment", mock.Anything, mock.Anything, mock.Anything).Return(decimal.Zero, errors.New("deadlock detected"))

	err := w.ProcessTask(context.Background(), repaymentTask(t, model.RepaymentPayload{AdvanceID: advance.ID, Source: model.TriggerDailyCronjob}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	ds.AssertNotCalled(t, "RecordCollectionAttempt", mock.Anything, mock.Anything)
}

func TestProcessTask_AttemptWriteFailureSkipsRetry(t *testing.T) {
	w, c, ds, processor := newTestWorker(t)
	advance := fakeAdvance(dec("60"))

	ds.On("GetAdvance", mock.Anything, advance.ID).Return(advance, nil)
	processor.On("Charge", mock.Anything, mock.Anything).Return(&payments.ChargeResponse{ReferenceID: "ch_5", Status: "succeeded"}, nil)
	// the payment and its attempt roll back together
	ds.On("RecordPayment", mock.Anything, mock.Anything, mock.Anything).
		Return(decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record collection attempt", errors.New("db down")))

	err := w.ProcessTask(context.Background(), repaymentTask(t, model.RepaymentPayload{
		UserID: advance.UserID, AdvanceID: advance.ID, Source: model.TriggerDailyCronjob,
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.False(t, c.mr.Exists(ActiveCollectionKey(advance.UserID)))
	ds.AssertNotCalled(t, "RecordCollectionAttempt", mock.Anything, mock.Anything)
}

func TestProcessTask_AdvanceLookupError(t *testing.T) {
	w, _, ds, _ := newTestWorker(t)
	cause := errors.New("connection refused")
	ds.On("GetAdvance", mock.Anything, int64(5)).Return(nil, cause)

	err := w.ProcessTask(context.Background(), repaymentTask(t, model.RepaymentPayload{AdvanceID: 5}))
	assert.ErrorIs(t, err, cause)
}

func TestProcessTask_BadPayload(t *testing.T) {
	w, _, _, _ := newTestWorker(t)

	err := w.ProcessTask(context.Background(), asynq.NewTask(TypeAdvanceRepayment, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAttemptResultFor(t *testing.T) {
	assert.Equal(t, model.AttemptResultSuccess, attemptResultFor(model.PaymentStatusSuccess))
	assert.Equal(t, model.AttemptResultPending, attemptResultFor(model.PaymentStatusPending))
	assert.Equal(t, model.AttemptResultFailure, attemptResultFor(model.PaymentStatusFailure))
	assert.Equal(t, model.AttemptResultFailure, attemptResultFor(model.PaymentStatusCanceled))
	assert.Equal(t, model.AttemptResultError, attemptResultFor(model.PaymentStatusError))
}
