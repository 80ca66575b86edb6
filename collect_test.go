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
	"strconv"
	"testing"

	"github.com/blnkfinance/collector/config"
	"github.com/blnkfinance/collector/database/mocks"
	"github.com/blnkfinance/collector/internal/apierror"
	"github.com/blnkfinance/collector/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func expectAdvance(ds *mocks.MockDataSource, advance *model.Advance, attempts int) {
	ds.On("GetAdvance", mock.Anything, advance.ID).Return(advance, nil)
	ds.On("CountSuccessfulCollectionAttempts", mock.Anything, advance.ID, model.ComplianceExemptTriggers).Return(attempts, nil)
}

func TestCollectAdvance_DispatchesToTivan(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, rolloutConfig(config.MAX_ROLLOUT, 0, 0))
	advance := fakeAdvance(dec("104.99"))
	expectAdvance(ds, advance, 0)

	ds.On("FindExperimentMarker", mock.Anything, DailyCronjobExperimentName, advance.ID).Return(nil, notFound())
	ds.On("CreateExperimentMarker", mock.Anything, mock.Anything).
		Return(&model.ExperimentMarker{EventName: DailyCronjobExperimentName, EventUUID: advance.ID, Bucket: model.BucketTivan}, nil)
	c.mockExecutor.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	outcome, err := c.CollectAdvance(context.Background(), advance.ID, model.TriggerDailyCronjob)
	require.NoError(t, err)

	assert.Empty(t, outcome.Violations)
	assert.Equal(t, model.BucketTivan, outcome.Route)
	assert.True(t, outcome.Dispatched)
	assert.Equal(t, CreateTaskID(advance.ID, model.TriggerDailyCronjob, fixedNow), outcome.TaskID)

	active, err := c.mr.Get(ActiveCollectionKey(advance.UserID))
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(advance.ID, 10), active)
	c.mockLegacy.AssertNotCalled(t, "PublishCollectAdvance", mock.Anything, mock.Anything)
}

func TestCollectAdvance_TooManyAttempts(t *testing.T) {
	ds := &mocks.MockDataSource{}
	sink := newRecordingSink()
	c := newTestCollector(t, ds, nil)
	c.metrics = sink
	advance := fakeAdvance(dec("104.99"))
	expectAdvance(ds, advance, 4)

	outcome, err := c.CollectAdvance(context.Background(), advance.ID, model.TriggerDailyCronjob)
	require.NoError(t, err)

	require.Len(t, outcome.Violations, 1)
	assert.Equal(t, model.ViolationTooManySuccessfulCollections, outcome.Violations[0].Type)
	assert.False(t, outcome.Dispatched)
	assert.Equal(t, float64(1), sink.count("collection_violations_total", map[string]string{
		"type": string(model.ViolationTooManySuccessfulCollections), "trigger": "daily-cronjob",
	}))
	ds.AssertNotCalled(t, "FindExperimentMarker", mock.Anything, mock.Anything, mock.Anything)
	c.mockExecutor.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollectAdvance_AnotherAdvanceActive(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, nil)
	advance := fakeAdvance(dec("50"))
	expectAdvance(ds, advance, 1)
	require.NoError(t, c.SetActiveCollection(context.Background(), advance.UserID, advance.ID+1, 0))

	outcome, err := c.CollectAdvance(context.Background(), advance.ID, model.TriggerPaydayCatchup)
	require.NoError(t, err)
	assert.True(t, model.HasViolation(outcome.Violations, model.ViolationCollectingAnotherAdvance))
	assert.False(t, outcome.Dispatched)
}

func TestCollectAdvance_DispatchesToLegacy(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, rolloutConfig(0, 0, 0))
	advance := fakeAdvance(dec("60"))
	expectAdvance(ds, advance, 2)

	ds.On("FindExperimentMarker", mock.Anything, DailyCronjobExperimentName, advance.ID).Return(nil, notFound())
	c.mockLegacy.On("PublishCollectAdvance", mock.Anything, LegacyCollectRequest{
		AdvanceID: advance.ID,
		UserID:    advance.UserID,
		Trigger:   model.TriggerDailyCronjob,
		Amount:    advance.Outstanding,
	}).Return(nil)

	outcome, err := c.CollectAdvance(context.Background(), advance.ID, model.TriggerDailyCronjob)
	require.NoError(t, err)
	assert.Equal(t, model.BucketLegacy, outcome.Route)
	assert.True(t, outcome.Dispatched)
	assert.Empty(t, outcome.TaskID)
	assert.False(t, c.mr.Exists(ActiveCollectionKey(advance.UserID)))
	c.mockLegacy.AssertExpectations(t)
}

func TestCollectAdvance_LegacyPublishError(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, nil)
	advance := fakeAdvance(dec("60"))
	expectAdvance(ds, advance, 0)
	c.mockLegacy.On("PublishCollectAdvance", mock.Anything, mock.Anything).Return(errors.New("queue unavailable"))

	_, err := c.CollectAdvance(context.Background(), advance.ID, model.TriggerPredictedPayday)
	assert.ErrorContains(t, err, "queue unavailable")
}

func TestCollectAdvance_TivanRetrySkipsExperiment(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, nil)
	advance := fakeAdvance(dec("60"))
	expectAdvance(ds, advance, 0)
	c.mockExecutor.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	outcome, err := c.CollectAdvance(context.Background(), advance.ID, model.TriggerTivanRetry)
	require.NoError(t, err)
	assert.Equal(t, model.BucketTivan, outcome.Route)
	ds.AssertNotCalled(t, "FindExperimentMarker", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollectAdvance_AdvanceNotFound(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, nil)
	ds.On("GetAdvance", mock.Anything, int64(99)).Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "advance not found", nil))

	_, err := c.CollectAdvance(context.Background(), 99, model.TriggerDailyCronjob)
	assert.ErrorIs(t, err, apierror.Code(apierror.ErrNotFound))
}

func TestCollectRowProcessor_UsesPrecomputedRoute(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, rolloutConfig(0, 0, 0))
	advance := fakeAdvance(dec("60"))
	expectAdvance(ds, advance, 0)
	c.mockExecutor.On("EnqueueTask", mock.Anything, mock.MatchedBy(func(p model.RepaymentPayload) bool {
		return p.AdvanceID == advance.ID && p.Source == model.TriggerDailyCronjob
	}), mock.Anything).Return(nil)

	process := c.CollectRowProcessor(model.TriggerDailyCronjob)
	require.NoError(t, process(context.Background(), model.CollectibleAdvance{AdvanceID: advance.ID, IsTivanAdvance: true}))

	ds.AssertNotCalled(t, "FindExperimentMarker", mock.Anything, mock.Anything, mock.Anything)
	c.mockExecutor.AssertExpectations(t)
}

func TestCollectUserPayment_WaitsForTivanResult(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, &config.Configuration{Poller: config.PollerConfig{TimeoutSec: 1, IntervalSec: 0.01}})
	advance := fakeAdvance(dec("60"))
	expectAdvance(ds, advance, 5)
	taskID := CreateTaskID(advance.ID, model.TriggerUser, fixedNow)

	ds.On("GetUser", mock.Anything, advance.UserID).Return(&model.User{ID: advance.UserID, Staff: true}, nil)
	c.mockExecutor.On("EnqueueAPITask", mock.Anything, mock.MatchedBy(func(p model.RepaymentPayload) bool {
		return p.Payment != nil && p.Payment.PaymentMethodID == 3 && p.Payment.Amount.Equal(dec("20"))
	}), model.TaskOptions{TaskID: taskID}).Return(nil)
	c.mockExecutor.On("Task", mock.Anything, taskID).Return(completedTask(taskID), nil)

	outcome, err := c.CollectUserPayment(context.Background(), advance.ID, model.TriggerUser, 3, dec("20"))
	require.NoError(t, err)
	assert.Empty(t, outcome.Violations)
	assert.Equal(t, model.BucketTivan, outcome.Route)
	assert.Equal(t, taskID, outcome.TaskID)
	require.NotNil(t, outcome.Status)
	assert.Len(t, outcome.Status.SuccessfulPayments, 2)
}

func TestCollectUserPayment_PendingWhenPollTimesOut(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, &config.Configuration{
		Poller:      config.PollerConfig{TimeoutSec: 0.2, IntervalSec: 0.05},
		Experiments: config.ExperimentConfig{UserPaymentRollout: config.MAX_ROLLOUT},
	})
	advance := fakeAdvance(dec("60"))
	expectAdvance(ds, advance, 0)

	ds.On("GetUser", mock.Anything, advance.UserID).Return(&model.User{ID: advance.UserID}, nil)
	ds.On("FindExperimentMarker", mock.Anything, UserPaymentExperimentName, advance.ID).
		Return(&model.ExperimentMarker{Bucket: model.BucketTivan}, nil)
	c.mockExecutor.On("EnqueueAPITask", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	c.mockExecutor.On("Task", mock.Anything, mock.Anything).Return(nil, ErrTaskNotFound)

	outcome, err := c.CollectUserPayment(context.Background(), advance.ID, model.TriggerAdmin, 3, dec("60"))
	require.NoError(t, err)
	assert.True(t, outcome.Dispatched)
	assert.Nil(t, outcome.Status)
}

func TestCollectUserPayment_Legacy(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, nil)
	advance := fakeAdvance(dec("60"))
	expectAdvance(ds, advance, 0)

	ds.On("GetUser", mock.Anything, advance.UserID).Return(&model.User{ID: advance.UserID}, nil)
	ds.On("FindExperimentMarker", mock.Anything, UserPaymentExperimentName, advance.ID).Return(nil, notFound())
	c.mockLegacy.On("PublishCollectAdvance", mock.Anything, LegacyCollectRequest{
		AdvanceID: advance.ID,
		UserID:    advance.UserID,
		Trigger:   model.TriggerUserWeb,
		Amount:    dec("10"),
		Payment:   &model.ManualPayment{PaymentMethodID: 3, Amount: dec("10")},
	}).Return(nil)

	outcome, err := c.CollectUserPayment(context.Background(), advance.ID, model.TriggerUserWeb, 3, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, model.BucketLegacy, outcome.Route)
	assert.True(t, outcome.Dispatched)
	c.mockLegacy.AssertExpectations(t)
	c.mockExecutor.AssertNotCalled(t, "EnqueueAPITask", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollectUserPayment_RejectsOverpayment(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, nil)
	advance := fakeAdvance(dec("60"))
	expectAdvance(ds, advance, 0)

	outcome, err := c.CollectUserPayment(context.Background(), advance.ID, model.TriggerUser, 3, dec("60.01"))
	require.NoError(t, err)
	assert.Equal(t, []model.ViolationType{model.ViolationPaymentTooLarge}, violationTypes(outcome.Violations))
	assert.False(t, outcome.Dispatched)
	ds.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
}

func TestPaymentHistory(t *testing.T) {
	ds := &mocks.MockDataSource{}
	c := newTestCollector(t, ds, nil)

	history := []model.Payment{
		{ID: "pay_1", AdvanceID: 1000, Amount: dec("25"), Status: model.PaymentStatusSuccess},
		{ID: "pay_2", AdvanceID: 1000, Amount: dec("75"), Status: model.PaymentStatusPending},
	}
	ds.On("GetPaymentsByAdvance", mock.Anything, int64(1000)).Return(history, nil)

	payments, err := c.PaymentHistory(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, history, payments)
	ds.AssertExpectations(t)
}
