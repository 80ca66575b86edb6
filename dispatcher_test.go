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
	"fmt"
	"testing"
	"time"

	"github.com/blnkfinance/collector/internal/apierror"
	"github.com/blnkfinance/collector/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateTaskID(t *testing.T) {
	assert.Equal(t, "tivan-test-trigger_advance-id_1000-123456789",
		CreateTaskID(1000, model.Trigger("test-trigger"), time.UnixMilli(123456789000)))
	assert.Equal(t, "tivan-daily-cronjob_advance-id_7-1700000000",
		CreateTaskID(7, model.TriggerDailyCronjob, time.Unix(1700000000, 999)))
}

func TestCreateAdvanceRepaymentTask(t *testing.T) {
	c := newTestCollector(t, nil, nil)
	sink := newRecordingSink()
	c.metrics = sink
	advance := fakeAdvance(dec("50"))

	expectedID := fmt.Sprintf("tivan-bank-account-update_advance-id_%d-123456789", advance.ID)
	c.mockExecutor.On("EnqueueTask", mock.Anything, model.RepaymentPayload{
		UserID:    advance.UserID,
		AdvanceID: advance.ID,
		Process:   model.ProcessAdvanceUseCurrentBalance,
		Source:    model.TriggerBankAccountUpdate,
	}, model.TaskOptions{TaskID: expectedID}).Return(nil)

	taskID := c.CreateAdvanceRepaymentTask(context.Background(), advance, model.TriggerBankAccountUpdate, model.TaskOptions{})
	assert.Equal(t, expectedID, taskID)
	assert.Equal(t, float64(1), sink.count("tasks_enqueued_total", map[string]string{"trigger": "bank-account-update", "kind": "advance"}))
	c.mockExecutor.AssertExpectations(t)
}

func TestCreateAdvanceRepaymentTask_ExplicitTaskIDWins(t *testing.T) {
	c := newTestCollector(t, nil, nil)
	advance := fakeAdvance(dec("50"))
	start := fixedNow.Add(time.Hour)
	opts := model.TaskOptions{TaskID: "retry-1", StartTime: start}

	c.mockExecutor.On("EnqueueTask", mock.Anything, mock.MatchedBy(func(p model.RepaymentPayload) bool {
		return p.Process == model.ProcessAdvance && p.Source == model.TriggerTivanRetry && p.Payment == nil
	}), opts).Return(nil)

	assert.Equal(t, "retry-1", c.CreateAdvanceRepaymentTask(context.Background(), advance, model.TriggerTivanRetry, opts))
	c.mockExecutor.AssertExpectations(t)
}

func TestCreateAdvanceRepaymentTask_SwallowsEnqueueErrors(t *testing.T) {
	c := newTestCollector(t, nil, nil)
	sink := newRecordingSink()
	c.metrics = sink
	advance := fakeAdvance(dec("50"))

	c.mockExecutor.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis unavailable"))

	taskID := c.CreateAdvanceRepaymentTask(context.Background(), advance, model.TriggerDailyCronjob, model.TaskOptions{})
	assert.Equal(t, CreateTaskID(advance.ID, model.TriggerDailyCronjob, fixedNow), taskID)
	assert.Equal(t, float64(1), sink.count("task_enqueue_errors_total", map[string]string{"trigger": "daily-cronjob", "kind": "advance"}))
}

func TestCreateUserPaymentTask(t *testing.T) {
	c := newTestCollector(t, nil, nil)
	advance := fakeAdvance(dec("50"))

	c.mockExecutor.On("EnqueueAPITask", mock.Anything, model.RepaymentPayload{
		UserID:    advance.UserID,
		AdvanceID: advance.ID,
		Process:   model.ProcessAdvance,
		Source:    model.TriggerUser,
		Payment:   &model.ManualPayment{PaymentMethodID: 12, Amount: dec("20")},
	}, model.TaskOptions{TaskID: CreateTaskID(advance.ID, model.TriggerUser, fixedNow)}).Return(nil)

	taskID, err := c.CreateUserPaymentTask(context.Background(), advance, model.TriggerUser, 12, dec("20"), model.TaskOptions{})
	require.NoError(t, err)
	assert.Equal(t, CreateTaskID(advance.ID, model.TriggerUser, fixedNow), taskID)
	c.mockExecutor.AssertExpectations(t)
}

func TestCreateUserPaymentTask_UnsupportedTrigger(t *testing.T) {
	c := newTestCollector(t, nil, nil)
	advance := fakeAdvance(dec("50"))

	for _, trigger := range []model.Trigger{model.TriggerDailyCronjob, model.TriggerUserWeb, model.TriggerTivanRetry} {
		_, err := c.CreateUserPaymentTask(context.Background(), advance, trigger, 12, dec("20"), model.TaskOptions{})
		require.Error(t, err)

		var apiErr apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, apierror.ErrInvalidParameters, apiErr.Code)
		assert.Equal(t, map[string]string{"trigger": string(trigger)}, apiErr.Details)
	}
	c.mockExecutor.AssertNotCalled(t, "EnqueueAPITask", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateUserPaymentTask_InvalidPayment(t *testing.T) {
	c := newTestCollector(t, nil, nil)
	advance := fakeAdvance(dec("50"))

	_, err := c.CreateUserPaymentTask(context.Background(), advance, model.TriggerAdmin, 0, dec("20"), model.TaskOptions{})
	assert.ErrorIs(t, err, apierror.Code(apierror.ErrInvalidParameters))

	_, err = c.CreateUserPaymentTask(context.Background(), advance, model.TriggerAdmin, 12, dec("0"), model.TaskOptions{})
	assert.ErrorIs(t, err, apierror.Code(apierror.ErrInvalidParameters))

	c.mockExecutor.AssertNotCalled(t, "EnqueueAPITask", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateUserPaymentTask_PropagatesEnqueueErrors(t *testing.T) {
	c := newTestCollector(t, nil, nil)
	sink := newRecordingSink()
	c.metrics = sink
	advance := fakeAdvance(dec("50"))
	cause := errors.New("task tivan-user was not acknowledged")

	c.mockExecutor.On("EnqueueAPITask", mock.Anything, mock.Anything, mock.Anything).Return(cause)

	taskID, err := c.CreateUserPaymentTask(context.Background(), advance, model.TriggerAdminManualCreation, 12, dec("20"), model.TaskOptions{})
	assert.Empty(t, taskID)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, apierror.Code(apierror.ErrEnqueueFailed))
	assert.Equal(t, float64(1), sink.count("task_enqueue_errors_total", map[string]string{"trigger": "admin-manual-creation", "kind": "user-payment"}))
}
