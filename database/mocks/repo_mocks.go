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

package mocks

import (
	"context"

	"github.com/blnkfinance/collector/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Advance methods

func (m *MockDataSource) GetAdvance(ctx context.Context, id int64) (*model.Advance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Advance), args.Error(1)
}

func (m *MockDataSource) CountSuccessfulCollectionAttempts(ctx context.Context, advanceID int64, exempt []model.Trigger) (int, error) {
	args := m.Called(ctx, advanceID, exempt)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) GetCollectibleAdvancesPage(ctx context.Context, criteria model.ScanCriteria, lastSeenID int64) ([]model.CollectibleAdvance, error) {
	args := m.Called(ctx, criteria, lastSeenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CollectibleAdvance), args.Error(1)
}

// Payment methods

func (m *MockDataSource) RecordCollectionAttempt(ctx context.Context, attempt *model.CollectionAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockDataSource) RecordPayment(ctx context.Context, payment *model.Payment, attempt *model.CollectionAttempt) (decimal.Decimal, error) {
	args := m.Called(ctx, payment, attempt)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockDataSource) GetPaymentsByAdvance(ctx context.Context, advanceID int64) ([]model.Payment, error) {
	args := m.Called(ctx, advanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Payment), args.Error(1)
}

// Experiment methods

func (m *MockDataSource) FindExperimentMarker(ctx context.Context, eventName string, eventUUID int64) (*model.ExperimentMarker, error) {
	args := m.Called(ctx, eventName, eventUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExperimentMarker), args.Error(1)
}

func (m *MockDataSource) CreateExperimentMarker(ctx context.Context, marker *model.ExperimentMarker) (*model.ExperimentMarker, error) {
	args := m.Called(ctx, marker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExperimentMarker), args.Error(1)
}

// User methods

func (m *MockDataSource) GetUser(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}
