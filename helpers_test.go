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
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/collector/config"
	"github.com/blnkfinance/collector/database"
	"github.com/blnkfinance/collector/internal/payments"
	"github.com/blnkfinance/collector/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(123456789, 0)

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) EnqueueTask(ctx context.Context, payload model.RepaymentPayload, opts model.TaskOptions) error {
	return m.Called(ctx, payload, opts).Error(0)
}

func (m *MockExecutor) EnqueueAPITask(ctx context.Context, payload model.RepaymentPayload, opts model.TaskOptions) error {
	return m.Called(ctx, payload, opts).Error(0)
}

func (m *MockExecutor) Task(ctx context.Context, taskID string) (*model.Task, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

type MockLegacyPublisher struct {
	mock.Mock
}

func (m *MockLegacyPublisher) PublishCollectAdvance(ctx context.Context, req LegacyCollectRequest) error {
	return m.Called(ctx, req).Error(0)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Charge(ctx context.Context, req payments.ChargeRequest) (*payments.ChargeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.ChargeResponse), args.Error(1)
}

type MockAttemptStore struct {
	mock.Mock
}

func (m *MockAttemptStore) Attempts(ctx context.Context, queue, taskID string) ([]model.TaskAttempt, error) {
	args := m.Called(ctx, queue, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TaskAttempt), args.Error(1)
}

type testCollector struct {
	*Collector
	mockExecutor *MockExecutor
	mockLegacy   *MockLegacyPublisher
	mr           *miniredis.Miniredis
}

func newTestCollector(t *testing.T, ds database.IDataSource, cnf *config.Configuration) *testCollector {
	t.Helper()
	if cnf == nil {
		cnf = &config.Configuration{}
	}
	config.MockConfig(cnf)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	executor := &MockExecutor{}
	legacy := &MockLegacyPublisher{}
	c, err := NewCollector(ds,
		WithRedis(client),
		WithExecutor(executor),
		WithLegacyPublisher(legacy),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)

	return &testCollector{Collector: c, mockExecutor: executor, mockLegacy: legacy, mr: mr}
}

// recordingSink keeps counter totals keyed by name and sorted label values.
type recordingSink struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counters: map[string]float64{}, gauges: map[string]float64{}}
}

func sinkKey(name string, tags map[string]string) string {
	parts := []string{name}
	for k, v := range tags {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts[1:])
	return strings.Join(parts, ",")
}

func (s *recordingSink) Increment(name string, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[sinkKey(name, tags)]++
}

func (s *recordingSink) Histogram(string, float64, map[string]string) {}

func (s *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[sinkKey(name, tags)] = value
}

func (s *recordingSink) count(name string, tags map[string]string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[sinkKey(name, tags)]
}

func fakeAdvance(outstanding decimal.Decimal) *model.Advance {
	return &model.Advance{
		ID:                 int64(gofakeit.Number(1, 1000000)),
		UserID:             int64(gofakeit.Number(1, 1000000)),
		Amount:             decimal.NewFromInt(100),
		Fee:                decimal.NewFromInt(5),
		Outstanding:        outstanding,
		PaybackDate:        fixedNow.AddDate(0, 0, -1),
		DisbursementStatus: model.DisbursementCompleted,
		PaymentMethodID:    int64(gofakeit.Number(1, 1000)),
		CreatedAt:          fixedNow.AddDate(0, 0, -14),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
