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

package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/blnkfinance/collector/config"
	"github.com/blnkfinance/collector/model"
	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProcessorCharge(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://processor.local/charges",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			assert.Equal(t, "tivan-daily-cronjob_advance-id_1000-1", req.Header.Get("Idempotency-Key"))

			var body ChargeRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, int64(1000), body.AdvanceID)
			assert.True(t, body.Amount.Equal(decimal.NewFromInt(75)))

			return httpmock.NewStringResponse(200, `{"referenceId":"ch_1","status":"succeeded","paymentMethodId":1,"amount":"75"}`), nil
		})

	p := NewHTTPProcessor(config.PaymentProcessorConfig{Url: "http://processor.local/", Authorization: "Bearer secret", Timeout: 5})
	resp, err := p.Charge(context.Background(), ChargeRequest{
		IdempotencyKey: "tivan-daily-cronjob_advance-id_1000-1",
		UserID:         42,
		AdvanceID:      1000,
		Amount:         decimal.NewFromInt(75),
	})
	require.NoError(t, err)
	assert.Equal(t, "ch_1", resp.ReferenceID)
	assert.Equal(t, model.PaymentStatusSuccess, resp.PaymentStatus())
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestHTTPProcessorChargeFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://processor.local/charges",
		httpmock.NewStringResponder(500, `{"message":"boom"}`))

	p := NewHTTPProcessor(config.PaymentProcessorConfig{Url: "http://processor.local", Timeout: 5})
	resp, err := p.Charge(context.Background(), ChargeRequest{AdvanceID: 7, Amount: decimal.NewFromInt(10)})
	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "failed to charge advance 7")
}

func TestHTTPProcessorRequiresURL(t *testing.T) {
	p := NewHTTPProcessor(config.PaymentProcessorConfig{})
	_, err := p.Charge(context.Background(), ChargeRequest{})
	assert.Error(t, err)
}

func TestChargeResponsePaymentStatus(t *testing.T) {
	cases := map[string]model.PaymentStatus{
		"succeeded":  model.PaymentStatusSuccess,
		"PENDING":    model.PaymentStatusPending,
		"processing": model.PaymentStatusPending,
		"declined":   model.PaymentStatusFailure,
		"cancelled":  model.PaymentStatusCanceled,
		"weird":      model.PaymentStatusError,
	}
	for status, want := range cases {
		r := &ChargeResponse{Status: status}
		assert.Equal(t, want, r.PaymentStatus(), status)
	}
}
