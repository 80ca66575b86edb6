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
	"fmt"
	"strings"
	"time"

	"github.com/blnkfinance/collector/config"
	"github.com/blnkfinance/collector/internal/request"
	"github.com/blnkfinance/collector/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ChargeRequest asks the processor to pull funds for an advance.
type ChargeRequest struct {
	IdempotencyKey  string          `json:"idempotencyKey"`
	UserID          int64           `json:"userId"`
	AdvanceID       int64           `json:"advanceId"`
	PaymentMethodID int64           `json:"paymentMethodId,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	UseCurrentBal   bool            `json:"useCurrentBalance"`
	DisableFallback bool            `json:"disableFallback"`
}

type ChargeResponse struct {
	ReferenceID     string          `json:"referenceId"`
	Status          string          `json:"status"`
	PaymentMethodID int64           `json:"paymentMethodId"`
	Amount          decimal.Decimal `json:"amount"`
	Message         string          `json:"message,omitempty"`
}

// PaymentStatus maps the processor status onto a stored payment status.
func (r *ChargeResponse) PaymentStatus() model.PaymentStatus {
	switch strings.ToLower(r.Status) {
	case "succeeded", "success", "completed":
		return model.PaymentStatusSuccess
	case "pending", "processing":
		return model.PaymentStatusPending
	case "canceled", "cancelled":
		return model.PaymentStatusCanceled
	case "failed", "declined":
		return model.PaymentStatusFailure
	default:
		return model.PaymentStatusError
	}
}

type Processor interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
}

type HTTPProcessor struct {
	url           string
	authorization string
	timeout       time.Duration
}

func NewHTTPProcessor(cnf config.PaymentProcessorConfig) *HTTPProcessor {
	return &HTTPProcessor{
		url:           strings.TrimRight(cnf.Url, "/"),
		authorization: cnf.Authorization,
		timeout:       time.Duration(cnf.Timeout) * time.Second,
	}
}

func (p *HTTPProcessor) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if p.url == "" {
		return nil, fmt.Errorf("payment processor url is not configured")
	}

	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}
	if p.authorization != "" {
		headers["Authorization"] = p.authorization
	}

	logrus.WithFields(logrus.Fields{
		"advance_id": req.AdvanceID,
		"user_id":    req.UserID,
		"amount":     req.Amount.String(),
	}).Info("charging advance")

	var resp ChargeResponse
	if _, err := request.PostJSON(ctx, p.url+"/charges", headers, p.timeout, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to charge advance %d: %w", req.AdvanceID, err)
	}
	return &resp, nil
}
