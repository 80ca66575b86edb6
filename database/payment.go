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

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/blnkfinance/collector/internal/apierror"
	"github.com/blnkfinance/collector/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertCollectionAttempt(ctx context.Context, db execer, attempt *model.CollectionAttempt) error {
	if attempt.ID == "" {
		attempt.ID = "att_" + uuid.New().String()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}

	var paymentID sql.NullString
	if attempt.PaymentID != "" {
		paymentID = sql.NullString{String: attempt.PaymentID, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO collector.advance_collection_attempts (id, advance_id, trigger, amount, payment_id, task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, attempt.ID, attempt.AdvanceID, string(attempt.Trigger), attempt.Amount, paymentID, attempt.TaskID, attempt.CreatedAt)
	return err
}

// RecordCollectionAttempt stores an attempt that produced no payment, such as a charge the processor
// rejected with an error.
func (d Datasource) RecordCollectionAttempt(ctx context.Context, attempt *model.CollectionAttempt) error {
	ctx, span := otel.Tracer("collector.database").Start(ctx, "Saving collection attempt to db")
	defer span.End()

	if err := insertCollectionAttempt(ctx, d.Conn, attempt); err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record collection attempt", errors.Wrap(err, "insert attempt"))
	}
	return nil
}

// RecordPayment stores a payment together with the collection attempt that produced it. Successful and
// pending payments reduce the advance's outstanding amount. All three writes share one transaction, so a
// charged payment is never stored without the attempt that counts it. The advance's outstanding amount
// after the write is returned.
func (d Datasource) RecordPayment(ctx context.Context, payment *model.Payment, attempt *model.CollectionAttempt) (decimal.Decimal, error) {
	ctx, span := otel.Tracer("collector.database").Start(ctx, "Saving payment to db")
	defer span.End()

	if payment.ID == "" {
		payment.ID = "pay_" + uuid.New().String()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", errors.Wrap(err, "begin"))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO collector.payments (id, advance_id, user_id, payment_method_id, amount, status, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payment.ID, payment.AdvanceID, payment.UserID, payment.PaymentMethodID, payment.Amount, string(payment.Status), payment.ReferenceID, payment.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record payment", errors.Wrap(err, "insert payment"))
	}

	if attempt != nil {
		attempt.PaymentID = payment.ID
		if attempt.CreatedAt.IsZero() {
			attempt.CreatedAt = payment.CreatedAt
		}
		if err := insertCollectionAttempt(ctx, tx, attempt); err != nil {
			span.RecordError(err)
			return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record collection attempt", errors.Wrap(err, "insert attempt"))
		}
	}

	applied := decimal.Zero
	if payment.Status == model.PaymentStatusSuccess || payment.Status == model.PaymentStatusPending {
		applied = payment.Amount
	}

	var outstanding decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		UPDATE collector.advances
		SET outstanding = outstanding - $2
		WHERE id = $1
		RETURNING outstanding
	`, payment.AdvanceID, applied).Scan(&outstanding)
	if err != nil {
		span.RecordError(err)
		if err == sql.ErrNoRows {
			return decimal.Zero, apierror.NewAPIError(apierror.ErrNotFound, "Advance not found", err)
		}
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update advance outstanding", errors.Wrap(err, "update outstanding"))
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit payment", errors.Wrap(err, "commit"))
	}
	return outstanding, nil
}

func (d Datasource) GetPaymentsByAdvance(ctx context.Context, advanceID int64) ([]model.Payment, error) {
	ctx, span := otel.Tracer("collector.database").Start(ctx, "Fetching payments by advance")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, advance_id, user_id, payment_method_id, amount, status, reference_id, created_at
		FROM collector.payments
		WHERE advance_id = $1
		ORDER BY created_at
	`, advanceID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payments", errors.Wrap(err, "select payments"))
	}
	defer rows.Close()

	payments := []model.Payment{}
	for rows.Next() {
		var p model.Payment
		var status string
		var paymentMethodID sql.NullInt64
		var referenceID sql.NullString
		if err := rows.Scan(&p.ID, &p.AdvanceID, &p.UserID, &paymentMethodID, &p.Amount, &status, &referenceID, &p.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan payment", errors.Wrap(err, "scan row"))
		}
		p.Status = model.PaymentStatus(status)
		p.PaymentMethodID = paymentMethodID.Int64
		p.ReferenceID = referenceID.String
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over payments", errors.Wrap(err, "iterate rows"))
	}
	return payments, nil
}
