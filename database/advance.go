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

	"github.com/blnkfinance/collector/internal/apierror"
	"github.com/blnkfinance/collector/model"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

const collectibleAdvancesQuery = `
	SELECT a.id, COALESCE(e.bucket = 'tivan', FALSE) AS is_tivan_advance
	FROM collector.advances a
	LEFT JOIN collector.ab_testing_events e
		ON e.event_uuid = a.id AND e.event_name = $1
	WHERE a.id > $2
		AND a.payback_date BETWEEN $3 AND $4
		AND a.amount >= $5
		AND a.outstanding > 0
		AND a.payback_frozen = FALSE
		AND a.disbursement_status = 'COMPLETED'
		AND (
			SELECT COUNT(*)
			FROM collector.advance_collection_attempts c
			JOIN collector.payments p ON p.id = c.payment_id
			WHERE c.advance_id = a.id
				AND p.status IN ('SUCCESS', 'PENDING')
				AND c.trigger <> ALL($6)
		) < $7
	ORDER BY a.id
	LIMIT $8
`

func triggerArray(triggers []model.Trigger) interface{} {
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = string(t)
	}
	return pq.Array(out)
}

func (d Datasource) GetAdvance(ctx context.Context, id int64) (*model.Advance, error) {
	ctx, span := otel.Tracer("collector.database").Start(ctx, "Fetching advance from db")
	defer span.End()

	advance := model.Advance{}
	var paymentMethodID sql.NullInt64
	var disbursementStatus string

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, user_id, amount, fee, outstanding, payback_date, payback_frozen,
			disbursement_status, payment_method_id, created_at
		FROM collector.advances
		WHERE id = $1
	`, id)

	err := row.Scan(&advance.ID, &advance.UserID, &advance.Amount, &advance.Fee, &advance.Outstanding,
		&advance.PaybackDate, &advance.PaybackFrozen, &disbursementStatus, &paymentMethodID, &advance.CreatedAt)
	if err != nil {
		span.RecordError(err)
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Advance not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve advance", errors.Wrap(err, "select advance"))
	}

	advance.DisbursementStatus = model.DisbursementStatus(disbursementStatus)
	advance.PaymentMethodID = paymentMethodID.Int64
	return &advance, nil
}

// CountSuccessfulCollectionAttempts counts attempts on an advance whose payment succeeded or is pending.
// Attempts made by an exempt trigger are not counted.
func (d Datasource) CountSuccessfulCollectionAttempts(ctx context.Context, advanceID int64, exempt []model.Trigger) (int, error) {
	ctx, span := otel.Tracer("collector.database").Start(ctx, "Counting successful collection attempts")
	defer span.End()

	var count int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM collector.advance_collection_attempts c
		JOIN collector.payments p ON p.id = c.payment_id
		WHERE c.advance_id = $1
			AND p.status IN ('SUCCESS', 'PENDING')
			AND c.trigger <> ALL($2)
	`, advanceID, triggerArray(exempt)).Scan(&count)
	if err != nil {
		span.RecordError(err)
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count collection attempts", errors.Wrap(err, "count attempts"))
	}
	return count, nil
}

// GetCollectibleAdvancesPage returns up to criteria.PageSize collectible advances with id greater than lastSeenID,
// ordered by id.
func (d Datasource) GetCollectibleAdvancesPage(ctx context.Context, criteria model.ScanCriteria, lastSeenID int64) ([]model.CollectibleAdvance, error) {
	ctx, span := otel.Tracer("collector.database").Start(ctx, "Fetching collectible advances page")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, collectibleAdvancesQuery,
		criteria.EventName,
		lastSeenID,
		criteria.MinDate,
		criteria.MaxDate,
		criteria.MinAdvanceAmount,
		triggerArray(model.ComplianceExemptTriggers),
		model.MaxSuccessfulCollectionAttempts,
		criteria.PageSize,
	)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve collectible advances", errors.Wrap(err, "select page"))
	}
	defer rows.Close()

	advances := make([]model.CollectibleAdvance, 0, criteria.PageSize)
	for rows.Next() {
		var a model.CollectibleAdvance
		if err := rows.Scan(&a.AdvanceID, &a.IsTivanAdvance); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan collectible advance", errors.Wrap(err, "scan row"))
		}
		advances = append(advances, a)
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over advances", errors.Wrap(err, "iterate rows"))
	}
	return advances, nil
}
