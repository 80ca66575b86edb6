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
	"fmt"
	"time"

	"github.com/blnkfinance/collector/internal/apierror"
	"github.com/blnkfinance/collector/model"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

func markerCacheKey(eventName string, eventUUID int64) string {
	return fmt.Sprintf("experiment-marker:%s:%d", eventName, eventUUID)
}

const markerCacheTTL = 24 * time.Hour

// FindExperimentMarker reads through the cache when one is configured. Markers never change once written.
func (d Datasource) FindExperimentMarker(ctx context.Context, eventName string, eventUUID int64) (*model.ExperimentMarker, error) {
	ctx, span := otel.Tracer("collector.database").Start(ctx, "Fetching experiment marker")
	defer span.End()

	key := markerCacheKey(eventName, eventUUID)
	if d.Cache != nil {
		var cached model.ExperimentMarker
		found, err := d.Cache.Get(ctx, key, &cached)
		if err == nil && found {
			return &cached, nil
		}
	}

	marker := model.ExperimentMarker{}
	var bucket string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, event_name, event_uuid, user_id, bucket, created_at
		FROM collector.ab_testing_events
		WHERE event_name = $1 AND event_uuid = $2
	`, eventName, eventUUID).Scan(&marker.ID, &marker.EventName, &marker.EventUUID, &marker.UserID, &bucket, &marker.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Experiment marker not found", err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve experiment marker", errors.Wrap(err, "select marker"))
	}
	marker.Bucket = model.Bucket(bucket)

	if d.Cache != nil {
		_ = d.Cache.Set(ctx, key, &marker, markerCacheTTL)
	}
	return &marker, nil
}

// CreateExperimentMarker inserts a marker. A concurrent insert for the same event yields a CONFLICT error.
func (d Datasource) CreateExperimentMarker(ctx context.Context, marker *model.ExperimentMarker) (*model.ExperimentMarker, error) {
	ctx, span := otel.Tracer("collector.database").Start(ctx, "Saving experiment marker")
	defer span.End()

	if marker.CreatedAt.IsZero() {
		marker.CreatedAt = time.Now()
	}

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO collector.ab_testing_events (event_name, event_uuid, user_id, bucket, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, marker.EventName, marker.EventUUID, marker.UserID, string(marker.Bucket), marker.CreatedAt).Scan(&marker.ID)
	if err != nil {
		span.RecordError(err)
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Experiment marker already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create experiment marker", errors.Wrap(err, "insert marker"))
	}

	if d.Cache != nil {
		_ = d.Cache.Set(ctx, markerCacheKey(marker.EventName, marker.EventUUID), marker, markerCacheTTL)
	}
	return marker, nil
}
