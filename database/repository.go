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

	"github.com/blnkfinance/collector/model"
	"github.com/shopspring/decimal"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	advance    // Interface for advance-related operations
	payment    // Interface for payment and collection attempt operations
	experiment // Interface for experiment bucket markers
	user       // Interface for user lookups
}

// advance defines methods for reading advances.
type advance interface {
	GetAdvance(ctx context.Context, id int64) (*model.Advance, error)                                                                  // Retrieves an advance by ID
	CountSuccessfulCollectionAttempts(ctx context.Context, advanceID int64, exempt []model.Trigger) (int, error)                       // Counts attempts with a successful or pending payment
	GetCollectibleAdvancesPage(ctx context.Context, criteria model.ScanCriteria, lastSeenID int64) ([]model.CollectibleAdvance, error) // Retrieves one keyset page of collectible advances
}

// payment defines methods for recording collection outcomes.
type payment interface {
	RecordCollectionAttempt(ctx context.Context, attempt *model.CollectionAttempt) error                          // Records an attempt that produced no payment
	RecordPayment(ctx context.Context, payment *model.Payment, attempt *model.CollectionAttempt) (decimal.Decimal, error) // Records a payment with its attempt and returns the advance's new outstanding amount
	GetPaymentsByAdvance(ctx context.Context, advanceID int64) ([]model.Payment, error)  // Retrieves payments for an advance
}

// experiment defines methods for experiment bucket markers.
type experiment interface {
	FindExperimentMarker(ctx context.Context, eventName string, eventUUID int64) (*model.ExperimentMarker, error) // Retrieves a marker, NOT_FOUND when absent
	CreateExperimentMarker(ctx context.Context, marker *model.ExperimentMarker) (*model.ExperimentMarker, error)  // Creates a marker, CONFLICT when one exists
}

// user defines methods for user lookups.
type user interface {
	GetUser(ctx context.Context, id int64) (*model.User, error) // Retrieves a user by ID
}
