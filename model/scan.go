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

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScanCriteria bounds one batch scan of collectible advances.
type ScanCriteria struct {
	Name             string
	EventName        string
	MinDate          time.Time
	MaxDate          time.Time
	MinAdvanceAmount decimal.Decimal
	PageSize         int
	Concurrency      int
}

// ScanResult summarises a finished scan.
type ScanResult struct {
	Pages     int   `json:"pages"`
	Rows      int64 `json:"rows"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}
