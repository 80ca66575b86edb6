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

import "time"

type Bucket string

const (
	BucketTivan  Bucket = "tivan"
	BucketLegacy Bucket = "legacy"
)

// ExperimentMarker is the durable record of a routing decision for one advance.
type ExperimentMarker struct {
	ID        int64     `json:"id"`
	EventName string    `json:"event_name"`
	EventUUID int64     `json:"event_uuid"`
	UserID    int64     `json:"user_id"`
	Bucket    Bucket    `json:"bucket"`
	CreatedAt time.Time `json:"created_at"`
}
