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

// MaxSuccessfulCollectionAttempts caps successful collection attempts from non-exempt triggers. The scanner's
// query and the rule engine both read it.
const MaxSuccessfulCollectionAttempts = 4

// CollectionOutcome describes what happened to one collection request.
type CollectionOutcome struct {
	AdvanceID  int64       `json:"advanceId"`
	Trigger    Trigger     `json:"trigger"`
	Violations []Violation `json:"violations"`
	Route      Bucket      `json:"route,omitempty"`
	TaskID     string      `json:"taskId,omitempty"`
	Dispatched bool        `json:"dispatched"`

	// Status is only set for user payments that reached a result before the poll timed out.
	Status *TaskStatus `json:"status,omitempty"`
}
