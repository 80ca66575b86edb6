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

import "fmt"

type Trigger string

const (
	TriggerDailyCronjob        Trigger = "daily-cronjob"
	TriggerBankAccountUpdate   Trigger = "bank-account-update"
	TriggerPaydayCatchup       Trigger = "payday-catchup"
	TriggerPredictedPayday     Trigger = "predicted-payday"
	TriggerTivanRetry          Trigger = "tivan-retry"
	TriggerUser                Trigger = "user"
	TriggerUserOneTimeCard     Trigger = "user-one-time-card"
	TriggerUserWeb             Trigger = "user-web"
	TriggerAdmin               Trigger = "admin"
	TriggerAdminManualCreation Trigger = "admin-manual-creation"
)

var knownTriggers = map[Trigger]struct{}{
	TriggerDailyCronjob:        {},
	TriggerBankAccountUpdate:   {},
	TriggerPaydayCatchup:       {},
	TriggerPredictedPayday:     {},
	TriggerTivanRetry:          {},
	TriggerUser:                {},
	TriggerUserOneTimeCard:     {},
	TriggerUserWeb:             {},
	TriggerAdmin:               {},
	TriggerAdminManualCreation: {},
}

// ComplianceExemptTriggers are direct user or admin initiated payments. They are not bound by
// the attempt limits that protect consumers from repeated automatic collection.
var ComplianceExemptTriggers = []Trigger{
	TriggerAdmin,
	TriggerAdminManualCreation,
	TriggerUser,
	TriggerUserOneTimeCard,
	TriggerUserWeb,
}

// ManualPaymentTriggers are the triggers a manual payment task may be created for.
var ManualPaymentTriggers = []Trigger{
	TriggerUser,
	TriggerAdmin,
	TriggerAdminManualCreation,
}

func (t Trigger) IsComplianceExempt() bool {
	return t.in(ComplianceExemptTriggers)
}

func (t Trigger) SupportsManualPayment() bool {
	return t.in(ManualPaymentTriggers)
}

func (t Trigger) Validate() error {
	if _, ok := knownTriggers[t]; !ok {
		return fmt.Errorf("unknown collection trigger %q", string(t))
	}
	return nil
}

func (t Trigger) in(set []Trigger) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}

// TriggerStrings converts a trigger set for use as a SQL array argument.
func TriggerStrings(triggers []Trigger) []string {
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = string(t)
	}
	return out
}
