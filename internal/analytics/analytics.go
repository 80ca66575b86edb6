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

package analytics

import (
	"time"

	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
)

const ExposureEvent = "experiment_exposure"

// Exposure describes a fresh experiment assignment.
type Exposure struct {
	Experiment string
	DistinctID string
	Bucket     string
	AdvanceID  int64
	UserID     int64
}

type Tracker interface {
	TrackExposure(e Exposure)
	Close() error
}

type PostHogTracker struct {
	client posthog.Client
}

// NewTracker returns a PostHog backed tracker, or a no-op one when apiKey is empty.
func NewTracker(apiKey, endpoint string) (Tracker, error) {
	if apiKey == "" {
		return Noop{}, nil
	}
	client, err := posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: endpoint, Interval: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return &PostHogTracker{client: client}, nil
}

func (t *PostHogTracker) TrackExposure(e Exposure) {
	err := t.client.Enqueue(posthog.Capture{
		DistinctId: e.DistinctID,
		Event:      ExposureEvent,
		Properties: posthog.NewProperties().
			Set("experiment", e.Experiment).
			Set("bucket", e.Bucket).
			Set("advance_id", e.AdvanceID).
			Set("user_id", e.UserID),
	})
	if err != nil {
		logrus.WithError(err).WithField("experiment", e.Experiment).Warn("failed to enqueue exposure event")
	}
}

func (t *PostHogTracker) Close() error {
	return t.client.Close()
}

type Noop struct{}

func (Noop) TrackExposure(Exposure) {}

func (Noop) Close() error { return nil }
