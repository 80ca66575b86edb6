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

package collector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redlock "github.com/blnkfinance/collector/internal/lock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const activeCollectionWindow = 7 * 24 * time.Hour

func ActiveCollectionKey(userID int64) string {
	return fmt.Sprintf("active-collection:%d", userID)
}

// TTLFromPayment is the marker lifetime when a completed payment made the advance active:
// seven days from the payment, never less than one second.
func TTLFromPayment(paymentTime, now time.Time) time.Duration {
	ttl := paymentTime.Add(activeCollectionWindow).Sub(now).Truncate(time.Second)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (c *Collector) defaultActiveCollectionTTL() time.Duration {
	return time.Duration(c.config.ActiveCollection.TTLSeconds) * time.Second
}

// SetActiveCollection marks advanceID as the advance being collected for userID.
// A non-positive ttl uses the configured default.
func (c *Collector) SetActiveCollection(ctx context.Context, userID, advanceID int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultActiveCollectionTTL()
	}

	err := c.redis.SetEx(ctx, ActiveCollectionKey(userID), strconv.FormatInt(advanceID, 10), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set active collection for user %d: %w", userID, err)
	}

	c.metrics.Increment("active_collection_set_total", nil)
	c.metrics.Histogram("active_collection_ttl_seconds", ttl.Seconds(), nil)
	return nil
}

// GetActiveCollection returns the advance id currently marked for userID.
func (c *Collector) GetActiveCollection(ctx context.Context, userID int64) (string, bool, error) {
	advanceID, err := c.redis.Get(ctx, ActiveCollectionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return advanceID, true, nil
}

// IsActiveCollection reports whether advanceID may be collected for userID. It is true when no
// marker exists or the marker names advanceID. Read errors fail open.
func (c *Collector) IsActiveCollection(ctx context.Context, userID, advanceID int64) bool {
	active, found, err := c.GetActiveCollection(ctx, userID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id":    userID,
			"advance_id": advanceID,
			"error":      err,
		}).Warn("failed to read active collection, treating advance as active")
		c.metrics.Increment("active_collection_read_errors_total", nil)
		return true
	}
	if !found {
		return true
	}
	return active == strconv.FormatInt(advanceID, 10)
}

// ClearActiveCollection removes the marker for userID only while it still names advanceID.
func (c *Collector) ClearActiveCollection(ctx context.Context, userID, advanceID int64) (bool, error) {
	res, err := c.redis.Eval(ctx, redlock.CompareAndDelete, []string{ActiveCollectionKey(userID)}, strconv.FormatInt(advanceID, 10)).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to clear active collection for user %d: %w", userID, err)
	}
	return res == 1, nil
}
