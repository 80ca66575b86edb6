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

package redlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CompareAndDelete removes KEYS[1] only while it still holds ARGV[1].
const CompareAndDelete = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

const compareAndExpire = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"

// ScanLock keeps two processes from running the same collection scan at the same time.
// The lock value identifies the holder so only it can release or extend the lock.
type ScanLock struct {
	client redis.UniversalClient
	key    string
	owner  string
}

// NewScanLock builds the lock for one scan run, e.g. the daily scan for a given date.
// Each lock gets a random owner value so only this holder can release or extend it.
//
// Parameters:
// - client redis.UniversalClient: The redis client the lock lives in.
// - scanName string: The name of the scan, such as daily-cronjob.
// - runDate time.Time: The day the scan runs for.
//
// Returns:
// - *ScanLock: The lock, not yet acquired.
func NewScanLock(client redis.UniversalClient, scanName string, runDate time.Time) *ScanLock {
	return &ScanLock{
		client: client,
		key:    ScanLockKey(scanName, runDate),
		owner:  uuid.NewString(),
	}
}

// ScanLockKey returns the redis key guarding scanName on runDate.
func ScanLockKey(scanName string, runDate time.Time) string {
	return fmt.Sprintf("collector:scan-lock:%s:%s", scanName, runDate.Format("2006-01-02"))
}

func (l *ScanLock) Key() string {
	return l.key
}

// TryAcquire takes the lock for ttl.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - ttl time.Duration: How long the lock is held unless extended or released.
//
// Returns:
// - bool: false without error when another run holds the lock.
// - error: An error if redis could not be reached.
func (l *ScanLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
}

// Release deletes the lock if this holder still owns it.
//
// Parameters:
// - ctx context.Context: The context for the operation.
//
// Returns:
// - error: An error if the release script failed.
func (l *ScanLock) Release(ctx context.Context) error {
	result, err := l.client.Eval(ctx, CompareAndDelete, []string{l.key}, l.owner).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("release failed, lock %s expired or is held by another run", l.key)
	}
	return nil
}

// Extend pushes the expiry of a held lock forward, for scans that outlive the initial ttl.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - extension time.Duration: The new time to live from now.
//
// Returns:
// - error: An error if the lock is no longer held by this owner or redis failed.
func (l *ScanLock) Extend(ctx context.Context, extension time.Duration) error {
	result, err := l.client.Eval(ctx, compareAndExpire, []string{l.key}, l.owner, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("extend failed, lock %s expired or is held by another run", l.key)
	}
	return nil
}
