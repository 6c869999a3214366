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
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "custody:instance:"

	// PlatformKey guards the platform singleton. It lives outside the instance namespace so no
	// instance id can collide with it.
	PlatformKey = "custody:platform:lock"
)

var (
	ErrLockHeld    = errors.New("lock is held by another operation")
	ErrLockTimeout = errors.New("timed out waiting for lock")
)

const (
	unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

// Locker serialises every operation that names one workflow instance. The token is
// unique per Locker so only the holder can release or extend it.
type Locker struct {
	client redis.UniversalClient
	key    string
	token  string
}

// NewLocker returns a lock for one workflow instance.
func NewLocker(client redis.UniversalClient, instanceID string) *Locker {
	return newLocker(client, InstanceKey(instanceID), uuid.NewString())
}

// NewPlatformLocker returns the lock serializing updates of the platform configuration.
func NewPlatformLocker(client redis.UniversalClient) *Locker {
	return newLocker(client, PlatformKey, uuid.NewString())
}

func newLocker(client redis.UniversalClient, key, token string) *Locker {
	return &Locker{client: client, key: key, token: token}
}

// InstanceKey is the Redis key guarding an instance and its custody account.
func InstanceKey(instanceID string) string {
	return keyPrefix + instanceID
}

func (l *Locker) Key() string {
	return l.key
}

// Lock makes a single attempt.
func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, l.key)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Result()
	if err != nil {
		return err
	}
	if res == int64(0) {
		return fmt.Errorf("unlock failed for %s: lock expired or held by another operation", l.key)
	}
	return nil
}

func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	res, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.token, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if res == int64(0) {
		return fmt.Errorf("extend failed for %s: lock expired or held by another operation", l.key)
	}
	return nil
}

// WaitLock retries Lock with exponential backoff until wait elapses or ctx is done.
// Transport errors stop the retry immediately.
func (l *Locker) WaitLock(ctx context.Context, ttl, wait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = wait

	err := backoff.Retry(func() error {
		err := l.Lock(ctx, ttl)
		if err == nil || errors.Is(err, ErrLockHeld) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))

	if errors.Is(err, ErrLockHeld) {
		return fmt.Errorf("%w: %s", ErrLockTimeout, l.key)
	}
	return err
}
