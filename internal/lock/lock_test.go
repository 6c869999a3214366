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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_Lock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := newLocker(db, InstanceKey("wager_1"), "token")

	mock.ExpectSetNX("custody:instance:wager_1", "token", 5*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_Held(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := newLocker(db, InstanceKey("wager_1"), "token")

	mock.ExpectSetNX("custody:instance:wager_1", "token", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.True(t, errors.Is(err, ErrLockHeld))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock(t *testing.T) {
	tests := []struct {
		name    string
		result  int64
		wantErr bool
	}{
		{name: "holder releases", result: 1},
		{name: "expired or foreign", result: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			locker := newLocker(db, InstanceKey("sub_1"), "token")
			mock.ExpectEval(unlockScript, []string{"custody:instance:sub_1"}, "token").SetVal(tt.result)

			err := locker.Unlock(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLocker_ExtendLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := newLocker(db, InstanceKey("event_1"), "token")

	mock.ExpectEval(extendScript, []string{"custody:instance:event_1"}, "token", "5000").SetVal(int64(1))

	assert.NoError(t, locker.ExtendLock(context.Background(), 5*time.Second))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLocker_WaitLock_AcquiresAfterRelease(t *testing.T) {
	_, client := newMiniredisClient(t)
	ctx := context.Background()

	first := NewLocker(client, "wager_1")
	require.NoError(t, first.Lock(ctx, 5*time.Second))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = first.Unlock(ctx)
	}()

	second := NewLocker(client, "wager_1")
	assert.NoError(t, second.WaitLock(ctx, 5*time.Second, 2*time.Second))
}

func TestLocker_WaitLock_Timeout(t *testing.T) {
	_, client := newMiniredisClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "wager_1")
	require.NoError(t, holder.Lock(ctx, 10*time.Second))

	waiter := NewLocker(client, "wager_1")
	err := waiter.WaitLock(ctx, 5*time.Second, 100*time.Millisecond)
	assert.True(t, errors.Is(err, ErrLockTimeout))

	// a foreign token cannot release the held lock
	assert.Error(t, waiter.Unlock(ctx))
}

func TestLocker_DifferentInstancesDoNotBlock(t *testing.T) {
	_, client := newMiniredisClient(t)
	ctx := context.Background()

	require.NoError(t, NewLocker(client, "wager_1").Lock(ctx, 5*time.Second))
	assert.NoError(t, NewLocker(client, "wager_2").Lock(ctx, 5*time.Second))
}

func TestLocker_PlatformLockIsSeparateFromInstances(t *testing.T) {
	_, client := newMiniredisClient(t)
	ctx := context.Background()

	assert.NotEqual(t, InstanceKey("platform"), PlatformKey)
	require.NoError(t, NewLocker(client, "platform").Lock(ctx, 5*time.Second))
	assert.NoError(t, NewPlatformLocker(client).Lock(ctx, 5*time.Second))
}
