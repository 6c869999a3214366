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

package custody

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/database"
	"github.com/blnkfinance/custody/database/mocks"
	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

const (
	testAuthority = "authority"
	testTreasury  = "treasury"
)

var testEpoch = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu        sync.Mutex
	events    []model.EventRecord
	deadlines map[string]time.Time
	fail      error
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{deadlines: make(map[string]time.Time)}
}

func (r *recordingDispatcher) PublishEvent(_ context.Context, event model.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDispatcher) ScheduleDeadline(_ context.Context, instanceID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.deadlines[instanceID] = at
	return nil
}

func (r *recordingDispatcher) operations() []model.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]model.Operation, 0, len(r.events))
	for _, e := range r.events {
		ops = append(ops, e.Operation)
	}
	return ops
}

type harness struct {
	custody    *Custody
	store      *database.MemoryStore
	clock      *clockwork.FakeClock
	dispatcher *recordingDispatcher
	redis      *miniredis.Miniredis
}

// newHarness builds a kernel over an in-memory store and an in-process Redis, with the
// platform initialized at 250 bps.
func newHarness(t *testing.T, mutate ...func(*config.Configuration)) *harness {
	t.Helper()
	store := database.NewMemoryStore()
	return newHarnessOn(t, store, store, mutate...)
}

// newHarnessOn is newHarness with the kernel reading through ds, which wraps store.
func newHarnessOn(t *testing.T, store *database.MemoryStore, ds database.IDataSource, mutate ...func(*config.Configuration)) *harness {
	t.Helper()

	cnf := config.DefaultTestConfig()
	cnf.Workflows.Wager.MinStake = 1
	cnf.Workflows.Tip.MinAmount = 1
	for _, m := range mutate {
		m(cnf)
	}
	config.MockConfig(cnf)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &harness{
		store:      store,
		clock:      clockwork.NewFakeClockAt(testEpoch),
		dispatcher: newRecordingDispatcher(),
		redis:      mr,
	}
	c, err := NewCustody(ds, WithRedis(client), WithClock(h.clock), WithDispatcher(h.dispatcher))
	require.NoError(t, err)
	h.custody = c

	fee := uint16(250)
	_, err = c.InitializePlatform(context.Background(), testAuthority, testTreasury, &fee)
	require.NoError(t, err)
	return h
}

// newMockedCustody builds a kernel over a mocked datasource, for store failure paths.
func newMockedCustody(t *testing.T) (*Custody, *mocks.MockDataSource) {
	t.Helper()
	config.MockConfig(config.DefaultTestConfig())

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ds := new(mocks.MockDataSource)
	c, err := NewCustody(ds, WithRedis(client), WithClock(clockwork.NewFakeClockAt(testEpoch)), WithDispatcher(newRecordingDispatcher()))
	require.NoError(t, err)
	return c, ds
}

// outflows sums the ledger entries of an instance paid out of custody to destination.
func (h *harness) outflows(t *testing.T, instanceID, destination string) uint64 {
	t.Helper()
	entries, err := h.store.GetLedgerEntries(context.Background(), instanceID)
	require.NoError(t, err)
	var total uint64
	for _, e := range entries {
		if e.Destination == destination {
			total += e.Amount
		}
	}
	return total
}

func (h *harness) balance(t *testing.T, instanceID string) uint64 {
	t.Helper()
	acc, err := h.custody.GetCustodyAccount(context.Background(), instanceID)
	require.NoError(t, err)
	return acc.Balance
}

func assertCode(t *testing.T, err error, code apierror.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	got, ok := apierror.CodeOf(err)
	require.True(t, ok, "expected a typed error, got %v", err)
	assert.Equal(t, code, got, err.Error())
}

func TestGetCustodyAccountUnknownInstance(t *testing.T) {
	h := newHarness(t)
	_, err := h.custody.GetCustodyAccount(context.Background(), "missing")
	assertCode(t, err, apierror.ErrNotFound)
}

func TestDispatchFailureDoesNotFailTransition(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.fail = errors.New("queue down")

	inst, err := h.custody.CreateWager(context.Background(), CreateWagerParams{
		WagerID:  "wager-dispatch",
		Creator:  "alice",
		Stake:    500_000,
		GameType: model.GameCoinFlip,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, inst.Status)

	stored, err := h.custody.GetInstance(context.Background(), "wager-dispatch")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, stored.Status)
}

func TestBusyInstanceIsRejected(t *testing.T) {
	h := newHarness(t, func(c *config.Configuration) { c.Custody.LockWaitMs = 50 })
	ctx := context.Background()
	_, err := h.custody.CreateWager(ctx, CreateWagerParams{WagerID: "wager-busy", Creator: "alice", Stake: 10, GameType: model.GameDiceRoll})
	require.NoError(t, err)

	require.NoError(t, h.redis.Set("custody:instance:wager-busy", "someone-else"))

	_, err = h.custody.JoinWager(ctx, "wager-busy", "bob")
	assertCode(t, err, apierror.ErrConflict)

	h.redis.Del("custody:instance:wager-busy")
	_, err = h.custody.JoinWager(ctx, "wager-busy", "bob")
	assert.NoError(t, err)
}
