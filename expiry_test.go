package custody

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/model"
)

func TestProcessDeadlineExpiresWager(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createWager(t, h, "stale", 10_000)

	// not due yet
	require.NoError(t, h.custody.ProcessDeadline(ctx, "stale"))
	inst, err := h.custody.GetInstance(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, inst.Status)

	h.clock.Advance(24 * time.Hour)
	require.NoError(t, h.custody.ProcessDeadline(ctx, "stale"))

	inst, err = h.custody.GetInstance(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, inst.Status)
	assert.Equal(t, uint64(10_000), h.outflows(t, "stale", "alice"))
	assert.Equal(t, uint64(0), h.balance(t, "stale"))

	records, err := h.custody.GetEventRecords(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, SystemCaller, records[len(records)-1].Data["triggered_by"])

	// a second delivery finds nothing to do
	assert.NoError(t, h.custody.ProcessDeadline(ctx, "stale"))
}

func TestProcessDeadlineIgnoresSettledAndUnknown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createWager(t, h, "joined", 10_000)
	_, err := h.custody.JoinWager(ctx, "joined", "bob")
	require.NoError(t, err)

	h.clock.Advance(48 * time.Hour)
	assert.NoError(t, h.custody.ProcessDeadline(ctx, "joined"))
	assert.NoError(t, h.custody.ProcessDeadline(ctx, "never-created"))

	inst, err := h.custody.GetInstance(ctx, "joined")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, inst.Status)
}

func TestProcessDeadlineLapsesSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := subscribe(t, h, "sam").InstanceID

	h.clock.Advance(month + grace)
	require.NoError(t, h.custody.ProcessDeadline(ctx, id))
	inst, err := h.custody.GetInstance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, inst.Status)

	h.clock.Advance(time.Second)
	require.NoError(t, h.custody.ProcessDeadline(ctx, id))
	inst, err = h.custody.GetInstance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, inst.Status)
}

func TestProcessDeadlineTask(t *testing.T) {
	h := newHarness(t)
	createWager(t, h, "queued", 10_000)
	h.clock.Advance(24 * time.Hour)

	payload, err := json.Marshal(DeadlinePayload{InstanceID: "queued", Deadline: testEpoch.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.NoError(t, h.custody.ProcessDeadlineTask(context.Background(), asynq.NewTask(config.DefaultDeadlineQueue, payload)))

	inst, err := h.custody.GetInstance(context.Background(), "queued")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, inst.Status)

	err = h.custody.ProcessDeadlineTask(context.Background(), asynq.NewTask(config.DefaultDeadlineQueue, []byte("{")))
	assert.Error(t, err)
}

func TestSweepDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createWager(t, h, "early", 10_000)
	h.clock.Advance(time.Hour)
	createWager(t, h, "late", 10_000)
	createWager(t, h, "taken", 10_000)
	_, err := h.custody.JoinWager(ctx, "taken", "bob")
	require.NoError(t, err)

	n, err := h.custody.SweepDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Advance(23 * time.Hour)
	n, err = h.custody.SweepDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h.clock.Advance(time.Hour)
	n, err = h.custody.SweepDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, id := range []string{"early", "late"} {
		inst, err := h.custody.GetInstance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusExpired, inst.Status, id)
	}
}

func TestProcessDeadlineStoreFailure(t *testing.T) {
	c, ds := newMockedCustody(t)
	ds.On("GetInstance", mock.Anything, "wager-db").Return(nil, errors.New("connection reset"))

	err := c.ProcessDeadline(context.Background(), "wager-db")
	assert.EqualError(t, err, "connection reset")
	ds.AssertExpectations(t)
}

func TestSweepDueListFailure(t *testing.T) {
	c, ds := newMockedCustody(t)
	ds.On("ListDueInstances", mock.Anything, mock.Anything, 25).Return(nil, errors.New("statement timeout"))

	n, err := c.SweepDue(context.Background(), 25)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	ds.AssertExpectations(t)
}

func TestSweepDueContinuesPastFailures(t *testing.T) {
	c, ds := newMockedCustody(t)
	ds.On("ListDueInstances", mock.Anything, mock.Anything, 10).
		Return([]model.Instance{{InstanceID: "broken"}, {InstanceID: "settled"}}, nil)
	ds.On("GetInstance", mock.Anything, "broken").Return(nil, errors.New("connection reset"))
	ds.On("GetInstance", mock.Anything, "settled").
		Return(&model.Instance{InstanceID: "settled", Kind: model.KindWager, Status: model.StatusCompleted}, nil)

	n, err := c.SweepDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ds.AssertExpectations(t)
}
