package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/custody/config"
)

func TestInitializeQueues(t *testing.T) {
	conf := &config.Configuration{Queue: config.QueueConfig{
		WebhookQueue:  "hooks",
		DeadlineQueue: "deadlines",
	}}

	queues := initializeQueues(conf)
	assert.Len(t, queues, 2)
	assert.Greater(t, queues["deadlines"], queues["hooks"])
}

func TestStartSweeperRejectsBadSchedule(t *testing.T) {
	app := &custodyInstance{cnf: &config.Configuration{Queue: config.QueueConfig{SweepSchedule: "every minute"}}}

	_, err := startSweeper(app)
	assert.Error(t, err)
}

func TestStartSweeper(t *testing.T) {
	app := &custodyInstance{cnf: &config.Configuration{Queue: config.QueueConfig{SweepSchedule: "@every 1h", SweepBatch: 10}}}

	c, err := startSweeper(app)
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 1)
}

func TestInitializeTracingDisabled(t *testing.T) {
	shutdown, err := initializeTracing(context.Background(), &config.Configuration{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
