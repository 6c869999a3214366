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
	"embed"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/database"
	"github.com/blnkfinance/custody/internal/cache"
	"github.com/blnkfinance/custody/internal/derivation"
	redis_db "github.com/blnkfinance/custody/internal/redis-db"
	"github.com/blnkfinance/custody/model"
)

var (
	tracer = otel.Tracer("custody")
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Custody is the settlement kernel. Every exported method that changes state is one legal
// transition of one workflow instance.
type Custody struct {
	conf       *config.Configuration
	datasource database.IDataSource
	redis      redis.UniversalClient
	cache      cache.Cache
	deriver    *derivation.Deriver
	executor   *TransferExecutor
	clock      clockwork.Clock
	dispatcher Dispatcher
}

type Option func(*Custody)

// WithClock replaces the wall clock. Tests pass a clockwork.FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Custody) {
		c.clock = clock
	}
}

// WithDispatcher replaces the asynq queue used for events and deadline tasks.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Custody) {
		c.dispatcher = d
	}
}

// WithRedis reuses an existing client for locks and the config cache.
func WithRedis(client redis.UniversalClient) Option {
	return func(c *Custody) {
		c.redis = client
	}
}

// NewCustody wires the kernel around a datasource using the current configuration.
func NewCustody(db database.IDataSource, opts ...Option) (*Custody, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	c := &Custody{conf: configuration, datasource: db}
	for _, opt := range opts {
		opt(c)
	}

	if c.redis == nil {
		redisClient, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns}, configuration.Redis.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		c.redis = redisClient.Client()
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.dispatcher == nil {
		c.dispatcher = NewQueue(configuration)
	}

	c.deriver, err = derivation.NewDeriver([]byte(configuration.Custody.DerivationSecret))
	if err != nil {
		return nil, err
	}
	c.executor = NewTransferExecutor(c.deriver)
	// no local layer: a fee update must be visible to every process at once
	c.cache = cache.NewCache(c.redis, 0)
	return c, nil
}

// Config returns the deployment configuration the kernel was built with.
func (c *Custody) Config() *config.Configuration {
	return c.conf
}

// GetInstance returns the stored state of a workflow instance.
func (c *Custody) GetInstance(ctx context.Context, instanceID string) (*model.Instance, error) {
	return c.datasource.GetInstance(ctx, instanceID)
}

// GetCustodyAccount returns the custody account of an instance.
func (c *Custody) GetCustodyAccount(ctx context.Context, instanceID string) (*model.CustodyAccount, error) {
	inst, err := c.datasource.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return c.datasource.GetCustodyAccount(ctx, inst.CustodyAccount)
}

func (c *Custody) GetLedgerEntries(ctx context.Context, instanceID string) ([]model.LedgerEntry, error) {
	return c.datasource.GetLedgerEntries(ctx, instanceID)
}

func (c *Custody) GetEventRecords(ctx context.Context, instanceID string) ([]model.EventRecord, error) {
	return c.datasource.GetEventRecords(ctx, instanceID)
}

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}
