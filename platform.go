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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/internal/cache"
	redlock "github.com/blnkfinance/custody/internal/lock"
	"github.com/blnkfinance/custody/internal/notification"
	"github.com/blnkfinance/custody/model"
)

const (
	platformCacheKey      = "custody:platform_config"
	platformGenerationKey = "custody:platform_config:generation"
	platformCacheTTL      = 5 * time.Minute
)

// InitializePlatform creates the platform singleton. It succeeds once; any later call fails
// with CONFLICT. A nil fee rate takes the configured default.
func (c *Custody) InitializePlatform(ctx context.Context, authority, treasury string, feeRateBps *uint16) (*model.PlatformConfig, error) {
	ctx, span := tracer.Start(ctx, string(model.OpPlatformInitialize))
	defer span.End()

	authority = model.NormalizeIdentity(authority)
	treasury = model.NormalizeIdentity(treasury)
	if err := model.ValidateIdentity("authority", authority); err != nil {
		return nil, err
	}
	if err := model.ValidateIdentity("treasury", treasury); err != nil {
		return nil, err
	}
	fee := c.conf.Platform.FeeRateBps
	if feeRateBps != nil {
		fee = *feeRateBps
	}
	if err := model.ValidateFeeRate(fee); err != nil {
		return nil, err
	}

	now := c.clock.Now().UTC()
	cfg := &model.PlatformConfig{
		Authority:  authority,
		Treasury:   treasury,
		FeeRateBps: fee,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	event := model.EventRecord{
		EventID:      model.GenerateUUIDWithSuffix("evt"),
		Operation:    model.OpPlatformInitialize,
		Participants: []string{authority},
		Data:         map[string]interface{}{"treasury": treasury, "fee_rate_bps": fee},
		CreatedAt:    now,
	}
	if err := c.datasource.CreatePlatformConfig(ctx, cfg, event); err != nil {
		return nil, logAndRecordError(span, "platform initialization failed: ", err)
	}
	c.publish(ctx, event)
	return cfg, nil
}

// UpdatePlatformFee changes the fee rate. Only the authority may call it and the new rate is
// bounded by the same ceiling as initialization.
func (c *Custody) UpdatePlatformFee(ctx context.Context, caller string, feeRateBps uint16) (*model.PlatformConfig, error) {
	ctx, span := tracer.Start(ctx, string(model.OpPlatformFeeUpdated))
	defer span.End()

	var updated *model.PlatformConfig
	err := c.withLock(ctx, redlock.NewPlatformLocker(c.redis), "platform", func(ctx context.Context) error {
		cfg, err := c.datasource.GetPlatformConfig(ctx)
		if err != nil {
			return err
		}
		if caller != cfg.Authority {
			return apierror.Unauthorized("only the platform authority may update the fee")
		}
		if err := model.ValidateFeeRate(feeRateBps); err != nil {
			return err
		}

		now := c.clock.Now().UTC()
		old := cfg.FeeRateBps
		cfg.FeeRateBps = feeRateBps
		cfg.UpdatedAt = now
		event := model.EventRecord{
			EventID:      model.GenerateUUIDWithSuffix("evt"),
			Operation:    model.OpPlatformFeeUpdated,
			Participants: []string{caller},
			Data:         map[string]interface{}{"old_fee_rate_bps": old, "new_fee_rate_bps": feeRateBps},
			CreatedAt:    now,
		}
		if err := c.datasource.UpdatePlatformConfig(ctx, cfg, event); err != nil {
			return err
		}
		if err := c.invalidatePlatformConfig(ctx); err != nil {
			notification.NotifyError(fmt.Errorf("invalidating platform config cache: %w", err))
		}
		c.publish(ctx, event)
		updated = cfg
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "platform fee update failed: ", err)
	}
	return updated, nil
}

// GetPlatformConfig reads the singleton from the store, with current running totals.
func (c *Custody) GetPlatformConfig(ctx context.Context) (*model.PlatformConfig, error) {
	return c.datasource.GetPlatformConfig(ctx)
}

func (c *Custody) GetStats(ctx context.Context, kind model.Kind) (*model.Stats, error) {
	if !kind.Valid() {
		return nil, apierror.Validation("unknown workflow kind %q", kind)
	}
	return c.datasource.GetStats(ctx, kind)
}

// platformConfig is the cached read used by transitions. Only authority, treasury and fee
// rate are relied upon; totals may lag. Entries are keyed by a generation that every update
// bumps, so a fill that raced an update lands on a key no later read uses.
func (c *Custody) platformConfig(ctx context.Context) (*model.PlatformConfig, error) {
	generation, err := c.redis.Get(ctx, platformGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		logrus.Warnf("platform config generation read failed: %v", err)
		return c.datasource.GetPlatformConfig(ctx)
	}
	key := platformConfigKey(generation)

	var cfg model.PlatformConfig
	err = c.cache.Get(ctx, key, &cfg)
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logrus.Warnf("platform config cache read failed: %v", err)
	}

	stored, err := c.datasource.GetPlatformConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, stored, platformCacheTTL); err != nil {
		logrus.Warnf("platform config cache write failed: %v", err)
	}
	return stored, nil
}

// invalidatePlatformConfig moves readers to a new generation and drops the previous entry.
func (c *Custody) invalidatePlatformConfig(ctx context.Context) error {
	generation, err := c.redis.Incr(ctx, platformGenerationKey).Result()
	if err != nil {
		return err
	}
	return c.cache.Delete(ctx, platformConfigKey(generation-1))
}

func platformConfigKey(generation int64) string {
	return fmt.Sprintf("%s:%d", platformCacheKey, generation)
}

func (c *Custody) publish(ctx context.Context, event model.EventRecord) {
	c.afterCommit(ctx, event, event.InstanceID, nil)
}
