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

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/custody/internal/apierror"
	redlock "github.com/blnkfinance/custody/internal/lock"
	"github.com/blnkfinance/custody/internal/notification"
	"github.com/blnkfinance/custody/model"
)

// transitionContext is the working state of one operation. The clock is read once into now
// and every gate of the operation is evaluated against it.
type transitionContext struct {
	op       model.Operation
	now      time.Time
	platform *model.PlatformConfig
	create   bool
	prior    model.Status

	inst    *model.Instance
	custody *model.CustodyAccount

	legs          []model.Leg
	registrations []model.Registration
	requests      []model.PaymentRequest
	data          map[string]interface{}
	schedule      *time.Time
}

type transitionFunc func(ctx context.Context, tc *transitionContext) error

// advance moves the working copy along the state graph of its kind.
func (tc *transitionContext) advance() error {
	next, err := model.NextStatus(tc.inst.Kind, tc.inst.Status, tc.op)
	if err != nil {
		return err
	}
	tc.inst.Status = next
	return nil
}

// collect moves amount from a participant into custody.
func (tc *transitionContext) collect(from string, amount uint64) {
	tc.legs = append(tc.legs, model.Leg{Type: model.LegContribution, Source: from, Destination: tc.custody.Address, Amount: amount})
}

// release moves amount out of custody.
func (tc *transitionContext) release(typ model.LegType, to string, amount uint64) {
	tc.legs = append(tc.legs, model.Leg{Type: typ, Source: tc.custody.Address, Destination: to, Amount: amount})
}

// settle splits pool at the platform fee rate, paying the fee to the treasury and the rest to recipient.
func (tc *transitionContext) settle(pool uint64, recipient string, typ model.LegType) (model.Split, error) {
	split, err := model.ComputeSplit(pool, tc.platform.FeeRateBps)
	if err != nil {
		return split, err
	}
	tc.release(model.LegFee, tc.platform.Treasury, split.Fee)
	tc.release(typ, recipient, split.Net)
	tc.set("pool", split.Pool)
	tc.set("fee", split.Fee)
	tc.set("net", split.Net)
	return split, nil
}

func (tc *transitionContext) set(key string, value interface{}) {
	if tc.data == nil {
		tc.data = make(map[string]interface{})
	}
	tc.data[key] = value
}

func (tc *transitionContext) settledNow() *model.Outcome {
	if tc.inst.Outcome == nil {
		tc.inst.Outcome = &model.Outcome{}
	}
	now := tc.now
	tc.inst.Outcome.SettledAt = &now
	return tc.inst.Outcome
}

// transition runs fn against an existing instance under its lock and commits the result.
func (c *Custody) transition(ctx context.Context, op model.Operation, instanceID string, fn transitionFunc) (*model.Instance, error) {
	ctx, span := tracer.Start(ctx, string(op))
	defer span.End()
	span.SetAttributes(attribute.String("custody.instance_id", instanceID))

	var committed *model.Instance
	err := c.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		tc, err := c.load(ctx, op, instanceID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tc); err != nil {
			return err
		}
		committed, err = c.commit(ctx, tc)
		return err
	})
	if err != nil {
		return nil, logAndRecordError(span, fmt.Sprintf("%s %s failed: ", op, instanceID), err)
	}
	return committed, nil
}

// create runs fn against a fresh instance of kind. The custody account is derived before fn
// runs so contributions can name it.
func (c *Custody) create(ctx context.Context, op model.Operation, kind model.Kind, instanceID string, fn transitionFunc) (*model.Instance, error) {
	ctx, span := tracer.Start(ctx, string(op))
	defer span.End()
	span.SetAttributes(attribute.String("custody.instance_id", instanceID))

	var committed *model.Instance
	err := c.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		tc, err := c.prepare(ctx, op, kind, instanceID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tc); err != nil {
			return err
		}
		committed, err = c.commit(ctx, tc)
		return err
	})
	if err != nil {
		return nil, logAndRecordError(span, fmt.Sprintf("%s %s failed: ", op, instanceID), err)
	}
	return committed, nil
}

func (c *Custody) withInstanceLock(ctx context.Context, instanceID string, fn func(ctx context.Context) error) error {
	return c.withLock(ctx, redlock.NewLocker(c.redis, instanceID), "instance "+instanceID, fn)
}

// withLock runs fn while holding locker. Contention past the configured wait is CONFLICT.
func (c *Custody) withLock(ctx context.Context, locker *redlock.Locker, subject string, fn func(ctx context.Context) error) error {
	if err := locker.WaitLock(ctx, c.conf.Custody.LockTTL(), c.conf.Custody.LockWait()); err != nil {
		if errors.Is(err, redlock.ErrLockTimeout) || errors.Is(err, redlock.ErrLockHeld) {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s is busy, retry later", subject), nil)
		}
		return err
	}
	defer func(locker *redlock.Locker) {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Error(err)
		}
	}(locker)
	return fn(ctx)
}

func (c *Custody) load(ctx context.Context, op model.Operation, instanceID string) (*transitionContext, error) {
	now := c.clock.Now().UTC()
	platform, err := c.platformConfig(ctx)
	if err != nil {
		return nil, err
	}
	inst, err := c.datasource.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	account, err := c.datasource.GetCustodyAccount(ctx, inst.CustodyAccount)
	if err != nil {
		return nil, err
	}
	return &transitionContext{
		op:       op,
		now:      now,
		platform: platform,
		prior:    inst.Status,
		inst:     inst.Clone(),
		custody:  account,
	}, nil
}

func (c *Custody) prepare(ctx context.Context, op model.Operation, kind model.Kind, instanceID string) (*transitionContext, error) {
	now := c.clock.Now().UTC()
	platform, err := c.platformConfig(ctx)
	if err != nil {
		return nil, err
	}
	address, err := c.deriver.ForInstance(kind, instanceID)
	if err != nil {
		return nil, apierror.Validation("cannot derive custody account for %s: %v", instanceID, err)
	}
	return &transitionContext{
		op:       op,
		now:      now,
		platform: platform,
		create:   true,
		prior:    model.StatusNone,
		inst: &model.Instance{
			InstanceID:     instanceID,
			Kind:           kind,
			Status:         model.StatusNone,
			CreatedAt:      now,
			CustodyAccount: address.Address,
			Bump:           address.Bump,
		},
		custody: &model.CustodyAccount{
			Address:    address.Address,
			InstanceID: instanceID,
			Kind:       kind,
			Bump:       address.Bump,
			CreatedAt:  now,
		},
	}, nil
}

// commit executes the legs and hands the whole transition to the store in one call.
func (c *Custody) commit(ctx context.Context, tc *transitionContext) (*model.Instance, error) {
	result, err := c.executor.Execute(tc.inst, tc.custody, tc.op, tc.legs, tc.now)
	if err != nil {
		return nil, err
	}

	inst := tc.inst
	inst.Contributed = result.Contributed
	inst.Disbursed = result.Disbursed
	inst.UpdatedAt = tc.now
	account := result.Custody

	executed := make([]model.Leg, 0, len(result.Entries))
	for _, e := range result.Entries {
		executed = append(executed, model.Leg{Type: e.Type, Source: e.Source, Destination: e.Destination, Amount: e.Amount})
	}

	commit := &model.Commit{
		Operation:       tc.op,
		Create:          tc.create,
		Instance:        inst,
		Custody:         &account,
		Entries:         result.Entries,
		Registrations:   tc.registrations,
		PaymentRequests: tc.requests,
		Aggregate:       aggregateFor(tc, result),
		Event: model.EventRecord{
			EventID:      model.GenerateUUIDWithSuffix("evt"),
			Operation:    tc.op,
			InstanceID:   inst.InstanceID,
			Kind:         inst.Kind,
			Participants: append([]string(nil), inst.Participants...),
			Legs:         executed,
			Status:       inst.Status,
			Data:         tc.data,
			CreatedAt:    tc.now,
		},
	}
	if err := c.datasource.CommitTransition(ctx, commit); err != nil {
		return nil, err
	}

	c.afterCommit(ctx, commit.Event, inst.InstanceID, tc.schedule)
	return inst, nil
}

func aggregateFor(tc *transitionContext, result *TransferResult) model.AggregateDelta {
	delta := model.AggregateDelta{Kind: tc.inst.Kind, Volume: result.Inbound}
	if tc.create {
		delta.Count = 1
		if model.IsOpenEnded(tc.inst.Status) {
			delta.Active = 1
		}
		return delta
	}
	if model.IsOpenEnded(tc.prior) && model.IsTerminal(tc.inst.Status) {
		delta.Active = -1
	}
	return delta
}

// afterCommit publishes the event and schedules the next deadline. Failures are reported,
// not returned; SweepDue picks up a lost deadline task.
func (c *Custody) afterCommit(ctx context.Context, event model.EventRecord, instanceID string, deadline *time.Time) {
	if err := c.dispatcher.PublishEvent(ctx, event); err != nil {
		notification.NotifyError(fmt.Errorf("publishing %s for %s: %w", event.Operation, instanceID, err))
	}
	if deadline != nil {
		if err := c.dispatcher.ScheduleDeadline(ctx, instanceID, *deadline); err != nil {
			notification.NotifyError(fmt.Errorf("scheduling deadline for %s: %w", instanceID, err))
		}
	}
}
