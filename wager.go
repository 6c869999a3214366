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

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

const maxGameDataLength = 256

// CreateWagerParams opens a two-party wager. WagerID is generated when empty.
type CreateWagerParams struct {
	WagerID  string
	Creator  string
	Stake    uint64
	GameType model.GameType
	GameData string
	MetaData map[string]interface{}
}

// CreateWager escrows the creator's stake and opens the wager until the join deadline.
func (c *Custody) CreateWager(ctx context.Context, params CreateWagerParams) (*model.Instance, error) {
	creator := model.NormalizeIdentity(params.Creator)
	wagerID := model.NormalizeIdentity(params.WagerID)
	if wagerID == "" {
		wagerID = model.GenerateUUIDWithSuffix("wager")
	}
	if err := model.ValidateIdentity("wager_id", wagerID); err != nil {
		return nil, err
	}
	if err := model.ValidateIdentity("creator", creator); err != nil {
		return nil, err
	}
	bounds := c.conf.Workflows.Wager
	if err := model.ValidateAmount("stake", params.Stake, bounds.MinStake, bounds.MaxStake); err != nil {
		return nil, err
	}
	if !params.GameType.Valid() {
		return nil, apierror.Validation("unknown game type %q", params.GameType)
	}
	if err := model.ValidateText("game_data", params.GameData, maxGameDataLength, false); err != nil {
		return nil, err
	}

	return c.create(ctx, model.OpWagerCreate, model.KindWager, wagerID, func(_ context.Context, tc *transitionContext) error {
		deadline := tc.now.Add(bounds.Expiry())
		tc.inst.Participants = []string{creator}
		tc.inst.ValueAmount = params.Stake
		tc.inst.Deadline = &deadline
		tc.inst.MetaData = params.MetaData
		tc.inst.Terms.Wager = &model.WagerTerms{GameType: params.GameType, GameData: params.GameData}
		if err := tc.advance(); err != nil {
			return err
		}
		tc.collect(creator, params.Stake)
		tc.set("game_type", params.GameType)
		tc.schedule = &deadline
		return nil
	})
}

// JoinWager matches the creator's stake and activates the wager.
func (c *Custody) JoinWager(ctx context.Context, wagerID, opponent string) (*model.Instance, error) {
	opponent = model.NormalizeIdentity(opponent)
	if err := model.ValidateIdentity("opponent", opponent); err != nil {
		return nil, err
	}

	return c.transition(ctx, model.OpWagerJoin, wagerID, func(_ context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindWager); err != nil {
			return err
		}
		if opponent == tc.inst.Initiator() {
			return apierror.Unauthorized("the creator cannot join their own wager")
		}
		if err := tc.advance(); err != nil {
			return err
		}
		if err := model.RequireBefore(tc.now, *tc.inst.Deadline, "joining"); err != nil {
			return err
		}
		joinedAt := tc.now
		tc.inst.Participants = append(tc.inst.Participants, opponent)
		tc.inst.Terms.Wager.JoinedAt = &joinedAt
		tc.collect(opponent, tc.inst.ValueAmount)
		return nil
	})
}

// CompleteWager pays the pool, less the platform fee, to the declared winner.
func (c *Custody) CompleteWager(ctx context.Context, wagerID, caller, winner string) (*model.Instance, error) {
	winner = model.NormalizeIdentity(winner)

	return c.transition(ctx, model.OpWagerComplete, wagerID, func(_ context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindWager); err != nil {
			return err
		}
		if !tc.inst.HasParticipant(winner) {
			return apierror.Validation("winner %q is not a participant of wager %s", winner, wagerID)
		}
		resolver := caller == tc.platform.Authority ||
			(c.conf.Workflows.Wager.ParticipantResolution && tc.inst.HasParticipant(caller))
		if !resolver {
			return apierror.Unauthorized("caller %q may not resolve wager %s", caller, wagerID)
		}
		if err := tc.advance(); err != nil {
			return err
		}

		if _, err := tc.settle(tc.inst.Held(), winner, model.LegPayout); err != nil {
			return err
		}
		outcome := tc.settledNow()
		outcome.Winner = winner
		outcome.Paid = true
		tc.set("winner", winner)
		return nil
	})
}

// CancelWager refunds the creator of a wager nobody has joined yet.
func (c *Custody) CancelWager(ctx context.Context, wagerID, caller string) (*model.Instance, error) {
	return c.transition(ctx, model.OpWagerCancel, wagerID, func(_ context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindWager); err != nil {
			return err
		}
		if !c.conf.Workflows.Wager.CreatorCancelAllowed() {
			return apierror.StateConflict("wager cancellation is disabled")
		}
		if caller != tc.inst.Initiator() {
			return apierror.Unauthorized("only the creator may cancel wager %s", wagerID)
		}
		if err := tc.advance(); err != nil {
			return err
		}
		tc.release(model.LegRefund, tc.inst.Initiator(), tc.inst.Held())
		tc.settledNow().Reason = "cancelled by creator"
		return nil
	})
}

// ExpireWager refunds the creator once the join deadline has passed without an opponent.
// Anyone may trigger it.
func (c *Custody) ExpireWager(ctx context.Context, wagerID, caller string) (*model.Instance, error) {
	return c.transition(ctx, model.OpWagerExpire, wagerID, func(_ context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindWager); err != nil {
			return err
		}
		if err := tc.advance(); err != nil {
			return err
		}
		if err := model.RequireReached(tc.now, *tc.inst.Deadline, "expiry"); err != nil {
			return err
		}
		tc.release(model.LegRefund, tc.inst.Initiator(), tc.inst.Held())
		tc.settledNow().Reason = "expired without opponent"
		tc.set("triggered_by", caller)
		return nil
	})
}

// DisputeWager flags an active wager for external arbitration. Funds stay in custody.
func (c *Custody) DisputeWager(ctx context.Context, wagerID, caller, reason string) (*model.Instance, error) {
	if err := model.ValidateText("reason", reason, maxGameDataLength, false); err != nil {
		return nil, err
	}

	return c.transition(ctx, model.OpWagerDispute, wagerID, func(_ context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindWager); err != nil {
			return err
		}
		if caller != tc.platform.Authority && !tc.inst.HasParticipant(caller) {
			return apierror.Unauthorized("caller %q may not dispute wager %s", caller, wagerID)
		}
		if err := tc.advance(); err != nil {
			return err
		}
		tc.inst.Outcome = &model.Outcome{Reason: reason}
		tc.set("disputed_by", caller)
		return nil
	})
}

func requireKind(inst *model.Instance, kind model.Kind) error {
	if inst.Kind != kind {
		return apierror.Validation("instance %s is a %s, not a %s", inst.InstanceID, inst.Kind, kind)
	}
	return nil
}
