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

const maxPostIDLength = 64

// SendTip moves a tip through custody in a single commit: the sender's amount comes in, the
// fee goes to the treasury and the rest to the recipient. A sender tips a given post of a
// recipient at most once.
func (c *Custody) SendTip(ctx context.Context, sender, recipient string, amount uint64, postID string) (*model.Instance, error) {
	sender = model.NormalizeIdentity(sender)
	recipient = model.NormalizeIdentity(recipient)
	if err := model.ValidateIdentity("sender", sender); err != nil {
		return nil, err
	}
	if err := model.ValidateIdentity("recipient", recipient); err != nil {
		return nil, err
	}
	bounds := c.conf.Workflows.Tip
	if err := model.ValidateAmount("amount", amount, bounds.MinAmount, bounds.MaxAmount); err != nil {
		return nil, err
	}
	if err := model.ValidateText("post_id", postID, maxPostIDLength, true); err != nil {
		return nil, err
	}
	if sender == recipient {
		return nil, apierror.Unauthorized("cannot tip yourself")
	}

	tipID := model.TipID(sender, recipient, postID)
	return c.create(ctx, model.OpTipSend, model.KindTip, tipID, func(_ context.Context, tc *transitionContext) error {
		tc.inst.Participants = []string{sender, recipient}
		tc.inst.ValueAmount = amount
		tc.inst.Terms.Tip = &model.TipTerms{PostID: postID}
		if err := tc.advance(); err != nil {
			return err
		}
		tc.collect(sender, amount)
		if _, err := tc.settle(amount, recipient, model.LegPayout); err != nil {
			return err
		}
		tc.settledNow().Paid = true
		tc.set("post_id", postID)
		return nil
	})
}
