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
	"time"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

// Subscribe starts a subscription and collects the first period up front. A subscriber holds
// at most one subscription.
func (c *Custody) Subscribe(ctx context.Context, subscriber string, paymentType model.PaymentType) (*model.Instance, error) {
	subscriber = model.NormalizeIdentity(subscriber)
	if err := model.ValidateIdentity("subscriber", subscriber); err != nil {
		return nil, err
	}
	period, price, err := c.period(paymentType)
	if err != nil {
		return nil, err
	}
	grace := c.conf.Workflows.Subscription.Grace()

	subscriptionID := model.SubscriptionID(subscriber)
	return c.create(ctx, model.OpSubscriptionCreate, model.KindSubscription, subscriptionID, func(_ context.Context, tc *transitionContext) error {
		terms := &model.SubscriptionTerms{
			PaymentType:     paymentType,
			StartDate:       tc.now,
			LastPaymentDate: tc.now,
			NextPaymentDue:  tc.now.Add(period),
			PaymentCount:    1,
		}
		deadline := terms.GraceEndsAt(grace)
		tc.inst.Participants = []string{subscriber}
		tc.inst.ValueAmount = price
		tc.inst.Deadline = &deadline
		tc.inst.Terms.Subscription = terms
		if err := tc.advance(); err != nil {
			return err
		}

		paidAt := tc.now
		tc.requests = append(tc.requests, model.PaymentRequest{
			RequestID:      model.GenerateUUIDWithSuffix("payreq"),
			SubscriptionID: subscriptionID,
			Subscriber:     subscriber,
			Cycle:          1,
			Amount:         price,
			PaymentType:    paymentType,
			Status:         model.PaymentRequestApproved,
			CreatedAt:      tc.now,
			ExpiresAt:      tc.now,
			PaidAt:         &paidAt,
		})
		tc.collect(subscriber, price)
		tc.release(model.LegRevenue, tc.platform.Treasury, price)
		tc.set("payment_type", paymentType)
		tc.schedule = lapseCheckAt(deadline)
		return nil
	})
}

// RequestPayment opens the charge for the next billing cycle. It is accepted from the due
// date until the grace period ends.
func (c *Custody) RequestPayment(ctx context.Context, subscriptionID, caller string) (*model.Instance, error) {
	return c.transition(ctx, model.OpSubscriptionPaymentRequested, subscriptionID, func(_ context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindSubscription); err != nil {
			return err
		}
		subscriber := tc.inst.Initiator()
		if caller != subscriber && caller != tc.platform.Authority {
			return apierror.Unauthorized("caller %q may not request payment for %s", caller, subscriptionID)
		}
		if err := tc.advance(); err != nil {
			return err
		}
		terms := tc.inst.Terms.Subscription
		if err := model.RequireReached(tc.now, terms.NextPaymentDue, "payment request"); err != nil {
			return err
		}
		grace := c.conf.Workflows.Subscription.Grace()
		if terms.Lapsed(tc.now, grace) {
			return apierror.Timing("grace period for %s ended at %s", subscriptionID, terms.GraceEndsAt(grace).Format(time.RFC3339))
		}
		_, price, err := c.period(terms.PaymentType)
		if err != nil {
			return err
		}

		request := model.PaymentRequest{
			RequestID:      model.GenerateUUIDWithSuffix("payreq"),
			SubscriptionID: subscriptionID,
			Subscriber:     subscriber,
			Cycle:          terms.PaymentCount + 1,
			Amount:         price,
			PaymentType:    terms.PaymentType,
			Status:         model.PaymentRequestPending,
			CreatedAt:      tc.now,
			ExpiresAt:      terms.GraceEndsAt(grace),
		}
		tc.requests = append(tc.requests, request)
		tc.set("request_id", request.RequestID)
		tc.set("amount", price)
		return nil
	})
}

// ApprovePayment pays the pending request through custody to the treasury and advances the
// due date by one period.
func (c *Custody) ApprovePayment(ctx context.Context, subscriptionID, caller string) (*model.Instance, error) {
	return c.transition(ctx, model.OpSubscriptionPaymentApproved, subscriptionID, func(ctx context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindSubscription); err != nil {
			return err
		}
		if caller != tc.inst.Initiator() {
			return apierror.Unauthorized("only the subscriber may approve a payment")
		}
		if err := tc.advance(); err != nil {
			return err
		}
		request, err := c.pendingRequest(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if tc.now.After(request.ExpiresAt) {
			return apierror.Timing("payment request %s expired at %s", request.RequestID, request.ExpiresAt.Format(time.RFC3339))
		}
		terms := tc.inst.Terms.Subscription
		period, _, err := c.period(terms.PaymentType)
		if err != nil {
			return err
		}

		paidAt := tc.now
		request.Status = model.PaymentRequestApproved
		request.PaidAt = &paidAt
		tc.requests = append(tc.requests, *request)

		tc.collect(tc.inst.Initiator(), request.Amount)
		tc.release(model.LegRevenue, tc.platform.Treasury, request.Amount)

		terms.LastPaymentDate = tc.now
		terms.NextPaymentDue = terms.NextPaymentDue.Add(period)
		terms.PaymentCount++
		deadline := terms.GraceEndsAt(c.conf.Workflows.Subscription.Grace())
		tc.inst.Deadline = &deadline
		tc.schedule = lapseCheckAt(deadline)
		tc.settledNow().Paid = true
		tc.set("request_id", request.RequestID)
		tc.set("cycle", request.Cycle)
		return nil
	})
}

// RejectPayment declines the pending request. A new request may be opened while the grace
// period lasts.
func (c *Custody) RejectPayment(ctx context.Context, subscriptionID, caller string) (*model.Instance, error) {
	return c.transition(ctx, model.OpSubscriptionPaymentRejected, subscriptionID, func(ctx context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindSubscription); err != nil {
			return err
		}
		if caller != tc.inst.Initiator() {
			return apierror.Unauthorized("only the subscriber may reject a payment")
		}
		if err := tc.advance(); err != nil {
			return err
		}
		request, err := c.pendingRequest(ctx, subscriptionID)
		if err != nil {
			return err
		}
		request.Status = model.PaymentRequestRejected
		tc.requests = append(tc.requests, *request)
		if tc.inst.Outcome != nil {
			tc.inst.Outcome.Paid = false
		}
		tc.set("request_id", request.RequestID)
		return nil
	})
}

// CheckSubscription expires a subscription whose grace period has elapsed. Anyone may call it.
func (c *Custody) CheckSubscription(ctx context.Context, subscriptionID string) (*model.Instance, error) {
	return c.transition(ctx, model.OpSubscriptionCheckStatus, subscriptionID, func(ctx context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindSubscription); err != nil {
			return err
		}
		if err := tc.advance(); err != nil {
			return err
		}
		terms := tc.inst.Terms.Subscription
		grace := c.conf.Workflows.Subscription.Grace()
		if !terms.Lapsed(tc.now, grace) {
			return apierror.Timing("subscription %s is in good standing until %s", subscriptionID, terms.GraceEndsAt(grace).Format(time.RFC3339))
		}

		request, err := c.datasource.GetLatestPaymentRequest(ctx, subscriptionID)
		if err != nil && !apierror.IsCode(err, apierror.ErrNotFound) {
			return err
		}
		if err == nil && request.Status == model.PaymentRequestPending {
			request.Status = model.PaymentRequestExpired
			tc.requests = append(tc.requests, *request)
		}
		outcome := tc.settledNow()
		outcome.Paid = false
		outcome.Reason = "payment overdue"
		return nil
	})
}

// ChangePaymentType switches between monthly and yearly billing from the next cycle on.
func (c *Custody) ChangePaymentType(ctx context.Context, subscriptionID, caller string, paymentType model.PaymentType) (*model.Instance, error) {
	_, price, err := c.period(paymentType)
	if err != nil {
		return nil, err
	}

	return c.transition(ctx, model.OpSubscriptionPaymentTypeChanged, subscriptionID, func(_ context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindSubscription); err != nil {
			return err
		}
		if caller != tc.inst.Initiator() {
			return apierror.Unauthorized("only the subscriber may change the payment type")
		}
		terms := tc.inst.Terms.Subscription
		if terms.PaymentType == paymentType {
			return apierror.Validation("subscription %s is already %s", subscriptionID, paymentType)
		}
		if err := tc.advance(); err != nil {
			return err
		}
		tc.set("old_payment_type", terms.PaymentType)
		tc.set("new_payment_type", paymentType)
		terms.PaymentType = paymentType
		tc.inst.ValueAmount = price
		return nil
	})
}

// GetLatestPaymentRequest returns the most recent billing-cycle request of a subscription.
func (c *Custody) GetLatestPaymentRequest(ctx context.Context, subscriptionID string) (*model.PaymentRequest, error) {
	return c.datasource.GetLatestPaymentRequest(ctx, subscriptionID)
}

func (c *Custody) pendingRequest(ctx context.Context, subscriptionID string) (*model.PaymentRequest, error) {
	request, err := c.datasource.GetLatestPaymentRequest(ctx, subscriptionID)
	if err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			return nil, apierror.StateConflict("subscription %s has no pending payment request", subscriptionID)
		}
		return nil, err
	}
	if request.Status != model.PaymentRequestPending {
		return nil, apierror.StateConflict("payment request %s is %s", request.RequestID, request.Status)
	}
	return request, nil
}

// lapseCheckAt is when to run the status check for a grace period ending at graceEnd.
// A subscription lapses strictly after its grace end.
func lapseCheckAt(graceEnd time.Time) *time.Time {
	at := graceEnd.Add(time.Second)
	return &at
}

func (c *Custody) period(paymentType model.PaymentType) (time.Duration, uint64, error) {
	if !paymentType.Valid() {
		return 0, 0, apierror.Validation("unknown payment type %q", paymentType)
	}
	period, price, err := c.conf.Workflows.Subscription.Period(string(paymentType))
	if err != nil {
		return 0, 0, apierror.Validation("%v", err)
	}
	if price == 0 || period <= 0 {
		return 0, 0, apierror.Validation("%s billing is not configured", paymentType)
	}
	return period, price, nil
}
