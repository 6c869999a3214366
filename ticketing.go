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
	"math"
	"time"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/internal/notification"
	"github.com/blnkfinance/custody/model"
)

const (
	maxEventNameLength        = 100
	maxEventDescriptionLength = 500
	maxEventLocationLength    = 200
)

type CreateEventParams struct {
	EventID        string
	Organizer      string
	Name           string
	Description    string
	Location       string
	TicketPrice    uint64
	MaxTickets     uint32
	EventDate      time.Time
	PublicSaleTime time.Time
	MetaData       map[string]interface{}
}

// CreateEvent opens a ticketed event. Nothing is collected until the first sale.
func (c *Custody) CreateEvent(ctx context.Context, params CreateEventParams) (*model.Instance, error) {
	organizer := model.NormalizeIdentity(params.Organizer)
	eventID := model.NormalizeIdentity(params.EventID)
	if eventID == "" {
		eventID = model.GenerateUUIDWithSuffix("event")
	}
	if err := model.ValidateIdentity("event_id", eventID); err != nil {
		return nil, err
	}
	if err := model.ValidateIdentity("organizer", organizer); err != nil {
		return nil, err
	}
	if err := model.ValidateText("name", params.Name, maxEventNameLength, true); err != nil {
		return nil, err
	}
	if err := model.ValidateText("description", params.Description, maxEventDescriptionLength, false); err != nil {
		return nil, err
	}
	if err := model.ValidateText("location", params.Location, maxEventLocationLength, false); err != nil {
		return nil, err
	}
	bounds := c.conf.Workflows.Ticketing
	if err := model.ValidateAmount("ticket_price", params.TicketPrice, bounds.MinTicketPrice, bounds.MaxTicketPrice); err != nil {
		return nil, err
	}
	if params.MaxTickets == 0 {
		return nil, apierror.Validation("max_tickets must be greater than zero")
	}
	if !params.PublicSaleTime.Before(params.EventDate) {
		return nil, apierror.Validation("public sale must open before the event date")
	}

	return c.create(ctx, model.OpEventCreate, model.KindTicketing, eventID, func(_ context.Context, tc *transitionContext) error {
		if !params.EventDate.After(tc.now) {
			return apierror.Validation("event date must be in the future")
		}
		tc.inst.Participants = []string{organizer}
		tc.inst.ValueAmount = params.TicketPrice
		tc.inst.MetaData = params.MetaData
		tc.inst.Terms.Ticketing = &model.TicketTerms{
			Name:            params.Name,
			Description:     params.Description,
			Location:        params.Location,
			MaxTickets:      params.MaxTickets,
			EventDate:       params.EventDate.UTC(),
			PublicSaleTime:  params.PublicSaleTime.UTC(),
			PremiumSaleTime: params.PublicSaleTime.Add(-bounds.PremiumHeadStart()).UTC(),
		}
		return tc.advance()
	})
}

// PurchaseTickets sells count tickets of the given tier to buyer. Premium and genesis holders
// may buy from the premium sale time, everyone else from the public sale time.
func (c *Custody) PurchaseTickets(ctx context.Context, eventID, buyer string, count uint32, tier model.Tier) (*model.Instance, error) {
	buyer = model.NormalizeIdentity(buyer)
	if err := model.ValidateIdentity("buyer", buyer); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, apierror.Validation("ticket count must be greater than zero")
	}
	if !tier.Valid() {
		return nil, apierror.Validation("unknown tier %q", tier)
	}

	return c.transition(ctx, model.OpEventPurchase, eventID, func(ctx context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindTicketing); err != nil {
			return err
		}
		if buyer == tc.inst.Initiator() {
			return apierror.Unauthorized("the organizer cannot buy tickets to their own event")
		}
		if err := tc.advance(); err != nil {
			return err
		}
		terms := tc.inst.Terms.Ticketing
		if err := model.RequireBefore(tc.now, terms.EventDate, "ticket sales"); err != nil {
			return err
		}
		if err := terms.RequireSaleOpen(tc.now, tier); err != nil {
			return err
		}
		if uint64(terms.TicketsSold)+uint64(count) > uint64(terms.MaxTickets) {
			return apierror.StateConflict("only %d tickets left for event %s", terms.MaxTickets-terms.TicketsSold, eventID)
		}
		total, err := model.MulAmount(tc.inst.ValueAmount, uint64(count))
		if err != nil {
			return err
		}
		if terms.TotalRevenue, err = model.AddAmounts(terms.TotalRevenue, total); err != nil {
			return err
		}
		terms.TicketsSold += count

		reg, err := c.registrationFor(ctx, eventID, buyer, tc.now)
		if err != nil {
			return err
		}
		if uint64(reg.TicketCount)+uint64(count) > math.MaxUint32 {
			return apierror.Arithmetic("ticket count overflow for %s", buyer)
		}
		reg.TicketCount += count
		if reg.TotalPaid, err = model.AddAmounts(reg.TotalPaid, total); err != nil {
			return err
		}
		tc.registrations = append(tc.registrations, *reg)

		tc.collect(buyer, total)
		tc.set("buyer", buyer)
		tc.set("tickets", count)
		tc.set("tier", tier)
		return nil
	})
}

// CheckIn marks an attendee's registration as used. Doors open a configured lead time
// before the event starts.
func (c *Custody) CheckIn(ctx context.Context, eventID, attendee string) (*model.Instance, error) {
	attendee = model.NormalizeIdentity(attendee)
	if err := model.ValidateIdentity("attendee", attendee); err != nil {
		return nil, err
	}

	return c.transition(ctx, model.OpEventCheckIn, eventID, func(ctx context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindTicketing); err != nil {
			return err
		}
		if err := tc.advance(); err != nil {
			return err
		}
		reg, err := c.datasource.GetRegistration(ctx, eventID, attendee)
		if err != nil {
			if apierror.IsCode(err, apierror.ErrNotFound) {
				return apierror.StateConflict("%s holds no tickets for event %s", attendee, eventID)
			}
			return err
		}
		if reg.CheckedIn {
			return apierror.StateConflict("%s is already checked in", attendee)
		}
		opens := tc.inst.Terms.Ticketing.EventDate.Add(-c.conf.Workflows.Ticketing.CheckInLead())
		if err := model.RequireReached(tc.now, opens, "check-in"); err != nil {
			return err
		}
		checkedInAt := tc.now
		reg.CheckedIn = true
		reg.CheckInTime = &checkedInAt
		tc.registrations = append(tc.registrations, *reg)
		tc.set("attendee", attendee)
		return nil
	})
}

// WithdrawEventFunds pays the collected revenue, less the platform fee, to the organizer
// once the event has taken place.
func (c *Custody) WithdrawEventFunds(ctx context.Context, eventID, caller string) (*model.Instance, error) {
	return c.transition(ctx, model.OpEventWithdraw, eventID, func(_ context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindTicketing); err != nil {
			return err
		}
		if caller != tc.inst.Initiator() {
			return apierror.Unauthorized("only the organizer may withdraw event funds")
		}
		if err := tc.advance(); err != nil {
			return err
		}
		if err := model.RequireAfter(tc.now, tc.inst.Terms.Ticketing.EventDate, "withdrawal"); err != nil {
			return err
		}
		if _, err := tc.settle(tc.inst.Held(), tc.inst.Initiator(), model.LegRevenue); err != nil {
			return err
		}
		tc.settledNow().Paid = true
		return nil
	})
}

// CancelEvent calls off an event before it starts and refunds every registration in the
// same commit.
func (c *Custody) CancelEvent(ctx context.Context, eventID, caller string) (*model.Instance, error) {
	return c.transition(ctx, model.OpEventCancel, eventID, func(ctx context.Context, tc *transitionContext) error {
		if err := requireKind(tc.inst, model.KindTicketing); err != nil {
			return err
		}
		if caller != tc.inst.Initiator() {
			return apierror.Unauthorized("only the organizer may cancel the event")
		}
		if err := tc.advance(); err != nil {
			return err
		}
		if err := model.RequireBefore(tc.now, tc.inst.Terms.Ticketing.EventDate, "cancellation"); err != nil {
			return err
		}

		regs, err := c.datasource.GetRegistrations(ctx, eventID)
		if err != nil {
			return err
		}
		var refunded uint64
		for _, reg := range regs {
			if reg.Refunded {
				continue
			}
			tc.release(model.LegRefund, reg.Attendee, reg.TotalPaid)
			if refunded, err = model.AddAmounts(refunded, reg.TotalPaid); err != nil {
				return err
			}
			reg.Refunded = true
			tc.registrations = append(tc.registrations, reg)
		}
		if refunded != tc.inst.Held() {
			err := apierror.TransferFailure("event %s holds %d but registrations paid %d", eventID, tc.inst.Held(), refunded)
			notification.NotifyError(err)
			return err
		}
		tc.settledNow().Reason = "cancelled by organizer"
		tc.set("refunds", len(tc.registrations))
		return nil
	})
}

func (c *Custody) GetRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	return c.datasource.GetRegistrations(ctx, eventID)
}

func (c *Custody) registrationFor(ctx context.Context, eventID, attendee string, now time.Time) (*model.Registration, error) {
	reg, err := c.datasource.GetRegistration(ctx, eventID, attendee)
	if err == nil {
		return reg, nil
	}
	if !apierror.IsCode(err, apierror.ErrNotFound) {
		return nil, err
	}
	return &model.Registration{EventID: eventID, Attendee: attendee, PurchasedAt: now}, nil
}
