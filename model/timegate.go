package model

import (
	"time"

	"github.com/blnkfinance/custody/internal/apierror"
)

// HasPassed reports whether now is at or after the deadline.
func HasPassed(now, deadline time.Time) bool {
	return !now.Before(deadline)
}

// RequireBefore fails with a TimingError once the deadline is reached.
func RequireBefore(now, deadline time.Time, what string) error {
	if HasPassed(now, deadline) {
		return apierror.Timing("%s closed at %s", what, deadline.UTC().Format(time.RFC3339))
	}
	return nil
}

// RequireReached fails with a TimingError until at is reached.
func RequireReached(now, at time.Time, what string) error {
	if now.Before(at) {
		return apierror.Timing("%s not open until %s", what, at.UTC().Format(time.RFC3339))
	}
	return nil
}

// RequireAfter fails until now is strictly after at.
func RequireAfter(now, at time.Time, what string) error {
	if !now.After(at) {
		return apierror.Timing("%s only after %s", what, at.UTC().Format(time.RFC3339))
	}
	return nil
}

// SaleOpensAt returns when a caller of the given tier may start buying tickets.
func (t *TicketTerms) SaleOpensAt(tier Tier) time.Time {
	if tier == TierPremium || tier == TierGenesis {
		return t.PremiumSaleTime
	}
	return t.PublicSaleTime
}

// RequireSaleOpen gates ticket purchases by tier.
func (t *TicketTerms) RequireSaleOpen(now time.Time, tier Tier) error {
	opens := t.SaleOpensAt(tier)
	if now.Before(opens) {
		if tier == TierBasic {
			return apierror.Timing("basic tier must wait for the public sale at %s", opens.UTC().Format(time.RFC3339))
		}
		return apierror.Timing("sale has not started yet, opens at %s", opens.UTC().Format(time.RFC3339))
	}
	return nil
}

// GraceEndsAt is the hard expiry of a subscription cycle.
func (s *SubscriptionTerms) GraceEndsAt(grace time.Duration) time.Time {
	return s.NextPaymentDue.Add(grace)
}

// Lapsed reports whether the grace period after the due date has fully elapsed.
func (s *SubscriptionTerms) Lapsed(now time.Time, grace time.Duration) bool {
	return now.After(s.GraceEndsAt(grace))
}
