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

package model

import (
	"github.com/blnkfinance/custody/internal/apierror"
)

// Operation names one legal transition. It is also the name recorded on event records.
type Operation string

const (
	OpPlatformInitialize Operation = "platform.initialize"
	OpPlatformFeeUpdated Operation = "platform.fee_updated"

	OpWagerCreate   Operation = "wager.create"
	OpWagerJoin     Operation = "wager.join"
	OpWagerComplete Operation = "wager.complete"
	OpWagerCancel   Operation = "wager.cancel"
	OpWagerExpire   Operation = "wager.expire"
	OpWagerDispute  Operation = "wager.dispute"

	OpTipSend Operation = "tip.send"

	OpEventCreate   Operation = "event.create"
	OpEventPurchase Operation = "event.purchase"
	OpEventCheckIn  Operation = "event.check_in"
	OpEventWithdraw Operation = "event.withdraw"
	OpEventCancel   Operation = "event.cancel"

	OpSubscriptionCreate             Operation = "subscription.create"
	OpSubscriptionPaymentRequested   Operation = "subscription.payment_requested"
	OpSubscriptionPaymentApproved    Operation = "subscription.payment_approved"
	OpSubscriptionPaymentRejected    Operation = "subscription.payment_rejected"
	OpSubscriptionCheckStatus        Operation = "subscription.check_status"
	OpSubscriptionPaymentTypeChanged Operation = "subscription.payment_type_changed"
)

type edges map[Status]Status

// transitions is the legal graph per kind. An operation absent for the current status
// is a state conflict.
var transitions = map[Kind]map[Operation]edges{
	KindWager: {
		OpWagerCreate:   {StatusNone: StatusOpen},
		OpWagerJoin:     {StatusOpen: StatusActive},
		OpWagerComplete: {StatusActive: StatusCompleted},
		OpWagerCancel:   {StatusOpen: StatusCancelled},
		OpWagerExpire:   {StatusOpen: StatusExpired},
		OpWagerDispute:  {StatusActive: StatusDisputed},
	},
	KindTip: {
		OpTipSend: {StatusNone: StatusCompleted},
	},
	KindTicketing: {
		OpEventCreate:   {StatusNone: StatusOpen},
		OpEventPurchase: {StatusOpen: StatusActive, StatusActive: StatusActive},
		OpEventCheckIn:  {StatusActive: StatusActive},
		OpEventWithdraw: {StatusOpen: StatusCompleted, StatusActive: StatusCompleted},
		OpEventCancel:   {StatusOpen: StatusCancelled, StatusActive: StatusCancelled},
	},
	KindSubscription: {
		OpSubscriptionCreate: {StatusNone: StatusActive},
		OpSubscriptionPaymentRequested: {
			StatusActive:          StatusPaymentRequested,
			StatusPaymentRejected: StatusPaymentRequested,
		},
		OpSubscriptionPaymentApproved: {StatusPaymentRequested: StatusActive},
		OpSubscriptionPaymentRejected: {StatusPaymentRequested: StatusPaymentRejected},
		OpSubscriptionCheckStatus: {
			StatusActive:           StatusExpired,
			StatusPaymentRequested: StatusExpired,
			StatusPaymentRejected:  StatusExpired,
		},
		OpSubscriptionPaymentTypeChanged: {
			StatusActive:          StatusActive,
			StatusPaymentRejected: StatusPaymentRejected,
		},
	},
}

// NextStatus returns the status reached by applying op to an instance of kind in status from.
func NextStatus(kind Kind, from Status, op Operation) (Status, error) {
	ops, ok := transitions[kind]
	if !ok {
		return StatusNone, apierror.Validation("unknown workflow kind %q", kind)
	}
	e, ok := ops[op]
	if !ok {
		return StatusNone, apierror.Validation("operation %s is not defined for %s", op, kind)
	}
	to, ok := e[from]
	if !ok {
		if from == StatusNone {
			return StatusNone, apierror.StateConflict("%s requires an existing %s", op, kind)
		}
		return StatusNone, apierror.StateConflict("%s is not allowed from status %s", op, from)
	}
	return to, nil
}

// IsTerminal reports whether no further transition is accepted from s.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// IsOpenEnded reports whether an instance in status s still counts as active in the aggregates.
func IsOpenEnded(s Status) bool {
	return s != StatusNone && !IsTerminal(s)
}

// Expirable reports whether a passed deadline moves an instance of kind in status s.
func Expirable(kind Kind, s Status) bool {
	switch kind {
	case KindWager:
		_, ok := transitions[kind][OpWagerExpire][s]
		return ok
	case KindSubscription:
		_, ok := transitions[kind][OpSubscriptionCheckStatus][s]
		return ok
	}
	return false
}
