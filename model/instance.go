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
	"time"
)

// Kind names a workflow family. It is also the domain separator of custody derivation.
type Kind string

const (
	KindWager        Kind = "wager"
	KindTip          Kind = "tip"
	KindTicketing    Kind = "event"
	KindSubscription Kind = "subscription"
)

// Kinds lists every workflow kind the kernel serves.
var Kinds = []Kind{KindWager, KindTip, KindTicketing, KindSubscription}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusNone             Status = ""
	StatusOpen             Status = "OPEN"
	StatusActive           Status = "ACTIVE"
	StatusCompleted        Status = "COMPLETED"
	StatusDisputed         Status = "DISPUTED"
	StatusExpired          Status = "EXPIRED"
	StatusCancelled        Status = "CANCELLED"
	StatusRejected         Status = "REJECTED"
	StatusPaymentRequested Status = "PAYMENT_REQUESTED"
	StatusPaymentRejected  Status = "PAYMENT_REJECTED"
)

// Outcome is set only by terminal or payment transitions.
type Outcome struct {
	Winner    string     `json:"winner,omitempty"`
	Paid      bool       `json:"paid,omitempty"`
	CheckedIn bool       `json:"checked_in,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// Instance is one wager, tip, ticketed event or subscription under custody.
type Instance struct {
	InstanceID     string                 `json:"instance_id"`
	Kind           Kind                   `json:"kind"`
	Participants   []string               `json:"participants"`
	ValueAmount    uint64                 `json:"value_amount"`
	Contributed    uint64                 `json:"contributed"`
	Disbursed      uint64                 `json:"disbursed"`
	Status         Status                 `json:"status"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Deadline       *time.Time             `json:"deadline,omitempty"`
	CustodyAccount string                 `json:"custody_account"`
	Bump           uint8                  `json:"bump"`
	Outcome        *Outcome               `json:"outcome,omitempty"`
	Terms          Terms                  `json:"terms"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
	Version        int64                  `json:"version"`
}

// Terms carries the kind-specific attributes of an instance. Exactly one field is set.
type Terms struct {
	Wager        *WagerTerms        `json:"wager,omitempty"`
	Tip          *TipTerms          `json:"tip,omitempty"`
	Ticketing    *TicketTerms       `json:"ticketing,omitempty"`
	Subscription *SubscriptionTerms `json:"subscription,omitempty"`
}

type GameType string

const (
	GameCoinFlip          GameType = "coin_flip"
	GameRockPaperScissors GameType = "rock_paper_scissors"
	GameDiceRoll          GameType = "dice_roll"
	GameGuessTheWord      GameType = "guess_the_word"
	GameTruthOrDare       GameType = "truth_or_dare"
	GameCustom            GameType = "custom"
)

func (g GameType) Valid() bool {
	switch g {
	case GameCoinFlip, GameRockPaperScissors, GameDiceRoll, GameGuessTheWord, GameTruthOrDare, GameCustom:
		return true
	}
	return false
}

type WagerTerms struct {
	GameType GameType   `json:"game_type"`
	GameData string     `json:"game_data,omitempty"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}

type TipTerms struct {
	PostID string `json:"post_id"`
}

type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierGenesis Tier = "genesis"
)

func (t Tier) Valid() bool {
	return t == TierBasic || t == TierPremium || t == TierGenesis
}

type TicketTerms struct {
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Location        string    `json:"location,omitempty"`
	MaxTickets      uint32    `json:"max_tickets"`
	TicketsSold     uint32    `json:"tickets_sold"`
	EventDate       time.Time `json:"event_date"`
	PublicSaleTime  time.Time `json:"public_sale_time"`
	PremiumSaleTime time.Time `json:"premium_sale_time"`
	TotalRevenue    uint64    `json:"total_revenue"`
}

type PaymentType string

const (
	PaymentMonthly PaymentType = "monthly"
	PaymentYearly  PaymentType = "yearly"
)

func (p PaymentType) Valid() bool {
	return p == PaymentMonthly || p == PaymentYearly
}

type SubscriptionTerms struct {
	PaymentType     PaymentType `json:"payment_type"`
	StartDate       time.Time   `json:"start_date"`
	LastPaymentDate time.Time   `json:"last_payment_date"`
	NextPaymentDue  time.Time   `json:"next_payment_due"`
	PaymentCount    uint64      `json:"payment_count"`
}

// Registration is a buyer's ticket holding for one event.
type Registration struct {
	EventID     string     `json:"event_id"`
	Attendee    string     `json:"attendee"`
	TicketCount uint32     `json:"ticket_count"`
	TotalPaid   uint64     `json:"total_paid"`
	PurchasedAt time.Time  `json:"purchased_at"`
	CheckedIn   bool       `json:"checked_in"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
	Refunded    bool       `json:"refunded"`
}

type PaymentRequestStatus string

const (
	PaymentRequestPending  PaymentRequestStatus = "PENDING"
	PaymentRequestApproved PaymentRequestStatus = "APPROVED"
	PaymentRequestRejected PaymentRequestStatus = "REJECTED"
	PaymentRequestExpired  PaymentRequestStatus = "EXPIRED"
)

// PaymentRequest is one billing-cycle charge against a subscription.
type PaymentRequest struct {
	RequestID      string               `json:"request_id"`
	SubscriptionID string               `json:"subscription_id"`
	Subscriber     string               `json:"subscriber"`
	Cycle          uint64               `json:"cycle"`
	Amount         uint64               `json:"amount"`
	PaymentType    PaymentType          `json:"payment_type"`
	Status         PaymentRequestStatus `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	ExpiresAt      time.Time            `json:"expires_at"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
}

// CustodyAccount is the value holder of one instance. Nobody owns it; it moves only
// through the transfer executor under the instance's derived authority.
type CustodyAccount struct {
	Address    string    `json:"address"`
	InstanceID string    `json:"instance_id"`
	Kind       Kind      `json:"kind"`
	Bump       uint8     `json:"bump"`
	Balance    uint64    `json:"balance"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PlatformConfig is the process-wide singleton. Created once, changed only by the authority.
type PlatformConfig struct {
	Authority   string    `json:"authority"`
	Treasury    string    `json:"treasury"`
	FeeRateBps  uint16    `json:"fee_rate_bps"`
	TotalCount  uint64    `json:"total_count"`
	TotalVolume uint64    `json:"total_volume"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stats are the running aggregates of one workflow kind.
type Stats struct {
	Kind   Kind   `json:"kind"`
	Count  uint64 `json:"count"`
	Volume uint64 `json:"volume"`
	Active int64  `json:"active"`
}

// Initiator returns the first participant.
func (i *Instance) Initiator() string {
	if len(i.Participants) == 0 {
		return ""
	}
	return i.Participants[0]
}

// HasParticipant reports whether identity is one of the instance participants.
func (i *Instance) HasParticipant(identity string) bool {
	for _, p := range i.Participants {
		if p == identity {
			return true
		}
	}
	return false
}

// Held is the amount the instance still keeps in custody.
func (i *Instance) Held() uint64 {
	return i.Contributed - i.Disbursed
}

// Clone returns a deep copy so a transition can be computed without touching the stored record.
func (i *Instance) Clone() *Instance {
	c := *i
	c.Participants = append([]string(nil), i.Participants...)
	if i.Deadline != nil {
		d := *i.Deadline
		c.Deadline = &d
	}
	if i.Outcome != nil {
		o := *i.Outcome
		c.Outcome = &o
	}
	if i.Terms.Wager != nil {
		w := *i.Terms.Wager
		c.Terms.Wager = &w
	}
	if i.Terms.Tip != nil {
		t := *i.Terms.Tip
		c.Terms.Tip = &t
	}
	if i.Terms.Ticketing != nil {
		t := *i.Terms.Ticketing
		c.Terms.Ticketing = &t
	}
	if i.Terms.Subscription != nil {
		s := *i.Terms.Subscription
		c.Terms.Subscription = &s
	}
	if i.MetaData != nil {
		c.MetaData = make(map[string]interface{}, len(i.MetaData))
		for k, v := range i.MetaData {
			c.MetaData[k] = v
		}
	}
	return &c
}
