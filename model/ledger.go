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

import "time"

type LegType string

const (
	LegContribution LegType = "contribution"
	LegPayout       LegType = "payout"
	LegFee          LegType = "fee"
	LegRefund       LegType = "refund"
	LegRevenue      LegType = "revenue"
)

// Leg is a single value movement. Either Source or Destination is the custody account.
type Leg struct {
	Type        LegType `json:"type"`
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Amount      uint64  `json:"amount"`
}

// LedgerEntry is an executed leg, as persisted.
type LedgerEntry struct {
	EntryID     string    `json:"entry_id"`
	InstanceID  string    `json:"instance_id"`
	Operation   Operation `json:"operation"`
	Type        LegType   `json:"type"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Amount      uint64    `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// EventRecord is the immutable, append-only trace of one committed operation.
type EventRecord struct {
	EventID      string                 `json:"event_id"`
	Operation    Operation              `json:"operation"`
	InstanceID   string                 `json:"instance_id,omitempty"`
	Kind         Kind                   `json:"kind,omitempty"`
	Participants []string               `json:"participants"`
	Legs         []Leg                  `json:"legs"`
	Status       Status                 `json:"status,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// AggregateDelta is applied to the platform running totals in the same commit as the transition.
type AggregateDelta struct {
	Kind   Kind
	Count  uint64
	Volume uint64
	Active int64
}

// Commit is everything one transition writes. The store applies it all or nothing.
type Commit struct {
	Operation       Operation
	Create          bool
	Instance        *Instance
	Custody         *CustodyAccount
	Entries         []LedgerEntry
	Registrations   []Registration
	PaymentRequests []PaymentRequest
	Aggregate       AggregateDelta
	Event           EventRecord
}
