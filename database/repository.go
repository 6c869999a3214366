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

package database

import (
	"context"
	"time"

	"github.com/blnkfinance/custody/model"
)

// IDataSource is the registry and ledger state store. Every mutation of an instance goes
// through CommitTransition so state, custody balance, ledger entries, aggregates and the
// event record are written together or not at all.
type IDataSource interface {
	platform
	registry
	journal
}

type platform interface {
	CreatePlatformConfig(ctx context.Context, cfg *model.PlatformConfig, event model.EventRecord) error // fails with CONFLICT when already initialized
	GetPlatformConfig(ctx context.Context) (*model.PlatformConfig, error)
	UpdatePlatformConfig(ctx context.Context, cfg *model.PlatformConfig, event model.EventRecord) error // version checked
	GetStats(ctx context.Context, kind model.Kind) (*model.Stats, error)
}

type registry interface {
	GetInstance(ctx context.Context, instanceID string) (*model.Instance, error)
	GetCustodyAccount(ctx context.Context, address string) (*model.CustodyAccount, error)
	GetRegistration(ctx context.Context, eventID, attendee string) (*model.Registration, error)
	GetRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)
	GetLatestPaymentRequest(ctx context.Context, subscriptionID string) (*model.PaymentRequest, error)
	ListDueInstances(ctx context.Context, before time.Time, limit int) ([]model.Instance, error) // expirable instances whose deadline passed
}

type journal interface {
	CommitTransition(ctx context.Context, commit *model.Commit) error
	GetLedgerEntries(ctx context.Context, instanceID string) ([]model.LedgerEntry, error)
	GetEventRecords(ctx context.Context, instanceID string) ([]model.EventRecord, error)
}
