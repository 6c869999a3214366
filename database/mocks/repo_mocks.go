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
package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/custody/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Platform methods

func (m *MockDataSource) CreatePlatformConfig(ctx context.Context, cfg *model.PlatformConfig, event model.EventRecord) error {
	args := m.Called(ctx, cfg, event)
	return args.Error(0)
}

func (m *MockDataSource) GetPlatformConfig(ctx context.Context) (*model.PlatformConfig, error) {
	args := m.Called(ctx)
	cfg, _ := args.Get(0).(*model.PlatformConfig)
	return cfg, args.Error(1)
}

func (m *MockDataSource) UpdatePlatformConfig(ctx context.Context, cfg *model.PlatformConfig, event model.EventRecord) error {
	args := m.Called(ctx, cfg, event)
	return args.Error(0)
}

func (m *MockDataSource) GetStats(ctx context.Context, kind model.Kind) (*model.Stats, error) {
	args := m.Called(ctx, kind)
	stats, _ := args.Get(0).(*model.Stats)
	return stats, args.Error(1)
}

// Registry methods

func (m *MockDataSource) GetInstance(ctx context.Context, instanceID string) (*model.Instance, error) {
	args := m.Called(ctx, instanceID)
	inst, _ := args.Get(0).(*model.Instance)
	return inst, args.Error(1)
}

func (m *MockDataSource) GetCustodyAccount(ctx context.Context, address string) (*model.CustodyAccount, error) {
	args := m.Called(ctx, address)
	acc, _ := args.Get(0).(*model.CustodyAccount)
	return acc, args.Error(1)
}

func (m *MockDataSource) GetRegistration(ctx context.Context, eventID, attendee string) (*model.Registration, error) {
	args := m.Called(ctx, eventID, attendee)
	reg, _ := args.Get(0).(*model.Registration)
	return reg, args.Error(1)
}

func (m *MockDataSource) GetRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	args := m.Called(ctx, eventID)
	regs, _ := args.Get(0).([]model.Registration)
	return regs, args.Error(1)
}

func (m *MockDataSource) GetLatestPaymentRequest(ctx context.Context, subscriptionID string) (*model.PaymentRequest, error) {
	args := m.Called(ctx, subscriptionID)
	pr, _ := args.Get(0).(*model.PaymentRequest)
	return pr, args.Error(1)
}

func (m *MockDataSource) ListDueInstances(ctx context.Context, before time.Time, limit int) ([]model.Instance, error) {
	args := m.Called(ctx, before, limit)
	out, _ := args.Get(0).([]model.Instance)
	return out, args.Error(1)
}

// Journal methods

func (m *MockDataSource) CommitTransition(ctx context.Context, commit *model.Commit) error {
	args := m.Called(ctx, commit)
	return args.Error(0)
}

func (m *MockDataSource) GetLedgerEntries(ctx context.Context, instanceID string) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, instanceID)
	out, _ := args.Get(0).([]model.LedgerEntry)
	return out, args.Error(1)
}

func (m *MockDataSource) GetEventRecords(ctx context.Context, instanceID string) ([]model.EventRecord, error) {
	args := m.Called(ctx, instanceID)
	out, _ := args.Get(0).([]model.EventRecord)
	return out, args.Error(1)
}
