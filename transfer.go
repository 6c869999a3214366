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
	"time"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/internal/derivation"
	"github.com/blnkfinance/custody/internal/notification"
	"github.com/blnkfinance/custody/model"
)

// TransferExecutor moves value in and out of custody accounts. It is the only code path
// that changes a custody balance, and it does so under the authority re-derived from the
// owning instance, never under a caller's.
type TransferExecutor struct {
	deriver *derivation.Deriver
}

// TransferResult is the post-state of a successful execution. Nothing is persisted until
// the caller commits it together with the state transition.
type TransferResult struct {
	Entries     []model.LedgerEntry
	Custody     model.CustodyAccount
	Contributed uint64
	Disbursed   uint64
	Inbound     uint64
	Outbound    uint64
}

func NewTransferExecutor(deriver *derivation.Deriver) *TransferExecutor {
	return &TransferExecutor{deriver: deriver}
}

// Execute simulates every leg against the custody account in order. It fails as a whole
// if any leg is invalid or would overdraw custody.
func (t *TransferExecutor) Execute(inst *model.Instance, account *model.CustodyAccount, op model.Operation, legs []model.Leg, now time.Time) (*TransferResult, error) {
	authority, err := t.deriver.Authorize(inst.Kind, inst.InstanceID, inst.CustodyAccount, inst.Bump)
	if err != nil {
		return nil, err
	}
	if account.Address != inst.CustodyAccount || !t.deriver.Verify(authority, account.Address) {
		return nil, apierror.Unauthorized("no authority over custody account %s", account.Address)
	}
	if err := checkHeld(inst, account); err != nil {
		notification.NotifyError(err)
		return nil, err
	}

	result := &TransferResult{
		Custody:     *account,
		Contributed: inst.Contributed,
		Disbursed:   inst.Disbursed,
	}
	balance := account.Balance

	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		inbound, err := direction(leg, account.Address)
		if err != nil {
			return nil, err
		}

		if inbound {
			if balance, err = model.AddAmounts(balance, leg.Amount); err != nil {
				return nil, err
			}
			if result.Contributed, err = model.AddAmounts(result.Contributed, leg.Amount); err != nil {
				return nil, err
			}
			if result.Inbound, err = model.AddAmounts(result.Inbound, leg.Amount); err != nil {
				return nil, err
			}
		} else {
			if leg.Amount > balance {
				err := apierror.TransferFailure("insufficient custody balance: %s holds %d, %s leg needs %d", account.Address, balance, leg.Type, leg.Amount)
				notification.NotifyError(err)
				return nil, err
			}
			balance -= leg.Amount
			if result.Disbursed, err = model.AddAmounts(result.Disbursed, leg.Amount); err != nil {
				return nil, err
			}
			if result.Outbound, err = model.AddAmounts(result.Outbound, leg.Amount); err != nil {
				return nil, err
			}
		}

		result.Entries = append(result.Entries, model.LedgerEntry{
			EntryID:     model.GenerateUUIDWithSuffix("entry"),
			InstanceID:  inst.InstanceID,
			Operation:   op,
			Type:        leg.Type,
			Source:      leg.Source,
			Destination: leg.Destination,
			Amount:      leg.Amount,
			CreatedAt:   now,
		})
	}

	result.Custody.Balance = balance
	result.Custody.UpdatedAt = now
	return result, nil
}

// checkHeld fails when the recorded balance no longer matches contributions minus disbursements.
func checkHeld(inst *model.Instance, account *model.CustodyAccount) error {
	if inst.Disbursed > inst.Contributed || account.Balance != inst.Contributed-inst.Disbursed {
		return apierror.TransferFailure("custody invariant broken for %s: balance %d, contributed %d, disbursed %d",
			inst.InstanceID, account.Balance, inst.Contributed, inst.Disbursed)
	}
	return nil
}

// direction reports whether leg pays into custody. Exactly one side of a leg is the custody
// account and the other side must be a valid identity.
func direction(leg model.Leg, custodyAddress string) (bool, error) {
	switch {
	case leg.Source == custodyAddress && leg.Destination == custodyAddress:
		return false, apierror.TransferFailure("%s leg moves custody %s onto itself", leg.Type, custodyAddress)
	case leg.Destination == custodyAddress:
		if err := model.ValidateIdentity("source", leg.Source); err != nil {
			return false, apierror.TransferFailure("invalid source for %s leg: %v", leg.Type, err)
		}
		return true, nil
	case leg.Source == custodyAddress:
		if err := model.ValidateIdentity("destination", leg.Destination); err != nil {
			return false, apierror.TransferFailure("invalid destination for %s leg: %v", leg.Type, err)
		}
		return false, nil
	}
	return false, apierror.TransferFailure("%s leg does not touch custody account %s", leg.Type, custodyAddress)
}
