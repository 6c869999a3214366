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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

const instanceColumns = `instance_id, kind, participants, value_amount, contributed, disbursed, status, deadline,
		custody_account, bump, outcome, terms, meta_data, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*model.Instance, error) {
	inst := &model.Instance{}
	var (
		participants, outcome, terms, metaData []byte
		value, contributed, disbursed          string
		deadline                               sql.NullTime
	)
	err := row.Scan(&inst.InstanceID, &inst.Kind, &participants, &value, &contributed, &disbursed, &inst.Status,
		&deadline, &inst.CustodyAccount, &inst.Bump, &outcome, &terms, &metaData, &inst.Version, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if inst.ValueAmount, err = parseAmount("value_amount", value); err != nil {
		return nil, err
	}
	if inst.Contributed, err = parseAmount("contributed", contributed); err != nil {
		return nil, err
	}
	if inst.Disbursed, err = parseAmount("disbursed", disbursed); err != nil {
		return nil, err
	}
	inst.Deadline = timePtr(deadline)

	if err := unmarshalJSON(participants, &inst.Participants); err != nil {
		return nil, err
	}
	if len(outcome) > 0 {
		inst.Outcome = &model.Outcome{}
		if err := unmarshalJSON(outcome, inst.Outcome); err != nil {
			return nil, err
		}
	}
	if err := unmarshalJSON(terms, &inst.Terms); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(metaData, &inst.MetaData); err != nil {
		return nil, err
	}
	return inst, nil
}

func (d Datasource) GetInstance(ctx context.Context, instanceID string) (*model.Instance, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM custody.instances WHERE instance_id = $1`, instanceID)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("instance with ID '%s' not found", instanceID), nil)
		}
		return nil, classify(err, "Failed to retrieve instance")
	}
	return inst, nil
}

// ListDueInstances returns instances a passed deadline can still move: open wagers and
// subscriptions awaiting payment.
func (d Datasource) ListDueInstances(ctx context.Context, before time.Time, limit int) ([]model.Instance, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+instanceColumns+`
		FROM custody.instances
		WHERE deadline <= $1
		  AND ((kind = 'wager' AND status = 'OPEN')
		    OR (kind = 'subscription' AND status IN ('ACTIVE', 'PAYMENT_REQUESTED', 'PAYMENT_REJECTED')))
		ORDER BY deadline ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list due instances", err)
	}
	defer rows.Close()

	var out []model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, classify(err, "Failed to scan instance")
		}
		out = append(out, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list due instances", err)
	}
	return out, nil
}

func (d Datasource) GetCustodyAccount(ctx context.Context, address string) (*model.CustodyAccount, error) {
	acc := &model.CustodyAccount{}
	var balance string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT address, instance_id, kind, bump, balance, version, created_at, updated_at
		FROM custody.custody_accounts WHERE address = $1
	`, address).Scan(&acc.Address, &acc.InstanceID, &acc.Kind, &acc.Bump, &balance, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("custody account '%s' not found", address), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve custody account", err)
	}
	if acc.Balance, err = parseAmount("balance", balance); err != nil {
		return nil, err
	}
	return acc, nil
}

const registrationColumns = `event_id, attendee, ticket_count, total_paid, purchased_at, checked_in, check_in_time, refunded`

func scanRegistration(row rowScanner) (*model.Registration, error) {
	reg := &model.Registration{}
	var paid string
	var checkIn sql.NullTime
	if err := row.Scan(&reg.EventID, &reg.Attendee, &reg.TicketCount, &paid, &reg.PurchasedAt, &reg.CheckedIn, &checkIn, &reg.Refunded); err != nil {
		return nil, err
	}
	var err error
	if reg.TotalPaid, err = parseAmount("total_paid", paid); err != nil {
		return nil, err
	}
	reg.CheckInTime = timePtr(checkIn)
	return reg, nil
}

func (d Datasource) GetRegistration(ctx context.Context, eventID, attendee string) (*model.Registration, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM custody.registrations WHERE event_id = $1 AND attendee = $2`, eventID, attendee)
	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("no registration for '%s' at event '%s'", attendee, eventID), nil)
		}
		return nil, classify(err, "Failed to retrieve registration")
	}
	return reg, nil
}

func (d Datasource) GetRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := d.Conn.QueryContext(ctx, `SELECT `+registrationColumns+` FROM custody.registrations WHERE event_id = $1 ORDER BY purchased_at ASC, attendee ASC`, eventID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve registrations", err)
	}
	defer rows.Close()

	var out []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, classify(err, "Failed to scan registration")
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

func (d Datasource) GetLatestPaymentRequest(ctx context.Context, subscriptionID string) (*model.PaymentRequest, error) {
	pr := &model.PaymentRequest{}
	var cycle, amt string
	var paidAt sql.NullTime
	err := d.Conn.QueryRowContext(ctx, `
		SELECT request_id, subscription_id, subscriber, cycle, amount, payment_type, status, created_at, expires_at, paid_at
		FROM custody.payment_requests WHERE subscription_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, subscriptionID).Scan(&pr.RequestID, &pr.SubscriptionID, &pr.Subscriber, &cycle, &amt, &pr.PaymentType, &pr.Status, &pr.CreatedAt, &pr.ExpiresAt, &paidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("no payment request for subscription '%s'", subscriptionID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payment request", err)
	}
	if pr.Cycle, err = parseAmount("cycle", cycle); err != nil {
		return nil, err
	}
	if pr.Amount, err = parseAmount("amount", amt); err != nil {
		return nil, err
	}
	pr.PaidAt = timePtr(paidAt)
	return pr, nil
}
