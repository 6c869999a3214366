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
	"fmt"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

// CommitTransition applies one transition in a single SQL transaction. Instance and custody
// rows are version checked; a stale version aborts the whole commit with CONFLICT.
func (d Datasource) CommitTransition(ctx context.Context, c *model.Commit) error {
	if c == nil || c.Instance == nil || c.Custody == nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "incomplete commit", nil)
	}

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if c.Create {
		err = insertInstance(ctx, tx, c.Instance)
		if err == nil {
			err = insertCustodyAccount(ctx, tx, c.Custody)
		}
	} else {
		err = updateInstance(ctx, tx, c.Instance)
		if err == nil {
			err = updateCustodyAccount(ctx, tx, c.Custody)
		}
	}
	if err != nil {
		return err
	}

	for _, e := range c.Entries {
		if err := insertLedgerEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, r := range c.Registrations {
		if err := upsertRegistration(ctx, tx, r); err != nil {
			return err
		}
	}
	for _, p := range c.PaymentRequests {
		if err := upsertPaymentRequest(ctx, tx, p); err != nil {
			return err
		}
	}
	if err := applyAggregate(ctx, tx, c.Aggregate); err != nil {
		return err
	}
	if err := insertEvent(ctx, tx, c.Event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}

	if c.Create {
		c.Instance.Version, c.Custody.Version = 1, 1
	} else {
		c.Instance.Version++
		c.Custody.Version++
	}
	return nil
}

func insertInstance(ctx context.Context, tx *sql.Tx, inst *model.Instance) error {
	participants, err := jsonb(inst.Participants)
	if err != nil {
		return err
	}
	outcome, err := jsonb(inst.Outcome)
	if err != nil {
		return err
	}
	terms, err := jsonb(inst.Terms)
	if err != nil {
		return err
	}
	metaData, err := jsonb(inst.MetaData)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO custody.instances (instance_id, kind, participants, value_amount, contributed, disbursed, status, deadline,
			custody_account, bump, outcome, terms, meta_data, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15)
	`, inst.InstanceID, inst.Kind, participants, amount(inst.ValueAmount), amount(inst.Contributed), amount(inst.Disbursed),
		inst.Status, nullTime(inst.Deadline), inst.CustodyAccount, inst.Bump, outcome, terms, metaData, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("instance with ID '%s' already exists", inst.InstanceID), nil)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create instance", err)
	}
	return nil
}

func updateInstance(ctx context.Context, tx *sql.Tx, inst *model.Instance) error {
	participants, err := jsonb(inst.Participants)
	if err != nil {
		return err
	}
	outcome, err := jsonb(inst.Outcome)
	if err != nil {
		return err
	}
	terms, err := jsonb(inst.Terms)
	if err != nil {
		return err
	}
	metaData, err := jsonb(inst.MetaData)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE custody.instances
		SET participants = $2, value_amount = $3, contributed = $4, disbursed = $5, status = $6, deadline = $7,
			outcome = $8, terms = $9, meta_data = $10, updated_at = $11, version = version + 1
		WHERE instance_id = $1 AND version = $12
	`, inst.InstanceID, participants, amount(inst.ValueAmount), amount(inst.Contributed), amount(inst.Disbursed), inst.Status,
		nullTime(inst.Deadline), outcome, terms, metaData, inst.UpdatedAt, inst.Version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update instance", err)
	}
	return expectOneRow(result, fmt.Sprintf("instance '%s'", inst.InstanceID))
}

func insertCustodyAccount(ctx context.Context, tx *sql.Tx, acc *model.CustodyAccount) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO custody.custody_accounts (address, instance_id, kind, bump, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
	`, acc.Address, acc.InstanceID, acc.Kind, acc.Bump, amount(acc.Balance), acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("custody account '%s' already exists", acc.Address), nil)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create custody account", err)
	}
	return nil
}

func updateCustodyAccount(ctx context.Context, tx *sql.Tx, acc *model.CustodyAccount) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE custody.custody_accounts
		SET balance = $2, updated_at = $3, version = version + 1
		WHERE address = $1 AND version = $4
	`, acc.Address, amount(acc.Balance), acc.UpdatedAt, acc.Version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update custody account", err)
	}
	return expectOneRow(result, fmt.Sprintf("custody account '%s'", acc.Address))
}

func expectOneRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Optimistic locking failure: %s was updated by another operation", what), nil)
	}
	return nil
}

func insertLedgerEntry(ctx context.Context, tx *sql.Tx, e model.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO custody.ledger_entries (entry_id, instance_id, operation, type, source, destination, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.EntryID, e.InstanceID, e.Operation, e.Type, e.Source, e.Destination, amount(e.Amount), e.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record ledger entry", err)
	}
	return nil
}

func upsertRegistration(ctx context.Context, tx *sql.Tx, r model.Registration) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO custody.registrations (event_id, attendee, ticket_count, total_paid, purchased_at, checked_in, check_in_time, refunded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, attendee) DO UPDATE
		SET ticket_count = EXCLUDED.ticket_count, total_paid = EXCLUDED.total_paid, checked_in = EXCLUDED.checked_in,
			check_in_time = EXCLUDED.check_in_time, refunded = EXCLUDED.refunded
	`, r.EventID, r.Attendee, r.TicketCount, amount(r.TotalPaid), r.PurchasedAt, r.CheckedIn, nullTime(r.CheckInTime), r.Refunded)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record registration", err)
	}
	return nil
}

func upsertPaymentRequest(ctx context.Context, tx *sql.Tx, p model.PaymentRequest) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO custody.payment_requests (request_id, subscription_id, subscriber, cycle, amount, payment_type, status, created_at, expires_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (request_id) DO UPDATE
		SET status = EXCLUDED.status, paid_at = EXCLUDED.paid_at
	`, p.RequestID, p.SubscriptionID, p.Subscriber, amount(p.Cycle), amount(p.Amount), p.PaymentType, p.Status, p.CreatedAt, p.ExpiresAt, nullTime(p.PaidAt))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record payment request", err)
	}
	return nil
}

// applyAggregate moves the platform totals and the per-kind stats by the commit delta.
func applyAggregate(ctx context.Context, tx *sql.Tx, a model.AggregateDelta) error {
	if a.Count == 0 && a.Volume == 0 && a.Active == 0 {
		return nil
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE custody.platform_config
		SET total_count = total_count + $1, total_volume = total_volume + $2
		WHERE id = 1
	`, amount(a.Count), amount(a.Volume))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update platform totals", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "platform is not initialized", nil)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO custody.platform_stats (kind, count, volume, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind) DO UPDATE
		SET count = custody.platform_stats.count + EXCLUDED.count,
			volume = custody.platform_stats.volume + EXCLUDED.volume,
			active = custody.platform_stats.active + EXCLUDED.active
	`, a.Kind, amount(a.Count), amount(a.Volume), a.Active)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update stats", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev model.EventRecord) error {
	participants, err := jsonb(ev.Participants)
	if err != nil {
		return err
	}
	if participants == nil {
		participants = []byte("[]")
	}
	legs, err := jsonb(ev.Legs)
	if err != nil {
		return err
	}
	if legs == nil {
		legs = []byte("[]")
	}
	data, err := jsonb(ev.Data)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO custody.event_records (event_id, operation, instance_id, kind, participants, legs, status, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.EventID, ev.Operation, ev.InstanceID, ev.Kind, participants, legs, ev.Status, data, ev.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append event record", err)
	}
	return nil
}

func (d Datasource) GetLedgerEntries(ctx context.Context, instanceID string) ([]model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT entry_id, instance_id, operation, type, source, destination, amount, created_at
		FROM custody.ledger_entries WHERE instance_id = $1 ORDER BY id ASC
	`, instanceID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entries", err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var amt string
		if err := rows.Scan(&e.EntryID, &e.InstanceID, &e.Operation, &e.Type, &e.Source, &e.Destination, &amt, &e.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger entry", err)
		}
		if e.Amount, err = parseAmount("amount", amt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d Datasource) GetEventRecords(ctx context.Context, instanceID string) ([]model.EventRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT event_id, operation, COALESCE(instance_id, ''), COALESCE(kind, ''), participants, legs, COALESCE(status, ''), data, created_at
		FROM custody.event_records WHERE instance_id = $1 ORDER BY id ASC
	`, instanceID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve event records", err)
	}
	defer rows.Close()

	var out []model.EventRecord
	for rows.Next() {
		var ev model.EventRecord
		var participants, legs, data []byte
		if err := rows.Scan(&ev.EventID, &ev.Operation, &ev.InstanceID, &ev.Kind, &participants, &legs, &ev.Status, &data, &ev.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan event record", err)
		}
		if err := unmarshalJSON(participants, &ev.Participants); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(legs, &ev.Legs); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(data, &ev.Data); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
