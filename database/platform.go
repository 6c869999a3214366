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

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

// CreatePlatformConfig stores the singleton config and its initialization event.
// The fixed primary key makes a second initialization a unique violation.
func (d Datasource) CreatePlatformConfig(ctx context.Context, cfg *model.PlatformConfig, event model.EventRecord) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO custody.platform_config (id, authority, treasury, fee_rate_bps, total_count, total_volume, version, created_at, updated_at)
		VALUES (1, $1, $2, $3, 0, 0, 1, $4, $5)
	`, cfg.Authority, cfg.Treasury, cfg.FeeRateBps, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.NewAPIError(apierror.ErrConflict, "platform is already initialized", nil)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create platform config", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	cfg.Version = 1
	return nil
}

func (d Datasource) GetPlatformConfig(ctx context.Context) (*model.PlatformConfig, error) {
	cfg := &model.PlatformConfig{}
	var count, volume string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT authority, treasury, fee_rate_bps, total_count, total_volume, version, created_at, updated_at
		FROM custody.platform_config WHERE id = 1
	`).Scan(&cfg.Authority, &cfg.Treasury, &cfg.FeeRateBps, &count, &volume, &cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "platform is not initialized", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve platform config", err)
	}
	if cfg.TotalCount, err = parseAmount("total_count", count); err != nil {
		return nil, err
	}
	if cfg.TotalVolume, err = parseAmount("total_volume", volume); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdatePlatformConfig writes the privileged fields of cfg. Running totals are owned by
// CommitTransition and are not touched here.
func (d Datasource) UpdatePlatformConfig(ctx context.Context, cfg *model.PlatformConfig, event model.EventRecord) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE custody.platform_config
		SET authority = $1, treasury = $2, fee_rate_bps = $3, updated_at = $4, version = version + 1
		WHERE id = 1 AND version = $5
	`, cfg.Authority, cfg.Treasury, cfg.FeeRateBps, cfg.UpdatedAt, cfg.Version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update platform config", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "platform config was updated by another operation", nil)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	cfg.Version++
	return nil
}

func (d Datasource) GetStats(ctx context.Context, kind model.Kind) (*model.Stats, error) {
	stats := &model.Stats{Kind: kind}
	var count, volume string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT count, volume, active FROM custody.platform_stats WHERE kind = $1
	`, kind).Scan(&count, &volume, &stats.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stats", err)
	}
	if stats.Count, err = parseAmount("count", count); err != nil {
		return nil, err
	}
	if stats.Volume, err = parseAmount("volume", volume); err != nil {
		return nil, err
	}
	return stats, nil
}
