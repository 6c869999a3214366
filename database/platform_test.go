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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db}, mock
}

func testPlatformConfig() *model.PlatformConfig {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.PlatformConfig{Authority: "admin", Treasury: "treasury", FeeRateBps: 250, CreatedAt: now, UpdatedAt: now}
}

func TestCreatePlatformConfig(t *testing.T) {
	ds, mock := newMockDatasource(t)
	cfg := testPlatformConfig()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO custody.platform_config").
		WithArgs("admin", "treasury", uint16(250), cfg.CreatedAt, cfg.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO custody.event_records").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := ds.CreatePlatformConfig(context.Background(), cfg, model.EventRecord{EventID: "evt_1", Operation: model.OpPlatformInitialize, CreatedAt: cfg.CreatedAt})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlatformConfig_AlreadyInitialized(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO custody.platform_config").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := ds.CreatePlatformConfig(context.Background(), testPlatformConfig(), model.EventRecord{})
	assert.True(t, apierror.IsCode(err, apierror.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPlatformConfig(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"authority", "treasury", "fee_rate_bps", "total_count", "total_volume", "version", "created_at", "updated_at"}).
		AddRow("admin", "treasury", 250, "3", "18446744073709551615", 2, now, now)
	mock.ExpectQuery("SELECT authority, treasury, fee_rate_bps").WillReturnRows(rows)

	cfg, err := ds.GetPlatformConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(250), cfg.FeeRateBps)
	assert.Equal(t, uint64(3), cfg.TotalCount)
	assert.Equal(t, uint64(18446744073709551615), cfg.TotalVolume)
	assert.Equal(t, int64(2), cfg.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPlatformConfig_NotInitialized(t *testing.T) {
	ds, mock := newMockDatasource(t)
	mock.ExpectQuery("SELECT authority, treasury, fee_rate_bps").WillReturnError(sql.ErrNoRows)

	_, err := ds.GetPlatformConfig(context.Background())
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

func TestUpdatePlatformConfig(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantCode apierror.ErrorCode
	}{
		{name: "version matches", affected: 1},
		{name: "stale version", affected: 0, wantCode: apierror.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, mock := newMockDatasource(t)
			cfg := testPlatformConfig()
			cfg.Version = 4
			cfg.FeeRateBps = 300

			mock.ExpectBegin()
			mock.ExpectExec("UPDATE custody.platform_config").
				WithArgs("admin", "treasury", uint16(300), cfg.UpdatedAt, int64(4)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			if tt.wantCode == "" {
				mock.ExpectExec("INSERT INTO custody.event_records").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := ds.UpdatePlatformConfig(context.Background(), cfg, model.EventRecord{EventID: "evt_2"})
			if tt.wantCode != "" {
				assert.True(t, apierror.IsCode(err, tt.wantCode))
				assert.Equal(t, int64(4), cfg.Version)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(5), cfg.Version)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetStats(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT count, volume, active FROM custody.platform_stats").
		WithArgs(model.KindWager).
		WillReturnRows(sqlmock.NewRows([]string{"count", "volume", "active"}).AddRow("2", "1000000", 1))
	mock.ExpectQuery("SELECT count, volume, active FROM custody.platform_stats").
		WithArgs(model.KindTip).
		WillReturnError(sql.ErrNoRows)

	stats, err := ds.GetStats(context.Background(), model.KindWager)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{Kind: model.KindWager, Count: 2, Volume: 1_000_000, Active: 1}, *stats)

	stats, err = ds.GetStats(context.Background(), model.KindTip)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{Kind: model.KindTip}, *stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
