package database

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

// amounts are NUMERIC(20,0) columns carried as decimal strings so the full uint64 range survives.
func amount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "invalid stored amount in "+field, err)
	}
	return v, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// jsonb marshals v, mapping nil to SQL NULL.
func jsonb(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal jsonb")
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

func unmarshalJSON(data []byte, dst interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, dst), "unmarshal jsonb")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// classify turns a driver error into an APIError while keeping APIErrors already produced.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, ok := apierror.CodeOf(err); ok {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NewAPIError(apierror.ErrNotFound, msg+": not found", nil)
	}
	if isUniqueViolation(err) {
		return apierror.NewAPIError(apierror.ErrConflict, msg+": already exists", nil)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, msg, err)
}
