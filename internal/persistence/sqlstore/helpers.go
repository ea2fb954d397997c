// Package sqlstore implements the persistence interfaces over sqlx. The
// same SQL serves both supported drivers: queries are written with `?`
// placeholders and rebound per dialect, and upserts use the ON CONFLICT
// form both engines understand.
package sqlstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// isUniqueViolation detects unique-key collisions for both drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// marshalStrings encodes a string list for a JSON column. Nil encodes as an
// empty array so reads never face NULL.
func marshalStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return b, nil
}

func unmarshalStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("unmarshal string list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return b, nil
}

// rowScanner is satisfied by both *sqlx.Row and *sqlx.Rows, so single-row
// and multi-row reads share one scan helper per entity.
type rowScanner interface {
	Scan(dest ...any) error
}
