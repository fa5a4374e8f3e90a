// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a host or run does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when attempting to insert a record that already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrForeignKey is returned when a row references a host that does not exist.
	ErrForeignKey = errors.New("referenced record does not exist")
)

// MapDBError inspects low-level driver errors and maps common conditions to
// package-level sentinel errors. The mapping is string-based so that this
// file does not depend on driver packages. The original error text is kept
// in the returned error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	le := strings.ToLower(err.Error())
	switch {
	// MySQL 1452, Postgres 23503, SQLite "FOREIGN KEY constraint failed"
	case strings.Contains(le, "foreign key") || strings.Contains(le, "23503") || strings.Contains(le, "1452"):
		return fmt.Errorf("%w: %v", ErrForeignKey, err)
	// MySQL duplicate entry, Postgres unique violation (23505), SQLite unique constraint
	case strings.Contains(le, "duplicate entry") || strings.Contains(le, "unique") || strings.Contains(le, "23505") || strings.Contains(le, "1062"):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// isDuplicateColumn reports whether err is the engine's complaint about an
// ALTER TABLE ADD COLUMN for a column that already exists.
func isDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	le := strings.ToLower(err.Error())
	// SQLite "duplicate column name", MySQL 1060, Postgres 42701
	return strings.Contains(le, "duplicate column") || strings.Contains(le, "already exists") ||
		strings.Contains(le, "1060") || strings.Contains(le, "42701")
}
