package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrConstraint reports a uniqueness or not-null violation. Callers
	// branch on it for "already exists" semantics; it is never fatal.
	ErrConstraint = errors.New("storage: constraint violation")

	// ErrTableExists reports that CreateTable hit an existing table.
	// Callers interpret it as "already set up".
	ErrTableExists = errors.New("storage: table already exists")
)

// translate maps driver-level failures onto the storage error taxonomy.
// Constraint violations come back as ErrConstraint so callers can recover;
// everything else is wrapped with enough context for the operator log.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case strings.HasPrefix(string(pqErr.Code), "23"):
			// Integrity constraint violation class.
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		case pqErr.Code == "42P07":
			return fmt.Errorf("%w: %v", ErrTableExists, err)
		}
	}

	return fmt.Errorf("storage: %s: %w", op, err)
}

// translateCreate additionally recognizes the sqlite "table X already exists"
// failure, which the driver reports without a dedicated code.
func translateCreate(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && strings.Contains(sqliteErr.Error(), "already exists") {
		return fmt.Errorf("%w: %v", ErrTableExists, err)
	}
	return translate(op, err)
}
