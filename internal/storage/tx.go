package storage

import (
	"context"
	"fmt"
)

// Tx exposes the statement helpers inside one transaction. All operations
// issued through a Tx commit together or not at all.
type Tx struct {
	tx execerTx
	s  *Store
}

type execerTx interface {
	execer
	Commit() error
	Rollback() error
}

// InTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise (or when the commit itself fails).
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate("begin", err)
	}

	if err := fn(&Tx{tx: tx, s: s}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func (t *Tx) Execute(ctx context.Context, query string, args ...any) (Rows, error) {
	return t.s.execute(ctx, t.tx, query, args...)
}

func (t *Tx) Insert(ctx context.Context, table string, fields map[string]any) error {
	return t.s.insert(ctx, t.tx, table, fields)
}

func (t *Tx) Update(ctx context.Context, table string, fields map[string]any, where string, args ...any) (int64, error) {
	return t.s.update(ctx, t.tx, table, fields, where, args...)
}

func (t *Tx) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	return t.s.delete(ctx, t.tx, table, where, args...)
}

func (t *Tx) Select(ctx context.Context, table string, columns []string, where string, args ...any) (Rows, error) {
	return t.s.selectRows(ctx, t.tx, table, columns, where, args...)
}
