package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"blogapp/internal/logging"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite3", filepath.Join(t.TempDir(), "test.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func setupTable(t *testing.T, s *Store) {
	t.Helper()
	err := s.CreateTable(context.Background(), "items", []string{
		"name TEXT NOT NULL UNIQUE",
		"qty INTEGER NOT NULL",
	})
	require.NoError(t, err)
}

func TestCRUDRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setupTable(t, s)

	require.NoError(t, s.Insert(ctx, "items", map[string]any{"name": "apple", "qty": 3}))
	require.NoError(t, s.Insert(ctx, "items", map[string]any{"name": "pear", "qty": 5}))

	rows, err := s.Select(ctx, "items", []string{"name", "qty"}, "name = ?", "apple")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "apple", rows[0].String("name"))
	assert.Equal(t, int64(3), rows[0].Int64("qty"))

	n, err := s.Update(ctx, "items", map[string]any{"qty": 7}, "name = ?", "apple")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err = s.Select(ctx, "items", nil, "qty = ?", 7)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	n, err = s.Delete(ctx, "items", "name = ?", "apple")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err = s.Select(ctx, "items", nil, "name = ?", "apple")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSelectNoMatchReturnsNil(t *testing.T) {
	s := newTestStore(t)
	setupTable(t, s)

	rows, err := s.Select(context.Background(), "items", nil, "name = ?", "nope")
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestConstraintViolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setupTable(t, s)

	require.NoError(t, s.Insert(ctx, "items", map[string]any{"name": "apple", "qty": 1}))

	err := s.Insert(ctx, "items", map[string]any{"name": "apple", "qty": 2})
	require.ErrorIs(t, err, ErrConstraint)

	// The first row is unaffected.
	rows, err := s.Select(ctx, "items", nil, "name = ?", "apple")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Int64("qty"))
}

func TestNotNullViolation(t *testing.T) {
	s := newTestStore(t)
	setupTable(t, s)

	err := s.Insert(context.Background(), "items", map[string]any{"name": nil, "qty": 1})
	require.ErrorIs(t, err, ErrConstraint)
}

func TestCreateTableExists(t *testing.T) {
	s := newTestStore(t)
	setupTable(t, s)

	err := s.CreateTable(context.Background(), "items", []string{"name TEXT"})
	require.ErrorIs(t, err, ErrTableExists)
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setupTable(t, s)

	require.NoError(t, s.Insert(ctx, "items", map[string]any{"name": "apple", "qty": 3}))

	rows, err := s.Execute(ctx, "SELECT qty FROM items WHERE name = ?", "apple")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Int64("qty"))

	_, err = s.Execute(ctx, "SELECT qty FROM nothere")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConstraint)
}

func TestInvalidIdentifierRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setupTable(t, s)

	err := s.Insert(ctx, "items; DROP TABLE items", map[string]any{"name": "x"})
	require.Error(t, err)

	err = s.Insert(ctx, "items", map[string]any{"name = 'x' --": "y"})
	require.Error(t, err)

	_, err = s.Select(ctx, "items", []string{"name, qty FROM other"}, "")
	require.Error(t, err)
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setupTable(t, s)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.Insert(ctx, "items", map[string]any{"name": "apple", "qty": 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := s.Select(ctx, "items", nil, "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInTxCommits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setupTable(t, s)

	err := s.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.Delete(ctx, "items", "name = ?", "apple"); err != nil {
			return err
		}
		return tx.Insert(ctx, "items", map[string]any{"name": "apple", "qty": 9})
	})
	require.NoError(t, err)

	rows, err := s.Select(ctx, "items", nil, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestCloseIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestBindPostgres(t *testing.T) {
	s := &Store{driver: "postgres"}
	assert.Equal(t,
		"SELECT a FROM t WHERE x = $1 AND y = $2",
		s.bind("SELECT a FROM t WHERE x = ? AND y = ?"))

	s = &Store{driver: "sqlite3"}
	assert.Equal(t, "x = ?", s.bind("x = ?"))
}

func TestDriverErrorWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, "sqlite3", logging.Discard())
	mock.ExpectExec("INSERT INTO items").WillReturnError(errors.New("connection reset"))

	insErr := s.Insert(context.Background(), "items", map[string]any{"name": "x"})
	require.Error(t, insErr)
	assert.NotErrorIs(t, insErr, ErrConstraint)
	require.NoError(t, mock.ExpectationsWereMet())
}
