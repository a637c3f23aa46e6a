// Package storage is a thin transactional wrapper over database/sql. It
// exposes parameterized execute/select/insert/update/delete plus table
// creation, and folds driver-specific failures into a small error taxonomy.
//
// Statement structure (table and column names) is caller-owned and validated
// against a strict identifier pattern; every value travels as a bound
// parameter, never interpolated into the statement text.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"blogapp/internal/logging"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Rows is a fetched result set. A nil Rows means the statement matched
// nothing.
type Rows []Row

// String returns the named column as a string, or "" when absent or NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Int64 returns the named column as an int64, or 0 when absent or NULL.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("storage: invalid identifier %q", name)
	}
	return nil
}

// execer is the subset of *sql.DB and *sql.Tx the wrapper needs, so the same
// statement builders serve both pooled and transactional execution.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store manages a connection pool for one database. It is safe for
// concurrent use; each call draws a connection from the pool for the duration
// of the statement.
type Store struct {
	db     *sql.DB
	driver string
	log    logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// New wraps an already-open *sql.DB. Used directly by tests; Open is the
// production path.
func New(db *sql.DB, driver string, log logging.Logger) *Store {
	return &Store{db: db, driver: driver, log: log}
}

// Open opens a pooled connection to the given database and verifies it is
// reachable.
func Open(driver, dsn string, log logging.Logger) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driver, err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		// Wait for row locks instead of failing immediately under
		// concurrent writers.
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: configure sqlite: %w", err)
		}
	}

	log.Info("connected to database", "driver", driver)
	return New(db, driver, log), nil
}

// Close releases the pool. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
		s.log.Debug("database closed", "driver", s.driver)
	})
	return s.closeErr
}

// bind rewrites ? placeholders into the driver's native form. sqlite3 takes
// ? as-is; pq needs $1..$N.
func (s *Store) bind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Execute runs an arbitrary parameterized statement and returns the fetched
// rows, or nil when the statement produced none.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (Rows, error) {
	return s.execute(ctx, s.db, query, args...)
}

func (s *Store) execute(ctx context.Context, ex execer, query string, args ...any) (Rows, error) {
	s.log.Debug("execute", "query", query)
	rows, err := ex.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, translate("execute", err)
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) (Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, translate("columns", err)
	}

	var out Rows
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, translate("scan", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("rows", err)
	}
	return out, nil
}

// CreateTable creates a table with the given column definitions. The
// definitions are schema text owned by the caller, never user input. Returns
// ErrTableExists when the table is already present.
func (s *Store) CreateTable(ctx context.Context, name string, columns []string) error {
	if err := checkIdent(name); err != nil {
		return err
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(columns, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return translateCreate("create table "+name, err)
	}
	s.log.Info("created table", "table", name)
	return nil
}

// Insert adds one row built from the field map. Column order is
// deterministic (sorted) so statements are stable across calls.
func (s *Store) Insert(ctx context.Context, table string, fields map[string]any) error {
	return s.insert(ctx, s.db, table, fields)
}

func (s *Store) insert(ctx context.Context, ex execer, table string, fields map[string]any) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	cols := sortedKeys(fields)
	args := make([]any, 0, len(cols))
	marks := make([]string, 0, len(cols))
	for _, c := range cols {
		if err := checkIdent(c); err != nil {
			return err
		}
		args = append(args, fields[c])
		marks = append(marks, "?")
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))

	s.log.Debug("insert", "table", table)
	if _, err := ex.ExecContext(ctx, s.bind(stmt), args...); err != nil {
		return translate("insert into "+table, err)
	}
	return nil
}

// Update sets the given fields on every row matching the predicate and
// returns the number of rows changed. The predicate is a WHERE clause body
// with ? placeholders; its values go in args.
func (s *Store) Update(ctx context.Context, table string, fields map[string]any, where string, args ...any) (int64, error) {
	return s.update(ctx, s.db, table, fields, where, args...)
}

func (s *Store) update(ctx context.Context, ex execer, table string, fields map[string]any, where string, args ...any) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	cols := sortedKeys(fields)
	sets := make([]string, 0, len(cols))
	bound := make([]any, 0, len(cols)+len(args))
	for _, c := range cols {
		if err := checkIdent(c); err != nil {
			return 0, err
		}
		sets = append(sets, c+" = ?")
		bound = append(bound, fields[c])
	}
	bound = append(bound, args...)

	stmt := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	if where != "" {
		stmt += " WHERE " + where
	}

	s.log.Debug("update", "table", table)
	res, err := ex.ExecContext(ctx, s.bind(stmt), bound...)
	if err != nil {
		return 0, translate("update "+table, err)
	}
	return affected(res), nil
}

// Delete removes every row matching the predicate and returns the number of
// rows removed.
func (s *Store) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	return s.delete(ctx, s.db, table, where, args...)
}

func (s *Store) delete(ctx context.Context, ex execer, table string, where string, args ...any) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	stmt := "DELETE FROM " + table
	if where != "" {
		stmt += " WHERE " + where
	}

	s.log.Debug("delete", "table", table)
	res, err := ex.ExecContext(ctx, s.bind(stmt), args...)
	if err != nil {
		return 0, translate("delete from "+table, err)
	}
	return affected(res), nil
}

// Select fetches the named columns from rows matching the predicate. A nil
// or empty column list selects everything.
func (s *Store) Select(ctx context.Context, table string, columns []string, where string, args ...any) (Rows, error) {
	return s.selectRows(ctx, s.db, table, columns, where, args...)
}

func (s *Store) selectRows(ctx context.Context, ex execer, table string, columns []string, where string, args ...any) (Rows, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	colExpr := "*"
	if len(columns) > 0 {
		for _, c := range columns {
			if err := checkIdent(c); err != nil {
				return nil, err
			}
		}
		colExpr = strings.Join(columns, ", ")
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", colExpr, table)
	if where != "" {
		stmt += " WHERE " + where
	}
	return s.execute(ctx, ex, stmt, args...)
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
