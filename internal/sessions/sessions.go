// Package sessions manages server-side session records: issuance, lookup,
// revocation, and the background sweep of expired rows.
//
// Each account has at most one session row. Issuing a session for an account
// replaces any existing row inside a single transaction, so a login on one
// device deterministically invalidates the session on another.
package sessions

import (
	"context"
	"errors"
	"time"

	"blogapp/internal/logging"
	"blogapp/internal/security"
	"blogapp/internal/storage"
)

var (
	// ErrNoSession reports a token with no matching session row.
	ErrNoSession = errors.New("sessions: no active session")

	// ErrExpired reports a token whose row has expired. Callers treat it
	// exactly like ErrNoSession; the row is removed on detection.
	ErrExpired = errors.New("sessions: session expired")
)

// Profile is the account data denormalized into the session row so
// authenticated requests never join against the users table.
type Profile struct {
	Username string
	Email    string
	Realname string
}

// Session is one live session row.
type Session struct {
	UniqueID  string
	Token     string
	ExpiresAt time.Time
	Username  string
	Email     string
	Realname  string
}

type Manager struct {
	db       *storage.Store
	table    string
	lifetime time.Duration
	log      logging.Logger

	now func() time.Time
}

func NewManager(db *storage.Store, table string, lifetime time.Duration, log logging.Logger) *Manager {
	return &Manager{
		db:       db,
		table:    table,
		lifetime: lifetime,
		log:      log.With("component", "sessions"),
		now:      time.Now,
	}
}

// Init creates the sessions table. The UNIQUE constraint on unique_id backs
// the single-session-per-account invariant at the schema level as well.
func (m *Manager) Init(ctx context.Context) error {
	err := m.db.CreateTable(ctx, m.table, []string{
		"unique_id TEXT NOT NULL UNIQUE",
		"session_id TEXT NOT NULL",
		"expiration INTEGER NOT NULL",
		"username TEXT NOT NULL",
		"email TEXT NOT NULL",
		"realname TEXT NOT NULL",
	})
	if errors.Is(err, storage.ErrTableExists) {
		return nil
	}
	return err
}

// Issue creates a session for the account, replacing any existing one. The
// delete and insert run in one transaction so concurrent logins for the same
// account cannot leave two live rows or lose the newer one. When two first
// logins for the same account race, the loser's insert hits the unique_id
// constraint; it retries once, and the second delete then sees the winner's
// row.
func (m *Manager) Issue(ctx context.Context, uniqueID string, p Profile) (string, time.Time, error) {
	token, err := security.NewSessionToken()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := m.now().Add(m.lifetime)

	err = m.replace(ctx, uniqueID, token, expiresAt, p)
	if errors.Is(err, storage.ErrConstraint) {
		err = m.replace(ctx, uniqueID, token, expiresAt, p)
	}
	if err != nil {
		return "", time.Time{}, err
	}

	m.log.Debug("session issued", "account", uniqueID)
	return token, expiresAt, nil
}

func (m *Manager) replace(ctx context.Context, uniqueID, token string, expiresAt time.Time, p Profile) error {
	return m.db.InTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.Delete(ctx, m.table, "unique_id = ?", uniqueID); err != nil {
			return err
		}
		return tx.Insert(ctx, m.table, map[string]any{
			"unique_id":  uniqueID,
			"session_id": token,
			"expiration": expiresAt.Unix(),
			"username":   p.Username,
			"email":      p.Email,
			"realname":   p.Realname,
		})
	})
}

// Lookup resolves a token to its session. Expired rows are deleted on sight
// and reported as ErrExpired; an unknown token is ErrNoSession.
func (m *Manager) Lookup(ctx context.Context, token string) (*Session, error) {
	rows, err := m.db.Select(ctx, m.table,
		[]string{"unique_id", "session_id", "expiration", "username", "email", "realname"},
		"session_id = ?", token)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoSession
	}

	sess := fromRow(rows[0])
	if !sess.ExpiresAt.After(m.now()) {
		if _, err := m.db.Delete(ctx, m.table, "session_id = ?", token); err != nil {
			m.log.Error("failed to delete expired session", "err", err)
		}
		return nil, ErrExpired
	}
	return sess, nil
}

// Revoke deletes the session for the token. Revoking an absent session is
// not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	_, err := m.db.Delete(ctx, m.table, "session_id = ?", token)
	return err
}

// Sweep deletes expired session rows every interval until ctx is cancelled.
// A failed iteration is logged and the loop keeps going.
func (m *Manager) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("session sweep started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("session sweep stopped")
			return
		case <-ticker.C:
			if err := m.sweepOnce(ctx); err != nil {
				m.log.Error("session sweep iteration failed", "err", err)
			}
		}
	}
}

func (m *Manager) sweepOnce(ctx context.Context) error {
	n, err := m.db.Delete(ctx, m.table, "expiration < ?", m.now().Unix())
	if err != nil {
		return err
	}
	if n > 0 {
		m.log.Debug("cleared expired sessions", "removed", n)
	}
	return nil
}

func fromRow(r storage.Row) *Session {
	return &Session{
		UniqueID:  r.String("unique_id"),
		Token:     r.String("session_id"),
		ExpiresAt: time.Unix(r.Int64("expiration"), 0),
		Username:  r.String("username"),
		Email:     r.String("email"),
		Realname:  r.String("realname"),
	}
}
