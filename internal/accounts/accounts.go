// Package accounts is the credential store: user rows over the storage
// engine, with uniqueness on email.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"blogapp/internal/logging"
	"blogapp/internal/security"
	"blogapp/internal/storage"
)

var (
	// ErrAccountExists reports a signup against an email that already has
	// an account.
	ErrAccountExists = errors.New("accounts: account already exists")

	// ErrNoAccount reports a lookup or update that matched nothing.
	ErrNoAccount = errors.New("accounts: no such account")
)

// Account is one user row. PasswordHash is a bcrypt hash, never the
// plaintext.
type Account struct {
	UniqueID     string
	Firstname    string
	Lastname     string
	Email        string
	Username     string
	PasswordHash string
}

// Realname is the display name cached into session rows.
func (a *Account) Realname() string {
	return strings.TrimSpace(a.Firstname + " " + a.Lastname)
}

// Signup holds the fields collected at account creation.
type Signup struct {
	Firstname string
	Lastname  string
	Email     string
	Username  string
	Password  string
}

type Store struct {
	db    *storage.Store
	table string
	log   logging.Logger
}

func NewStore(db *storage.Store, table string, log logging.Logger) *Store {
	return &Store{db: db, table: table, log: log.With("component", "accounts")}
}

// Init creates the users table. A table that already exists is not an
// error.
func (s *Store) Init(ctx context.Context) error {
	err := s.db.CreateTable(ctx, s.table, []string{
		"unique_id TEXT NOT NULL UNIQUE",
		"firstname TEXT NOT NULL",
		"lastname TEXT",
		"email TEXT NOT NULL UNIQUE",
		"username TEXT NOT NULL",
		"password TEXT NOT NULL",
	})
	if errors.Is(err, storage.ErrTableExists) {
		return nil
	}
	return err
}

// Create hashes the password, derives the account's unique id, and inserts
// the row. A duplicate email yields ErrAccountExists.
func (s *Store) Create(ctx context.Context, su Signup) (*Account, error) {
	hash, err := security.HashPassword(su.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a := &Account{
		UniqueID:     security.NewUniqueID(su.Username, hash),
		Firstname:    su.Firstname,
		Lastname:     su.Lastname,
		Email:        su.Email,
		Username:     su.Username,
		PasswordHash: hash,
	}

	err = s.db.Insert(ctx, s.table, map[string]any{
		"unique_id": a.UniqueID,
		"firstname": a.Firstname,
		"lastname":  a.Lastname,
		"email":     a.Email,
		"username":  a.Username,
		"password":  a.PasswordHash,
	})
	if errors.Is(err, storage.ErrConstraint) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("account created", "username", a.Username)
	return a, nil
}

// FindByEmail returns the account for the email, or ErrNoAccount.
func (s *Store) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findOne(ctx, "email = ?", email)
}

// FindByID returns the account for the unique id, or ErrNoAccount.
func (s *Store) FindByID(ctx context.Context, uniqueID string) (*Account, error) {
	return s.findOne(ctx, "unique_id = ?", uniqueID)
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (*Account, error) {
	rows, err := s.db.Select(ctx, s.table,
		[]string{"unique_id", "firstname", "lastname", "email", "username", "password"},
		where, arg)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoAccount
	}
	return fromRow(rows[0]), nil
}

// Update applies a partial field map to one account. Unknown accounts yield
// ErrNoAccount; an email collision yields ErrAccountExists.
func (s *Store) Update(ctx context.Context, uniqueID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	n, err := s.db.Update(ctx, s.table, fields, "unique_id = ?", uniqueID)
	if errors.Is(err, storage.ErrConstraint) {
		return ErrAccountExists
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoAccount
	}
	return nil
}

// VerifyPassword reports whether the candidate matches the account's stored
// hash.
func (s *Store) VerifyPassword(a *Account, candidate string) bool {
	return security.CheckPassword(a.PasswordHash, candidate)
}

func fromRow(r storage.Row) *Account {
	return &Account{
		UniqueID:     r.String("unique_id"),
		Firstname:    r.String("firstname"),
		Lastname:     r.String("lastname"),
		Email:        r.String("email"),
		Username:     r.String("username"),
		PasswordHash: r.String("password"),
	}
}
