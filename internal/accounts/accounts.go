// Package accounts stores data-entry user accounts and issues session
// tokens for them.
package accounts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/storage"
	"github.com/learnerinfo/lis/internal/tabular"
)

// Account store columns.
const (
	ColFirstName = "First_Name"
	ColLastName  = "Last_Name"
	ColEmail     = "Email"
	ColPassword  = "Password"
)

const maxWriteAttempts = 3

// Account is a stored user without its password hash.
type Account struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Name returns the display name.
func (a Account) Name() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Store keeps accounts in a CSV object with bcrypt password hashes.
type Store struct {
	store storage.ObjectStorage
	key   string
	cost  int
}

// NewStore creates an account store at key. cost is the bcrypt cost;
// values outside bcrypt's range use bcrypt.DefaultCost.
func NewStore(store storage.ObjectStorage, key string, cost int) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Store{store: store, key: key, cost: cost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) read(ctx context.Context) (*tabular.Table, string, error) {
	data, etag, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return tabular.New([]string{ColFirstName, ColLastName, ColEmail, ColPassword}), "", nil
		}
		return nil, "", lerrors.NewStorageError(lerrors.CodeReadFailed, "failed to read accounts", err)
	}
	tbl, err := tabular.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	for _, col := range []string{ColFirstName, ColLastName, ColEmail, ColPassword} {
		tbl.AddColumn(col, "")
	}
	return tbl, etag, nil
}

func find(tbl *tabular.Table, email string) int {
	for i := range tbl.Rows {
		if normalizeEmail(tbl.Get(i, ColEmail)) == email {
			return i
		}
	}
	return -1
}

// Register adds an account. The email must be unused.
func (s *Store) Register(ctx context.Context, a Account, password string) (*Account, error) {
	a.Email = normalizeEmail(a.Email)
	if a.Email == "" || !strings.Contains(a.Email, "@") {
		return nil, lerrors.NewValidationError(lerrors.CodeMissingField, "a valid email is required")
	}
	if len(password) < 8 {
		return nil, lerrors.NewValidationError(lerrors.CodeMissingField, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, lerrors.NewInternalError("failed to hash password", err)
	}

	for attempt := 1; ; attempt++ {
		tbl, etag, err := s.read(ctx)
		if err != nil {
			return nil, err
		}
		if find(tbl, a.Email) >= 0 {
			return nil, lerrors.NewAuthError(lerrors.CodeDuplicateAccount,
				fmt.Sprintf("account %s already exists", a.Email))
		}
		tbl.AppendRow(map[string]string{
			ColFirstName: a.FirstName,
			ColLastName:  a.LastName,
			ColEmail:     a.Email,
			ColPassword:  string(hash),
		}, "")

		data, err := tbl.CSV()
		if err != nil {
			return nil, lerrors.NewInternalError("failed to encode accounts", err)
		}
		_, err = s.store.ConditionalPut(ctx, s.key, data, etag)
		if err == nil {
			log.Printf("accounts: registered %s", a.Email)
			return &a, nil
		}
		if !errors.Is(err, storage.ErrPreconditionFailed) {
			return nil, lerrors.NewStorageError(lerrors.CodeWriteFailed, "failed to write accounts", err)
		}
		if attempt == maxWriteAttempts {
			return nil, lerrors.NewConflictError("accounts changed concurrently", err)
		}
	}
}

// Authenticate checks an email and password. Unknown emails and wrong
// passwords fail with the same error.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	tbl, _, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	invalid := lerrors.NewAuthError(lerrors.CodeInvalidCredentials, "invalid credentials")

	i := find(tbl, normalizeEmail(email))
	if i < 0 {
		// Unknown emails still pay for one bcrypt comparison.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(tbl.Get(i, ColPassword)), []byte(password)); err != nil {
		return nil, invalid
	}
	return &Account{
		FirstName: tbl.Get(i, ColFirstName),
		LastName:  tbl.Get(i, ColLastName),
		Email:     normalizeEmail(tbl.Get(i, ColEmail)),
	}, nil
}

// List returns every account.
func (s *Store) List(ctx context.Context) ([]Account, error) {
	tbl, _, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, tbl.Len())
	for i := range tbl.Rows {
		out = append(out, Account{
			FirstName: tbl.Get(i, ColFirstName),
			LastName:  tbl.Get(i, ColLastName),
			Email:     tbl.Get(i, ColEmail),
		})
	}
	return out, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("lis-dummy-password"), bcrypt.MinCost)
