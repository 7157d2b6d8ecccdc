package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/errors"
	"chat-relay/metrics"
)

type IUserRepository interface {
	CreateUser(ctx context.Context, login, credentialHash string) (UserRecord, error)
	GetUserByLogin(ctx context.Context, login string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	UpdateUser(ctx context.Context, id string, isActive, isAdmin bool) error
	ListUsers(ctx context.Context) ([]UserRecord, error)
}

// UserRecord is the stored representation of a user. Values are JSON
// documents under user:login:<login>, with user:id:<id> as a secondary
// index resolving an id back to its login.
type UserRecord struct {
	ID             string `json:"id"`
	Login          string `json:"login"`
	CredentialHash string `json:"credential_hash"`
	IsActive       bool   `json:"is_active"`
	IsAdmin        bool   `json:"is_admin"`
	CreatedAt      int64  `json:"created_at"`
}

type UserRepository struct {
	store
}

func NewUserRepository(db *badger.DB, m *metrics.Registry) UserRepository {
	return UserRepository{store: store{db: db, metrics: m}}
}

// CreateUser persists a new active, non-admin user. The duplicate check and
// the insert run inside one badger update transaction, so two concurrent
// registrations of the same login cannot both succeed.
func (r UserRepository) CreateUser(ctx context.Context, login, credentialHash string) (UserRecord, error) {
	rec := UserRecord{
		ID:             uuid.NewString(),
		Login:          login,
		CredentialHash: credentialHash,
		IsActive:       true,
		CreatedAt:      time.Now().Unix(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return UserRecord{}, err
	}

	err = r.update(ctx, func(txn *badger.Txn) error {
		key := []byte(userLoginPrefix + login)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return errors.ErrDuplicateLogin
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(userIDPrefix+rec.ID), []byte(login))
	})
	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

func (r UserRepository) GetUserByLogin(ctx context.Context, login string) (UserRecord, error) {
	var rec UserRecord
	err := r.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userLoginPrefix+login, &rec)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return UserRecord{}, errors.ErrUserNotFound
	}
	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

func (r UserRepository) GetUserByID(ctx context.Context, id string) (UserRecord, error) {
	var rec UserRecord
	err := r.view(ctx, func(txn *badger.Txn) error {
		login, err := resolveLogin(txn, id)
		if err != nil {
			return err
		}
		return getJSON(txn, userLoginPrefix+login, &rec)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return UserRecord{}, errors.ErrUserNotFound
	}
	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// UpdateUser toggles the active and admin flags. Identity fields are
// immutable; a missing id reports ErrUserNotFound.
func (r UserRepository) UpdateUser(ctx context.Context, id string, isActive, isAdmin bool) error {
	err := r.update(ctx, func(txn *badger.Txn) error {
		login, err := resolveLogin(txn, id)
		if err != nil {
			return err
		}
		var rec UserRecord
		if err := getJSON(txn, userLoginPrefix+login, &rec); err != nil {
			return err
		}
		rec.IsActive = isActive
		rec.IsAdmin = isAdmin
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set([]byte(userLoginPrefix+login), data)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrUserNotFound
	}
	return err
}

// ListUsers returns every user record, used by the external console and the
// bootstrap check. The user table stays small in this scope.
func (r UserRepository) ListUsers(ctx context.Context) ([]UserRecord, error) {
	var records []UserRecord
	err := r.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(userLoginPrefix)
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec UserRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func resolveLogin(txn *badger.Txn, id string) (string, error) {
	item, err := txn.Get([]byte(userIDPrefix + id))
	if err != nil {
		return "", err
	}
	var login string
	err = item.Value(func(val []byte) error {
		login = string(val)
		return nil
	})
	return login, err
}

func getJSON(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}
