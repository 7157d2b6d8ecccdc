package services

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/metrics"
	"chat-relay/repositories"
)

func newAuthFixture(t *testing.T) (*AuthService, repositories.UserRepository, *badger.DB) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := repositories.NewUserRepository(db, metrics.NewRegistry())
	svc := NewAuthService(users, metrics.NewRegistry(), []byte("test-secret"), time.Hour)
	return svc, users, db
}

func TestAuthService_Register(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	ctx := context.Background()

	t.Run("issues a token for a valid registration", func(t *testing.T) {
		req := require.New(t)

		identity, err := svc.Register(ctx, "alice", "Sup3rSecret")
		req.NoError(err)
		req.Equal("alice", identity.Login)
		req.NotEmpty(identity.UserID)
		req.False(identity.IsAdmin)
		req.NotEmpty(identity.Token)

		claims, err := auth.ValidateToken([]byte("test-secret"), identity.Token)
		req.NoError(err)
		req.Equal(identity.UserID, claims.UserID)
	})

	t.Run("rejects a weak credential before touching storage", func(t *testing.T) {
		req := require.New(t)

		_, err := svc.Register(ctx, "bob", "short")
		req.ErrorIs(err, errors.ErrInvalidCredential)
	})

	t.Run("rejects a taken login", func(t *testing.T) {
		req := require.New(t)

		_, err := svc.Register(ctx, "carol", "Sup3rSecret")
		req.NoError(err)

		_, err = svc.Register(ctx, "carol", "An0therSecret")
		req.ErrorIs(err, errors.ErrDuplicateLogin)
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "Sup3rSecret")
	require.NoError(t, err)

	t.Run("accepts the right credential", func(t *testing.T) {
		req := require.New(t)

		identity, err := svc.Authenticate(ctx, "alice", "Sup3rSecret")
		req.NoError(err)
		req.Equal(registered.UserID, identity.UserID)
		req.NotEmpty(identity.Token)
	})

	t.Run("collapses wrong credential and unknown login into one error", func(t *testing.T) {
		req := require.New(t)

		_, err := svc.Authenticate(ctx, "alice", "WrongSecret1")
		req.ErrorIs(err, errors.ErrAuthFailure)

		_, err = svc.Authenticate(ctx, "nobody", "Sup3rSecret")
		req.ErrorIs(err, errors.ErrAuthFailure)
	})

	t.Run("refuses a deactivated account", func(t *testing.T) {
		req := require.New(t)

		req.NoError(users.UpdateUser(ctx, registered.UserID, false, false))
		_, err := svc.Authenticate(ctx, "alice", "Sup3rSecret")
		req.ErrorIs(err, errors.ErrAuthFailure)
	})
}

func TestAuthService_AuthenticateStorageDown(t *testing.T) {
	req := require.New(t)
	svc, _, db := newAuthFixture(t)

	req.NoError(db.Close())
	_, err := svc.Authenticate(context.Background(), "alice", "Sup3rSecret")
	req.ErrorIs(err, errors.ErrStorageUnavailable)
}
