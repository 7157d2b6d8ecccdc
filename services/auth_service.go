// Package services wires the repositories, moderation and auth primitives
// into the operations the session and server layers call.
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/metrics"
	"chat-relay/repositories"
)

type IAuthService interface {
	Authenticate(ctx context.Context, login, credential string) (Identity, error)
	Register(ctx context.Context, login, credential string) (Identity, error)
}

// Identity is the authenticated view of a user handed to a session.
type Identity struct {
	UserID  string
	Login   string
	IsAdmin bool
	Token   string
}

type AuthService struct {
	users       repositories.IUserRepository
	metrics     *metrics.Registry
	tokenSecret []byte
	tokenTTL    time.Duration
}

func NewAuthService(users repositories.IUserRepository, m *metrics.Registry,
	tokenSecret []byte, tokenTTL time.Duration) *AuthService {
	return &AuthService{users: users, metrics: m, tokenSecret: tokenSecret, tokenTTL: tokenTTL}
}

// Authenticate verifies a login/credential pair. Unknown logins, wrong
// credentials and deactivated accounts all collapse into ErrAuthFailure so
// the caller learns nothing about which logins exist. Storage trouble keeps
// its own identity and is never reported as an auth failure.
func (s *AuthService) Authenticate(ctx context.Context, login, credential string) (Identity, error) {
	user, err := s.users.GetUserByLogin(ctx, login)
	if stderrors.Is(err, errors.ErrStorageUnavailable) {
		return Identity{}, err
	}
	if err != nil {
		s.metrics.AuthFailures.Inc()
		return Identity{}, errors.ErrAuthFailure
	}

	match, err := auth.VerifyCredential(credential, user.CredentialHash)
	if err != nil || !match || !user.IsActive {
		s.metrics.AuthFailures.Inc()
		return Identity{}, errors.ErrAuthFailure
	}

	return s.identity(user)
}

// Register creates a new user. Validation runs before the expensive hash;
// the duplicate check happens atomically inside the repository.
func (s *AuthService) Register(ctx context.Context, login, credential string) (Identity, error) {
	creds := auth.Credentials{Login: login, Credential: credential}
	if err := auth.ValidateRegistration(creds); err != nil {
		return Identity{}, err
	}

	hash, err := auth.HashCredential(credential)
	if err != nil {
		return Identity{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.users.CreateUser(ctx, login, hash)
	if err != nil {
		return Identity{}, err
	}
	return s.identity(user)
}

func (s *AuthService) identity(user repositories.UserRecord) (Identity, error) {
	token, err := auth.GenerateToken(s.tokenSecret, user.ID, user.IsAdmin, s.tokenTTL)
	if err != nil {
		return Identity{}, errors.ErrTokenGeneration
	}
	return Identity{UserID: user.ID, Login: user.Login, IsAdmin: user.IsAdmin, Token: token}, nil
}
