package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IAdminService interface {
	UpdateUser(ctx context.Context, id string, isActive, isAdmin bool) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	EnsureBootstrapAdmin(ctx context.Context, login, credential string) error
}

// AdminService covers the operator-facing user management surface.
type AdminService struct {
	users repositories.IUserRepository
	log   *slog.Logger
}

func NewAdminService(users repositories.IUserRepository, log *slog.Logger) *AdminService {
	return &AdminService{users: users, log: log}
}

func (s *AdminService) UpdateUser(ctx context.Context, id string, isActive, isAdmin bool) error {
	return s.users.UpdateUser(ctx, id, isActive, isAdmin)
}

func (s *AdminService) ListUsers(ctx context.Context) ([]domain.User, error) {
	records, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	return lo.Map(records, func(rec repositories.UserRecord, _ int) domain.User {
		return domain.User{
			ID:       rec.ID,
			Login:    rec.Login,
			IsActive: rec.IsActive,
			IsAdmin:  rec.IsAdmin,
		}
	}), nil
}

// EnsureBootstrapAdmin seeds the first administrator so a fresh store
// is usable without manual intervention. Re-running against an existing
// store is a no-op: the login already being taken is expected.
func (s *AdminService) EnsureBootstrapAdmin(ctx context.Context, login, credential string) error {
	hash, err := auth.HashCredential(credential)
	if err != nil {
		return fmt.Errorf("hashing bootstrap credential: %w", err)
	}

	user, err := s.users.CreateUser(ctx, login, hash)
	if stderrors.Is(err, errors.ErrDuplicateLogin) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seeding bootstrap admin: %w", err)
	}

	if err := s.users.UpdateUser(ctx, user.ID, true, true); err != nil {
		return fmt.Errorf("promoting bootstrap admin: %w", err)
	}
	s.log.Info("seeded bootstrap admin", "login", login, "user_id", user.ID)
	return nil
}
