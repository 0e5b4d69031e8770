package users

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-auth/gatehouse/internal/auth"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// Service handles user provisioning and listing.
type Service struct {
	repo RepositoryPort
	cost int
}

// NewService builds a Service instance. cost is the bcrypt cost applied to
// new passwords; out-of-range values fall back to bcrypt.DefaultCost.
func NewService(repo RepositoryPort, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, cost: cost}
}

// CreateUser provisions an account. The email is stored in its normalized
// form so lookups at login time are case-insensitive, and only the bcrypt
// hash of the password is persisted.
func (s *Service) CreateUser(ctx context.Context, email, name, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateUser(ctx, auth.NormalizeEmail(email), name, string(hash))
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}
