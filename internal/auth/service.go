package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-auth/gatehouse/internal/shared"
)

// dummyPassword feeds the dummy hash compared on the missing-user path.
const dummyPassword = "gatehouse-dummy-credential"

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	logger    *slog.Logger
	dummyHash []byte
}

// NewService constructs a new Service. cost is the bcrypt cost used for the
// dummy hash; it should match the cost used at provisioning time so the
// missing-user path burns comparable work.
func NewService(repo Repository, logger *slog.Logger, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		// Only reachable with an out-of-range cost, which is clamped above.
		panic(err)
	}
	return &Service{repo: repo, logger: logger, dummyHash: dummy}
}

// Authenticate validates email/password credentials and returns the matching
// user. Every failure collapses to shared.ErrInvalidCredentials; the actual
// branch (unknown email, wrong password, inactive account) is only recorded
// in logs so responses cannot be used for user enumeration.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	normalized := NormalizeEmail(email)
	user, err := s.repo.FindByEmail(ctx, normalized)
	if err != nil {
		// Burn a hash comparison so the unknown-email path is not
		// measurably faster than a wrong password.
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Debug("login rejected", slog.String("reason", "unknown email"))
		} else {
			s.logger.Error("user lookup", slog.Any("error", err))
		}
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug("login rejected", slog.String("reason", "wrong password"), slog.Int64("user_id", user.ID))
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.logger.Debug("login rejected", slog.String("reason", "inactive account"), slog.Int64("user_id", user.ID))
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// User resolves a user ID from a validated session back to the account.
func (s *Service) User(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PurgeExpiredSessions removes expired session records and reports the count.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx)
}
