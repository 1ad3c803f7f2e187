package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/events"
	"github.com/diagnosis/gatepass/pkg/logger"
	"github.com/diagnosis/gatepass/services/auth/internal/domain"
	"github.com/diagnosis/gatepass/services/auth/internal/repository"
)

type AuthService interface {
	Login(ctx context.Context, req *domain.LoginRequest, clientIP string) (*domain.LoginResponse, error)
	CreateUser(ctx context.Context, session *auth.Session, req *domain.CreateUserRequest) (*domain.StaffUser, error)
	ListUsers(ctx context.Context, session *auth.Session, limit, offset int) ([]domain.StaffUser, error)
	Bootstrap(ctx context.Context, username, password string) (bool, error)
}

// LoginAttempts counts failed logins per client and username.
type LoginAttempts interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type authService struct {
	userRepo repository.UserRepository
	attempts LoginAttempts
	eventBus events.EventBus
	config   *config.Config

	params    *argon2id.Params
	dummyHash string
}

func NewAuthService(
	userRepo repository.UserRepository,
	attempts LoginAttempts,
	eventBus events.EventBus,
	config *config.Config,
) (AuthService, error) {
	return newAuthService(userRepo, attempts, eventBus, config, argon2id.DefaultParams)
}

func newAuthService(
	userRepo repository.UserRepository,
	attempts LoginAttempts,
	eventBus events.EventBus,
	config *config.Config,
	params *argon2id.Params,
) (*authService, error) {
	// Unknown usernames are compared against this hash so both paths cost the same.
	dummy, err := argon2id.CreateHash("gatepass-unknown-user", params)
	if err != nil {
		return nil, fmt.Errorf("failed to create dummy hash: %w", err)
	}
	return &authService{
		userRepo:  userRepo,
		attempts:  attempts,
		eventBus:  eventBus,
		config:    config,
		params:    params,
		dummyHash: dummy,
	}, nil
}

func attemptKey(clientIP, username string) string {
	sum := sha256.Sum256([]byte(clientIP + "|" + username))
	return fmt.Sprintf("login:%x", sum)
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest, clientIP string) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := attemptKey(clientIP, req.Username)
	failures, err := s.attempts.Count(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "Login attempt counter unavailable, allowing request", "error", err)
	}
	if failures >= int64(s.config.Auth.LoginRateLimit) {
		return nil, domain.ErrTooManyAttempts
	}

	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	valid, err := argon2id.ComparePasswordAndHash(req.Password, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if user == nil || !valid {
		s.recordFailure(ctx, key, req.Username)
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.attempts.Reset(ctx, key); err != nil {
		logger.WarnContext(ctx, "Failed to reset login attempts", "error", err, "user_id", user.ID)
	}

	token, err := auth.NewAccessToken(user.ID, user.Username, user.Role, s.config.Auth.JWTSecret, s.config.Auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	logger.InfoContext(ctx, "Staff login", "user_id", user.ID, "role", user.Role)
	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.Auth.AccessTokenTTL.Seconds()),
		User:        user.Info(),
	}, nil
}

func (s *authService) recordFailure(ctx context.Context, key, username string) {
	n, err := s.attempts.Incr(ctx, key, s.config.Auth.LoginRateWindow)
	if err != nil {
		logger.WarnContext(ctx, "Failed to record login failure", "error", err)
		return
	}
	logger.InfoContext(ctx, "Failed staff login", "username", username, "failures", n)
}

func (s *authService) CreateUser(ctx context.Context, session *auth.Session, req *domain.CreateUserRequest) (*domain.StaffUser, error) {
	if !session.Is(auth.RoleCSO) {
		return nil, domain.ErrForbidden
	}
	return s.create(ctx, req, session.Username)
}

func (s *authService) create(ctx context.Context, req *domain.CreateUserRequest, createdBy string) (*domain.StaffUser, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := argon2id.CreateHash(req.Password, s.params)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, req, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to create staff user: %w", err)
	}

	evt := events.StaffUserCreatedEvent{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      string(user.Role),
		CreatedBy: createdBy,
		CreatedAt: user.CreatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.StaffUserCreated, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to publish staff user created event", "error", err, "user_id", user.ID)
	}
	return user, nil
}

func (s *authService) ListUsers(ctx context.Context, session *auth.Session, limit, offset int) ([]domain.StaffUser, error) {
	if !session.Is(auth.RoleCSO) {
		return nil, domain.ErrForbidden
	}
	users, err := s.userRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff users: %w", err)
	}
	return users, nil
}

// Bootstrap creates the first CSO account when no staff exist yet. It
// reports whether an account was created.
func (s *authService) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	n, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count staff users: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	req := &domain.CreateUserRequest{
		Username: username,
		FullName: "Chief Security Officer",
		Password: password,
		Role:     string(auth.RoleCSO),
	}
	if _, err := s.create(ctx, req, "bootstrap"); err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
