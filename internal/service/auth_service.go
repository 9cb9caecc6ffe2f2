package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/accountkit/account-auth-service/internal/auth"
	"github.com/accountkit/account-auth-service/internal/config"
	"github.com/accountkit/account-auth-service/internal/domain"
	"github.com/accountkit/account-auth-service/internal/events"
	"github.com/accountkit/account-auth-service/internal/repository"
	apperrors "github.com/accountkit/account-auth-service/pkg/util/errorutil"
)

// ErrAuthenticationFailed is the only login failure clients ever see.
var ErrAuthenticationFailed = apperrors.NewUnauthorized("invalid credentials")

// ErrNotAccountOwner is returned when a non-admin changes someone else's account.
var ErrNotAccountOwner = apperrors.NewForbidden("cannot modify another account")

const (
	reasonNoSuchUser    = "no_such_user"
	reasonBadCredential = "bad_credential"
)

// AuthService coordinates login and account lifecycle flows.
type AuthService struct {
	users      repository.UserRepository
	verifier   *auth.CredentialVerifier
	tokens     *auth.TokenCodec
	hasher     auth.PasswordHasher
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Clock overrides time.Now for token issuance and validation.
	Clock func() time.Time
}

// NewAuthService builds the service. It fails when the auth configuration is unusable.
func NewAuthService(cfg config.Config, deps AuthDependencies) (*AuthService, error) {
	tokens, err := auth.NewTokenCodec(cfg.Auth, auth.WithClock(deps.Clock))
	if err != nil {
		return nil, err
	}

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	verifier, err := auth.NewCredentialVerifier(deps.UserRepo, hasher)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}

	return &AuthService{
		users:      deps.UserRepo,
		verifier:   verifier,
		tokens:     tokens,
		hasher:     hasher,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// Login verifies credentials and issues a session token for the account's email.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	email = strings.TrimSpace(email)
	user, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		var reason string
		switch {
		case errors.Is(err, auth.ErrNoSuchUser):
			reason = reasonNoSuchUser
		case errors.Is(err, auth.ErrBadCredential):
			reason = reasonBadCredential
		default:
			return "", time.Time{}, apperrors.NewInternalError(err)
		}
		s.publish(ctx, events.NewEvent(events.EventLoginFailed, email, "", events.LoginFailedPayload{Reason: reason}))
		return "", time.Time{}, ErrAuthenticationFailed
	}

	token, exp, err := s.tokens.Encode(user.Email)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.NewEvent(events.EventLoginSucceeded, user.Email, "", nil))
	return token, exp, nil
}

// ListUsers returns every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// GetUser fetches one account by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapUserError(err, id)
	}
	return user, nil
}

// CreateUser registers a new account. The reserved admin subject cannot be claimed here.
func (s *AuthService) CreateUser(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if err := validateAccountInput(email, password); err != nil {
		return nil, err
	}
	if isReservedSubject(email) {
		return nil, apperrors.NewConflict("email already registered", nil)
	}

	user, err := s.createUser(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventUserRegistered, user.Email, actorFrom(ctx), nil))
	return user, nil
}

// UpdateUser changes an account's email and/or password. Empty fields are left unchanged.
func (s *AuthService) UpdateUser(ctx context.Context, id, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" && password == "" {
		return nil, apperrors.NewValidationError("email or password required", nil)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapUserError(err, id)
	}
	if !canModify(ctx, user) {
		return nil, ErrNotAccountOwner
	}

	if email != "" && email != user.Email {
		if isReservedSubject(email) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		user.Email = email
	}
	if password != "" {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, mapUserError(err, id)
	}

	s.publish(ctx, events.NewEvent(events.EventUserUpdated, user.Email, actorFrom(ctx), nil))
	return user, nil
}

// DeleteUser removes an account.
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return mapUserError(err, id)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return mapUserError(err, id)
	}

	s.publish(ctx, events.NewEvent(events.EventUserDeleted, user.Email, actorFrom(ctx), nil))
	return nil
}

// EnsureAdmin creates the reserved admin account when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, password string) error {
	if password == "" {
		return nil
	}

	_, err := s.users.GetByEmail(ctx, auth.AdminSubject)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	user, err := s.createUser(ctx, auth.AdminSubject, password)
	if err != nil {
		return err
	}
	s.logger.Info("admin account created", zap.String("id", user.ID))
	return nil
}

// TokenCodec exposes the underlying codec for middleware usage.
func (s *AuthService) TokenCodec() *auth.TokenCodec {
	return s.tokens
}

func (s *AuthService) createUser(ctx context.Context, email, password string) (*domain.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func validateAccountInput(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	return nil
}

func isReservedSubject(email string) bool {
	return auth.RoleForSubject(strings.TrimSpace(email)) == domain.RoleAdmin
}

// canModify allows admins to change any account and everyone else only their own.
func canModify(ctx context.Context, user *domain.User) bool {
	principal, ok := auth.FromContext(ctx)
	if !ok || !principal.Authenticated {
		return false
	}
	return principal.Role == domain.RoleAdmin || principal.Subject == user.Email
}

func actorFrom(ctx context.Context) string {
	if principal, ok := auth.FromContext(ctx); ok {
		return principal.Subject
	}
	return ""
}

func mapUserError(err error, id string) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("user", map[string]any{"id": id})
	case errors.Is(err, repository.ErrDuplicateEmail):
		return apperrors.NewConflict("email already registered", nil)
	default:
		return apperrors.MapError(err)
	}
}
