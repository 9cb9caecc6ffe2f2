package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountkit/account-auth-service/internal/auth"
	"github.com/accountkit/account-auth-service/internal/config"
	"github.com/accountkit/account-auth-service/internal/domain"
	"github.com/accountkit/account-auth-service/internal/events"
	"github.com/accountkit/account-auth-service/internal/repository"
	apperrors "github.com/accountkit/account-auth-service/pkg/util/errorutil"
)

const testSecret = "service-test-secret-0123456789abcdef"

type fixture struct {
	svc   *AuthService
	repo  repository.UserRepository
	logs  *observer.ObservedLogs
	clock *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{repo: repository.NewMemoryUserRepository(), clock: &now}

	core, logs := observer.New(zap.DebugLevel)
	f.logs = logs
	logger := zap.New(core)

	dispatcher := events.NewInMemoryDispatcher()
	NewAuditService(dispatcher, logger).RegisterHandlers()

	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: testSecret, BcryptCost: bcrypt.MinCost}}
	svc, err := NewAuthService(cfg, AuthDependencies{
		UserRepo:   f.repo,
		Dispatcher: dispatcher,
		Logger:     logger,
		Clock:      func() time.Time { return *f.clock },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewAuthService_RejectsWeakSecret(t *testing.T) {
	_, err := NewAuthService(config.Config{Auth: config.AuthConfig{JWTSecret: "short"}}, AuthDependencies{
		UserRepo: repository.NewMemoryUserRepository(),
	})
	assert.ErrorIs(t, err, config.ErrWeakSecret)
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateUser(ctx, "alice@example.com", "correct")
	require.NoError(t, err)

	token, exp, err := f.svc.Login(ctx, "alice@example.com", "correct")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Add(auth.SessionLifetime), exp)

	claim, err := f.svc.TokenCodec().Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claim.Subject)

	assert.Len(t, f.logs.FilterMessage(string(events.EventLoginSucceeded)).All(), 1)
}

func TestAuthService_LoginTrimsEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateUser(ctx, " alice@example.com ", "correct")
	require.NoError(t, err)

	token, _, err := f.svc.Login(ctx, " alice@example.com ", "correct")
	require.NoError(t, err)

	claim, err := f.svc.TokenCodec().Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claim.Subject)
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateUser(ctx, "alice@example.com", "correct")
	require.NoError(t, err)

	_, _, wrongSecret := f.svc.Login(ctx, "alice@example.com", "wrong")
	_, _, unknownUser := f.svc.Login(ctx, "bob@nowhere", "anything")

	require.Error(t, wrongSecret)
	require.Error(t, unknownUser)
	assert.ErrorIs(t, wrongSecret, ErrAuthenticationFailed)
	assert.ErrorIs(t, unknownUser, ErrAuthenticationFailed)
	assert.Equal(t, wrongSecret.Error(), unknownUser.Error())

	wrongDE := apperrors.ToDomainError(wrongSecret)
	unknownDE := apperrors.ToDomainError(unknownUser)
	assert.Equal(t, *wrongDE, *unknownDE)

	// the audit log keeps the distinction
	failures := f.logs.FilterMessage(string(events.EventLoginFailed)).All()
	require.Len(t, failures, 2)
	assert.Equal(t, reasonBadCredential, failures[0].ContextMap()["reason"])
	assert.Equal(t, reasonNoSuchUser, failures[1].ContextMap()["reason"])
}

func TestAuthService_TokenExpiresAfterSessionLifetime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateUser(ctx, "alice@example.com", "correct")
	require.NoError(t, err)

	token, _, err := f.svc.Login(ctx, "alice@example.com", "correct")
	require.NoError(t, err)

	*f.clock = f.clock.Add(auth.SessionLifetime - time.Minute)
	assert.True(t, f.svc.TokenCodec().IsValid(token))

	*f.clock = f.clock.Add(2 * time.Minute)
	assert.False(t, f.svc.TokenCodec().IsValid(token))
}

type failingRepo struct {
	repository.UserRepository
}

func (failingRepo) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, errors.New("database unavailable")
}

func TestAuthService_LoginLookupFailureIsInternal(t *testing.T) {
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: testSecret, BcryptCost: bcrypt.MinCost}}
	svc, err := NewAuthService(cfg, AuthDependencies{UserRepo: failingRepo{}})
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "alice@example.com", "correct")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, "INTERNAL_ERROR", apperrors.ToDomainError(err).Code)
}

func TestAuthService_CreateUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.svc.CreateUser(ctx, "  alice@example.com ", "correct")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "correct", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct")))

	tests := []struct {
		name     string
		email    string
		password string
		code     string
	}{
		{name: "duplicate", email: "alice@example.com", password: "x", code: "CONFLICT"},
		{name: "reserved admin", email: "admin", password: "x", code: "CONFLICT"},
		{name: "reserved admin any case", email: "AdMiN", password: "x", code: "CONFLICT"},
		{name: "missing email", email: " ", password: "x", code: "VALIDATION_FAILED"},
		{name: "missing password", email: "carol@example.com", password: "", code: "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateUser(ctx, tt.email, tt.password)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.ToDomainError(err).Code)
		})
	}

	assert.Len(t, f.logs.FilterMessage(string(events.EventUserRegistered)).All(), 1)
}

func TestAuthService_UpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := auth.WithPrincipal(context.Background(), &auth.Principal{Subject: "admin", Role: domain.RoleAdmin, Authenticated: true})

	user, err := f.svc.CreateUser(ctx, "alice@example.com", "correct")
	require.NoError(t, err)
	_, err = f.svc.CreateUser(ctx, "bob@example.com", "hunter2")
	require.NoError(t, err)

	updated, err := f.svc.UpdateUser(ctx, user.ID, "", "rotated")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("rotated")))

	_, _, err = f.svc.Login(ctx, "alice@example.com", "correct")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, _, err = f.svc.Login(ctx, "alice@example.com", "rotated")
	assert.NoError(t, err)

	updated, err = f.svc.UpdateUser(ctx, user.ID, "alice@new.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "alice@new.example.com", updated.Email)

	_, err = f.svc.UpdateUser(ctx, user.ID, "bob@example.com", "")
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)

	_, err = f.svc.UpdateUser(ctx, user.ID, "ADMIN", "")
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)

	_, err = f.svc.UpdateUser(ctx, user.ID, "", "")
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	_, err = f.svc.UpdateUser(ctx, "missing", "x@example.com", "")
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)

	changes := f.logs.FilterMessage(string(events.EventUserUpdated)).All()
	require.Len(t, changes, 2)
	assert.Equal(t, "admin", changes[0].ContextMap()["actor"])
}

func TestAuthService_GetListDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	alice, err := f.svc.CreateUser(ctx, "alice@example.com", "correct")
	require.NoError(t, err)
	_, err = f.svc.CreateUser(ctx, "bob@example.com", "hunter2")
	require.NoError(t, err)

	got, err := f.svc.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, f.svc.DeleteUser(ctx, alice.ID))

	_, err = f.svc.GetUser(ctx, alice.ID)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
	err = f.svc.DeleteUser(ctx, alice.ID)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)

	_, _, err = f.svc.Login(ctx, "alice@example.com", "correct")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.EnsureAdmin(ctx, ""))
	_, _, err := f.svc.Login(ctx, "admin", "root-pass")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	require.NoError(t, f.svc.EnsureAdmin(ctx, "root-pass"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "other-pass"))

	token, _, err := f.svc.Login(ctx, "admin", "root-pass")
	require.NoError(t, err)

	claim, err := f.svc.TokenCodec().Decode(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, auth.RoleForSubject(claim.Subject))
}

func TestAuthService_UpdateUserOwnership(t *testing.T) {
	f := newFixture(t)
	setup := context.Background()

	alice, err := f.svc.CreateUser(setup, "alice@example.com", "correct")
	require.NoError(t, err)
	bob, err := f.svc.CreateUser(setup, "bob@example.com", "hunter2")
	require.NoError(t, err)

	asAlice := auth.WithPrincipal(setup, &auth.Principal{Subject: "alice@example.com", Role: domain.RoleUser, Authenticated: true})
	asAdmin := auth.WithPrincipal(setup, &auth.Principal{Subject: "admin", Role: domain.RoleAdmin, Authenticated: true})
	anonymous := auth.WithPrincipal(setup, &auth.Principal{})

	tests := []struct {
		name   string
		ctx    context.Context
		target string
		err    error
	}{
		{name: "no principal", ctx: setup, target: alice.ID, err: ErrNotAccountOwner},
		{name: "unauthenticated principal", ctx: anonymous, target: alice.ID, err: ErrNotAccountOwner},
		{name: "user on another account", ctx: asAlice, target: bob.ID, err: ErrNotAccountOwner},
		{name: "user on own account", ctx: asAlice, target: alice.ID},
		{name: "admin on any account", ctx: asAdmin, target: bob.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateUser(tt.ctx, tt.target, "", "rotated-"+tt.name)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, "FORBIDDEN", apperrors.ToDomainError(err).Code)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, _, err = f.svc.Login(setup, "bob@example.com", "hunter2")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, _, err = f.svc.Login(setup, "bob@example.com", "rotated-admin on any account")
	assert.NoError(t, err)
}
