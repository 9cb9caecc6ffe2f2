package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/accountkit/account-auth-service/internal/domain"
)

var (
	ErrNoSuchUser    = errors.New("no such user")
	ErrBadCredential = errors.New("bad credential")
)

// placeholderSecret is hashed once so unknown emails still cost one comparison.
const placeholderSecret = "credential-verifier-placeholder"

// UserFinder looks up accounts by email. Missing accounts report pgx.ErrNoRows.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// CredentialVerifier checks a submitted email and password against the stored hash.
type CredentialVerifier struct {
	users     UserFinder
	hasher    PasswordHasher
	dummyHash string
}

// NewCredentialVerifier constructs a verifier.
func NewCredentialVerifier(users UserFinder, hasher PasswordHasher) (*CredentialVerifier, error) {
	dummyHash, err := hasher.Hash(placeholderSecret)
	if err != nil {
		return nil, fmt.Errorf("hash placeholder secret: %w", err)
	}
	return &CredentialVerifier{users: users, hasher: hasher, dummyHash: dummyHash}, nil
}

// Verify returns the account when secret matches its stored hash. It fails with
// ErrNoSuchUser or ErrBadCredential; callers must not expose which one occurred.
func (v *CredentialVerifier) Verify(ctx context.Context, email, secret string) (*domain.User, error) {
	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = v.hasher.Compare(v.dummyHash, secret)
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := v.hasher.Compare(user.PasswordHash, secret); err != nil {
		return nil, ErrBadCredential
	}
	return user, nil
}
