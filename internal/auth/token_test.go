package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountkit/account-auth-service/internal/config"
)

const (
	testSecret  = "test-secret-with-at-least-32-characters!"
	otherSecret = "another-secret-with-at-least-32-chars!!"
)

// fakeClock is a settable time source shared by encode and decode.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCodec(t *testing.T, secret string, clock *fakeClock) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(config.AuthConfig{JWTSecret: secret}, WithClock(clock.Now))
	require.NoError(t, err)
	return codec
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
}

func TestNewTokenCodec_RejectsWeakSecret(t *testing.T) {
	_, err := NewTokenCodec(config.AuthConfig{JWTSecret: "short"})
	assert.ErrorIs(t, err, config.ErrWeakSecret)

	_, err = NewTokenCodec(config.AuthConfig{})
	assert.ErrorIs(t, err, config.ErrMissingSecret)
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	clock := newClock()
	codec := newTestCodec(t, testSecret, clock)

	subjects := []string{"alice@example.com", "admin", "ADMIN2", "bob+tag@nowhere.io"}
	for _, subject := range subjects {
		t.Run(subject, func(t *testing.T) {
			token, expiresAt, err := codec.Encode(subject)
			require.NoError(t, err)
			assert.Equal(t, clock.Now().Add(SessionLifetime), expiresAt)

			claim, err := codec.Decode(token)
			require.NoError(t, err)
			assert.Equal(t, subject, claim.Subject)
			assert.True(t, claim.IssuedAt.Equal(clock.Now()))
			assert.True(t, claim.ExpiresAt.Equal(expiresAt))
			assert.True(t, codec.IsValid(token))
		})
	}
}

func TestTokenCodec_CompactWireFormat(t *testing.T) {
	codec := newTestCodec(t, testSecret, newClock())

	token, _, err := codec.Encode("alice@example.com")
	require.NoError(t, err)

	segments := strings.Split(token, ".")
	require.Len(t, segments, 3)

	// Any standard HS256 implementation must accept the token with the same secret.
	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	}, jwt.WithoutClaimsValidation())
	require.NoError(t, err)
	assert.Equal(t, "HS256", parsed.Header["alg"])

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", claims["sub"])
	assert.Contains(t, claims, "iat")
	assert.Contains(t, claims, "exp")
}

func TestTokenCodec_EncodeRejectsEmptySubject(t *testing.T) {
	codec := newTestCodec(t, testSecret, newClock())

	_, _, err := codec.Encode("  ")
	assert.ErrorIs(t, err, ErrEmptySubject)
}

func TestTokenCodec_TamperedSignature(t *testing.T) {
	codec := newTestCodec(t, testSecret, newClock())

	token, _, err := codec.Encode("alice@example.com")
	require.NoError(t, err)

	segments := strings.Split(token, ".")
	sig, err := base64.RawURLEncoding.DecodeString(segments[2])
	require.NoError(t, err)

	for i := range sig {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), sig...)
			flipped[i] ^= 1 << bit
			tampered := segments[0] + "." + segments[1] + "." + base64.RawURLEncoding.EncodeToString(flipped)

			_, err := codec.Decode(tampered)
			require.ErrorIs(t, err, ErrInvalidToken, "byte %d bit %d", i, bit)
			require.False(t, codec.IsValid(tampered))
		}
	}
}

func TestTokenCodec_TamperedPayload(t *testing.T) {
	codec := newTestCodec(t, testSecret, newClock())

	token, _, err := codec.Encode("alice@example.com")
	require.NoError(t, err)

	segments := strings.Split(token, ".")
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"admin","exp":4102444800}`))
	tampered := segments[0] + "." + forged + "." + segments[2]

	_, err = codec.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenCodec_ExpiryBoundary(t *testing.T) {
	clock := newClock()
	codec := newTestCodec(t, testSecret, clock)

	token, _, err := codec.Encode("alice@example.com")
	require.NoError(t, err)

	clock.Advance(9*time.Hour + 59*time.Minute)
	assert.True(t, codec.IsValid(token))

	clock.Advance(2 * time.Minute)
	assert.False(t, codec.IsValid(token))

	_, err = codec.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenCodec_InvalidInputs(t *testing.T) {
	codec := newTestCodec(t, testSecret, newClock())

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "whitespace", token: "   "},
		{name: "garbage", token: "not-a-token"},
		{name: "two segments", token: "abc.def"},
		{name: "bad base64", token: "!!!.@@@.###"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, codec.IsValid(tt.token))
			_, err := codec.Decode(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenCodec_RejectsForeignKey(t *testing.T) {
	clock := newClock()
	stale := newTestCodec(t, otherSecret, clock)
	current := newTestCodec(t, testSecret, clock)

	token, _, err := stale.Encode("alice@example.com")
	require.NoError(t, err)

	assert.True(t, stale.IsValid(token))
	assert.False(t, current.IsValid(token))
}

func TestTokenCodec_RejectsOtherAlgorithms(t *testing.T) {
	clock := newClock()
	codec := newTestCodec(t, testSecret, clock)

	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(clock.Now()),
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.False(t, codec.IsValid(hs512))

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.False(t, codec.IsValid(none))
}

func TestTokenCodec_RequiresExpiryAndSubject(t *testing.T) {
	clock := newClock()
	codec := newTestCodec(t, testSecret, clock)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  "alice@example.com",
		IssuedAt: jwt.NewNumericDate(clock.Now()),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.False(t, codec.IsValid(noExp))

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.False(t, codec.IsValid(noSub))
}

func TestTokenCodec_DistinctIssuance(t *testing.T) {
	clock := newClock()
	codec := newTestCodec(t, testSecret, clock)

	first, _, err := codec.Encode("alice@example.com")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, _, err := codec.Encode("alice@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	clock.Advance(8 * time.Hour)
	assert.True(t, codec.IsValid(first))
	assert.True(t, codec.IsValid(second))

	// first expires at +10h, second at +11h
	clock.Advance(90 * time.Minute)
	assert.False(t, codec.IsValid(first))
	assert.True(t, codec.IsValid(second))
}

func TestTokenCodec_DeterministicForSameInstant(t *testing.T) {
	codec := newTestCodec(t, testSecret, newClock())

	a, _, err := codec.Encode("alice@example.com")
	require.NoError(t, err)
	b, _, err := codec.Encode("alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
