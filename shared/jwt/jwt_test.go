package jwt

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenAndDecode(t *testing.T) {
	svc := New("secret", time.Hour)

	tokenStr, err := svc.NewToken(domain.User{Id: 42, Email: "a@example.com"})
	require.NoError(t, err)

	claims, err := svc.DecodeToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserId)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.IssuedAt)
	assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, 5*time.Second)
}

func TestNewToken_UniqueIds(t *testing.T) {
	svc := New("secret", time.Hour)
	a, err := svc.NewToken(domain.User{Id: 1})
	require.NoError(t, err)
	b, err := svc.NewToken(domain.User{Id: 1})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecodeToken_Errors(t *testing.T) {
	svc := New("secret", time.Hour)

	unauthorized := func(t *testing.T, err error) *internal_errors.ErrorWithStatusCode {
		t.Helper()
		var e *internal_errors.ErrorWithStatusCode
		require.ErrorAs(t, err, &e)
		assert.Equal(t, http.StatusUnauthorized, e.StatusCode)
		return e
	}

	t.Run("wrong key", func(t *testing.T) {
		tokenStr, err := New("other", time.Hour).NewToken(domain.User{Id: 1})
		require.NoError(t, err)
		_, err = svc.DecodeToken(tokenStr)
		unauthorized(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := &Jwt{secretKey: []byte("secret"), ttl: time.Minute, now: func() time.Time { return time.Now().Add(-time.Hour) }}
		tokenStr, err := expired.NewToken(domain.User{Id: 1})
		require.NoError(t, err)
		_, err = svc.DecodeToken(tokenStr)
		assert.Equal(t, "Access token expired", unauthorized(t, err).Message)
	})

	t.Run("other signing method", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserId: 1, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		}})
		tokenStr, err := tok.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = svc.DecodeToken(tokenStr)
		unauthorized(t, err)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserId: 1, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "someone-else",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		}})
		tokenStr, err := tok.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = svc.DecodeToken(tokenStr)
		unauthorized(t, err)
	})

	t.Run("missing issued at", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserId: 1, RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}})
		tokenStr, err := tok.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = svc.DecodeToken(tokenStr)
		unauthorized(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.DecodeToken("not-a-token")
		unauthorized(t, err)
	})
}
