package jwt

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
)

const issuer = "parley"

// Claims carried by access tokens. IssuedAt is compared against the
// revocation cache.
type Claims struct {
	UserId domain.UserId `json:"uid"`
	Email  domain.Email  `json:"email"`
	jwt.RegisteredClaims
}

type JwtService interface {
	NewToken(user domain.User) (string, error)
	DecodeToken(jwtStr string) (*Claims, error)
}

type Jwt struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func New(secretKey string, ttl time.Duration) JwtService {
	return &Jwt{secretKey: []byte(secretKey), ttl: ttl, now: time.Now}
}

func (j *Jwt) NewToken(user domain.User) (string, error) {
	now := j.now()
	claims := Claims{
		UserId: user.Id,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(user.Id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		logger.Log.Error("failed to sign token", "user_id", user.Id, "error", err)
		return "", errors.New("can't create token")
	}
	return signed, nil
}

func (j *Jwt) DecodeToken(jwtStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(jwtStr, claims, func(*jwt.Token) (any, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		logger.Log.Debug("token decode failed", "error", err)
		msg := "Invalid access token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "Access token expired"
		}
		return nil, &internal_errors.ErrorWithStatusCode{Message: msg, StatusCode: http.StatusUnauthorized}
	}
	if claims.IssuedAt == nil {
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid access token", StatusCode: http.StatusUnauthorized}
	}
	return claims, nil
}
