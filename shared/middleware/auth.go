package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	jwt_internal "github.com/parley-dev/parley/shared/jwt"
	"github.com/parley-dev/parley/shared/logger"
	"github.com/parley-dev/parley/shared/utils"
)

// RevocationCache interface defines methods needed by auth middleware
type RevocationCache interface {
	IsRevoked(userId domain.UserId, issuedAt time.Time) bool
}

// Key to store the user claims in the request context
type key int

const UserClaimsKey key = 0

// Auth holds dependencies for authentication middleware
type Auth struct {
	jwtService      jwt_internal.JwtService
	revocationCache RevocationCache
	secureCookies   bool
}

func NewAuth(jwtService jwt_internal.JwtService, revocationCache RevocationCache, secureCookies bool) *Auth {
	return &Auth{
		jwtService:      jwtService,
		revocationCache: revocationCache,
		secureCookies:   secureCookies,
	}
}

// NeedAuth returns middleware that requires authentication
func (a *Auth) NeedAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.extractUser(r)
			if err != nil {
				a.writeAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth returns middleware that populates user context if token is valid, but doesn't require auth
func (a *Auth) OptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := a.extractUser(r)
			if user != nil {
				ctx := context.WithValue(r.Context(), UserClaimsKey, user)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tokenFromRequest looks at the cookie, then the Authorization header, then the
// token query parameter. Browsers cannot set headers on WebSocket upgrades.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie("accessToken"); err == nil && c.Value != "" {
		return c.Value
	}
	if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		return token
	}
	return r.URL.Query().Get("token")
}

// extractUser extracts and validates user from JWT token in request
func (a *Auth) extractUser(r *http.Request) (*domain.User, error) {
	tokenString := tokenFromRequest(r)
	if tokenString == "" {
		return nil, errNoToken
	}

	claims, err := a.jwtService.DecodeToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.UserId <= 0 {
		return nil, errInvalidClaims
	}
	issuedAt := claims.IssuedAt.Time

	user := &domain.User{
		Id:    claims.UserId,
		Email: claims.Email,
	}

	if a.revocationCache != nil && a.revocationCache.IsRevoked(user.Id, issuedAt) {
		return nil, errRevoked
	}

	return user, nil
}

// Sentinel errors for extractUser
var (
	errNoToken       = errorString("no token")
	errInvalidClaims = errorString("invalid claims")
	errRevoked       = errorString("revoked")
)

type errorString string

func (e errorString) Error() string { return string(e) }

func (a *Auth) writeAuthError(w http.ResponseWriter, err error) {
	switch err {
	case errNoToken:
		utils.WriteErrorAndStatusCode(w, &internal_errors.ErrorWithStatusCode{Message: "Please sign-in", StatusCode: http.StatusUnauthorized})
	case errRevoked:
		// Clear JWT cookie to force re-login
		http.SetCookie(w, &http.Cookie{
			Path:     "/",
			Name:     "accessToken",
			Value:    "",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   a.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		utils.WriteErrorAndStatusCode(w, &internal_errors.ErrorWithStatusCode{Message: "Session is no longer valid", StatusCode: http.StatusUnauthorized})
	case errInvalidClaims:
		logger.Log.Error("invalid jwt claims")
		utils.WriteErrorAndStatusCode(w, &internal_errors.ErrorWithStatusCode{Message: "Invalid token", StatusCode: http.StatusUnauthorized})
	default:
		utils.WriteErrorAndStatusCode(w, err)
	}
}

// GetUserFromContext retrieves the user from the context
func GetUserFromContext(r *http.Request) *domain.User {
	user, ok := r.Context().Value(UserClaimsKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}
