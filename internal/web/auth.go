package web

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hpungsan/aura/internal/errors"
)

type ownerCtxKey struct{}

// Authenticator verifies HS256 bearer tokens. The subject claim is the owner id.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator returns an Authenticator for secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// SignToken mints a token for ownerID valid for ttl.
func (a *Authenticator) SignToken(ownerID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses tok and returns its subject.
func (a *Authenticator) Verify(tok string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if !t.Valid {
		return "", stderrors.New("invalid token")
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", stderrors.New("token has no subject")
	}
	return sub, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// owner id in the request context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			renderError(w, r, errors.NewUnauthorized("missing bearer token"))
			return
		}
		owner, err := a.Verify(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil {
			renderError(w, r, errors.NewUnauthorized("invalid bearer token"))
			return
		}
		ctx := context.WithValue(r.Context(), ownerCtxKey{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerFromContext returns the owner id set by RequireAuth.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerCtxKey{}).(string)
	return owner, ok && owner != ""
}
