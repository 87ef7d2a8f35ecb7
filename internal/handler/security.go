package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/storefront-core/internal/domain/auth"
)

// APIKeyHeader carries API keys.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

// Claims are the session token claims understood by the API.
type Claims struct {
	Role   string   `json:"role"`
	Type   string   `json:"type"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves the request principal from a bearer session token
// or an API key.
type Authenticator struct {
	apikeys   auth.Repository
	pepper    []byte
	jwtSecret []byte
}

// NewAuthenticator creates an Authenticator. With an empty jwtSecret bearer
// tokens are rejected.
func NewAuthenticator(apikeys auth.Repository, pepper, jwtSecret []byte) *Authenticator {
	return &Authenticator{
		apikeys:   apikeys,
		pepper:    pepper,
		jwtSecret: jwtSecret,
	}
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// the api_keys table.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignToken issues an HS256 session token for p.
func SignToken(secret []byte, p auth.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:   p.Role,
		Type:   p.Type,
		Scopes: p.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Authenticate returns the principal of r. ok is false for anonymous
// requests; err is set when credentials are present but invalid.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (_ auth.Principal, ok bool, _ error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found {
			return auth.Principal{}, false, errUnauthorized
		}
		p, err := a.parseToken(strings.TrimSpace(token))
		if err != nil {
			return auth.Principal{}, false, err
		}
		return p, true, nil
	}
	if key := r.Header.Get(APIKeyHeader); key != "" {
		p, err := a.lookupKey(ctx, key)
		if err != nil {
			return auth.Principal{}, false, err
		}
		return p, true, nil
	}
	return auth.Principal{}, false, nil
}

func (a *Authenticator) parseToken(raw string) (auth.Principal, error) {
	if len(a.jwtSecret) == 0 {
		return auth.Principal{}, errUnauthorized
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return a.jwtSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return auth.Principal{}, errors.Wrap(errUnauthorized, err.Error())
	}
	typ := claims.Type
	if typ == "" {
		typ = auth.TypeUser
	}
	return auth.Principal{
		Subject: claims.Subject,
		Role:    claims.Role,
		Type:    typ,
		Scopes:  claims.Scopes,
	}, nil
}

func (a *Authenticator) lookupKey(ctx context.Context, key string) (auth.Principal, error) {
	hash := HashAPIKey(a.pepper, key)
	info, err := a.apikeys.FindByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, auth.ErrKeyNotFound) {
			zctx.From(ctx).Error("API key lookup failed", zap.Error(err))
		}
		return auth.Principal{}, errUnauthorized
	}
	// The stored row must match the computed hash, not just be returned for it.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return auth.Principal{}, errUnauthorized
	}
	return info.Principal(), nil
}

// Middleware stores the resolved principal in the request context and
// answers 401 to requests with invalid credentials.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok, err := a.Authenticate(r.Context(), r)
		if err != nil {
			zctx.From(r.Context()).Debug("Authentication failed", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if ok {
			r = r.WithContext(auth.WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects anonymous callers with 401 and non-admins with 403.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		switch {
		case !ok:
			writeError(w, http.StatusUnauthorized, "Unauthorized")
		case !auth.CapabilitiesFor(p).ManageOrders:
			writeError(w, http.StatusForbidden, "Forbidden")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// capabilities derives the request capabilities. Anonymous callers get none.
func capabilities(ctx context.Context) auth.Capabilities {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return auth.Capabilities{}
	}
	return auth.CapabilitiesFor(p)
}
