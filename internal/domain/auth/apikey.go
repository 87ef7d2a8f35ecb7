package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Type    string
	Scopes  []string
}

// Principal converts the key into a request principal.
func (k APIKeyInfo) Principal() Principal {
	typ := k.Type
	if typ == "" {
		typ = TypeService
	}
	return Principal{Subject: k.ID, Type: typ, Scopes: k.Scopes}
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
