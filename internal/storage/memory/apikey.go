package memory

import (
	"context"

	"github.com/xenking/storefront-core/internal/domain/auth"
)

var _ auth.Repository = (*APIKeys)(nil)

// APIKeys implements auth.Repository.
type APIKeys struct {
	s *Store
}

func (r *APIKeys) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	defer r.s.lock(ctx)()
	k, ok := r.s.d.apiKeys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}
