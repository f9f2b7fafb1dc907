package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/google/uuid"
)

// LoadOrCreateClientID returns the persisted client instance ID, generating
// and storing a new one on first use or when the stored value is invalid.
func LoadOrCreateClientID(ctx context.Context, store KeyValueStore) (string, error) {
	raw, err := store.Get(ctx, common.ClientInstanceIDKey)
	if err != nil {
		return "", fmt.Errorf("failed to load client id: %w", err)
	}
	if raw != nil {
		if id, err := uuid.ParseBytes(raw); err == nil {
			return id.String(), nil
		}
	}

	id := uuid.NewString()
	if err := store.Set(ctx, common.ClientInstanceIDKey, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to save client id: %w", err)
	}
	return id, nil
}
