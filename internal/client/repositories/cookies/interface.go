package cookies

import (
	"context"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
)

// Repository stores cookies keyed by (domain, path, name).
type Repository interface {
	// Save inserts or replaces a cookie.
	Save(ctx context.Context, c models.Cookie) error

	// Delete removes one cookie; a missing cookie is not an error.
	Delete(ctx context.Context, domain, path, name string) error

	// List returns every stored cookie, expired ones included.
	List(ctx context.Context) ([]models.Cookie, error)
}
