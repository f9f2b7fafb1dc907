package cookies

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, c models.Cookie) error {
	query := `INSERT INTO cookies (domain, path, name, value, expires_at, secure, http_only)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(domain, path, name) DO UPDATE SET
				value = excluded.value,
				expires_at = excluded.expires_at,
				secure = excluded.secure,
				http_only = excluded.http_only
	`
	var expires sql.NullInt64
	if !c.ExpiresAt.IsZero() {
		expires = sql.NullInt64{Int64: c.ExpiresAt.UnixMilli(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, c.Domain, c.Path, c.Name, c.Value, expires, c.Secure, c.HTTPOnly)
	if err != nil {
		return fmt.Errorf("failed to save cookie %s: %w", c.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, domain, path, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cookies WHERE domain = ? AND path = ? AND name = ?`, domain, path, name)
	if err != nil {
		return fmt.Errorf("failed to delete cookie %s: %w", name, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Cookie, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT domain, path, name, value, expires_at, secure, http_only
		FROM cookies ORDER BY domain, length(path) DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cookies: %w", err)
	}
	defer rows.Close()

	var result []models.Cookie
	for rows.Next() {
		var c models.Cookie
		var expires sql.NullInt64
		if err := rows.Scan(&c.Domain, &c.Path, &c.Name, &c.Value, &expires, &c.Secure, &c.HTTPOnly); err != nil {
			return nil, fmt.Errorf("failed to scan cookie row: %w", err)
		}
		if expires.Valid {
			c.ExpiresAt = time.UnixMilli(expires.Int64)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cookie rows: %w", err)
	}
	return result, nil
}

// ExpireMatching sets the expiry of every cookie in repo that satisfies match
// to the Unix epoch and returns how many were expired. A Jar drops such
// cookies on its next lookup.
func ExpireMatching(ctx context.Context, repo Repository, match func(c models.Cookie) bool) (int, error) {
	all, err := repo.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range all {
		if !match(c) {
			continue
		}
		c.ExpiresAt = time.Unix(0, 0)
		if err := repo.Save(ctx, c); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
