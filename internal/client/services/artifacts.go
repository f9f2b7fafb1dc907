package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/ratelimit"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/repositories/cookies"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// IsAuthArtifactKey reports whether a storage key is dropped on sign-out.
// Cooldown entries never are.
func IsAuthArtifactKey(key string) bool {
	if ratelimit.IsStorageKey(key) {
		return false
	}
	if strings.HasPrefix(key, common.SessionScopePrefix) || strings.HasPrefix(key, common.AdminFlagPrefix) {
		return true
	}
	return isAuthName(key)
}

// IsAuthCookie reports whether a cookie is expired on sign-out.
func IsAuthCookie(name string) bool {
	return isAuthName(name)
}

func isAuthName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, common.AuthArtifactPrefix) ||
		strings.Contains(lower, common.AuthMarkerSupabase) ||
		strings.Contains(lower, common.AuthMarkerAuth)
}

// CleanupReport lists what a cleanup removed.
type CleanupReport struct {
	Keys    []string
	Cookies int
}

// ArtifactCleaner drops every local auth artifact in one transaction.
type ArtifactCleaner struct {
	db  *sql.DB
	log logging.Logger
}

func NewArtifactCleaner(db *sql.DB, log logging.Logger) *ArtifactCleaner {
	return &ArtifactCleaner{db: db, log: log}
}

// Clear deletes auth storage keys and expires every auth cookie.
func (c *ArtifactCleaner) Clear(ctx context.Context) (CleanupReport, error) {
	return c.clear(ctx, func(ck models.Cookie) bool {
		return IsAuthCookie(ck.Name)
	})
}

// ClearLocal is Clear minus HttpOnly cookies. Those belong to the server
// session: the delete request must still carry them, and Clear expires
// them once it has been sent.
func (c *ArtifactCleaner) ClearLocal(ctx context.Context) (CleanupReport, error) {
	return c.clear(ctx, func(ck models.Cookie) bool {
		return !ck.HTTPOnly && IsAuthCookie(ck.Name)
	})
}

func (c *ArtifactCleaner) clear(ctx context.Context, expire func(models.Cookie) bool) (CleanupReport, error) {
	var rep CleanupReport

	err := dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		md := metadata.NewSQLiteRepository(tx)

		keys, err := md.Keys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if IsAuthArtifactKey(k) {
				rep.Keys = append(rep.Keys, k)
			}
		}
		if err := md.DeleteKeys(ctx, rep.Keys); err != nil {
			return err
		}

		rep.Cookies, err = cookies.ExpireMatching(ctx, cookies.NewSQLiteRepository(tx), expire)
		return err
	})
	if err != nil {
		return CleanupReport{}, fmt.Errorf("failed to clear auth artifacts: %w", err)
	}

	c.log.Info(ctx, "local auth artifacts cleared", "keys", len(rep.Keys), "cookies", rep.Cookies)
	return rep, nil
}
