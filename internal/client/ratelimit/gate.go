// Package ratelimit keeps the durable client-side cooldown that follows a
// provider rate limit.
//
// A cooldown for key is stored under key+"_rate_limit_until" as decimal Unix
// milliseconds. While it is active, Guard refuses calls without touching the
// network. Entries survive restarts and sign-out.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/autherr"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// Store is the slice of the metadata repository the gate needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Status is the result of Check.
type Status struct {
	Blocked   bool
	Remaining time.Duration
}

// StorageKey returns the storage key holding the cooldown of key.
func StorageKey(key string) string {
	return key + common.CooldownKeySuffix
}

// IsStorageKey reports whether a storage key holds a cooldown entry.
func IsStorageKey(storageKey string) bool {
	return strings.HasSuffix(storageKey, common.CooldownKeySuffix)
}

type Gate struct {
	// mu serialises read-modify-write within this process only.
	mu    sync.Mutex
	store Store
	log   logging.Logger
	now   func() time.Time
}

func NewGate(store Store, log logging.Logger) *Gate {
	return &Gate{store: store, log: log, now: time.Now}
}

// Check reports whether key is in cooldown. An elapsed or unreadable entry
// is deleted and reported as unblocked.
func (g *Gate) Check(ctx context.Context, key string) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	until, ok, err := g.load(ctx, key)
	if err != nil || !ok {
		return Status{}, err
	}

	now := g.now()
	if !now.Before(until) {
		if err := g.store.Delete(ctx, StorageKey(key)); err != nil {
			return Status{}, fmt.Errorf("failed to purge cooldown %s: %w", key, err)
		}
		return Status{}, nil
	}
	return Status{Blocked: true, Remaining: until.Sub(now)}, nil
}

// Record starts a cooldown of the given length for key. An existing later
// deadline is kept.
func (g *Gate) Record(ctx context.Context, key string, cooldown time.Duration) error {
	if cooldown <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	until := g.now().Add(cooldown)

	current, ok, err := g.load(ctx, key)
	if err != nil {
		return err
	}
	if ok && current.After(until) {
		return nil
	}

	value := strconv.FormatInt(until.UnixMilli(), 10)
	if err := g.store.Set(ctx, StorageKey(key), []byte(value)); err != nil {
		return fmt.Errorf("failed to record cooldown %s: %w", key, err)
	}
	g.log.Warn(ctx, "rate limit cooldown recorded", "key", key, "cooldown", cooldown, "until", until)
	return nil
}

// Guard fails fast with an autherr Cooldown error while key is in cooldown.
// A storage failure lets the call through.
func (g *Gate) Guard(ctx context.Context, key string) error {
	st, err := g.Check(ctx, key)
	if err != nil {
		g.log.Warn(ctx, "cooldown check failed, allowing call", "key", key, "error", err)
		return nil
	}
	if st.Blocked {
		return autherr.NewCooldown(st.Remaining)
	}
	return nil
}

// load reads the deadline of key. Corrupt entries are deleted.
func (g *Gate) load(ctx context.Context, key string) (time.Time, bool, error) {
	raw, err := g.store.Get(ctx, StorageKey(key))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read cooldown %s: %w", key, err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || ms <= 0 {
		g.log.Warn(ctx, "corrupt cooldown entry purged", "key", key, "value", string(raw))
		if err := g.store.Delete(ctx, StorageKey(key)); err != nil {
			return time.Time{}, false, fmt.Errorf("failed to purge cooldown %s: %w", key, err)
		}
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}
