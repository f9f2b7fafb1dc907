package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/autherr"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// CooldownGate is the part of ratelimit.Gate GuardedCaller uses.
type CooldownGate interface {
	Guard(ctx context.Context, key string) error
	Record(ctx context.Context, key string, cooldown time.Duration) error
}

// Executor runs an action under a retry policy.
type Executor interface {
	Execute(ctx context.Context, action func(ctx context.Context) error, p retry.Policy) error
}

// GuardedCaller runs network calls behind the cooldown gate and inside the
// retrier. When a call still fails rate-limited after the last retry, a
// cooldown is recorded: the server hint when there is one, else the default.
type GuardedCaller struct {
	gate     CooldownGate
	retrier  Executor
	key      string
	cooldown time.Duration
	log      logging.Logger
}

func NewGuardedCaller(gate CooldownGate, retrier Executor, key string, cooldown time.Duration, log logging.Logger) *GuardedCaller {
	return &GuardedCaller{gate: gate, retrier: retrier, key: key, cooldown: cooldown, log: log}
}

// Do runs action as operation name under policy p.
func (g *GuardedCaller) Do(ctx context.Context, name string, p retry.Policy, action func(ctx context.Context) error) error {
	if err := g.gate.Guard(ctx, g.key); err != nil {
		g.log.Info(ctx, "call refused during cooldown", "operation", name, "error", err)
		return err
	}

	p.Name = name
	err := g.retrier.Execute(ctx, action, p)
	if err == nil || !autherr.IsRateLimited(err) {
		return err
	}

	cooldown := autherr.RetryAfterOf(err)
	if cooldown <= 0 {
		cooldown = g.cooldown
	}
	if rerr := g.gate.Record(ctx, g.key, cooldown); rerr != nil {
		g.log.Error(ctx, "failed to record cooldown", "operation", name, "error", rerr)
	}
	return err
}
