package guard

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"finledger/internal/middleware/ratelimit"
	"finledger/internal/services"
)

// Guard gates account creation: blocked users are refused outright, the rest
// are held to a per-user rate.
type Guard struct {
	limiter *ratelimit.Limiter

	mu      sync.RWMutex
	blocked map[string]struct{}
}

func New(limiter *ratelimit.Limiter, blocked []string) *Guard {
	g := &Guard{limiter: limiter, blocked: make(map[string]struct{})}
	for _, id := range blocked {
		g.Block(id)
	}
	return g
}

func (g *Guard) Check(ctx context.Context, userID string) services.Decision {
	if g.IsBlocked(userID) {
		slog.WarnContext(ctx, "Blocked user refused", "user_id", userID)
		return services.Deny(services.ReasonBlocked)
	}
	if g.limiter != nil && !g.limiter.Allow(userID) {
		slog.WarnContext(ctx, "User rate limited", "user_id", userID)
		return services.Deny(services.ReasonRateLimited)
	}
	return services.Allow()
}

func (g *Guard) Block(userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked[userID] = struct{}{}
}

func (g *Guard) Unblock(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.blocked, userID)
}

func (g *Guard) IsBlocked(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.blocked[userID]
	return ok
}
