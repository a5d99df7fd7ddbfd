package guard

import (
	"context"
	"testing"

	"finledger/internal/middleware/ratelimit"
	"finledger/internal/services"
)

func TestGuard_Check(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 2})
	defer limiter.Stop()
	g := New(limiter, []string{"bad", " ", ""})
	ctx := context.Background()

	if d := g.Check(ctx, "bad"); d.Allowed || d.Reason != services.ReasonBlocked {
		t.Fatalf("blocked user decision = %+v", d)
	}

	for i := 0; i < 2; i++ {
		if d := g.Check(ctx, "good"); !d.Allowed {
			t.Fatalf("request %d denied: %+v", i+1, d)
		}
	}
	if d := g.Check(ctx, "good"); d.Allowed || d.Reason != services.ReasonRateLimited {
		t.Fatalf("third request decision = %+v", d)
	}

	g.Unblock("bad")
	if d := g.Check(ctx, "bad"); !d.Allowed {
		t.Fatalf("unblocked user denied: %+v", d)
	}
}

func TestGuard_NoLimiter(t *testing.T) {
	g := New(nil, nil)
	for i := 0; i < 100; i++ {
		if d := g.Check(context.Background(), "u"); !d.Allowed {
			t.Fatalf("denied without limiter: %+v", d)
		}
	}
}
