package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"finledger/internal/config"
	"finledger/internal/core"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db")}

	var out bytes.Buffer
	if err := run(ctx, cfg, []string{"add-user"}, &out); err != nil {
		t.Fatalf("add-user: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "user:") || !strings.HasPrefix(lines[1], "token:") {
		t.Fatalf("add-user output = %q", out.String())
	}
	userID := strings.TrimSpace(strings.TrimPrefix(lines[0], "user:"))

	out.Reset()
	if err := run(ctx, cfg, []string{"set-budget", "-user", userID, "-amount", "500"}, &out); err != nil {
		t.Fatalf("set-budget: %v", err)
	}
	if !strings.Contains(out.String(), "500.00") {
		t.Errorf("set-budget output = %q", out.String())
	}

	out.Reset()
	if err := run(ctx, cfg, []string{"scan"}, &out); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out.String(), "checked 0") {
		t.Errorf("scan output = %q", out.String())
	}

	if err := run(ctx, cfg, []string{"set-budget", "-user", "nobody", "-amount", "1"}, &out); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("set-budget for unknown user = %v, want not found", err)
	}

	if err := run(ctx, cfg, []string{"recompute", "-user", userID, "-account", "missing"}, &out); err == nil {
		t.Error("recompute of a missing account should fail")
	}
}

func TestRun_Usage(t *testing.T) {
	cfg := &config.Config{SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db")}
	for _, args := range [][]string{
		nil,
		{"bogus"},
		{"set-budget", "-user", "u1"},
		{"recompute", "-account", "a1"},
	} {
		if err := run(context.Background(), cfg, args, &bytes.Buffer{}); !errors.Is(err, errUsage) {
			t.Errorf("run(%v) = %v, want usage error", args, err)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"usage", fmt.Errorf("%w: missing command", errUsage), 2},
		{"failure", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
