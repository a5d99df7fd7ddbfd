package main

import (
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestRunReturnsExitCodeWhenServeFails(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	t.Setenv("PORT", strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("AMQP_URL", "")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")

	done := make(chan int, 1)
	go func() { done <- run() }()

	select {
	case code := <-done:
		if code != 1 {
			t.Fatalf("exit code = %d, want 1", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after the listener failed")
	}
}
