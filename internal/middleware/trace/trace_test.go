package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	m := NewMiddleware()
	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q, want req_ prefix", seen)
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
	if m.GetMetrics().TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", m.GetMetrics().TotalRequests)
	}
}

func TestMiddleware_ReusesIncomingID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		reused   bool
	}{
		{"well formed", "abc-123", true},
		{"header injection", "abc\r\nX-Evil: 1", false},
		{"too long", strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := NewMiddleware().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestID(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header[RequestIDHeader] = []string{tt.incoming}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if (seen == tt.incoming) != tt.reused {
				t.Errorf("request id = %q, reused = %v, want %v", seen, seen == tt.incoming, tt.reused)
			}
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if id := RequestID(httptest.NewRequest(http.MethodGet, "/", nil)); id != "" {
		t.Errorf("RequestID() = %q, want empty", id)
	}
}
