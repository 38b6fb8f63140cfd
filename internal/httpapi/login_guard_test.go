package httpapi

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginGuardWindowExpires(t *testing.T) {
	clock := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	guard := newLoginGuard(3, time.Minute)
	guard.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if guard.Blocked("10.0.0.7") {
			t.Fatalf("attempt %d blocked before limit", i+1)
		}
		guard.Fail("10.0.0.7")
	}
	if !guard.Blocked("10.0.0.7") {
		t.Fatalf("expected client to be locked out after 3 failures")
	}
	if guard.Blocked("10.0.0.8") {
		t.Fatalf("lockout must not spill over to other clients")
	}

	clock = clock.Add(time.Minute)
	if guard.Blocked("10.0.0.7") {
		t.Fatalf("expected lockout to lift once the window passes")
	}
}

func TestLoginGuardResetClearsFailures(t *testing.T) {
	guard := newLoginGuard(2, time.Minute)
	guard.Fail("10.0.0.7")
	guard.Reset("10.0.0.7")
	guard.Fail("10.0.0.7")
	if guard.Blocked("10.0.0.7") {
		t.Fatalf("expected reset to forget earlier failures")
	}
}

func TestClientAddressDropsPort(t *testing.T) {
	cases := map[string]string{
		"192.168.1.10:4431": "192.168.1.10",
		"[::1]:8080":        "::1",
		"10.0.0.7":          "10.0.0.7",
		"":                  "unknown",
	}
	for remote, want := range cases {
		req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
		req.RemoteAddr = remote
		if got := clientAddress(req); got != want {
			t.Fatalf("%q: expected %q, got %q", remote, want, got)
		}
	}
}
