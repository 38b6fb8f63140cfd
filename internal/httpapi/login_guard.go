package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// loginGuard locks a client out once it collects limit failed logins within
// window. A successful login clears the client's record.
type loginGuard struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	failures map[string]failureRecord
}

type failureRecord struct {
	count int
	first time.Time
}

func newLoginGuard(limit int, window time.Duration) *loginGuard {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &loginGuard{
		limit:    limit,
		window:   window,
		now:      time.Now,
		failures: make(map[string]failureRecord),
	}
}

func (g *loginGuard) Blocked(client string) bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.failures[client]
	if !ok {
		return false
	}
	if g.now().Sub(rec.first) >= g.window {
		delete(g.failures, client)
		return false
	}
	return rec.count >= g.limit
}

func (g *loginGuard) Fail(client string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	rec := g.failures[client]
	if rec.count == 0 || now.Sub(rec.first) >= g.window {
		rec = failureRecord{first: now}
	}
	rec.count++
	g.failures[client] = rec
}

func (g *loginGuard) Reset(client string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.failures, client)
	g.mu.Unlock()
}

// clientAddress is the remote host without its port.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host = strings.TrimSpace(host); host == "" {
		return "unknown"
	}
	return host
}
