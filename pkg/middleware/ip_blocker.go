package middleware

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
)

// IPBlockList is a concurrency safe set of denied client addresses.
type IPBlockList struct {
	mu      sync.RWMutex
	blocked map[string]bool
}

func NewIPBlockList(ips ...string) *IPBlockList {
	b := &IPBlockList{blocked: make(map[string]bool)}
	for _, ip := range ips {
		if ip = strings.TrimSpace(ip); ip != "" {
			b.blocked[ip] = true
		}
	}
	return b
}

// ReadFrom adds one address per line. Blank lines and # comments are skipped.
func (b *IPBlockList) ReadFrom(r io.Reader) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		n += int64(len(line)) + 1
		ip := strings.TrimSpace(line)
		if ip != "" && !strings.HasPrefix(ip, "#") {
			b.blocked[ip] = true
		}
	}
	return n, scanner.Err()
}

func (b *IPBlockList) IsBlocked(ip string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.blocked[ip]
}

func (b *IPBlockList) Add(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked[ip] = true
	slog.Warn("ip blocked", "ip", ip)
}

func (b *IPBlockList) Remove(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blocked, ip)
	slog.Info("ip unblocked", "ip", ip)
}

// Len reports how many addresses are blocked.
func (b *IPBlockList) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blocked)
}

// IPBlocker rejects requests whose RemoteAddr is on the list. Forwarded
// headers are not trusted; run chi's RealIP first when behind a proxy.
func IPBlocker(list *IPBlockList) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if list.IsBlocked(ip) {
				slog.Warn("request blocked", "ip", ip, "path", r.URL.Path)
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
