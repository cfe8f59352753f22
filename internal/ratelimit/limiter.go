// Package ratelimit provides fixed-window rate limiting for the public kiosk
// endpoint.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CounterStore counts hits per key within a fixed window. The in-memory store
// below is process-local; multi-process deployments should supply a shared
// implementation so limits hold across instances.
type CounterStore interface {
	// Incr increments the counter for key in the window starting at
	// windowStart and returns the new count.
	Incr(key string, windowStart time.Time) (int, error)
}

// Config holds rate limit configuration.
type Config struct {
	Window      time.Duration // Fixed window size (default: 1m)
	MaxRequests int           // Max requests per key per window (default: 10)

	// Store for counters (nil uses an in-memory store)
	Store CounterStore
	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns the kiosk defaults: 10 requests per minute per IP.
func DefaultConfig() *Config {
	return &Config{
		Window:      time.Minute,
		MaxRequests: 10,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter applies a fixed-window limit per key.
type Limiter struct {
	config *Config
	clock  Clock
	store  CounterStore
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 10
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(clock)
	}
	return &Limiter{
		config: cfg,
		clock:  clock,
		store:  store,
	}
}

// Allow records a hit for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) LimitResult {
	now := l.clock.Now()
	windowStart := now.Truncate(l.config.Window)

	count, err := l.store.Incr(key, windowStart)
	if err != nil {
		// A broken counter store must not take the kiosk down.
		return LimitResult{Allowed: true}
	}
	if count > l.config.MaxRequests {
		return LimitResult{
			Allowed:    false,
			RetryAfter: windowStart.Add(l.config.Window).Sub(now),
		}
	}
	return LimitResult{Allowed: true}
}

// memoryStore is the in-memory CounterStore. Counters from previous windows
// are pruned lazily on access.
type memoryStore struct {
	clock Clock
	mu    sync.Mutex
	// Keyed by key; each entry belongs to a single window.
	entries map[string]*windowEntry
}

type windowEntry struct {
	windowStart time.Time
	count       int
}

// NewMemoryStore creates a process-local CounterStore.
func NewMemoryStore(clock Clock) CounterStore {
	if clock == nil {
		clock = realClock{}
	}
	return &memoryStore{
		clock:   clock,
		entries: make(map[string]*windowEntry),
	}
}

func (s *memoryStore) Incr(key string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[key]
	if e == nil || !e.windowStart.Equal(windowStart) {
		s.entries[key] = &windowEntry{windowStart: windowStart, count: 1}
		s.pruneLocked(windowStart)
		return 1, nil
	}
	e.count++
	return e.count, nil
}

func (s *memoryStore) pruneLocked(currentWindow time.Time) {
	for k, e := range s.entries {
		if e.windowStart.Before(currentWindow) {
			delete(s.entries, k)
		}
	}
}

// GetClientIP extracts the client IP from a request.
// When trustProxy is true, uses the rightmost IP from X-Forwarded-For (added by your proxy).
// When trustProxy is false, ignores X-Forwarded-For entirely (prevents spoofing).
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Use RIGHTMOST IP - this is the one your proxy added, not user-supplied
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				// Skip private/internal IPs to find the real client
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			// All IPs are private, use the last one
			return strings.TrimSpace(parts[len(parts)-1])
		}

		// Check X-Real-IP (set by nginx)
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	// Fall back to RemoteAddr (direct connection or untrusted proxy)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port (e.g., Unix socket or malformed)
		// Try to parse as IP directly, otherwise return as-is
		if parsed := net.ParseIP(r.RemoteAddr); parsed != nil {
			return r.RemoteAddr
		}
		// Last resort: strip anything after last colon that looks like a port
		if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
			candidate := r.RemoteAddr[:idx]
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
		return r.RemoteAddr
	}
	return ip
}

// privateNetworks holds parsed CIDR ranges for private/reserved IPs.
// Parsed once at package init for efficiency.
var privateNetworks []*net.IPNet

func init() {
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10", // Link-local
	}
	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// isPrivateIP checks if an IP is in a private/reserved range.
// Handles both IPv4 and IPv4-mapped IPv6 addresses (e.g., ::ffff:192.168.1.1).
func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	// Convert IPv4-mapped IPv6 to IPv4 for consistent matching
	// e.g., ::ffff:192.168.1.1 -> 192.168.1.1
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
