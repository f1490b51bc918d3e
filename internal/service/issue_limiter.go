package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	issueRateWindow = 10 * time.Minute
	issueRateMax    = 3
)

// IssueLimiter limita cuantos desafios (codigos o enlaces) se emiten por objetivo dentro de una ventana.
type IssueLimiter interface {
	Allow(ctx context.Context, target Target) bool
}

// limiterKey agrupa por tipo, ID y email: <kind>:<id>:<email>. Vacio si el objetivo no tiene ID.
func (t Target) limiterKey() string {
	id := strings.TrimSpace(t.ID)
	if id == "" {
		return ""
	}
	return string(t.Kind) + ":" + id + ":" + normalizeEmail(t.Email)
}

type memoryIssueLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewMemoryIssueLimiter crea un rate limiter en memoria, valido para una sola instancia.
func NewMemoryIssueLimiter(window time.Duration, max int) IssueLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryIssueLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryIssueLimiter) Allow(_ context.Context, target Target) bool {
	key := target.limiterKey()
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}
