package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// StartLimiter acota cuantas sesiones nuevas de una variante abre un mismo cliente en una ventana.
type StartLimiter interface {
	Allow(ctx context.Context, variant, client string) bool
}

// startKey agrupa los intentos por variante y cliente; vacio si no hay cliente.
func startKey(variant, client string) string {
	client = strings.ToLower(strings.TrimSpace(client))
	if client == "" {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(variant)) + ":" + client
}

type memoryStartLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewStartLimiter crea un limitador de ventana deslizante en memoria.
func NewStartLimiter(window time.Duration, max int) StartLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryStartLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *memoryStartLimiter) Allow(_ context.Context, variant, client string) bool {
	key := startKey(variant, client)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	l.sweepLocked(now, cutoff)

	kept := prune(l.hits[key], cutoff)
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

// sweepLocked descarta, como mucho una vez por ventana, los clientes sin intentos vigentes.
func (l *memoryStartLimiter) sweepLocked(now, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, entries := range l.hits {
		if kept := prune(entries, cutoff); len(kept) == 0 {
			delete(l.hits, key)
		} else {
			l.hits[key] = kept
		}
	}
}

func prune(entries []time.Time, cutoff time.Time) []time.Time {
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
