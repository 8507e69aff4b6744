package middleware

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// Defaults: 5 failures within 5 minutes bans the IP for 15 minutes.
	DefaultMaxFailures   = 5
	DefaultFailureWindow = 5 * time.Minute
	DefaultBanDuration   = 15 * time.Minute
)

// BruteforceGuard tracks failed authentication attempts per client IP and
// temporarily bans IPs that keep guessing.
type BruteforceGuard struct {
	clients     map[string]*clientRecord
	mutex       sync.RWMutex
	maxFailures int
	window      time.Duration
	banFor      time.Duration
}

type clientRecord struct {
	failures []time.Time
	banUntil time.Time
}

func NewBruteforceGuard(maxFailures int, window, banFor time.Duration) *BruteforceGuard {
	g := &BruteforceGuard{
		clients:     make(map[string]*clientRecord),
		maxFailures: maxFailures,
		window:      window,
		banFor:      banFor,
	}

	go g.cleanup()
	return g
}

// Banned reports whether the IP is currently banned and for how much longer.
func (g *BruteforceGuard) Banned(clientIP string) (bool, time.Duration) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	record, exists := g.clients[clientIP]
	if !exists {
		return false, 0
	}

	now := time.Now()
	if record.banUntil.After(now) {
		return true, record.banUntil.Sub(now)
	}

	// Ban lapsed; start the client over.
	if !record.banUntil.IsZero() {
		delete(g.clients, clientIP)
	}
	return false, 0
}

// RecordFailure notes a failed authentication attempt and bans the IP once
// it crosses the threshold within the window.
func (g *BruteforceGuard) RecordFailure(clientIP string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	now := time.Now()
	record, exists := g.clients[clientIP]
	if !exists {
		record = &clientRecord{}
		g.clients[clientIP] = record
	}

	recent := record.failures[:0]
	for _, t := range record.failures {
		if now.Sub(t) < g.window {
			recent = append(recent, t)
		}
	}
	record.failures = append(recent, now)

	if len(record.failures) >= g.maxFailures {
		record.banUntil = now.Add(g.banFor)
		zap.L().Warn("Client IP banned after repeated auth failures",
			zap.String("ip", clientIP),
			zap.Int("failures", len(record.failures)),
			zap.Duration("ban_for", g.banFor),
		)
	}
}

func (g *BruteforceGuard) cleanup() {
	ticker := time.NewTicker(g.window)
	defer ticker.Stop()

	for range ticker.C {
		g.mutex.Lock()
		now := time.Now()
		for ip, record := range g.clients {
			stale := true
			for _, t := range record.failures {
				if now.Sub(t) < g.window {
					stale = false
					break
				}
			}
			if stale && !record.banUntil.After(now) {
				delete(g.clients, ip)
			}
		}
		g.mutex.Unlock()
	}
}
