// Package keypool manages the shared secondary-provider credentials and
// decides which credential serves a given caller.
package keypool

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/studyloop/studyloop/internal/clock"
	"go.uber.org/zap"
)

// entry tracks one pool credential. Cooldown and fail counts are guarded by
// a per-entry mutex; two racing rate-limit marks must never shorten the
// cooldown one of them set.
type entry struct {
	credential string

	mu            sync.Mutex
	cooldownUntil time.Time
	failCount     int
}

func (e *entry) available(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.After(e.cooldownUntil) || now.Equal(e.cooldownUntil)
}

func (e *entry) cooldownEnd() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooldownUntil
}

// Pool holds a fixed set of interchangeable secondary-provider credentials.
// State lives for the process lifetime and resets on restart.
type Pool struct {
	entries         []*entry
	clock           clock.Clock
	log             *zap.Logger
	defaultCooldown time.Duration
}

// NewPool builds the pool from the configured credential list. An empty list
// yields a valid but degraded pool.
func NewPool(credentials []string, defaultCooldown time.Duration, clk clock.Clock, log *zap.Logger) *Pool {
	entries := make([]*entry, 0, len(credentials))
	for _, credential := range credentials {
		entries = append(entries, &entry{credential: credential})
	}
	return &Pool{
		entries:         entries,
		clock:           clk,
		log:             log.Named("keypool"),
		defaultCooldown: defaultCooldown,
	}
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int { return len(p.entries) }

// KeyForCaller picks the caller's home key by consistent hash so repeat
// requests from one caller keep hitting the same upstream project. If the
// home key is cooling down it scans forward circularly; if every key is
// cooling down it returns the one that recovers soonest rather than failing.
// Returns "" only when the pool is empty.
func (p *Pool) KeyForCaller(callerID string) string {
	n := len(p.entries)
	if n == 0 {
		return ""
	}
	now := p.clock.Now()
	home := int(hashCaller(callerID) % uint32(n))

	for i := 0; i < n; i++ {
		e := p.entries[(home+i)%n]
		if e.available(now) {
			return e.credential
		}
	}

	best := p.entries[home]
	bestEnd := best.cooldownEnd()
	for _, e := range p.entries {
		if end := e.cooldownEnd(); end.Before(bestEnd) {
			best, bestEnd = e, end
		}
	}
	return best.credential
}

// MarkRateLimited records an upstream 429 for the credential and extends its
// cooldown. Cooldowns only grow here; a shorter retry-after never shrinks a
// window another request already set. Unknown credentials (a caller's own
// dedicated key) are ignored.
func (p *Pool) MarkRateLimited(credential string, retryAfter time.Duration) {
	e := p.find(credential)
	if e == nil {
		return
	}
	if retryAfter <= 0 {
		retryAfter = p.defaultCooldown
	}
	until := p.clock.Now().Add(retryAfter)

	e.mu.Lock()
	e.failCount++
	if until.After(e.cooldownUntil) {
		e.cooldownUntil = until
	}
	fails := e.failCount
	e.mu.Unlock()

	p.log.Warn("pool key rate limited",
		zap.String("key", redact(credential)),
		zap.Duration("retry_after", retryAfter),
		zap.Int("fail_count", fails),
	)
}

// NextKey returns the next credential in circular order after the failed one
// that is not cooling down. Returns "" when the pool has at most one key,
// the failed credential is not a pool key, or every other key is cooling down.
func (p *Pool) NextKey(failed string) string {
	n := len(p.entries)
	if n <= 1 {
		return ""
	}
	start := -1
	for i, e := range p.entries {
		if e.credential == failed {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}
	now := p.clock.Now()
	for i := 1; i < n; i++ {
		e := p.entries[(start+i)%n]
		if e.available(now) {
			return e.credential
		}
	}
	return ""
}

// MarkSuccess clears the fail counter and cooldown for the credential.
func (p *Pool) MarkSuccess(credential string) {
	e := p.find(credential)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.failCount = 0
	e.cooldownUntil = time.Time{}
	e.mu.Unlock()
}

// SoonestRecovery returns how long until the earliest cooldown expires.
// Zero means at least one key is already available (or the pool is empty).
func (p *Pool) SoonestRecovery() time.Duration {
	if len(p.entries) == 0 {
		return 0
	}
	now := p.clock.Now()
	var soonest time.Duration
	first := true
	for _, e := range p.entries {
		end := e.cooldownEnd()
		if !end.After(now) {
			return 0
		}
		if wait := end.Sub(now); first || wait < soonest {
			soonest = wait
			first = false
		}
	}
	return soonest
}

// KeyStatus is a redacted view of one pool entry, for display and metrics.
type KeyStatus struct {
	Key         string `json:"key"`
	CoolingDown bool   `json:"cooling_down"`
	FailCount   int    `json:"fail_count"`
}

// Snapshot reports the redacted state of every pool entry.
func (p *Pool) Snapshot() []KeyStatus {
	now := p.clock.Now()
	statuses := make([]KeyStatus, 0, len(p.entries))
	for _, e := range p.entries {
		e.mu.Lock()
		statuses = append(statuses, KeyStatus{
			Key:         redact(e.credential),
			CoolingDown: now.Before(e.cooldownUntil),
			FailCount:   e.failCount,
		})
		e.mu.Unlock()
	}
	return statuses
}

func (p *Pool) find(credential string) *entry {
	for _, e := range p.entries {
		if e.credential == credential {
			return e
		}
	}
	return nil
}

func hashCaller(callerID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(callerID))
	return h.Sum32()
}

func redact(credential string) string {
	if len(credential) <= 4 {
		return "****"
	}
	return "****" + credential[len(credential)-4:]
}
