package adapters

import (
	"fmt"
	"sync"
	"time"

	"github.com/Rajchodisetti/crypto-dashboard/internal/observ"
)

// Default quota for the keyed provider's free tier.
const (
	DefaultMaxRequestsPerMinute = 20
	DefaultMaxMonthlyCalls      = 500

	rateWindow = time.Minute
)

// LimitReason identifies which quota denied a request.
type LimitReason string

const (
	LimitMonthly   LimitReason = "monthly"
	LimitPerMinute LimitReason = "per_minute"
)

// Admission is the result of an admission check.
type Admission struct {
	Allowed bool
	Reason  LimitReason
	Message string
}

// RateLimitInfo is a snapshot of limiter usage.
type RateLimitInfo struct {
	RequestsLastMinute int `json:"requestsLastMinute"`
	MonthlyCalls       int `json:"monthlyCalls"`
	MaxPerMinute       int `json:"maxPerMinute"`
	MaxMonthly         int `json:"maxMonthly"`
}

// RequestLimiter combines a trailing one-minute window with a calendar-month
// counter. Checks are advisory: CheckAdmission never counts a request, the
// caller records it with RecordRequest once the call is dispatched.
type RequestLimiter struct {
	mu           sync.Mutex
	maxPerMinute int
	maxMonthly   int
	recent       []time.Time
	monthlyCount int
	monthAnchor  time.Time
	clock        func() time.Time
}

// NewRequestLimiter creates a limiter. Non-positive limits fall back to the defaults.
func NewRequestLimiter(maxPerMinute, maxMonthly int, clock func() time.Time) *RequestLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultMaxRequestsPerMinute
	}
	if maxMonthly <= 0 {
		maxMonthly = DefaultMaxMonthlyCalls
	}
	if clock == nil {
		clock = time.Now
	}
	return &RequestLimiter{
		maxPerMinute: maxPerMinute,
		maxMonthly:   maxMonthly,
		monthAnchor:  clock(),
		clock:        clock,
	}
}

// ResetIfNewPeriod reports whether now falls in a different calendar
// (year, month) than anchor.
func ResetIfNewPeriod(now, anchor time.Time) bool {
	ny, nm, _ := now.Date()
	ay, am, _ := anchor.Date()
	return ny != ay || nm != am
}

// CheckAdmission evaluates the monthly quota first, then the per-minute window.
func (l *RequestLimiter) CheckAdmission() Admission {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.resetMonthLocked(now)

	if l.monthlyCount >= l.maxMonthly {
		return Admission{
			Reason:  LimitMonthly,
			Message: fmt.Sprintf("monthly API call limit reached (%d calls/month)", l.maxMonthly),
		}
	}

	l.pruneLocked(now)
	if len(l.recent) >= l.maxPerMinute {
		return Admission{
			Reason:  LimitPerMinute,
			Message: fmt.Sprintf("rate limit exceeded (%d requests/minute)", l.maxPerMinute),
		}
	}

	return Admission{Allowed: true}
}

// RecordRequest counts one dispatched request against both quotas.
func (l *RequestLimiter) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = append(l.recent, l.clock())
	l.monthlyCount++
	observ.MonthlyCalls.Set(float64(l.monthlyCount))
}

// Info reports current usage after applying the monthly reset and pruning
// the minute window.
func (l *RequestLimiter) Info() RateLimitInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.resetMonthLocked(now)
	l.pruneLocked(now)

	return RateLimitInfo{
		RequestsLastMinute: len(l.recent),
		MonthlyCalls:       l.monthlyCount,
		MaxPerMinute:       l.maxPerMinute,
		MaxMonthly:         l.maxMonthly,
	}
}

func (l *RequestLimiter) resetMonthLocked(now time.Time) {
	if !ResetIfNewPeriod(now, l.monthAnchor) {
		return
	}
	l.monthlyCount = 0
	l.monthAnchor = now
	observ.MonthlyCalls.Set(0)
}

// pruneLocked keeps only timestamps strictly inside the trailing window.
func (l *RequestLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	kept := l.recent[:0]
	for _, ts := range l.recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.recent = kept
}
