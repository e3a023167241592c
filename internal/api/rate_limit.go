package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Reset values above this are Unix timestamps, below it seconds from now.
const unixTimestampThreshold = 1_000_000_000

// RateLimitInfo holds the rate limit headers of the last response.
type RateLimitInfo struct {
	Limit     *int       `json:"limit,omitempty"`
	Remaining *int       `json:"remaining,omitempty"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

// LastRateLimit returns a copy of the rate limit headers seen on the most
// recent response that carried any, or nil.
func (c *Client) LastRateLimit() *RateLimitInfo {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()
	if c.lastRateLimit == nil {
		return nil
	}
	return c.lastRateLimit.clone()
}

func (r *RateLimitInfo) clone() *RateLimitInfo {
	return &RateLimitInfo{
		Limit:     clonePtr(r.Limit),
		Remaining: clonePtr(r.Remaining),
		ResetAt:   clonePtr(r.ResetAt),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (c *Client) recordRateLimit(h http.Header) {
	info := parseRateLimitInfo(h, time.Now())
	if info == nil {
		return
	}
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()
	c.lastRateLimit = info
}

func parseRateLimitInfo(h http.Header, now time.Time) *RateLimitInfo {
	info := &RateLimitInfo{}
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get("X-RateLimit-Limit"))); err == nil {
		info.Limit = &v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get("X-RateLimit-Remaining"))); err == nil {
		info.Remaining = &v
	}
	if t, ok := parseRateLimitReset(h.Get("X-RateLimit-Reset"), now); ok {
		info.ResetAt = &t
	}
	if info.Limit == nil && info.Remaining == nil && info.ResetAt == nil {
		return nil
	}
	return info
}

func parseRateLimitReset(value string, now time.Time) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		switch {
		case secs > unixTimestampThreshold:
			return time.Unix(secs, 0).UTC(), true
		case secs >= 0:
			return now.Add(time.Duration(secs) * time.Second).UTC(), true
		}
	}
	if t, err := http.ParseTime(trimmed); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
