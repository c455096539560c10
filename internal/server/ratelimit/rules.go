package ratelimit

import (
	"strings"
	"time"
)

// Rule limits one group of routes. Requests matching the same rule share a
// bucket per client, so every job's step actions draw from one allowance.
type Rule struct {
	Name    string
	Method  string
	Pattern string // "/"-separated; "*" matches one segment, a trailing "**" the rest
	Limit   int    // Requests per Window; zero exempts the route
	Window  time.Duration
	Burst   int // Defaults to Limit
}

// Exempt reports whether the rule lets every request through.
func (r Rule) Exempt() bool {
	return r.Limit <= 0
}

func (r Rule) burst() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return r.Limit
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	return matchPattern(r.Pattern, path)
}

func matchPattern(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range want {
		if seg == "**" && i == len(want)-1 {
			return len(got) >= i
		}
		if i >= len(got) {
			return false
		}
		if seg != "*" && seg != got[i] {
			return false
		}
	}
	return len(got) == len(want)
}

// Match returns the first rule matching the request, or nil.
func Match(rules []Rule, method, path string) *Rule {
	for i := range rules {
		if rules[i].matches(method, path) {
			return &rules[i]
		}
	}
	return nil
}

// DefaultRules returns the server's route limits. Job starts and resumes run the
// full pipeline and are the most expensive; event streams are long-lived and exempt.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "health", Method: "GET", Pattern: "/health"},
		{Name: "events", Method: "GET", Pattern: "/sessions/*/events"},

		{Name: "start", Method: "POST", Pattern: "/jobs", Limit: 10, Window: time.Hour, Burst: 2},
		{Name: "resume", Method: "POST", Pattern: "/sessions/*/resume", Limit: 10, Window: time.Hour, Burst: 2},

		{Name: "job-actions", Method: "POST", Pattern: "/jobs/**", Limit: 100, Window: time.Minute, Burst: 10},
		{Name: "approvals", Method: "GET", Pattern: "/approvals/*", Limit: 30, Window: time.Minute, Burst: 10},
		{Name: "telegram", Method: "POST", Pattern: "/telegram/webhook", Limit: 300, Window: time.Minute, Burst: 30},
	}
}
