package domain

import (
	"time"
)

// RateLimitRule caps how many requests a single client IP may make in
// one scope per fixed window.
type RateLimitRule struct {
	Scope  string
	Limit  int
	Window time.Duration
}

const (
	RateLimitScopeLogin = "login"
)

// Key is the counter key for one client within the rule's scope.
func (r RateLimitRule) Key(clientIP string) string {
	return r.Scope + ":" + clientIP
}
