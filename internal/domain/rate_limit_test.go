package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitRuleKey(t *testing.T) {
	rule := RateLimitRule{Scope: RateLimitScopeLogin, Limit: 30, Window: 15 * time.Minute}
	assert.Equal(t, "login:10.0.0.1", rule.Key("10.0.0.1"))
}
