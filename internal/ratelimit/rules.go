package ratelimit

import (
	"fmt"
	"time"

	"github.com/Proton-105/gifpick-bot/pkg/config"
)

// Rules are the parsed rate_limit settings.
type Rules struct {
	// PerUser applies to every update of a user.
	PerUser Rule
	// Search applies to new searches, which each cost an upstream call.
	Search Rule

	exempt map[int64]struct{}
}

// NewRules parses cfg, rejecting rules without a positive window.
func NewRules(cfg config.RateLimitConfig) (*Rules, error) {
	perUser, err := parseRule("per_user", cfg.PerUser)
	if err != nil {
		return nil, err
	}
	search, err := parseRule("searches", cfg.Searches)
	if err != nil {
		return nil, err
	}

	exempt := make(map[int64]struct{}, len(cfg.Whitelist))
	for _, id := range cfg.Whitelist {
		exempt[id] = struct{}{}
	}

	return &Rules{PerUser: perUser, Search: search, exempt: exempt}, nil
}

// Exempt reports whether userID is whitelisted.
func (r *Rules) Exempt(userID int64) bool {
	_, ok := r.exempt[userID]
	return ok
}

func parseRule(name string, rule config.RateLimitRule) (Rule, error) {
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return Rule{}, fmt.Errorf("rate_limit.%s.window: %w", name, err)
	}
	if window <= 0 {
		return Rule{}, fmt.Errorf("rate_limit.%s.window must be positive, got %s", name, rule.Window)
	}
	if rule.Limit < 1 {
		return Rule{}, fmt.Errorf("rate_limit.%s.limit must be at least 1, got %d", name, rule.Limit)
	}

	return Rule{Limit: rule.Limit, Window: window}, nil
}
