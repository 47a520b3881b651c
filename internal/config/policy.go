package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"finassist/internal/core"
)

// policyFile mirrors the TOML layout of a policy override file:
//
//	[budget]
//	near_limit_ratio = 0.2
//
//	[analytics]
//	anomaly_multiplier = 2
//
//	[advisor]
//	history_window = 100
//	recent_window = 10
type policyFile struct {
	Budget struct {
		NearLimitRatio decimal.Decimal `toml:"near_limit_ratio"`
	} `toml:"budget"`
	Analytics struct {
		AnomalyMultiplier decimal.Decimal `toml:"anomaly_multiplier"`
	} `toml:"analytics"`
	Advisor struct {
		HistoryWindow int `toml:"history_window"`
		RecentWindow  int `toml:"recent_window"`
	} `toml:"advisor"`
}

// LoadPolicy returns core.DefaultPolicy with the keys present in the TOML
// file at path applied on top. An empty path returns the defaults. Unknown
// keys are an error.
func LoadPolicy(path string) (core.Policy, error) {
	policy := core.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	var f policyFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return policy, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return policy, fmt.Errorf("policy file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	if md.IsDefined("budget", "near_limit_ratio") {
		policy.NearLimitRatio = f.Budget.NearLimitRatio
	}
	if md.IsDefined("analytics", "anomaly_multiplier") {
		policy.AnomalyMultiplier = f.Analytics.AnomalyMultiplier
	}
	if md.IsDefined("advisor", "history_window") {
		policy.HistoryWindow = f.Advisor.HistoryWindow
	}
	if md.IsDefined("advisor", "recent_window") {
		policy.RecentWindow = f.Advisor.RecentWindow
	}

	if err := policy.Validate(); err != nil {
		return policy, fmt.Errorf("policy file %s: %w", path, err)
	}
	return policy, nil
}
