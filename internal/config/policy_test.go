package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"finassist/internal/core"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestLoadPolicyDefaults(t *testing.T) {
	p, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := core.DefaultPolicy()
	if !p.NearLimitRatio.Equal(def.NearLimitRatio) || p.HistoryWindow != def.HistoryWindow {
		t.Fatalf("expected defaults, got %+v", p)
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	path := writePolicy(t, `
[budget]
near_limit_ratio = 0.25

[advisor]
recent_window = 5
`)
	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !p.NearLimitRatio.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("near limit ratio = %s, want 0.25", p.NearLimitRatio)
	}
	if p.RecentWindow != 5 {
		t.Errorf("recent window = %d, want 5", p.RecentWindow)
	}
	def := core.DefaultPolicy()
	if !p.AnomalyMultiplier.Equal(def.AnomalyMultiplier) || p.HistoryWindow != def.HistoryWindow {
		t.Errorf("keys not in the file should keep defaults, got %+v", p)
	}
}

func TestLoadPolicyErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "unknown key", content: "[budget]\nnear_limit = 0.3\n", want: "unknown keys budget.near_limit"},
		{name: "out of range", content: "[budget]\nnear_limit_ratio = 1.5\n", want: "near limit ratio"},
		{name: "recent above history", content: "[advisor]\nhistory_window = 5\nrecent_window = 10\n", want: "recent window"},
		{name: "malformed", content: "[budget\n", want: "parsing policy file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if _, err := LoadPolicy("/non/existent/policy.toml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
