package validation

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	rules := CategoryRules()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "database", false},
		{"with hyphen", "wait-events", false},
		{"with underscore", "pg_locks", false},
		{"numbers", "db2", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"leading hyphen", "-x", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"control char", "a\x00b", true},
		{"with dot", "database.xact", true},
		{"space", "idle sessions", true},
		{"non-ascii", "wärte", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input, rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNameWithDots(t *testing.T) {
	rules := NameRules{MinLength: 1, MaxLength: 16, AllowDots: true}
	if err := ValidateName("a.b.c", rules); err != nil {
		t.Errorf("ValidateName: %v", err)
	}
	if err := ValidateName("a_b", rules); err == nil {
		t.Error("underscore accepted without AllowUnders")
	}
}

func TestValidatePrefix(t *testing.T) {
	for _, ok := range []string{"pas", "db1-prod", "pas_archive"} {
		if err := ValidatePrefix(ok); err != nil {
			t.Errorf("ValidatePrefix(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "../x", "pas.v1", "a b"} {
		if err := ValidatePrefix(bad); err == nil {
			t.Errorf("ValidatePrefix(%q): expected error", bad)
		} else if !strings.Contains(err.Error(), "prefix") {
			t.Errorf("ValidatePrefix(%q) error %q does not name the prefix", bad, err)
		}
	}
}

func TestValidateCategory(t *testing.T) {
	if err := ValidateCategory("activity"); err != nil {
		t.Errorf("ValidateCategory: %v", err)
	}
	if err := ValidateCategory("a.b"); err == nil {
		t.Error("dotted category accepted")
	}
}

func BenchmarkValidateCategory(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = ValidateCategory("bgwriter_stats")
	}
}
