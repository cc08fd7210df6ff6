// Package validation checks names that end up in archive file names and
// in delta keys.
package validation

import (
	"fmt"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for a kind of name.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// CategoryRules returns the rules for category names. Dots are rejected
// because "category.field" identifies a cumulative metric.
func CategoryRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    64,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// PrefixRules returns the rules for archive file name prefixes.
func PrefixRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    64,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}
	if name[0] == '.' || name[0] == '-' {
		return fmt.Errorf("name cannot start with '%c'", name[0])
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateCategory validates a category name.
func ValidateCategory(name string) error {
	if err := ValidateName(name, CategoryRules()); err != nil {
		return fmt.Errorf("category %q: %w", name, err)
	}
	return nil
}

// ValidatePrefix validates an archive file name prefix.
func ValidatePrefix(prefix string) error {
	if err := ValidateName(prefix, PrefixRules()); err != nil {
		return fmt.Errorf("prefix %q: %w", prefix, err)
	}
	return nil
}
