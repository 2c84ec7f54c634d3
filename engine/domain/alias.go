package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// AliasMap resolves scraped dealership name variants to one canonical name.
// Lookup is case-insensitive; unmapped names resolve to themselves.
type AliasMap struct {
	byVariant map[string]string // lowercased variant -> canonical
}

// NewAliasMap builds an AliasMap from canonical name -> spelling variants.
// Every canonical name is also registered as a variant of itself. A variant
// claimed by two canonicals returns ErrAmbiguousAlias; that is a
// configuration error, fatal at startup, never a per-VIN condition.
func NewAliasMap(entries map[string][]string) (*AliasMap, error) {
	m := &AliasMap{byVariant: make(map[string]string)}
	for canonical, variants := range entries {
		for _, v := range append([]string{canonical}, variants...) {
			key := strings.ToLower(strings.TrimSpace(v))
			if key == "" {
				continue
			}
			if prev, ok := m.byVariant[key]; ok && prev != canonical {
				return nil, fmt.Errorf("%w: %q maps to both %q and %q",
					ErrAmbiguousAlias, v, prev, canonical)
			}
			m.byVariant[key] = canonical
		}
	}
	return m, nil
}

// Resolve returns the canonical name for a dealership, or the input itself
// when unmapped.
func (m *AliasMap) Resolve(name string) string {
	if m == nil {
		return name
	}
	if canonical, ok := m.byVariant[strings.ToLower(strings.TrimSpace(name))]; ok {
		return canonical
	}
	return name
}

// Canonicals returns the sorted canonical dealership names.
func (m *AliasMap) Canonicals() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, canonical := range m.byVariant {
		if !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	sort.Strings(out)
	return out
}

// LoadAliasesFile reads a canonical -> variants JSON file into an AliasMap.
func LoadAliasesFile(path string) (*AliasMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries map[string][]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("aliases %s: %w", path, err)
	}
	return NewAliasMap(entries)
}

// SameDealership reports whether a recorded dealership name refers to the
// currently observed one, matching on both the raw and canonical forms.
func (m *AliasMap) SameDealership(recorded, current string) bool {
	if strings.EqualFold(strings.TrimSpace(recorded), strings.TrimSpace(current)) {
		return true
	}
	return strings.EqualFold(m.Resolve(recorded), m.Resolve(current))
}
