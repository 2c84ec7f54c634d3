package domain

import (
	"errors"
	"testing"
)

func testAliases(t *testing.T) *AliasMap {
	t.Helper()
	m, err := NewAliasMap(map[string][]string{
		"Dave Sinclair Lincoln South": {"Dave Sinclair Lincoln", "davesinclairlincolnsouth"},
		"Columbia Honda":              {"Honda of Columbia"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestAliasMap_Resolve(t *testing.T) {
	m := testAliases(t)
	cases := []struct{ in, want string }{
		{"Dave Sinclair Lincoln", "Dave Sinclair Lincoln South"},
		{"dave sinclair lincoln", "Dave Sinclair Lincoln South"},
		{"Columbia Honda", "Columbia Honda"},
		{"HONDA OF COLUMBIA", "Columbia Honda"},
		{"BMW of West St. Louis", "BMW of West St. Louis"}, // unmapped -> identity
	}
	for _, c := range cases {
		if got := m.Resolve(c.in); got != c.want {
			t.Errorf("Resolve(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAliasMap_Ambiguous(t *testing.T) {
	_, err := NewAliasMap(map[string][]string{
		"Columbia Honda":  {"Honda of Columbia"},
		"Columbia Honda 2": {"honda of columbia"},
	})
	if !errors.Is(err, ErrAmbiguousAlias) {
		t.Fatalf("expected ErrAmbiguousAlias, got %v", err)
	}
}

func TestAliasMap_SameDealership(t *testing.T) {
	m := testAliases(t)
	if !m.SameDealership("Honda of Columbia", "Columbia Honda") {
		t.Error("variant should match canonical")
	}
	if !m.SameDealership("columbia honda", "Columbia Honda") {
		t.Error("raw case-insensitive match should hold")
	}
	if m.SameDealership("BMW of West St. Louis", "Columbia Honda") {
		t.Error("distinct dealerships should not match")
	}
}

func TestAliasMap_NilIdentity(t *testing.T) {
	var m *AliasMap
	if got := m.Resolve("Columbia Honda"); got != "Columbia Honda" {
		t.Errorf("nil map Resolve = %q", got)
	}
}
