package access

import (
	"sort"
	"strings"
)

const (
	// OverviewPath is reachable by every authenticated identity.
	OverviewPath = "/overview"
	LoginPath    = "/login"
)

// Rule gates every path at or below Prefix behind Key.
type Rule struct {
	Prefix string
	Key    string
}

// Table is an immutable set of rules ordered longest prefix first.
type Table struct {
	rules []Rule
}

func NewTable(rules ...Rule) *Table {
	sorted := make([]Rule, 0, len(rules))
	for _, r := range rules {
		sorted = append(sorted, Rule{Prefix: Normalize(r.Prefix), Key: r.Key})
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Table{rules: sorted}
}

// DefaultTable returns the console's page rules.
func DefaultTable() *Table {
	return NewTable(
		Rule{Prefix: "/dashboard", Key: "/dashboard"},
		Rule{Prefix: "/tickets", Key: "/tickets"},
		Rule{Prefix: "/merchants", Key: "/merchants"},
		Rule{Prefix: "/merchants/outlets", Key: "/merchants/outlets"},
		Rule{Prefix: "/sales", Key: "/sales"},
		Rule{Prefix: "/sales/leads", Key: "/sales/leads"},
		Rule{Prefix: "/sales/renewals", Key: "/renewals"},
		Rule{Prefix: "/renewals", Key: "/renewals"},
		Rule{Prefix: "/knowledge-base", Key: "/knowledge-base"},
		Rule{Prefix: "/settings", Key: "/settings"},
		Rule{Prefix: "/settings/users", Key: "/settings/users"},
	)
}

// Rules returns a copy of the ordered rules.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Normalize strips trailing slashes. The root path stays "/".
func Normalize(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// Resolve returns the key of the most specific rule covering path.
func (t *Table) Resolve(path string) (string, bool) {
	p := Normalize(path)
	for _, r := range t.rules {
		if matchesPrefix(p, r.Prefix) {
			return r.Key, true
		}
	}
	return "", false
}

// ResolveAccessKey resolves path against the rules first and, when none matches,
// against the raw permission keys treated as path prefixes.
func (t *Table) ResolveAccessKey(path string, permissions []string) (string, bool) {
	if key, ok := t.Resolve(path); ok {
		return key, true
	}
	return fallbackKey(Normalize(path), permissions)
}

// HasAccess reports whether an identity holding permissions may view path.
// Super-admin identities are handled by the caller.
func (t *Table) HasAccess(path string, permissions []string) bool {
	p := Normalize(path)
	if IsOverview(p) {
		return true
	}

	if key, ok := t.Resolve(p); ok && contains(permissions, key) {
		return true
	}

	_, ok := fallbackKey(p, permissions)
	return ok
}

// IsOverview reports whether path is the overview page or below it.
func IsOverview(path string) bool {
	return matchesPrefix(Normalize(path), OverviewPath)
}

func matchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, prefix+"/")
}

func fallbackKey(path string, permissions []string) (string, bool) {
	for _, perm := range permissions {
		if perm == "" {
			continue
		}
		if strings.HasPrefix(path, perm) {
			return perm, true
		}
	}
	return "", false
}

func contains(permissions []string, key string) bool {
	for _, p := range permissions {
		if p == key {
			return true
		}
	}
	return false
}
