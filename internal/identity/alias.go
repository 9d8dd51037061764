package identity

import (
	"sort"
	"strings"
)

// AliasTable maps a voice (or extracted) nickname to an authoritative game
// nickname. Keys are compared case-insensitively.
type AliasTable struct {
	m map[string]string
}

// NewAliasTable copies the given mappings. Blank keys or values are dropped.
// Keys that collide after lowercasing keep the value of the greatest original
// key, so the outcome does not depend on map iteration order.
func NewAliasTable(mappings map[string]string) *AliasTable {
	keys := make([]string, 0, len(mappings))
	for k := range mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := &AliasTable{m: make(map[string]string, len(mappings))}
	for _, k := range keys {
		key := strings.ToLower(strings.TrimSpace(k))
		val := strings.TrimSpace(mappings[k])
		if key == "" || val == "" {
			continue
		}
		t.m[key] = val
	}
	return t
}

// Lookup returns the aliased nickname for key.
func (t *AliasTable) Lookup(key string) (string, bool) {
	if t == nil || len(t.m) == 0 {
		return "", false
	}
	v, ok := t.m[strings.ToLower(key)]
	return v, ok
}

func (t *AliasTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.m)
}
