package palette

import (
	"strings"
	"time"

	"cruscotto/internal/cache"
)

// Memo caches Derive results by base color and ordered subcategory list.
// Entries live for a day; Derive is a pure function so staleness is not a
// concern and the bound only limits memory.
type Memo struct {
	entries *cache.ResponseCache[map[string]string]
}

const memoTTL = 24 * time.Hour

// NewMemo creates a memo holding at most maxEntries palettes.
func NewMemo(maxEntries int) *Memo {
	return &Memo{
		entries: cache.NewResponseCache[map[string]string](
			cache.WithDefaultTTL(memoTTL),
			cache.WithMaxEntries(maxEntries),
		),
	}
}

// Derive returns the memoized palette, computing it on first use. The
// returned map is a copy and may be modified by the caller.
func (m *Memo) Derive(subcategories []string, base string) (map[string]string, error) {
	key := memoKey(subcategories, base)
	if colors, ok := m.entries.Get(key); ok {
		return copyMap(colors), nil
	}
	colors, err := Derive(subcategories, base)
	if err != nil {
		return nil, err
	}
	m.entries.Set(key, colors, 0)
	return copyMap(colors), nil
}

// Cache exposes the backing cache so it can be registered for sweeping.
func (m *Memo) Cache() *cache.ResponseCache[map[string]string] {
	return m.entries
}

func memoKey(subcategories []string, base string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(base)))
	for _, s := range subcategories {
		// Unit separator keeps ["a,b"] and ["a","b"] distinct.
		b.WriteByte(0x1f)
		b.WriteString(s)
	}
	return b.String()
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
