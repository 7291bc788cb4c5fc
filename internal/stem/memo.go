// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stem

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memo caches stem results behind a bounded LRU. One query scores hundreds
// of documents whose vocabularies overlap heavily, so repeat words turn
// into map hits instead of re-running the suffix steps. Safe for
// concurrent use.
type Memo struct {
	cache *lru.Cache[string, string]
}

// NewMemo returns a memo bounded to size entries.
func NewMemo(size int) (*Memo, error) {
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating stem cache: %w", err)
	}
	return &Memo{cache: c}, nil
}

// Stem returns the cached stem for word, computing and caching it on a miss.
func (m *Memo) Stem(word string) string {
	if s, ok := m.cache.Get(word); ok {
		return s
	}
	s := Stem(word)
	m.cache.Add(word, s)
	return s
}

// Len reports the number of cached entries.
func (m *Memo) Len() int {
	return m.cache.Len()
}
