// Package keyroulette spreads requests across several API keys configured
// as one delimited string.
package keyroulette

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Roulette hands out keys round-robin. Each distinct key string gets its own
// cursor. It is safe for concurrent use.
type Roulette struct {
	cursors sync.Map // string -> *atomic.Uint64
}

func New() *Roulette { return &Roulette{} }

// Split parses keys separated by commas, semicolons or whitespace.
func Split(keys string) []string {
	return strings.FieldsFunc(keys, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
}

// Next returns the next key from the pool described by keys, or "" when
// keys holds none.
func (r *Roulette) Next(keys string) string {
	pool := Split(keys)
	switch len(pool) {
	case 0:
		return ""
	case 1:
		return pool[0]
	}
	v, _ := r.cursors.LoadOrStore(keys, new(atomic.Uint64))
	n := v.(*atomic.Uint64).Add(1) - 1
	return pool[n%uint64(len(pool))]
}
