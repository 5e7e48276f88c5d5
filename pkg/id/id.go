package id

import (
	"strconv"
	"sync/atomic"
)

// Generator produces monotonically increasing string identifiers of the form
// "<prefix>-<n>". The zero counter is never issued; the first call returns
// "<prefix>-1". Safe for concurrent use.
type Generator struct {
	prefix string
	n      atomic.Uint64
}

// NewGenerator creates a Generator with the given prefix.
func NewGenerator(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// Next returns a new identifier.
func (g *Generator) Next() string {
	n := g.n.Add(1)
	return g.prefix + "-" + strconv.FormatUint(n, 10)
}

// Last returns the most recently issued counter value, 0 if none yet.
func (g *Generator) Last() uint64 { return g.n.Load() }
