package domain

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// ProvisionalPrefix marks ids synthesized locally while the provider defers id assignment
const ProvisionalPrefix = "pending-"

// IsProvisionalID reports whether id was synthesized locally
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// StripProvisional removes the provisional prefix, if any
func StripProvisional(id string) string {
	return strings.TrimPrefix(id, ProvisionalPrefix)
}

// IDGenerator produces provisional ids that are strictly increasing
// even when the clock does not advance between calls.
type IDGenerator struct {
	last atomic.Int64
	now  func() time.Time
}

// NewIDGenerator creates a generator backed by the wall clock
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a new provisional id
func (g *IDGenerator) Next() string {
	for {
		prev := g.last.Load()
		next := g.now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if g.last.CompareAndSwap(prev, next) {
			return ProvisionalPrefix + strconv.FormatInt(next, 10)
		}
	}
}
