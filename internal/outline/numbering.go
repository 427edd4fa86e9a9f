package outline

import (
	"strconv"
	"strings"
)

// Numberer keeps one counter per level and hands out dotted number paths.
type Numberer struct {
	counters []int
	depth    int // number of levels currently open
}

func NewNumberer(maxDepth int) *Numberer {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Numberer{counters: make([]int, maxDepth)}
}

// Assign numbers a heading at the requested level. A level deeper than one
// below the currently open depth is pulled up to that depth, so no ancestor
// is ever missing; adjusted reports when that happened.
func (n *Numberer) Assign(level int) (effective int, path string, adjusted bool) {
	if level < 0 {
		level = 0
	}
	if level >= len(n.counters) {
		level = len(n.counters) - 1
		adjusted = true
	}
	if level > n.depth {
		level = n.depth
		adjusted = true
	}

	n.counters[level]++
	for i := level + 1; i < len(n.counters); i++ {
		n.counters[i] = 0
	}
	n.depth = level + 1

	parts := make([]string, level+1)
	for i := range parts {
		parts[i] = strconv.Itoa(n.counters[i])
	}
	return level, strings.Join(parts, "."), adjusted
}

// Reset clears all counters.
func (n *Numberer) Reset() {
	clear(n.counters)
	n.depth = 0
}
