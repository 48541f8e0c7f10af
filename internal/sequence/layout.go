// Package sequence describes ragged mini-batches of variable-length
// sequences and the length-sorted batch schedule used to pack them into
// dense per-timestep blocks.
package sequence

import (
	"fmt"
	"strconv"
	"strings"
)

// Layout describes how a batch of sequences is concatenated into one
// time-major tensor. It stores cumulative row offsets: sequence i owns
// rows [offsets[i], offsets[i+1]). Offsets partition [0, T) exactly.
type Layout struct {
	offsets []int
}

// NewLayout builds a Layout from per-sequence lengths, in original order.
// Every sequence must have at least one timestep.
func NewLayout(lengths []int) (*Layout, error) {
	if len(lengths) == 0 {
		return nil, fmt.Errorf("layout: no sequences")
	}
	offsets := make([]int, len(lengths)+1)
	for i, l := range lengths {
		if l <= 0 {
			return nil, fmt.Errorf("layout: sequence %d has non-positive length %d", i, l)
		}
		offsets[i+1] = offsets[i] + l
	}
	return &Layout{offsets: offsets}, nil
}

// LayoutFromOffsets builds a Layout from cumulative offsets. The slice is
// copied. Offsets must start at zero and be strictly increasing.
func LayoutFromOffsets(offsets []int) (*Layout, error) {
	if len(offsets) < 2 {
		return nil, fmt.Errorf("layout: need at least 2 offsets, got %d", len(offsets))
	}
	if offsets[0] != 0 {
		return nil, fmt.Errorf("layout: offsets must start at 0, got %d", offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			return nil, fmt.Errorf("layout: offsets must be strictly increasing, got %d after %d at index %d",
				offsets[i], offsets[i-1], i)
		}
	}
	cp := make([]int, len(offsets))
	copy(cp, offsets)
	return &Layout{offsets: cp}, nil
}

// Seqs returns the number of sequences N.
func (l *Layout) Seqs() int { return len(l.offsets) - 1 }

// Total returns the total timestep count T across all sequences.
func (l *Layout) Total() int { return l.offsets[len(l.offsets)-1] }

// Start returns the first row of sequence i.
func (l *Layout) Start(i int) int { return l.offsets[i] }

// Len returns the length of sequence i.
func (l *Layout) Len(i int) int { return l.offsets[i+1] - l.offsets[i] }

// MaxLen returns the longest sequence length in the batch.
func (l *Layout) MaxLen() int {
	max := 0
	for i := 0; i < l.Seqs(); i++ {
		if n := l.Len(i); n > max {
			max = n
		}
	}
	return max
}

// Lengths returns the per-sequence lengths in original order.
func (l *Layout) Lengths() []int {
	out := make([]int, l.Seqs())
	for i := range out {
		out[i] = l.Len(i)
	}
	return out
}

// Key returns a compact signature of the layout, usable as a cache key for
// derived schedules. Layouts with equal lengths share a key.
func (l *Layout) Key() string {
	var b strings.Builder
	for i := 0; i < l.Seqs(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(l.Len(i)))
	}
	return b.String()
}
