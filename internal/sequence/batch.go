package sequence

import (
	"sort"
)

// Schedule is the packing plan for one Layout. Sequences are ordered by
// descending length (stable, so equal lengths keep their original order)
// and rows are regrouped by timestep: all step-0 rows first, then all
// step-1 rows, and so on. Because of the descending sort the sequences
// active at any step form a prefix of SeqOrder, so every step block is
// dense and each block is no wider than the previous one.
type Schedule struct {
	// SeqOrder holds original sequence indices sorted by descending length.
	SeqOrder []int

	// StepStarts holds cumulative packed-row offsets per timestep, with
	// len(StepStarts) == maxLen+1. Step s owns packed rows
	// [StepStarts[s], StepStarts[s+1]); the difference is the number of
	// sequences still active at step s.
	StepStarts []int

	// RowIndex maps each packed row to its source row in the original
	// concatenated tensor.
	RowIndex []int

	// Reverse records whether packed step s reads each sequence's
	// (len-1-s)-th row instead of its s-th row.
	Reverse bool
}

// NewSchedule derives the batch schedule for a layout. With reverse set,
// step s of a sequence maps to its (len-1-s)-th original row, so the packed
// walk consumes each sequence from its tail.
func NewSchedule(l *Layout, reverse bool) *Schedule {
	n := l.Seqs()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return l.Len(order[a]) > l.Len(order[b])
	})

	maxLen := l.Len(order[0])
	s := &Schedule{
		SeqOrder:   order,
		StepStarts: make([]int, maxLen+1),
		RowIndex:   make([]int, l.Total()),
		Reverse:    reverse,
	}
	p := 0
	for step := 0; step < maxLen; step++ {
		for _, sid := range order {
			length := l.Len(sid)
			if step >= length {
				// Descending order: every later sequence is done too.
				break
			}
			if reverse {
				s.RowIndex[p] = l.Start(sid) + length - 1 - step
			} else {
				s.RowIndex[p] = l.Start(sid) + step
			}
			p++
		}
		s.StepStarts[step+1] = p
	}
	return s
}

// MaxLen returns the number of timesteps in the schedule.
func (s *Schedule) MaxLen() int { return len(s.StepStarts) - 1 }

// ActiveAt returns how many sequences are still active at step.
func (s *Schedule) ActiveAt(step int) int {
	return s.StepStarts[step+1] - s.StepStarts[step]
}

// Pack gathers rows of src into packed order. Both buffers hold rows of
// the given width; dst must cover len(RowIndex) rows.
func (s *Schedule) Pack(dst, src []float64, width int) {
	for p, r := range s.RowIndex {
		copy(dst[p*width:(p+1)*width], src[r*width:(r+1)*width])
	}
}

// Unpack scatters packed rows back to their original positions. It is the
// exact inverse of Pack over the same schedule.
func (s *Schedule) Unpack(dst, src []float64, width int) {
	for p, r := range s.RowIndex {
		copy(dst[r*width:(r+1)*width], src[p*width:(p+1)*width])
	}
}

// ReorderRows permutes per-sequence rows (one row per sequence, e.g.
// initial hidden state) into SeqOrder, so that row i of dst belongs to the
// sequence in packed slot i.
func (s *Schedule) ReorderRows(dst, src []float64, width int) {
	for slot, sid := range s.SeqOrder {
		copy(dst[slot*width:(slot+1)*width], src[sid*width:(sid+1)*width])
	}
}
