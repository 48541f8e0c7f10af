package client

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-recurve/internal/sequence"
)

// StateRecordBuilder creates Arrow record batches from forward-pass
// results. Rows carry a sequence id plus fixed-width hidden and cell
// vectors.
type StateRecordBuilder struct {
	mem       memory.Allocator
	hiddenDim int
	schema    *arrow.Schema
}

// NewStateRecordBuilder creates a builder for the given hidden width.
func NewStateRecordBuilder(mem memory.Allocator, hiddenDim int) *StateRecordBuilder {
	schema := arrow.NewSchema(
		[]arrow.Field{
			{Name: "sequence", Type: arrow.PrimitiveTypes.Int32},
			{Name: "hidden", Type: arrow.FixedSizeListOf(int32(hiddenDim), arrow.PrimitiveTypes.Float64)},
			{Name: "cell", Type: arrow.FixedSizeListOf(int32(hiddenDim), arrow.PrimitiveTypes.Float64)},
		},
		nil,
	)
	return &StateRecordBuilder{mem: mem, hiddenDim: hiddenDim, schema: schema}
}

// Schema returns the record schema.
func (b *StateRecordBuilder) Schema() *arrow.Schema { return b.schema }

// BuildFinalStates emits one row per sequence holding its state after the
// whole sequence has been consumed: the last row in forward runs, the
// first in reverse runs.
func (b *StateRecordBuilder) BuildFinalStates(layout *sequence.Layout, hidden, cell []float64, reverse bool) (arrow.RecordBatch, error) {
	if layout == nil || layout.Seqs() == 0 {
		return nil, nil
	}
	d := b.hiddenDim
	rows := make([]int, layout.Seqs())
	for i := range rows {
		if reverse {
			rows[i] = layout.Start(i)
		} else {
			rows[i] = layout.Start(i) + layout.Len(i) - 1
		}
	}
	ids := make([]int32, len(rows))
	for i := range ids {
		ids[i] = int32(i)
	}
	return b.build(ids, rows, hidden, cell, d)
}

// BuildRows emits one row per timestep in original row order, tagged with
// the owning sequence id.
func (b *StateRecordBuilder) BuildRows(layout *sequence.Layout, hidden, cell []float64) (arrow.RecordBatch, error) {
	if layout == nil || layout.Seqs() == 0 {
		return nil, nil
	}
	d := b.hiddenDim
	rows := make([]int, layout.Total())
	ids := make([]int32, layout.Total())
	for bid := 0; bid < layout.Seqs(); bid++ {
		for j := 0; j < layout.Len(bid); j++ {
			r := layout.Start(bid) + j
			rows[r] = r
			ids[r] = int32(bid)
		}
	}
	return b.build(ids, rows, hidden, cell, d)
}

func (b *StateRecordBuilder) build(ids []int32, rows []int, hidden, cell []float64, d int) (arrow.RecordBatch, error) {
	idBuilder := array.NewInt32Builder(b.mem)
	defer idBuilder.Release()
	idBuilder.AppendValues(ids, nil)

	hiddenBuilder := array.NewFixedSizeListBuilder(b.mem, int32(d), arrow.PrimitiveTypes.Float64)
	defer hiddenBuilder.Release()
	hiddenValues := hiddenBuilder.ValueBuilder().(*array.Float64Builder)

	cellBuilder := array.NewFixedSizeListBuilder(b.mem, int32(d), arrow.PrimitiveTypes.Float64)
	defer cellBuilder.Release()
	cellValues := cellBuilder.ValueBuilder().(*array.Float64Builder)

	for _, r := range rows {
		hiddenBuilder.Append(true)
		hiddenValues.AppendValues(hidden[r*d:(r+1)*d], nil)
		cellBuilder.Append(true)
		cellValues.AppendValues(cell[r*d:(r+1)*d], nil)
	}

	cols := []arrow.Array{idBuilder.NewArray(), hiddenBuilder.NewArray(), cellBuilder.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	return array.NewRecordBatch(b.schema, cols, int64(len(rows))), nil
}
