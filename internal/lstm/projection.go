package lstm

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
)

// projectInput computes dst = x * wx and adds the gate bias row to every
// output row. x holds rows of width m, wx is m x d4, dst holds rows of
// width d4. Rows may be the whole batch or any packed subrange.
func projectInput(dst, x, wx, bias []float64, rows, m, d4 int) {
	blas64.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas64.General{Rows: rows, Cols: m, Stride: m, Data: x},
		blas64.General{Rows: m, Cols: d4, Stride: d4, Data: wx},
		0,
		blas64.General{Rows: rows, Cols: d4, Stride: d4, Data: dst},
	)
	for r := 0; r < rows; r++ {
		floats.Add(dst[r*d4:(r+1)*d4], bias)
	}
}

// addRecurrent accumulates prevH * wh into the gate rows, leaving the
// projected input contribution in place: gates += prevH * wh. prevH holds
// rows of width d, wh is d x d4.
func addRecurrent(gates, prevH, wh []float64, rows, d, d4 int) {
	blas64.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas64.General{Rows: rows, Cols: d, Stride: d, Data: prevH},
		blas64.General{Rows: d, Cols: d4, Stride: d4, Data: wh},
		1,
		blas64.General{Rows: rows, Cols: d4, Stride: d4, Data: gates},
	)
}
