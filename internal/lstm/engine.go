package lstm

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-recurve/internal/cache"
	"github.com/23skdu/longbow-recurve/internal/sequence"
	"github.com/23skdu/longbow-recurve/internal/simd"
)

// Input is one forward request over a ragged batch.
type Input struct {
	// X holds Layout.Total() concatenated input rows of width InputDim.
	X []float64
	// Layout describes how X divides into sequences.
	Layout *sequence.Layout
	// H0 and C0 optionally hold one initial state row per sequence, in
	// original sequence order. Both or neither must be set.
	H0 []float64
	C0 []float64
}

// Output carries the per-row hidden and cell results plus the
// intermediate buffers of the pass. All slices are pool-backed; call
// Release once the results have been consumed to recycle them. Rows of
// Hidden and Cell line up with the input rows regardless of direction or
// driver.
type Output struct {
	Hidden []float64 // Layout.Total() x HiddenDim
	Cell   []float64 // Layout.Total() x HiddenDim

	// Projected holds the input projection (width 4*HiddenDim), except
	// in batched runs with InputDim <= 4*HiddenDim where projection
	// happens after packing and Projected instead holds the packed raw
	// input (width InputDim). ProjectedWidth says which.
	Projected      []float64
	ProjectedWidth int

	// Batched-driver intermediates in packed row order, nil for
	// sequential runs.
	BatchedInput  []float64
	BatchedHidden []float64
	BatchedCell   []float64
	ReorderedH0   []float64
	ReorderedC0   []float64

	// Schedule is the packing plan used, nil for sequential runs.
	Schedule *sequence.Schedule
}

// Release returns the output's buffers to the shared pool. The slices
// must not be used afterwards.
func (o *Output) Release() {
	for _, b := range [][]float64{
		o.Hidden, o.Cell, o.Projected,
		o.BatchedInput, o.BatchedHidden, o.BatchedCell,
		o.ReorderedH0, o.ReorderedC0,
	} {
		pool.put(b)
	}
	*o = Output{}
}

// Engine runs fused LSTM forward passes for one weight set. It is safe
// for concurrent use; weights are read-only after New and every pass
// works on its own buffers.
type Engine struct {
	cfg Config
	w   Weights

	actGate simd.Activation
	actCell simd.Activation
	actCand simd.Activation

	// fusedOK records static eligibility for the fixed-width fused
	// kernel; the capability flag is consulted per pass.
	fusedOK bool

	schedules cache.ScheduleCache
}

// New validates the configuration and weights and builds an engine.
func New(cfg Config, w Weights) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := w.validate(cfg); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, w: w, schedules: cache.NewMapCache()}
	e.actGate, _ = simd.ActivationFor(cfg.GateActivation)
	e.actCell, _ = simd.ActivationFor(cfg.CellActivation)
	e.actCand, _ = simd.ActivationFor(cfg.CandidateActivation)
	e.fusedOK = cfg.HiddenDim == simd.FusedDim &&
		!cfg.UsePeepholes &&
		cfg.GateActivation == "sigmoid" &&
		cfg.CellActivation == "tanh" &&
		cfg.CandidateActivation == "tanh"

	log.Debug().
		Int("input_dim", cfg.InputDim).
		Int("hidden_dim", cfg.HiddenDim).
		Bool("peepholes", cfg.UsePeepholes).
		Bool("reverse", cfg.Reverse).
		Bool("use_seq", cfg.UseSeq).
		Bool("fused_eligible", e.fusedOK).
		Msg("engine ready")
	return e, nil
}

// Config returns the engine's resolved configuration.
func (e *Engine) Config() Config { return e.cfg }

// ScheduleCacheSize reports how many distinct batch shapes are cached.
func (e *Engine) ScheduleCacheSize() int { return e.schedules.Size() }

// Forward runs one pass over a ragged batch and returns per-row hidden
// and cell states.
func (e *Engine) Forward(in Input) (*Output, error) {
	start := time.Now()
	if err := e.checkInput(in); err != nil {
		return nil, err
	}

	var out *Output
	mode := "batch"
	if e.cfg.UseSeq {
		mode = "seq"
		out = e.seqForward(in)
	} else {
		out = e.batchForward(in)
	}

	forwardTotal.WithLabelValues(mode).Inc()
	forwardDuration.Observe(time.Since(start).Seconds())
	timestepsProcessed.Add(float64(in.Layout.Total()))
	sequencesProcessed.Add(float64(in.Layout.Seqs()))
	return out, nil
}

func (e *Engine) checkInput(in Input) error {
	if in.Layout == nil {
		return fmt.Errorf("lstm: input has no layout")
	}
	if want := in.Layout.Total() * e.cfg.InputDim; len(in.X) != want {
		return fmt.Errorf("lstm: input has %d values, layout needs %d", len(in.X), want)
	}
	if (in.H0 == nil) != (in.C0 == nil) {
		return fmt.Errorf("lstm: initial hidden and cell state must be given together")
	}
	if in.H0 != nil {
		want := in.Layout.Seqs() * e.cfg.HiddenDim
		if len(in.H0) != want {
			return fmt.Errorf("lstm: initial hidden state has %d values, want %d", len(in.H0), want)
		}
		if len(in.C0) != want {
			return fmt.Errorf("lstm: initial cell state has %d values, want %d", len(in.C0), want)
		}
	}
	return nil
}

// seqForward walks each sequence start to finish, one timestep at a time.
// Sequences are independent, so they fan out across worker goroutines in
// contiguous chunks, each worker with its own stepper scratch.
func (e *Engine) seqForward(in Input) *Output {
	d, d4 := e.cfg.HiddenDim, e.cfg.GateDim()
	total := in.Layout.Total()
	n := in.Layout.Seqs()

	out := &Output{
		Hidden:         pool.get(total * d),
		Cell:           pool.get(total * d),
		Projected:      pool.get(total * d4),
		ProjectedWidth: d4,
	}
	projectInput(out.Projected, in.X, e.w.WX, e.w.Bias[:d4], total, e.cfg.InputDim, d4)

	fused := e.fusedOK && simd.VectorCapability()
	if n == 1 {
		e.runSequence(e.newStepper(fused), out, in, 0)
		return out
	}

	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	seqsPerWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * seqsPerWorker
		end := start + seqsPerWorker
		if start >= n {
			break
		}
		if end > n {
			end = n
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			st := e.newStepper(fused)
			for bid := start; bid < end; bid++ {
				e.runSequence(st, out, in, bid)
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

// runSequence advances sequence bid through all of its timesteps, writing
// hidden and cell rows at their original positions.
func (e *Engine) runSequence(st *stepper, out *Output, in Input, bid int) {
	d, d4 := e.cfg.HiddenDim, e.cfg.GateDim()
	start := in.Layout.Start(bid)
	length := in.Layout.Len(bid)

	row := func(step int) int {
		if e.cfg.Reverse {
			return start + length - 1 - step
		}
		return start + step
	}

	var prevH, prevC []float64
	tstart := 0
	if in.H0 != nil {
		prevH = in.H0[bid*d : (bid+1)*d]
		prevC = in.C0[bid*d : (bid+1)*d]
	} else {
		r := row(0)
		ct := out.Cell[r*d : (r+1)*d]
		ht := out.Hidden[r*d : (r+1)*d]
		st.stepInit(out.Projected[r*d4:(r+1)*d4], ct, ht)
		prevH, prevC = ht, ct
		tstart = 1
	}

	for step := tstart; step < length; step++ {
		r := row(step)
		gates := out.Projected[r*d4 : (r+1)*d4]
		addRecurrent(gates, prevH, e.w.WH, 1, d, d4)
		ct := out.Cell[r*d : (r+1)*d]
		ht := out.Hidden[r*d : (r+1)*d]
		st.step(gates, prevC, ct, ht)
		prevH, prevC = ht, ct
	}
}

// batchForward packs rows by timestep so each step's recurrent projection
// is one dense matrix multiply over every still-active sequence.
func (e *Engine) batchForward(in Input) *Output {
	if in.Layout.Seqs() == 1 {
		// One sequence packs into blocks of one row each; the
		// sequential walk is the same work without the shuffle.
		batchFallbacks.Inc()
		log.Debug().Msg("single sequence batch, using sequential driver")
		return e.seqForward(in)
	}

	m, d, d4 := e.cfg.InputDim, e.cfg.HiddenDim, e.cfg.GateDim()
	total := in.Layout.Total()
	n := in.Layout.Seqs()
	sched := e.scheduleFor(in.Layout)

	out := &Output{
		Hidden:        pool.get(total * d),
		Cell:          pool.get(total * d),
		BatchedInput:  pool.get(total * d4),
		BatchedHidden: pool.get(total * d),
		BatchedCell:   pool.get(total * d),
		Schedule:      sched,
	}

	if m > d4 {
		// Wide input: project in original order, pack the result.
		out.Projected = pool.get(total * d4)
		out.ProjectedWidth = d4
		projectInput(out.Projected, in.X, e.w.WX, e.w.Bias[:d4], total, m, d4)
		sched.Pack(out.BatchedInput, out.Projected, d4)
	} else {
		// Narrow input: pack raw rows first, project the packed block.
		out.Projected = pool.get(total * m)
		out.ProjectedWidth = m
		sched.Pack(out.Projected, in.X, m)
		projectInput(out.BatchedInput, out.Projected, e.w.WX, e.w.Bias[:d4], total, m, d4)
	}

	st := e.newStepper(e.fusedOK && simd.VectorCapability())

	var prevH, prevC []float64
	tstart := 0
	if in.H0 != nil {
		out.ReorderedH0 = pool.get(n * d)
		out.ReorderedC0 = pool.get(n * d)
		sched.ReorderRows(out.ReorderedH0, in.H0, d)
		sched.ReorderRows(out.ReorderedC0, in.C0, d)
		prevH, prevC = out.ReorderedH0, out.ReorderedC0
	} else {
		// Every sequence is active at step zero.
		for i := 0; i < n; i++ {
			st.stepInit(out.BatchedInput[i*d4:(i+1)*d4],
				out.BatchedCell[i*d:(i+1)*d],
				out.BatchedHidden[i*d:(i+1)*d])
		}
		prevH = out.BatchedHidden[:n*d]
		prevC = out.BatchedCell[:n*d]
		tstart = 1
	}

	maxLen := sched.MaxLen()
	for step := tstart; step < maxLen; step++ {
		base := sched.StepStarts[step]
		bs := sched.ActiveAt(step)

		gates := out.BatchedInput[base*d4 : (base+bs)*d4]
		addRecurrent(gates, prevH[:bs*d], e.w.WH, bs, d, d4)
		for i := 0; i < bs; i++ {
			r := base + i
			st.step(out.BatchedInput[r*d4:(r+1)*d4],
				prevC[i*d:(i+1)*d],
				out.BatchedCell[r*d:(r+1)*d],
				out.BatchedHidden[r*d:(r+1)*d])
		}
		prevH = out.BatchedHidden[base*d : (base+bs)*d]
		prevC = out.BatchedCell[base*d : (base+bs)*d]
	}

	sched.Unpack(out.Hidden, out.BatchedHidden, d)
	sched.Unpack(out.Cell, out.BatchedCell, d)
	return out
}

func (e *Engine) scheduleFor(l *sequence.Layout) *sequence.Schedule {
	key := l.Key()
	if e.cfg.Reverse {
		key += ":rev"
	}
	if s, ok := e.schedules.Get(key); ok {
		scheduleCacheHits.Inc()
		return s
	}
	scheduleCacheMisses.Inc()
	s := sequence.NewSchedule(l, e.cfg.Reverse)
	e.schedules.Put(key, s)
	return s
}
