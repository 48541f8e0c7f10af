package lstm

import "sync"

// bufferPool recycles forward-pass buffers across calls. This keeps the
// per-request allocation count flat under sustained load.
type bufferPool struct {
	bufs sync.Pool
}

var pool = &bufferPool{}

// get returns a zeroed slice of length n, reusing pooled capacity when a
// large enough buffer is available.
func (p *bufferPool) get(n int) []float64 {
	if v := p.bufs.Get(); v != nil {
		b := v.([]float64)
		if cap(b) >= n {
			b = b[:n]
			for i := range b {
				b[i] = 0
			}
			return b
		}
	}
	return make([]float64, n)
}

// put returns a buffer to the pool.
func (p *bufferPool) put(b []float64) {
	if b != nil {
		p.bufs.Put(b)
	}
}
