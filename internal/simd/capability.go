package simd

import (
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
)

var vectorCapable atomic.Bool

func init() {
	vectorCapable.Store(cpuid.CPU.Supports(cpuid.AVX))
}

// VectorCapability reports whether the fused fixed-width kernels are
// enabled. It defaults to the host's AVX support at startup.
func VectorCapability() bool {
	return vectorCapable.Load()
}

// SetVectorCapability overrides the capability flag and returns the
// previous value. Useful for forcing the generic path in tests and
// benchmarks.
func SetVectorCapability(on bool) bool {
	return vectorCapable.Swap(on)
}
