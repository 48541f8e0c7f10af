// Package simd holds the hand-tuned inner kernels: in-place activation
// primitives and the fixed-width fused cell update used on the hot path.
package simd

import (
	"fmt"
	"math"
)

// Sigmoid inputs are clamped to this range before exponentiation, so the
// function saturates instead of overflowing. Tanh inherits the clamp
// through its sigmoid formulation.
const (
	sigmoidMin = -40.0
	sigmoidMax = 13.0
)

// Activation applies a nonlinearity to v in place.
type Activation func(v []float64)

// VecSigmoid applies the clamped logistic function in place.
func VecSigmoid(v []float64) {
	for i, x := range v {
		if x < sigmoidMin {
			x = sigmoidMin
		} else if x > sigmoidMax {
			x = sigmoidMax
		}
		v[i] = 1.0 / (1.0 + math.Exp(-x))
	}
}

// VecTanh applies tanh in place, computed as 2*sigmoid(2x)-1 so that it
// saturates at the same thresholds as the sigmoid kernel.
func VecTanh(v []float64) {
	for i, x := range v {
		x *= 2
		if x < sigmoidMin {
			x = sigmoidMin
		} else if x > sigmoidMax {
			x = sigmoidMax
		}
		s := 1.0 / (1.0 + math.Exp(-x))
		v[i] = 2.0*s - 1.0
	}
}

// VecRelu applies max(x, 0) in place.
func VecRelu(v []float64) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

// VecIdentity leaves v unchanged.
func VecIdentity(v []float64) {}

// ActivationFor resolves an activation by name. Valid names are
// "sigmoid", "tanh", "relu" and "identity".
func ActivationFor(name string) (Activation, error) {
	switch name {
	case "sigmoid":
		return VecSigmoid, nil
	case "tanh":
		return VecTanh, nil
	case "relu":
		return VecRelu, nil
	case "identity":
		return VecIdentity, nil
	default:
		return nil, fmt.Errorf("simd: unknown activation %q", name)
	}
}
