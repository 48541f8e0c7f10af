package simd

import (
	"math"
	"testing"
)

func TestVecSigmoid(t *testing.T) {
	v := []float64{-2, -0.5, 0, 0.5, 2}
	want := make([]float64, len(v))
	for i, x := range v {
		want[i] = 1.0 / (1.0 + math.Exp(-x))
	}

	VecSigmoid(v)

	for i := range v {
		if math.Abs(v[i]-want[i]) > 1e-15 {
			t.Errorf("VecSigmoid(%d) = %v, want %v", i, v[i], want[i])
		}
	}
}

func TestVecSigmoidClamps(t *testing.T) {
	v := []float64{-100, 100}
	VecSigmoid(v)

	lo := 1.0 / (1.0 + math.Exp(40.0))
	hi := 1.0 / (1.0 + math.Exp(-13.0))
	if v[0] != lo {
		t.Errorf("VecSigmoid(-100) = %v, want clamped %v", v[0], lo)
	}
	if v[1] != hi {
		t.Errorf("VecSigmoid(100) = %v, want clamped %v", v[1], hi)
	}
}

func TestVecTanh(t *testing.T) {
	v := []float64{-3, -1, -0.25, 0, 0.25, 1, 3}
	want := make([]float64, len(v))
	for i, x := range v {
		want[i] = math.Tanh(x)
	}

	VecTanh(v)

	for i := range v {
		if math.Abs(v[i]-want[i]) > 1e-12 {
			t.Errorf("VecTanh(%d) = %v, want %v", i, v[i], want[i])
		}
	}
}

func TestVecTanhSaturates(t *testing.T) {
	// Beyond the sigmoid clamp the kernel holds its saturation value
	// instead of tracking math.Tanh exactly.
	v := []float64{10}
	VecTanh(v)

	want := 2.0*(1.0/(1.0+math.Exp(-13.0))) - 1.0
	if v[0] != want {
		t.Errorf("VecTanh(10) = %v, want %v", v[0], want)
	}
}

func TestVecRelu(t *testing.T) {
	v := []float64{-2, -0.0001, 0, 0.0001, 2}
	want := []float64{0, 0, 0, 0.0001, 2}

	VecRelu(v)

	for i := range v {
		if v[i] != want[i] {
			t.Errorf("VecRelu(%d) = %v, want %v", i, v[i], want[i])
		}
	}
}

func TestVecIdentity(t *testing.T) {
	v := []float64{-1, 0, 1}
	VecIdentity(v)

	want := []float64{-1, 0, 1}
	for i := range v {
		if v[i] != want[i] {
			t.Errorf("VecIdentity(%d) = %v, want %v", i, v[i], want[i])
		}
	}
}

func TestActivationFor(t *testing.T) {
	for _, name := range []string{"sigmoid", "tanh", "relu", "identity"} {
		fn, err := ActivationFor(name)
		if err != nil {
			t.Errorf("ActivationFor(%q) returned error: %v", name, err)
		}
		if fn == nil {
			t.Errorf("ActivationFor(%q) returned nil", name)
		}
	}

	if _, err := ActivationFor("softmax"); err == nil {
		t.Error("ActivationFor(softmax) should fail")
	}
	if _, err := ActivationFor(""); err == nil {
		t.Error("ActivationFor(\"\") should fail")
	}
}

func TestSetVectorCapability(t *testing.T) {
	prev := SetVectorCapability(true)
	defer SetVectorCapability(prev)

	if !VectorCapability() {
		t.Error("VectorCapability() = false after SetVectorCapability(true)")
	}
	if was := SetVectorCapability(false); !was {
		t.Error("SetVectorCapability should report the previous value")
	}
	if VectorCapability() {
		t.Error("VectorCapability() = true after SetVectorCapability(false)")
	}
}

func BenchmarkVecSigmoid(b *testing.B) {
	v := make([]float64, 128)
	for i := range v {
		v[i] = float64(i%7) - 3
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VecSigmoid(v)
	}
}

func BenchmarkVecTanh(b *testing.B) {
	v := make([]float64, 128)
	for i := range v {
		v[i] = float64(i%7) - 3
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VecTanh(v)
	}
}
