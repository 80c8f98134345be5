package nn

import (
	"math"
	"testing"
)

// smoothTestModel builds a small model of differentiable ops with fixed
// weights so finite differences agree with the backward pass.
func smoothTestModel() *Sequential {
	d1 := InitDenseLayer(4, 3)
	d1.Weights = []float64{
		0.1, -0.2, 0.3, 0.4,
		-0.5, 0.6, 0.7, -0.8,
		0.9, 0.1, -0.2, 0.3,
	}
	d1.Bias = []float64{0.01, -0.02, 0.03}

	d2 := InitDenseLayer(3, 2)
	d2.Weights = []float64{
		0.5, -0.4, 0.3,
		-0.2, 0.1, 0.6,
	}
	d2.Bias = []float64{0.1, -0.1}

	return NewSequential(
		InitFlattenLayer(),
		d1,
		InitActivationLayer(ActivationTanh),
		d2,
	)
}

// TestSequentialForwardShapes verifies a conv-pool-dense pipeline
func TestSequentialForwardShapes(t *testing.T) {
	model := NewSequential(
		InitConv1DLayer(4, 8, 3, 1, 1),
		InitActivationLayer(ActivationReLU),
		InitMaxPool1DLayer(2, 2),
		InitFlattenLayer(),
		InitDenseLayer(8*5, 2),
	)

	x := NewTensor(3, 4, 10)
	for i := range x.Data {
		x.Data[i] = float64(i%7) * 0.1
	}

	y, err := model.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if y.Shape[0] != 3 || y.Shape[1] != 2 {
		t.Errorf("Expected output shape [3, 2], got %v", y.Shape)
	}
}

// TestSequentialBackwardNumerical compares the backward pass against
// central finite differences on a smooth model
func TestSequentialBackwardNumerical(t *testing.T) {
	model := smoothTestModel()

	x := NewTensorFromSlice([]float64{0.2, -0.4, 0.6, 0.8}, 1, 2, 2)
	y, err := model.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if y.Shape[1] != 2 {
		t.Fatalf("Expected 2 outputs, got %v", y.Shape)
	}

	seed := NewTensor(1, 2)
	seed.Data[0] = 1
	grad, err := model.Backward(seed)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if !SameShape(grad, x) {
		t.Fatalf("Gradient shape %v does not match input %v", grad.Shape, x.Shape)
	}

	h := 1e-6
	for i := range x.Data {
		xp := x.Clone()
		xp.Data[i] += h
		yp, err := model.Forward(xp)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		up := yp.Data[0]

		xm := x.Clone()
		xm.Data[i] -= h
		ym, err := model.Forward(xm)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		um := ym.Data[0]

		numeric := (up - um) / (2 * h)
		if math.Abs(numeric-grad.Data[i]) > 1e-6 {
			t.Errorf("grad[%d]: backward %v, finite difference %v", i, grad.Data[i], numeric)
		}
	}
}

// TestSequentialGradHook verifies hook replacement and cached activations
func TestSequentialGradHook(t *testing.T) {
	model := smoothTestModel()
	act := model.Layers()[2]

	x := NewTensorFromSlice([]float64{0.2, -0.4, 0.6, 0.8}, 1, 2, 2)
	if _, err := model.Forward(x); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	seed := NewTensor(1, 2)
	seed.Data[0] = 1
	plain, err := model.Backward(seed)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	var sawIn, sawOut *Tensor
	act.SetGradHook(func(l *Layer, in, out, gradIn, gradOut *Tensor) (*Tensor, error) {
		sawIn, sawOut = in, out
		doubled := gradIn.Clone()
		for i := range doubled.Data {
			doubled.Data[i] *= 2
		}
		return doubled, nil
	})
	defer act.SetGradHook(nil)

	if _, err := model.Forward(x); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	hooked, err := model.Backward(seed)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	for i := range plain.Data {
		if math.Abs(hooked.Data[i]-2*plain.Data[i]) > 1e-12 {
			t.Errorf("Hooked grad[%d]: expected %v, got %v", i, 2*plain.Data[i], hooked.Data[i])
		}
	}

	// The hook must see the activation layer's own forward tensors
	if sawIn == nil || sawOut == nil {
		t.Fatal("Hook was never called")
	}
	for i := range sawIn.Data {
		if math.Abs(math.Tanh(sawIn.Data[i])-sawOut.Data[i]) > 1e-12 {
			t.Errorf("Cached out[%d] is not tanh of cached in: %v vs %v", i, sawOut.Data[i], math.Tanh(sawIn.Data[i]))
		}
	}
}

// TestSequentialErrors verifies contract violations fail fast
func TestSequentialErrors(t *testing.T) {
	model := smoothTestModel()

	seed := NewTensor(1, 2)
	if _, err := model.Backward(seed); err == nil {
		t.Error("Backward before Forward should fail")
	}

	x := NewTensorFromSlice([]float64{0.2, -0.4, 0.6, 0.8}, 1, 2, 2)
	if _, err := model.Forward(x, NewTensor(1)); err == nil {
		t.Error("Forward with extra args should fail")
	}

	if _, err := model.Forward(x); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	badSeed := NewTensor(2, 2)
	if _, err := model.Backward(badSeed); err == nil {
		t.Error("Backward with mismatched seed shape should fail")
	}
}

// TestSequentialSummary verifies the layer listing
func TestSequentialSummary(t *testing.T) {
	model := NewSequential(
		InitConv1DLayer(4, 8, 3, 1, 1),
		InitMaxPool1DLayer(2, 2),
	)
	s := model.Summary()
	if s == "" {
		t.Error("Summary should not be empty")
	}
}
