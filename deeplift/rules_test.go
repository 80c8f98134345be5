package deeplift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/lift/nn"
)

func TestDefaultRulesRegistry(t *testing.T) {
	rules := DefaultRules()

	assert.Contains(t, rules, nn.KindActivation)
	assert.Contains(t, rules, nn.KindSoftmax)
	assert.Contains(t, rules, nn.KindMaxPool1D)

	assert.NotContains(t, rules, nn.KindDense, "linear kinds keep ordinary gradients")
	assert.NotContains(t, rules, nn.KindConv1D, "linear kinds keep ordinary gradients")
	assert.NotContains(t, rules, nn.KindFlatten, "linear kinds keep ordinary gradients")
}

func TestNonlinearReplacesSlope(t *testing.T) {
	l := nn.InitActivationLayer(nn.ActivationReLU)

	// Example half [2, -1, 3] against reference half [1, 1, 1].
	in := nn.NewTensorFromSlice([]float64{2, -1, 3, 1, 1, 1}, 2, 3)
	out := nn.NewTensorFromSlice([]float64{2, 0, 3, 1, 1, 1}, 2, 3)
	gradIn := nn.NewTensorFromSlice([]float64{10, 20, 30, 40, 50, 60}, 2, 3)
	gradOut := nn.NewTensorFromSlice([]float64{1, 1, 1, 1, 1, 1}, 2, 3)

	got, err := Nonlinear(l, in, out, gradIn, gradOut, 1e-10)
	require.NoError(t, err)

	// Slopes are (2-1)/1, (0-1)/-2, (3-1)/2 and apply to both halves.
	want := []float64{1, 0.5, 1, 1, 0.5, 1}
	assert.InDeltaSlice(t, want, got.Data, 1e-12)
}

func TestNonlinearEpsPassthrough(t *testing.T) {
	l := nn.InitActivationLayer(nn.ActivationTanh)

	// The middle pair differs by less than eps, so the ordinary gradient
	// must survive there while the outer pairs are rescaled.
	in := nn.NewTensorFromSlice([]float64{2, 1, 4, 1, 1 + 1e-12, 2}, 2, 3)
	out := nn.NewTensorFromSlice([]float64{4, 3, 8, 2, 3, 4}, 2, 3)
	gradIn := nn.NewTensorFromSlice([]float64{10, 20, 30, 40, 50, 60}, 2, 3)
	gradOut := nn.NewTensorFromSlice([]float64{1, 1, 1, 1, 1, 1}, 2, 3)

	got, err := Nonlinear(l, in, out, gradIn, gradOut, 1e-10)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, got.Data[0], 1e-12)
	assert.Equal(t, 20.0, got.Data[1], "ordinary gradient must pass through below eps")
	assert.InDelta(t, 2.0, got.Data[2], 1e-12)
	assert.InDelta(t, 2.0, got.Data[3], 1e-12)
	assert.Equal(t, 50.0, got.Data[4], "ordinary gradient must pass through below eps")
	assert.InDelta(t, 2.0, got.Data[5], 1e-12)
}

func TestNonlinearRejectsShapeMismatch(t *testing.T) {
	l := nn.InitActivationLayer(nn.ActivationReLU)
	in := nn.NewTensor(2, 3)
	out := nn.NewTensor(2, 2)

	_, err := Nonlinear(l, in, out, nn.NewTensor(2, 3), nn.NewTensor(2, 2), 1e-10)
	assert.Error(t, err)
}

func TestNormalizedNonlinearRecenters(t *testing.T) {
	l := nn.InitSoftmaxLayer()

	in := nn.NewTensorFromSlice([]float64{2, 4, 1, 1}, 2, 2)
	out := nn.NewTensorFromSlice([]float64{0.3, 0.7, 0.5, 0.5}, 2, 2)
	gradIn := nn.NewTensorFromSlice([]float64{9, 9, 9, 9}, 2, 2)
	gradOut := nn.NewTensorFromSlice([]float64{1, 1, 1, 1}, 2, 2)

	got, err := NormalizedNonlinear(l, in, out, gradIn, gradOut, 1e-10)
	require.NoError(t, err)

	// Rescaled values are -0.2 and 1/15 per pair; subtracting their mean
	// of -1/15 leaves a zero-sum tensor.
	want := []float64{-2.0 / 15, 2.0 / 15, -2.0 / 15, 2.0 / 15}
	assert.InDeltaSlice(t, want, got.Data, 1e-12)

	sum := 0.0
	for _, v := range got.Data {
		sum += v
	}
	assert.InDelta(t, 0.0, sum, 1e-12, "recentred gradient must sum to zero")
}

func TestMaxPoolCreditRouting(t *testing.T) {
	l := nn.InitMaxPool1DLayer(2, 2)

	// Example half [1, 5, 2, 8] pools to [5, 8]; an all-zero reference
	// pools to [0, 0].
	in := nn.NewTensorFromSlice([]float64{1, 5, 2, 8, 0, 0, 0, 0}, 2, 1, 4)
	out := nn.NewTensorFromSlice([]float64{5, 8, 0, 0}, 2, 1, 2)
	gradIn := nn.NewTensorFromSlice([]float64{0, 1, 0, 1, 1, 0, 1, 0}, 2, 1, 4)
	gradOut := nn.NewTensorFromSlice([]float64{1, 1, 1, 1}, 2, 1, 2)

	got, err := MaxPool(l, in, out, gradIn, gradOut, 1e-10)
	require.NoError(t, err)

	want := []float64{0, 1, 0, 1, 0, 1, 0, 1}
	assert.InDeltaSlice(t, want, got.Data, 1e-12)

	// Credit lands only on the window argmax positions 1 and 3.
	for i, v := range got.Data[:4] {
		if i == 1 || i == 3 {
			assert.NotZero(t, v)
		} else {
			assert.Zero(t, v, "position %d received credit outside the argmax", i)
		}
	}
}

func TestMaxPoolRejectsWrongKind(t *testing.T) {
	l := nn.InitActivationLayer(nn.ActivationReLU)
	x := nn.NewTensor(2, 1, 4)
	y := nn.NewTensor(2, 1, 2)

	_, err := MaxPool(l, x, y, x.Clone(), y.Clone(), 1e-10)
	assert.Error(t, err)
}
