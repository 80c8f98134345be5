package deeplift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/lift/nn"
)

func TestHypotheticalZeroReference(t *testing.T) {
	// Against an all-zero reference the projection is the multipliers
	// themselves: each symbol's contribution is its own multiplier entry.
	multipliers := nn.NewTensorFromSlice([]float64{
		0.1, 0.2, 0.3,
		-0.4, 0.5, -0.6,
		0.7, -0.8, 0.9,
		1.0, 1.1, -1.2,
	}, 1, 4, 3)
	X, err := nn.OneHot([]string{"ACG"}, "ACGT")
	require.NoError(t, err)
	refs := nn.NewTensor(1, 4, 3)

	got, err := HypotheticalAttributions(multipliers, X, refs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, multipliers.Data, got.Data, 1e-12)
}

func TestHypotheticalProjection(t *testing.T) {
	// One position, multipliers [1, -1, 0, 0], reference one-hot "C".
	// Symbol s contributes m[s] minus the reference-weighted sum, which
	// here is m[C] = -1, so the projection is m[s] + 1 per slot.
	multipliers := nn.NewTensorFromSlice([]float64{1, -1, 0, 0}, 1, 4, 1)
	X, err := nn.OneHot([]string{"A"}, "ACGT")
	require.NoError(t, err)
	refs, err := nn.OneHot([]string{"C"}, "ACGT")
	require.NoError(t, err)

	got, err := HypotheticalAttributions(multipliers, X, refs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 0, 1, 1}, got.Data, 1e-12)
}

func TestHypotheticalObservedConsistency(t *testing.T) {
	multipliers := nn.NewTensorFromSlice([]float64{
		0.5, -1.5, 2.0,
		1.0, 0.25, -0.75,
		-2.0, 1.5, 0.5,
		0.0, -0.5, 1.25,
	}, 1, 4, 3)
	X, err := nn.OneHot([]string{"TAC"}, "ACGT")
	require.NoError(t, err)
	refs, err := nn.OneHot([]string{"GGA"}, "ACGT")
	require.NoError(t, err)

	proj, err := HypotheticalAttributions(multipliers, X, refs)
	require.NoError(t, err)

	// Masking the projection to the observed symbols must reproduce the
	// per-position sum of (X - reference) weighted multipliers.
	alphabet, length := 4, 3
	for pos := 0; pos < length; pos++ {
		wantSum := 0.0
		observed := 0.0
		for a := 0; a < alphabet; a++ {
			i := a*length + pos
			wantSum += (X.Data[i] - refs.Data[i]) * multipliers.Data[i]
			observed += proj.Data[i] * X.Data[i]
		}
		assert.InDelta(t, wantSum, observed, 1e-12, "position %d", pos)
	}
}

func TestHypotheticalRejectsBadShapes(t *testing.T) {
	x3 := nn.NewTensor(1, 4, 3)

	_, err := HypotheticalAttributions(nil, x3, x3)
	assert.Error(t, err)

	_, err = HypotheticalAttributions(nn.NewTensor(4, 3), nn.NewTensor(4, 3), nn.NewTensor(4, 3))
	assert.Error(t, err, "rank 2 tensors are rejected")

	_, err = HypotheticalAttributions(nn.NewTensor(1, 4, 2), x3, x3)
	assert.Error(t, err, "mismatched multiplier shape is rejected")
}
