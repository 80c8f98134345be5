package deeplift

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/openfluke/lift/nn"
)

// Rule replaces a layer's input gradient during the backward pass over a
// concatenated example/reference batch. in and out are the layer's cached
// forward tensors, gradIn the ordinarily computed input gradient, gradOut
// the upstream gradient. eps guards the difference quotient: where the
// input difference is smaller than eps in magnitude, the ordinary
// gradient passes through unchanged.
type Rule func(l *nn.Layer, in, out, gradIn, gradOut *nn.Tensor, eps float64) (*nn.Tensor, error)

// DefaultRules returns the built-in registry keyed by layer kind. Dense,
// conv and flatten layers are absent on purpose: for linear operations
// the ordinary gradient already is the rescale multiplier.
func DefaultRules() map[nn.LayerKind]Rule {
	return map[nn.LayerKind]Rule{
		nn.KindActivation: Nonlinear,
		nn.KindSoftmax:    NormalizedNonlinear,
		nn.KindMaxPool1D:  MaxPool,
	}
}

// linearKind reports whether ordinary differentiation of the kind already
// satisfies the rescale rule, so no registry entry is expected.
func linearKind(k nn.LayerKind) bool {
	switch k {
	case nn.KindDense, nn.KindConv1D, nn.KindFlatten:
		return true
	default:
		return false
	}
}

// Nonlinear is the generic rescale rule for pointwise operations. The
// local derivative is replaced elementwise by the slope between the
// example half and the reference half of the batch; both halves receive
// the slope of their pair.
func Nonlinear(l *nn.Layer, in, out, gradIn, gradOut *nn.Tensor, eps float64) (*nn.Tensor, error) {
	if err := checkPointwise(in, out, gradIn, gradOut); err != nil {
		return nil, fmt.Errorf("nonlinear rule: %w", err)
	}
	grad := nn.NewTensor(in.Shape...)
	if err := rescale(grad.Data, in, out, gradIn, gradOut, eps); err != nil {
		return nil, fmt.Errorf("nonlinear rule: %w", err)
	}
	return grad, nil
}

// NormalizedNonlinear is the rescale rule for softmax-like operations:
// the generic correction followed by re-centering, subtracting the mean
// over every element of the corrected tensor so the replaced gradient
// keeps a zero sum.
func NormalizedNonlinear(l *nn.Layer, in, out, gradIn, gradOut *nn.Tensor, eps float64) (*nn.Tensor, error) {
	if err := checkPointwise(in, out, gradIn, gradOut); err != nil {
		return nil, fmt.Errorf("normalized rule: %w", err)
	}
	grad := nn.NewTensor(in.Shape...)
	if err := rescale(grad.Data, in, out, gradIn, gradOut, eps); err != nil {
		return nil, fmt.Errorf("normalized rule: %w", err)
	}
	mean := stat.Mean(grad.Data, nil)
	for i := range grad.Data {
		grad.Data[i] -= mean
	}
	return grad, nil
}

// rescale writes the generic corrected gradient into dst, which must have
// the layer input's length.
func rescale(dst []float64, in, out, gradIn, gradOut *nn.Tensor, eps float64) error {
	inX, inRef, err := halves(in)
	if err != nil {
		return err
	}
	outX, outRef, err := halves(out)
	if err != nil {
		return err
	}
	half := len(inX)
	for i := 0; i < half; i++ {
		din := inX[i] - inRef[i]
		if math.Abs(din) < eps {
			dst[i] = gradIn.Data[i]
			dst[half+i] = gradIn.Data[half+i]
			continue
		}
		slope := (outX[i] - outRef[i]) / din
		dst[i] = gradOut.Data[i] * slope
		dst[half+i] = gradOut.Data[half+i] * slope
	}
	return nil
}

// MaxPool is the rescale rule for 1D max pooling. The output difference
// is split asymmetrically around the elementwise max of the two pooled
// halves, the upstream gradient weighted by that split is scattered back
// through argmax indices recomputed from the cached raw input, and the
// two scattered halves are summed before the eps-guarded division by the
// input difference.
func MaxPool(l *nn.Layer, in, out, gradIn, gradOut *nn.Tensor, eps float64) (*nn.Tensor, error) {
	if l.Kind != nn.KindMaxPool1D {
		return nil, fmt.Errorf("maxpool rule: layer kind is %s", l.Kind)
	}
	if gradOut.Size() != out.Size() || gradIn.Size() != in.Size() {
		return nil, fmt.Errorf("maxpool rule: gradient sizes do not match cached activations")
	}
	inX, inRef, err := halves(in)
	if err != nil {
		return nil, fmt.Errorf("maxpool rule: %w", err)
	}
	outX, outRef, err := halves(out)
	if err != nil {
		return nil, fmt.Errorf("maxpool rule: %w", err)
	}

	// Asymmetric output difference: cat(max(out, ref) - ref, out - max).
	poolHalf := len(outX)
	weighted := nn.NewTensor(out.Shape...)
	for i := 0; i < poolHalf; i++ {
		xmax := math.Max(outX[i], outRef[i])
		weighted.Data[i] = gradOut.Data[i] * (xmax - outRef[i])
		weighted.Data[poolHalf+i] = gradOut.Data[poolHalf+i] * (outX[i] - xmax)
	}

	// Scatter through argmax positions recomputed from the raw input.
	_, indices, err := nn.MaxPool1DArgmax(in, l.PoolSize, l.PoolStride)
	if err != nil {
		return nil, fmt.Errorf("maxpool rule: %w", err)
	}
	unpooled, err := nn.MaxUnpool1D(weighted, indices, in.Shape)
	if err != nil {
		return nil, fmt.Errorf("maxpool rule: %w", err)
	}
	upX, upRef, err := halves(unpooled)
	if err != nil {
		return nil, fmt.Errorf("maxpool rule: %w", err)
	}

	half := len(inX)
	grad := nn.NewTensor(in.Shape...)
	for i := 0; i < half; i++ {
		din := inX[i] - inRef[i]
		if math.Abs(din) < eps {
			grad.Data[i] = gradIn.Data[i]
			grad.Data[half+i] = gradIn.Data[half+i]
			continue
		}
		v := (upX[i] + upRef[i]) / din
		grad.Data[i] = v
		grad.Data[half+i] = v
	}
	return grad, nil
}

// halves returns the data of the two batch halves of a doubled tensor.
func halves(t *nn.Tensor) ([]float64, []float64, error) {
	a, b, err := t.SplitHalves()
	if err != nil {
		return nil, nil, err
	}
	return a.Data, b.Data, nil
}

func checkPointwise(in, out, gradIn, gradOut *nn.Tensor) error {
	if in.Size() != out.Size() {
		return fmt.Errorf("input size %d does not match output size %d", in.Size(), out.Size())
	}
	if gradIn.Size() != in.Size() || gradOut.Size() != out.Size() {
		return fmt.Errorf("gradient sizes do not match cached activations")
	}
	return nil
}
