package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// denseForward performs the forward pass for a dense layer.
// input: (batch, InFeatures), output: (batch, OutFeatures).
func denseForward(l *Layer, input *Tensor) (*Tensor, error) {
	if input.Rank() != 2 {
		return nil, fmt.Errorf("dense: expected rank-2 input, got shape %v", input.Shape)
	}
	if input.Dim(1) != l.InFeatures {
		return nil, fmt.Errorf("dense: input has %d features, layer expects %d", input.Dim(1), l.InFeatures)
	}
	batch := input.Dim(0)

	x := mat.NewDense(batch, l.InFeatures, input.Data)
	w := mat.NewDense(l.OutFeatures, l.InFeatures, l.Weights)

	out := NewTensor(batch, l.OutFeatures)
	y := mat.NewDense(batch, l.OutFeatures, out.Data)
	y.Mul(x, w.T())

	for b := 0; b < batch; b++ {
		row := out.Data[b*l.OutFeatures : (b+1)*l.OutFeatures]
		for o, bias := range l.Bias {
			row[o] += bias
		}
	}
	return out, nil
}

// denseBackward computes the gradient with respect to the layer input.
// Weight gradients are never needed here; attribution only propagates
// gradients back to the model input.
func denseBackward(l *Layer, gradOut *Tensor) (*Tensor, error) {
	if gradOut.Rank() != 2 || gradOut.Dim(1) != l.OutFeatures {
		return nil, fmt.Errorf("dense backward: gradient shape %v does not match %d outputs", gradOut.Shape, l.OutFeatures)
	}
	batch := gradOut.Dim(0)

	g := mat.NewDense(batch, l.OutFeatures, gradOut.Data)
	w := mat.NewDense(l.OutFeatures, l.InFeatures, l.Weights)

	grad := NewTensor(batch, l.InFeatures)
	gi := mat.NewDense(batch, l.InFeatures, grad.Data)
	gi.Mul(g, w)
	return grad, nil
}
