package nn

import (
	"fmt"
	"math"
)

// softmaxForward normalizes each batch entry's feature vector into a
// probability distribution. Rank-2 input keeps its shape; higher ranks
// are treated as (batch, rest) rows.
func softmaxForward(l *Layer, input *Tensor) (*Tensor, error) {
	if input.Rank() < 2 {
		return nil, fmt.Errorf("softmax: expected batched input, got shape %v", input.Shape)
	}
	batch := input.Dim(0)
	cols := input.Size() / batch

	out := NewTensor(input.Shape...)
	for b := 0; b < batch; b++ {
		row := input.Data[b*cols : (b+1)*cols]
		dst := out.Data[b*cols : (b+1)*cols]

		// Subtract the row max for numerical stability
		maxVal := row[0]
		for _, v := range row {
			if v > maxVal {
				maxVal = v
			}
		}

		sum := 0.0
		for i, v := range row {
			e := math.Exp(v - maxVal)
			dst[i] = e
			sum += e
		}
		for i := range dst {
			dst[i] /= sum
		}
	}
	return out, nil
}

// softmaxBackward applies the softmax Jacobian row by row:
// gradIn_i = y_i * (g_i - sum_j g_j * y_j)
func softmaxBackward(l *Layer, gradOut, output *Tensor) (*Tensor, error) {
	if gradOut.Size() != output.Size() {
		return nil, fmt.Errorf("softmax backward: gradient size %d does not match output size %d", gradOut.Size(), output.Size())
	}
	batch := output.Dim(0)
	cols := output.Size() / batch

	grad := NewTensor(output.Shape...)
	for b := 0; b < batch; b++ {
		y := output.Data[b*cols : (b+1)*cols]
		g := gradOut.Data[b*cols : (b+1)*cols]
		dst := grad.Data[b*cols : (b+1)*cols]

		dot := 0.0
		for i := range y {
			dot += g[i] * y[i]
		}
		for i := range y {
			dst[i] = y[i] * (g[i] - dot)
		}
	}
	return grad, nil
}
