package nn

import (
	"fmt"
)

// forward routes an input through the layer's operation.
func (l *Layer) forward(input *Tensor) (*Tensor, error) {
	switch l.Kind {
	case KindDense:
		return denseForward(l, input)
	case KindConv1D:
		return conv1DForward(l, input)
	case KindActivation:
		return activationForward(l, input)
	case KindSoftmax:
		return softmaxForward(l, input)
	case KindMaxPool1D:
		return maxPool1DForward(l, input)
	case KindFlatten:
		return flattenForward(l, input)
	default:
		return nil, fmt.Errorf("forward: unsupported layer kind %d", l.Kind)
	}
}

// flattenForward collapses every non-batch axis into one.
func flattenForward(l *Layer, input *Tensor) (*Tensor, error) {
	if input.Rank() < 2 {
		return nil, fmt.Errorf("flatten: expected batched input, got shape %v", input.Shape)
	}
	batch := input.Dim(0)
	out := input.Clone().Reshape(batch, input.Size()/batch)
	return out, nil
}
