package nn

import (
	"fmt"
)

// backward routes the upstream gradient through the layer's ordinary
// derivative. in and out are the activations cached by the forward pass.
func (l *Layer) backward(gradOut, in, out *Tensor) (*Tensor, error) {
	switch l.Kind {
	case KindDense:
		return denseBackward(l, gradOut)
	case KindConv1D:
		return conv1DBackward(l, gradOut, in)
	case KindActivation:
		return activationBackward(l, gradOut, in)
	case KindSoftmax:
		return softmaxBackward(l, gradOut, out)
	case KindMaxPool1D:
		return maxPool1DBackward(l, gradOut, in)
	case KindFlatten:
		grad := gradOut.Clone().Reshape(in.Shape...)
		if grad == nil {
			return nil, fmt.Errorf("flatten backward: gradient size %d does not match input shape %v", gradOut.Size(), in.Shape)
		}
		return grad, nil
	default:
		return nil, fmt.Errorf("backward: unsupported layer kind %d", l.Kind)
	}
}

// Backward propagates a gradient seed from the model output back to the
// model input. Forward must have run first; the activations it cached are
// consumed here. Layers with an installed gradient interceptor have their
// ordinary input gradient replaced by the interceptor's result.
func (m *Sequential) Backward(grad *Tensor) (*Tensor, error) {
	if m.acts == nil {
		return nil, fmt.Errorf("backward called before forward")
	}
	final := m.acts[len(m.acts)-1]
	if !SameShape(grad, final) {
		return nil, fmt.Errorf("backward: seed shape %v does not match output shape %v", grad.Shape, final.Shape)
	}

	g := grad
	for i := len(m.layers) - 1; i >= 0; i-- {
		l := m.layers[i]
		in, out := m.acts[i], m.acts[i+1]

		gradIn, err := l.backward(g, in, out)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Kind, err)
		}
		if h := l.hook; h != nil {
			gradIn, err = h(l, in, out, gradIn, g)
			if err != nil {
				return nil, fmt.Errorf("layer %d (%s) grad hook: %w", i, l.Kind, err)
			}
			if gradIn == nil || !SameShape(gradIn, in) {
				return nil, fmt.Errorf("layer %d (%s) grad hook returned wrong shape", i, l.Kind)
			}
		}
		g = gradIn
	}
	return g, nil
}
