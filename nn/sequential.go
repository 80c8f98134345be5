package nn

import (
	"fmt"
	"strings"
)

// Sequential chains layers in order. It caches every layer's input and
// output during Forward so Backward and gradient interceptors can read
// them. One model instance serves one pass at a time: concurrent Forward
// or Backward calls race on the caches and must be serialized by the
// caller.
type Sequential struct {
	layers []*Layer

	// acts[0] is the model input, acts[i+1] the output of layer i.
	acts []*Tensor
}

// NewSequential builds a model from the given layers.
func NewSequential(layers ...*Layer) *Sequential {
	return &Sequential{layers: layers}
}

// Layers returns the model's layers in execution order.
func (m *Sequential) Layers() []*Layer { return m.layers }

// Forward runs the input through every layer, caching activations for
// the next Backward. Sequential models take no side inputs.
func (m *Sequential) Forward(x *Tensor, args ...*Tensor) (*Tensor, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("sequential model takes no extra arguments, got %d", len(args))
	}
	if x == nil || x.Size() == 0 {
		return nil, fmt.Errorf("forward: empty input")
	}

	m.acts = make([]*Tensor, len(m.layers)+1)
	m.acts[0] = x.Clone()
	for i, l := range m.layers {
		out, err := l.forward(m.acts[i])
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Kind, err)
		}
		m.acts[i+1] = out
	}
	return m.acts[len(m.acts)-1], nil
}

// Summary returns a one-line-per-layer description of the model.
func (m *Sequential) Summary() string {
	var b strings.Builder
	for i, l := range m.layers {
		switch l.Kind {
		case KindDense:
			fmt.Fprintf(&b, "%d: dense(%d -> %d)\n", i, l.InFeatures, l.OutFeatures)
		case KindConv1D:
			fmt.Fprintf(&b, "%d: conv1d(%d -> %d, k=%d, s=%d, p=%d)\n", i, l.InChannels, l.Filters, l.KernelSize, l.Stride, l.Padding)
		case KindActivation:
			fmt.Fprintf(&b, "%d: activation(%d)\n", i, l.Activation)
		case KindMaxPool1D:
			fmt.Fprintf(&b, "%d: maxpool1d(k=%d, s=%d)\n", i, l.PoolSize, l.PoolStride)
		default:
			fmt.Fprintf(&b, "%d: %s\n", i, l.Kind)
		}
	}
	return b.String()
}
