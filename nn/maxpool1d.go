package nn

import (
	"fmt"
)

// maxPool1DForward performs 1D max pooling.
// Input shape: (batch, channels, seqLen). Output: (batch, channels, outLen).
func maxPool1DForward(l *Layer, input *Tensor) (*Tensor, error) {
	out, _, err := MaxPool1DArgmax(input, l.PoolSize, l.PoolStride)
	return out, err
}

// MaxPool1DArgmax performs 1D max pooling and also returns the flat index
// into the input of the maximal element behind every output element. Ties
// go to the earliest position in the window.
func MaxPool1DArgmax(input *Tensor, poolSize, stride int) (*Tensor, []int, error) {
	if input.Rank() != 3 {
		return nil, nil, fmt.Errorf("maxpool1d: expected rank-3 input, got shape %v", input.Shape)
	}
	batch := input.Dim(0)
	channels := input.Dim(1)
	seqLen := input.Dim(2)
	outLen := conv1DOutLen(seqLen, poolSize, stride, 0)
	if outLen <= 0 {
		return nil, nil, fmt.Errorf("maxpool1d: pool %d stride %d does not fit length %d", poolSize, stride, seqLen)
	}

	out := NewTensor(batch, channels, outLen)
	indices := make([]int, batch*channels*outLen)
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			base := b*channels*seqLen + c*seqLen
			for o := 0; o < outLen; o++ {
				start := o * stride
				best := input.Data[base+start]
				bestIdx := base + start
				for k := 1; k < poolSize; k++ {
					idx := base + start + k
					if input.Data[idx] > best {
						best = input.Data[idx]
						bestIdx = idx
					}
				}
				outIdx := b*channels*outLen + c*outLen + o
				out.Data[outIdx] = best
				indices[outIdx] = bestIdx
			}
		}
	}
	return out, indices, nil
}

// MaxUnpool1D scatters values back to the positions recorded by
// MaxPool1DArgmax, producing a tensor of the given input shape. Positions
// not selected by any window stay zero.
func MaxUnpool1D(values *Tensor, indices []int, inputShape []int) (*Tensor, error) {
	if values.Size() != len(indices) {
		return nil, fmt.Errorf("unpool: %d values for %d indices", values.Size(), len(indices))
	}
	out := NewTensor(inputShape...)
	for i, idx := range indices {
		if idx < 0 || idx >= len(out.Data) {
			return nil, fmt.Errorf("unpool: index %d out of range for size %d", idx, len(out.Data))
		}
		out.Data[idx] += values.Data[i]
	}
	return out, nil
}

// maxPool1DBackward routes each output gradient to the input position
// that won its pooling window.
func maxPool1DBackward(l *Layer, gradOut, input *Tensor) (*Tensor, error) {
	_, indices, err := MaxPool1DArgmax(input, l.PoolSize, l.PoolStride)
	if err != nil {
		return nil, err
	}
	if gradOut.Size() != len(indices) {
		return nil, fmt.Errorf("maxpool1d backward: gradient size %d does not match %d pooled outputs", gradOut.Size(), len(indices))
	}
	return MaxUnpool1D(gradOut, indices, input.Shape)
}
