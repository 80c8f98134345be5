package nn

import (
	"fmt"
)

// conv1DOutLen computes the output length of a 1D convolution or pool.
func conv1DOutLen(seqLen, kernelSize, stride, padding int) int {
	return (seqLen+2*padding-kernelSize)/stride + 1
}

// conv1DForward performs 1D convolution.
// Input shape: (batch, InChannels, seqLen). Output: (batch, Filters, outLen).
func conv1DForward(l *Layer, input *Tensor) (*Tensor, error) {
	if input.Rank() != 3 {
		return nil, fmt.Errorf("conv1d: expected rank-3 input, got shape %v", input.Shape)
	}
	if input.Dim(1) != l.InChannels {
		return nil, fmt.Errorf("conv1d: input has %d channels, layer expects %d", input.Dim(1), l.InChannels)
	}
	batch := input.Dim(0)
	seqLen := input.Dim(2)
	outLen := conv1DOutLen(seqLen, l.KernelSize, l.Stride, l.Padding)
	if outLen <= 0 {
		return nil, fmt.Errorf("conv1d: kernel %d stride %d padding %d does not fit length %d", l.KernelSize, l.Stride, l.Padding, seqLen)
	}

	out := NewTensor(batch, l.Filters, outLen)
	for b := 0; b < batch; b++ {
		for f := 0; f < l.Filters; f++ {
			for o := 0; o < outLen; o++ {
				sum := l.Bias[f]
				for ic := 0; ic < l.InChannels; ic++ {
					for k := 0; k < l.KernelSize; k++ {
						inPos := o*l.Stride + k - l.Padding
						if inPos >= 0 && inPos < seqLen {
							inputIdx := b*l.InChannels*seqLen + ic*seqLen + inPos
							kernelIdx := f*l.InChannels*l.KernelSize + ic*l.KernelSize + k
							sum += input.Data[inputIdx] * l.Kernel[kernelIdx]
						}
					}
				}
				out.Data[b*l.Filters*outLen+f*outLen+o] = sum
			}
		}
	}
	return out, nil
}

// conv1DBackward computes the gradient with respect to the layer input
// by scattering each output gradient through the kernel taps.
func conv1DBackward(l *Layer, gradOut, input *Tensor) (*Tensor, error) {
	batch := input.Dim(0)
	seqLen := input.Dim(2)
	outLen := conv1DOutLen(seqLen, l.KernelSize, l.Stride, l.Padding)
	if gradOut.Size() != batch*l.Filters*outLen {
		return nil, fmt.Errorf("conv1d backward: gradient shape %v does not match output (%d, %d, %d)", gradOut.Shape, batch, l.Filters, outLen)
	}

	grad := NewTensor(batch, l.InChannels, seqLen)
	for b := 0; b < batch; b++ {
		for f := 0; f < l.Filters; f++ {
			for o := 0; o < outLen; o++ {
				g := gradOut.Data[b*l.Filters*outLen+f*outLen+o]
				if g == 0 {
					continue
				}
				for ic := 0; ic < l.InChannels; ic++ {
					for k := 0; k < l.KernelSize; k++ {
						inPos := o*l.Stride + k - l.Padding
						if inPos >= 0 && inPos < seqLen {
							inputIdx := b*l.InChannels*seqLen + ic*seqLen + inPos
							kernelIdx := f*l.InChannels*l.KernelSize + ic*l.KernelSize + k
							grad.Data[inputIdx] += g * l.Kernel[kernelIdx]
						}
					}
				}
			}
		}
	}
	return grad, nil
}
