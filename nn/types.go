package nn

import (
	"math"
	"math/rand"
)

// LayerKind tags a layer with its operation class. The tag is attached at
// construction and never changes; gradient interceptors dispatch on it.
type LayerKind int

const (
	KindDense      LayerKind = 0 // Fully connected layer
	KindConv1D     LayerKind = 1 // 1D convolution over the length axis
	KindActivation LayerKind = 2 // Pointwise nonlinearity
	KindSoftmax    LayerKind = 3 // Softmax over each entry's feature vector
	KindMaxPool1D  LayerKind = 4 // 1D max pooling over the length axis
	KindFlatten    LayerKind = 5 // Collapse non-batch axes
)

// String returns the lowercase name of the kind.
func (k LayerKind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindConv1D:
		return "conv1d"
	case KindActivation:
		return "activation"
	case KindSoftmax:
		return "softmax"
	case KindMaxPool1D:
		return "maxpool1d"
	case KindFlatten:
		return "flatten"
	default:
		return "unknown"
	}
}

// ActivationType defines the pointwise nonlinearity of an activation layer
type ActivationType int

const (
	ActivationReLU      ActivationType = 0 // max(0, v)
	ActivationLeakyReLU ActivationType = 1 // v if v >= 0, else v * 0.01
	ActivationELU       ActivationType = 2 // v if v >= 0, else exp(v) - 1
	ActivationSigmoid   ActivationType = 3 // 1 / (1 + exp(-v))
	ActivationTanh      ActivationType = 4 // tanh(v)
	ActivationSoftplus  ActivationType = 5 // log(1 + exp(v))
)

// GradHook rewrites the input gradient of a layer during the backward
// pass. It receives the layer, the cached forward input and output, the
// ordinarily computed input gradient and the upstream output gradient,
// and returns the replacement input gradient.
type GradHook func(l *Layer, in, out, gradIn, gradOut *Tensor) (*Tensor, error)

// Layer is a single model operation. Only the fields of its kind are
// meaningful; the rest stay zero.
type Layer struct {
	Kind       LayerKind
	Activation ActivationType

	// Dense parameters
	InFeatures  int
	OutFeatures int
	Weights     []float64 // [OutFeatures][InFeatures], row-major
	Bias        []float64 // [OutFeatures] for dense, [Filters] for conv1d

	// Conv1D parameters
	InChannels int
	Filters    int
	KernelSize int
	Stride     int
	Padding    int
	Kernel     []float64 // [Filters][InChannels][KernelSize], row-major

	// MaxPool1D parameters
	PoolSize   int
	PoolStride int

	hook GradHook
}

// SetGradHook installs a gradient interceptor on the layer. A nil hook
// restores ordinary differentiation.
func (l *Layer) SetGradHook(h GradHook) { l.hook = h }

// GradHook returns the currently installed interceptor, or nil.
func (l *Layer) GradHook() GradHook { return l.hook }

// InitDenseLayer initializes a fully connected layer with He-initialized
// weights and zero biases. Weights and Bias are exported for direct
// assignment when exact values are wanted.
func InitDenseLayer(inFeatures, outFeatures int) *Layer {
	weights := make([]float64, outFeatures*inFeatures)
	stddev := math.Sqrt(2.0 / float64(inFeatures))
	for i := range weights {
		weights[i] = rand.NormFloat64() * stddev
	}
	return &Layer{
		Kind:        KindDense,
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		Weights:     weights,
		Bias:        make([]float64, outFeatures),
	}
}

// InitConv1DLayer initializes a Conv1D layer with He-initialized kernel
// weights and zero biases.
func InitConv1DLayer(inChannels, filters, kernelSize, stride, padding int) *Layer {
	kernel := make([]float64, filters*inChannels*kernelSize)
	stddev := math.Sqrt(2.0 / float64(inChannels*kernelSize))
	for i := range kernel {
		kernel[i] = rand.NormFloat64() * stddev
	}
	return &Layer{
		Kind:       KindConv1D,
		InChannels: inChannels,
		Filters:    filters,
		KernelSize: kernelSize,
		Stride:     stride,
		Padding:    padding,
		Kernel:     kernel,
		Bias:       make([]float64, filters),
	}
}

// InitActivationLayer creates a standalone pointwise activation layer.
// Activations are their own layers rather than fused into dense or conv
// layers so each nonlinearity carries its own kind tag.
func InitActivationLayer(activation ActivationType) *Layer {
	return &Layer{Kind: KindActivation, Activation: activation}
}

// InitSoftmaxLayer creates a standard softmax layer
func InitSoftmaxLayer() *Layer {
	return &Layer{Kind: KindSoftmax}
}

// InitMaxPool1DLayer creates a 1D max pooling layer. A stride of 0
// defaults to the pool size.
func InitMaxPool1DLayer(poolSize, stride int) *Layer {
	if stride == 0 {
		stride = poolSize
	}
	return &Layer{Kind: KindMaxPool1D, PoolSize: poolSize, PoolStride: stride}
}

// InitFlattenLayer creates a layer collapsing all non-batch axes.
func InitFlattenLayer() *Layer {
	return &Layer{Kind: KindFlatten}
}
