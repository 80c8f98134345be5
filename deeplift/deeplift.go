// Package deeplift computes per-position attributions for sequence
// models using the DeepLIFT/SHAP rescale rule: during the backward pass
// the local derivative of every nonlinear operation is replaced by the
// slope between an example and a background reference, so attributions
// sum to the output difference between the two.
//
// Explain is the entry point for multi-reference attribution over a
// batch of one-hot sequences. Explainer exposes the single-pass engine
// underneath it for callers that manage their own references.
package deeplift

import (
	"github.com/openfluke/lift/nn"
)

// Model is what the attribution engine instruments: an ordered set of
// tagged layers, a forward pass that caches the activations the backward
// pass needs, and a backward pass that carries a gradient seed back to
// the input while honoring installed gradient interceptors. nn.Sequential
// implements it.
//
// Models are instrumented in place, so one model instance serves one
// attribution call at a time.
type Model interface {
	Layers() []*nn.Layer
	Forward(x *nn.Tensor, args ...*nn.Tensor) (*nn.Tensor, error)
	Backward(seed *nn.Tensor) (*nn.Tensor, error)
}

// Device selects where the rescale correction is evaluated.
type Device string

const (
	DeviceCPU    Device = "cpu"
	DeviceWebGPU Device = "webgpu"
)
