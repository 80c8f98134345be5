package deeplift

import (
	"fmt"

	"github.com/openfluke/lift/gpu"
	"github.com/openfluke/lift/nn"
)

// NonlinearGPU mirrors Nonlinear with the guarded slope division evaluated
// on the WebGPU device. Installed for activation layers when the explainer
// is configured for DeviceWebGPU. Device arithmetic is single precision.
func NonlinearGPU(l *nn.Layer, in, out, gradIn, gradOut *nn.Tensor, eps float64) (*nn.Tensor, error) {
	if err := checkPointwise(in, out, gradIn, gradOut); err != nil {
		return nil, fmt.Errorf("nonlinear gpu rule: %w", err)
	}
	inX, inRef, err := halves(in)
	if err != nil {
		return nil, fmt.Errorf("nonlinear gpu rule: %w", err)
	}
	outX, outRef, err := halves(out)
	if err != nil {
		return nil, fmt.Errorf("nonlinear gpu rule: %w", err)
	}

	// Pairwise differences repeat across both batch halves so the kernel
	// stays elementwise over the full doubled tensor.
	half := len(inX)
	din := make([]float64, in.Size())
	dout := make([]float64, out.Size())
	for i := 0; i < half; i++ {
		d := inX[i] - inRef[i]
		din[i], din[half+i] = d, d
		o := outX[i] - outRef[i]
		dout[i], dout[half+i] = o, o
	}

	res, err := gpu.RunRescale(din, dout, gradIn.Data, gradOut.Data, eps)
	if err != nil {
		return nil, fmt.Errorf("nonlinear gpu rule: %w", err)
	}
	grad := nn.NewTensor(in.Shape...)
	copy(grad.Data, res)
	return grad, nil
}
