package nn

import (
	"math"
)

// activate applies the activation function to a single value
func activate(v float64, activation ActivationType) float64 {
	switch activation {
	case ActivationReLU:
		if v < 0 {
			return 0
		}
		return v
	case ActivationLeakyReLU:
		if v < 0 {
			return v * 0.01
		}
		return v
	case ActivationELU:
		if v < 0 {
			return math.Exp(v) - 1
		}
		return v
	case ActivationSigmoid:
		return 1.0 / (1.0 + math.Exp(-v))
	case ActivationTanh:
		return math.Tanh(v)
	case ActivationSoftplus:
		return math.Log(1.0 + math.Exp(v))
	default:
		return v
	}
}

// activateDerivative computes the derivative of the activation function
// with respect to the PRE-activation value
func activateDerivative(v float64, activation ActivationType) float64 {
	switch activation {
	case ActivationReLU:
		// d/dv max(0, v) = 1 if v > 0, else 0
		if v > 0 {
			return 1
		}
		return 0
	case ActivationLeakyReLU:
		// d/dv (v if v >= 0, else 0.01*v) = 1 if v >= 0, else 0.01
		if v >= 0 {
			return 1
		}
		return 0.01
	case ActivationELU:
		// d/dv (v if v >= 0, else e^v - 1) = 1 if v >= 0, else e^v
		if v >= 0 {
			return 1
		}
		return math.Exp(v)
	case ActivationSigmoid:
		// d/dv (1/(1+e^-v)) = sigmoid(v) * (1 - sigmoid(v))
		sig := 1.0 / (1.0 + math.Exp(-v))
		return sig * (1.0 - sig)
	case ActivationTanh:
		// d/dv tanh(v) = 1 - tanh^2(v)
		t := math.Tanh(v)
		return 1.0 - t*t
	case ActivationSoftplus:
		// d/dv log(1 + e^v) = sigmoid(v)
		return 1.0 / (1.0 + math.Exp(-v))
	default:
		return 1.0
	}
}

// activationForward applies the layer's nonlinearity elementwise.
func activationForward(l *Layer, input *Tensor) (*Tensor, error) {
	out := NewTensor(input.Shape...)
	for i, v := range input.Data {
		out.Data[i] = activate(v, l.Activation)
	}
	return out, nil
}

// activationBackward scales the upstream gradient by the derivative at
// the cached pre-activation input.
func activationBackward(l *Layer, gradOut, input *Tensor) (*Tensor, error) {
	grad := NewTensor(input.Shape...)
	for i := range input.Data {
		grad.Data[i] = gradOut.Data[i] * activateDerivative(input.Data[i], l.Activation)
	}
	return grad, nil
}
