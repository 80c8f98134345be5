package deeplift

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/openfluke/lift/gpu"
	"github.com/openfluke/lift/nn"
)

// Explainer runs single-pass DeepLIFT/SHAP attribution: one forward and
// one backward over a concatenated example/reference batch, with rescale
// rules installed for the duration of the pass. Reuse one Explainer
// across calls; it is not safe for concurrent use because the model it
// instruments is not.
type Explainer struct {
	model            Model
	rules            map[nn.LayerKind]Rule
	eps              float64
	warningThreshold float64
	verbose          bool
	logger           *slog.Logger
	deltas           []float64
}

// NewExplainer builds an engine for the model. Zero-value Config fields
// take their defaults. With Config.Device set to DeviceWebGPU the generic
// rescale correction is evaluated on the GPU; a failed device acquisition
// is returned unmodified.
func NewExplainer(model Model, cfg Config) (*Explainer, error) {
	if model == nil {
		return nil, fmt.Errorf("deeplift: nil model")
	}
	cfg = cfg.withDefaults()

	rules := DefaultRules()
	if cfg.Device == DeviceWebGPU {
		if _, err := gpu.GetContext(); err != nil {
			return nil, err
		}
		rules[nn.KindActivation] = NonlinearGPU
	}
	for k, r := range cfg.Rules {
		rules[k] = r
	}

	return &Explainer{
		model:            model,
		rules:            rules,
		eps:              cfg.Eps,
		warningThreshold: cfg.WarningThreshold,
		verbose:          cfg.Verbose,
		logger:           cfg.Logger,
	}, nil
}

// Attribute computes multipliers for a batch of examples against paired
// references. X and references must share one (batch, alphabet, length)
// shape; entry i of one pairs with entry i of the other. args are model
// side inputs, one batch row per example; each is doubled alongside the
// main input. The returned tensor holds the example-half multipliers,
// shaped like X.
//
// Interceptors installed here are removed on every exit path, success or
// failure.
func (e *Explainer) Attribute(X, references *nn.Tensor, args []*nn.Tensor, target int) (*nn.Tensor, error) {
	if X == nil || references == nil {
		return nil, fmt.Errorf("attribute: nil input")
	}
	if X.Rank() != 3 {
		return nil, fmt.Errorf("attribute: expected a (batch, alphabet, length) input, got shape %v", X.Shape)
	}
	if !nn.SameShape(X, references) {
		return nil, fmt.Errorf("attribute: references shape %v does not match input shape %v", references.Shape, X.Shape)
	}
	if target < 0 {
		return nil, fmt.Errorf("attribute: negative target %d", target)
	}

	combined, err := nn.Concat(X, references)
	if err != nil {
		return nil, fmt.Errorf("attribute: %w", err)
	}
	doubled := make([]*nn.Tensor, len(args))
	for i, a := range args {
		if a == nil || a.Dim(0) != X.Dim(0) {
			return nil, fmt.Errorf("attribute: arg %d does not have one row per example", i)
		}
		doubled[i], err = nn.Concat(a, a)
		if err != nil {
			return nil, fmt.Errorf("attribute: arg %d: %w", i, err)
		}
	}

	sess := e.instrument()
	defer sess.remove()

	y, err := e.model.Forward(combined, doubled...)
	if err != nil {
		return nil, fmt.Errorf("attribute: forward: %w", err)
	}
	if y.Rank() != 2 || y.Dim(0) != combined.Dim(0) {
		return nil, fmt.Errorf("attribute: model output shape %v, expected (%d, targets)", y.Shape, combined.Dim(0))
	}
	if target >= y.Dim(1) {
		return nil, fmt.Errorf("attribute: target %d out of range for %d model outputs", target, y.Dim(1))
	}

	// Seed the backward pass with d(sum of target column)/dy.
	seed := nn.NewTensor(y.Shape...)
	for b := 0; b < y.Dim(0); b++ {
		seed.Data[b*y.Dim(1)+target] = 1
	}

	grads, err := e.model.Backward(seed)
	if err != nil {
		return nil, fmt.Errorf("attribute: backward: %w", err)
	}
	multipliers, _, err := grads.SplitHalves()
	if err != nil {
		return nil, fmt.Errorf("attribute: %w", err)
	}

	e.checkConvergence(X, references, y, multipliers, target)
	return multipliers.Clone(), nil
}

// Deltas returns the per-pair convergence deltas of the most recent
// Attribute call.
func (e *Explainer) Deltas() []float64 { return e.deltas }

// checkConvergence compares each pair's output difference against the
// sum of its multiplier-weighted input differences. Violations warn and
// never fail: a large delta means the attributions are approximate, not
// that the pass is unusable.
func (e *Explainer) checkConvergence(X, references, y, multipliers *nn.Tensor, target int) {
	n := X.Dim(0)
	cols := y.Dim(1)
	row := X.Strides[0]

	e.deltas = make([]float64, n)
	for b := 0; b < n; b++ {
		outDiff := y.Data[b*cols+target] - y.Data[(n+b)*cols+target]
		inDiff := 0.0
		for i := b * row; i < (b+1)*row; i++ {
			inDiff += (X.Data[i] - references.Data[i]) * multipliers.Data[i]
		}
		delta := math.Abs(outDiff - inDiff)
		e.deltas[b] = delta

		if delta > e.warningThreshold {
			e.logger.Warn("attributions do not sum to the output difference",
				"example", b, "delta", delta, "threshold", e.warningThreshold)
		}
		if e.verbose {
			e.logger.Info("convergence delta", "example", b, "delta", delta)
		}
	}
}
