package deeplift

import (
	"fmt"
	"log/slog"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/lift/nn"
	"github.com/openfluke/lift/shuffle"
)

// ReferenceFunc generates references for a batch of one-hot sequences:
// given a (batch, alphabet, length) tensor it returns a
// (batch, n, alphabet, length) tensor, deterministic for a fixed seed.
// shuffle.Dinucleotide is the default.
type ReferenceFunc func(X *nn.Tensor, n int, seed int64) (*nn.Tensor, error)

// Config controls Explain. The zero value is usable: defaults are 32
// pairs per compute batch, 20 shuffled references per example, the
// dinucleotide shuffler, a 1e-4 convergence warning threshold, a 1e-10
// rescale guard, CPU evaluation and the process-default logger.
type Config struct {
	// Args are model side inputs with one batch row per example. Each is
	// sliced and doubled alongside the main input.
	Args []*nn.Tensor

	// Target picks the model output column attributions explain.
	Target int

	// BatchSize is the number of example/reference pairs per compute
	// batch. Batches are packed to this size with no regard for example
	// boundaries.
	BatchSize int

	// References supplies precomputed references, shaped
	// (examples, references, alphabet, length). When set, Shuffler and
	// NumShuffles are ignored and the reference count comes from axis 1.
	References *nn.Tensor

	// Shuffler generates references per example when References is nil.
	Shuffler ReferenceFunc

	// NumShuffles is the number of generated references per example.
	NumShuffles int

	// ReturnReferences includes the references each example was explained
	// against in the result.
	ReturnReferences bool

	// Hypothetical returns importance scores for all alphabet symbols
	// instead of attributions masked to the observed sequence.
	Hypothetical bool

	// WarningThreshold is the convergence delta above which a pair logs
	// a warning.
	WarningThreshold float64

	// Eps guards the rescale division.
	Eps float64

	// Rules adds or overrides rescale rules by layer kind on top of
	// DefaultRules.
	Rules map[nn.LayerKind]Rule

	// RawOutputs skips projection, averaging and input masking, returning
	// one multiplier tensor per pair, shaped
	// (examples, references, alphabet, length).
	RawOutputs bool

	// Device selects where the rescale correction runs.
	Device Device

	// RandomState, when set, makes reference generation deterministic:
	// the generator is seeded per pair with *RandomState + referenceIndex
	// on single-example slices. When nil, generation is seeded from the
	// global source, one call per compute batch.
	RandomState *int64

	// Verbose logs the convergence delta of every pair.
	Verbose bool

	// Logger receives warnings and verbose output.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.NumShuffles <= 0 {
		c.NumShuffles = 20
	}
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = 1e-4
	}
	if c.Eps <= 0 {
		c.Eps = 1e-10
	}
	if c.Shuffler == nil {
		c.Shuffler = shuffle.Dinucleotide
	}
	if c.Device == "" {
		c.Device = DeviceCPU
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Result holds what Explain produced.
type Result struct {
	// Attributions is (examples, alphabet, length), or
	// (examples, references, alphabet, length) with Config.RawOutputs.
	Attributions *nn.Tensor

	// References is (examples, references, alphabet, length); nil unless
	// Config.ReturnReferences.
	References *nn.Tensor
}

// Explain attributes every example in X against multiple references and
// averages the results. Pairs are enumerated row-major over
// (example, reference) and packed into fixed-size compute batches that
// ignore example boundaries; an example's attributions are finalized as
// soon as its last pair returns. For a fixed reference set the output is
// identical for every BatchSize.
func Explain(model Model, X *nn.Tensor, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if X == nil || X.Rank() != 3 {
		return nil, fmt.Errorf("explain: expected a (batch, alphabet, length) input")
	}
	n, alphabet, length := X.Dim(0), X.Dim(1), X.Dim(2)
	if n == 0 {
		return nil, fmt.Errorf("explain: empty batch")
	}
	for i, a := range cfg.Args {
		if a == nil || a.Dim(0) != n {
			return nil, fmt.Errorf("explain: arg %d does not have one row per example", i)
		}
	}

	perExample := cfg.NumShuffles
	if cfg.References != nil {
		r := cfg.References
		if r.Rank() != 4 || r.Dim(0) != n || r.Dim(2) != alphabet || r.Dim(3) != length {
			return nil, fmt.Errorf("explain: references shape %v does not match (%d, n, %d, %d)",
				r.Shape, n, alphabet, length)
		}
		perExample = r.Dim(1)
	}

	explainer, err := NewExplainer(model, cfg)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Debug("explaining batch",
		"examples", n, "references", perExample, "batchSize", cfg.BatchSize, "device", string(cfg.Device))

	run := &runner{
		cfg:        cfg,
		explainer:  explainer,
		X:          X,
		perExample: perExample,
		acc:        newAccumulator(perExample),
	}

	total := n * perExample
	idx := make([]int, 0, cfg.BatchSize)
	refIdx := make([]int, 0, cfg.BatchSize)
	for i := 0; i < total; i++ {
		idx = append(idx, i/perExample)
		refIdx = append(refIdx, i%perExample)
		if len(idx) == cfg.BatchSize || i == total-1 {
			if err := run.processBatch(idx, refIdx); err != nil {
				return nil, err
			}
			idx = idx[:0]
			refIdx = refIdx[:0]
		}
	}
	if run.acc.leftover() != 0 {
		return nil, fmt.Errorf("explain: %d pairs left unfinalized", run.acc.leftover())
	}

	attributions, err := nn.Stack(run.rows)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	result := &Result{Attributions: attributions}

	if cfg.ReturnReferences {
		flat, err := nn.Stack(run.refRows)
		if err != nil {
			return nil, fmt.Errorf("explain: %w", err)
		}
		result.References = flat.Reshape(n, perExample, alphabet, length)
	}
	return result, nil
}

// runner carries the driver state across compute batches.
type runner struct {
	cfg        Config
	explainer  *Explainer
	X          *nn.Tensor
	perExample int
	acc        *accumulator
	rows       []*nn.Tensor // finalized per-example attributions, in input order
	refRows    []*nn.Tensor // per-pair references in arrival order, if requested
}

// processBatch attributes one compute batch of pairs and feeds the
// results through the accumulator.
func (r *runner) processBatch(idx, refIdx []int) error {
	bx, err := r.X.Take(idx)
	if err != nil {
		return fmt.Errorf("explain: %w", err)
	}
	args := make([]*nn.Tensor, len(r.cfg.Args))
	for i, a := range r.cfg.Args {
		args[i], err = a.Take(idx)
		if err != nil {
			return fmt.Errorf("explain: arg %d: %w", i, err)
		}
	}

	refs, err := r.batchReferences(bx, idx, refIdx)
	if err != nil {
		return err
	}

	multipliers, err := r.explainer.Attribute(bx, refs, args, r.cfg.Target)
	if err != nil {
		return err
	}

	attr := multipliers
	if !r.cfg.RawOutputs {
		attr, err = HypotheticalAttributions(multipliers, bx, refs)
		if err != nil {
			return fmt.Errorf("explain: %w", err)
		}
	}

	for j := range idx {
		entries, example := r.acc.add(attr.Slice(j).Clone())
		if entries != nil {
			if err := r.finalize(entries, example); err != nil {
				return err
			}
		}
		if r.cfg.ReturnReferences {
			r.refRows = append(r.refRows, refs.Slice(j).Clone())
		}
	}
	return nil
}

// batchReferences resolves one reference per pair in the batch, from the
// precomputed tensor, from per-pair seeded generation, or from one
// generator call over the whole batch.
func (r *runner) batchReferences(bx *nn.Tensor, idx, refIdx []int) (*nn.Tensor, error) {
	alphabet, length := r.X.Dim(1), r.X.Dim(2)
	row := alphabet * length

	if r.cfg.References != nil {
		refs := nn.NewTensor(len(idx), alphabet, length)
		for j := range idx {
			src := (idx[j]*r.perExample + refIdx[j]) * row
			copy(refs.Data[j*row:(j+1)*row], r.cfg.References.Data[src:src+row])
		}
		return refs, nil
	}

	if r.cfg.RandomState != nil {
		refs := nn.NewTensor(len(idx), alphabet, length)
		for j := range idx {
			single, err := r.X.Take([]int{idx[j]})
			if err != nil {
				return nil, fmt.Errorf("explain: %w", err)
			}
			generated, err := r.cfg.Shuffler(single, 1, *r.cfg.RandomState+int64(refIdx[j]))
			if err != nil {
				return nil, fmt.Errorf("explain: reference generation: %w", err)
			}
			if generated.Size() != row {
				return nil, fmt.Errorf("explain: reference generator returned %d values, expected %d", generated.Size(), row)
			}
			copy(refs.Data[j*row:(j+1)*row], generated.Data)
		}
		return refs, nil
	}

	generated, err := r.cfg.Shuffler(bx, 1, rand.Int63())
	if err != nil {
		return nil, fmt.Errorf("explain: reference generation: %w", err)
	}
	reshaped := generated.Reshape(len(idx), alphabet, length)
	if reshaped == nil {
		return nil, fmt.Errorf("explain: reference generator returned shape %v, expected (%d, 1, %d, %d)",
			generated.Shape, len(idx), alphabet, length)
	}
	return reshaped, nil
}

// finalize averages (or stacks) one example's pair results and appends
// the finished row.
func (r *runner) finalize(entries []*nn.Tensor, example int) error {
	if r.cfg.RawOutputs {
		stacked, err := nn.Stack(entries)
		if err != nil {
			return fmt.Errorf("explain: %w", err)
		}
		r.rows = append(r.rows, stacked)
		return nil
	}

	mean := nn.NewTensor(entries[0].Shape...)
	for _, e := range entries {
		floats.Add(mean.Data, e.Data)
	}
	floats.Scale(1/float64(len(entries)), mean.Data)

	if !r.cfg.Hypothetical {
		floats.Mul(mean.Data, r.X.Slice(example).Data)
	}
	r.rows = append(r.rows, mean)
	return nil
}
