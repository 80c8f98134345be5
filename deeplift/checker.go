package deeplift

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/lift/nn"
)

// AggregateFunc turns raw multipliers for one example's reference set
// into attribution scores. HypotheticalAttributions is the default
// plug-in.
type AggregateFunc func(multipliers, X, references *nn.Tensor) (*nn.Tensor, error)

// ReferenceExplain recomputes averaged attributions one example at a
// time: the example is repeated across its full reference set, attributed
// in a single engine pass, and reduced through the aggregation plug-in.
// It shares no batching machinery with Explain, which makes it a slow
// independent cross-check of the packed driver; with a fixed reference
// set the two must agree to rounding error. Not a production path.
//
// RawOutputs is ignored here; the checker always returns averaged
// attributions shaped (examples, alphabet, length).
func ReferenceExplain(model Model, X *nn.Tensor, cfg Config, aggregate AggregateFunc) (*Result, error) {
	cfg = cfg.withDefaults()
	if aggregate == nil {
		aggregate = HypotheticalAttributions
	}
	if X == nil || X.Rank() != 3 {
		return nil, fmt.Errorf("reference explain: expected a (batch, alphabet, length) input")
	}
	n, alphabet, length := X.Dim(0), X.Dim(1), X.Dim(2)
	if n == 0 {
		return nil, fmt.Errorf("reference explain: empty batch")
	}

	perExample := cfg.NumShuffles
	if cfg.References != nil {
		r := cfg.References
		if r.Rank() != 4 || r.Dim(0) != n || r.Dim(2) != alphabet || r.Dim(3) != length {
			return nil, fmt.Errorf("reference explain: references shape %v does not match (%d, n, %d, %d)",
				r.Shape, n, alphabet, length)
		}
		perExample = r.Dim(1)
	}

	explainer, err := NewExplainer(model, cfg)
	if err != nil {
		return nil, err
	}

	rows := make([]*nn.Tensor, 0, n)
	var refRows []*nn.Tensor
	for z := 0; z < n; z++ {
		expanded := nn.NewTensor(perExample, alphabet, length)
		src := X.Slice(z).Data
		for rep := 0; rep < perExample; rep++ {
			copy(expanded.Data[rep*len(src):(rep+1)*len(src)], src)
		}

		refs, err := exampleReferences(X, z, perExample, cfg)
		if err != nil {
			return nil, err
		}

		args := make([]*nn.Tensor, len(cfg.Args))
		for i, a := range cfg.Args {
			rowLen := a.Strides[0]
			arg := nn.NewTensor(append([]int{perExample}, a.Shape[1:]...)...)
			for rep := 0; rep < perExample; rep++ {
				copy(arg.Data[rep*rowLen:(rep+1)*rowLen], a.Slice(z).Data)
			}
			args[i] = arg
		}

		multipliers, err := explainer.Attribute(expanded, refs, args, cfg.Target)
		if err != nil {
			return nil, err
		}
		attr, err := aggregate(multipliers, expanded, refs)
		if err != nil {
			return nil, fmt.Errorf("reference explain: aggregate: %w", err)
		}

		mean := nn.NewTensor(alphabet, length)
		for rep := 0; rep < perExample; rep++ {
			floats.Add(mean.Data, attr.Slice(rep).Data)
		}
		floats.Scale(1/float64(perExample), mean.Data)
		if !cfg.Hypothetical {
			floats.Mul(mean.Data, X.Slice(z).Data)
		}
		rows = append(rows, mean)

		if cfg.ReturnReferences {
			refRows = append(refRows, refs.Clone())
		}
	}

	attributions, err := nn.Stack(rows)
	if err != nil {
		return nil, fmt.Errorf("reference explain: %w", err)
	}
	result := &Result{Attributions: attributions}
	if cfg.ReturnReferences {
		stacked, err := nn.Stack(refRows)
		if err != nil {
			return nil, fmt.Errorf("reference explain: %w", err)
		}
		result.References = stacked
	}
	return result, nil
}

// exampleReferences resolves the full reference set of one example,
// shaped (references, alphabet, length).
func exampleReferences(X *nn.Tensor, z, perExample int, cfg Config) (*nn.Tensor, error) {
	alphabet, length := X.Dim(1), X.Dim(2)
	row := alphabet * length

	if cfg.References != nil {
		return cfg.References.Slice(z).Clone(), nil
	}

	single, err := X.Take([]int{z})
	if err != nil {
		return nil, fmt.Errorf("reference explain: %w", err)
	}

	if cfg.RandomState != nil {
		refs := nn.NewTensor(perExample, alphabet, length)
		for rep := 0; rep < perExample; rep++ {
			generated, err := cfg.Shuffler(single, 1, *cfg.RandomState+int64(rep))
			if err != nil {
				return nil, fmt.Errorf("reference explain: reference generation: %w", err)
			}
			if generated.Size() != row {
				return nil, fmt.Errorf("reference explain: reference generator returned %d values, expected %d",
					generated.Size(), row)
			}
			copy(refs.Data[rep*row:(rep+1)*row], generated.Data)
		}
		return refs, nil
	}

	generated, err := cfg.Shuffler(single, perExample, rand.Int63())
	if err != nil {
		return nil, fmt.Errorf("reference explain: reference generation: %w", err)
	}
	reshaped := generated.Reshape(perExample, alphabet, length)
	if reshaped == nil {
		return nil, fmt.Errorf("reference explain: reference generator returned shape %v", generated.Shape)
	}
	return reshaped, nil
}
