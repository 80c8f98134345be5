package deeplift

import (
	"fmt"

	"github.com/openfluke/lift/nn"
)

// HypotheticalAttributions projects multipliers into importance scores
// for every alphabet symbol, observed or not: for each position and
// symbol it simulates the one-hot input fixed to that symbol, subtracts
// the reference, weights by the multipliers and sums over the alphabet
// axis. Multiplying the result by the observed one-hot input recovers
// ordinary attributions; keeping all rows yields the hypothetical scores
// motif discovery tools consume.
//
// With a zero reference the projection reduces to the multipliers
// themselves.
func HypotheticalAttributions(multipliers, X, references *nn.Tensor) (*nn.Tensor, error) {
	if multipliers == nil || X == nil || references == nil {
		return nil, fmt.Errorf("hypothetical: nil input")
	}
	if X.Rank() != 3 {
		return nil, fmt.Errorf("hypothetical: expected (batch, alphabet, length) tensors, got shape %v", X.Shape)
	}
	if !nn.SameShape(multipliers, X) || !nn.SameShape(references, X) {
		return nil, fmt.Errorf("hypothetical: shapes differ: multipliers %v, inputs %v, references %v",
			multipliers.Shape, X.Shape, references.Shape)
	}

	batch, alphabet, length := X.Dim(0), X.Dim(1), X.Dim(2)
	out := nn.NewTensor(X.Shape...)
	for b := 0; b < batch; b++ {
		base := b * alphabet * length
		for pos := 0; pos < length; pos++ {
			for s := 0; s < alphabet; s++ {
				contrib := 0.0
				for a := 0; a < alphabet; a++ {
					hyp := 0.0
					if a == s {
						hyp = 1.0
					}
					contrib += (hyp - references.Data[base+a*length+pos]) * multipliers.Data[base+a*length+pos]
				}
				out.Data[base+s*length+pos] = contrib
			}
		}
	}
	return out, nil
}
