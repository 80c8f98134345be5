package deeplift

import (
	"github.com/openfluke/lift/nn"
)

// accumulator collects per-pair attribution tensors arriving in strict
// row-major (example, reference) order and releases one example's worth
// at a time. Compute batches cut across example boundaries, so a batch
// may finish zero, one or several examples; the completion counter
// guarantees no example is released before all of its references have
// arrived.
type accumulator struct {
	perExample int
	pending    []*nn.Tensor // FIFO of pair results not yet released
	seen       int          // completion counter for the head example
	finalized  int          // examples released so far
}

func newAccumulator(perExample int) *accumulator {
	return &accumulator{perExample: perExample}
}

// add records one pair result. When it completes the head example, the
// example's entries are returned in arrival order along with its index;
// otherwise the slice is nil.
func (a *accumulator) add(t *nn.Tensor) ([]*nn.Tensor, int) {
	a.pending = append(a.pending, t)
	a.seen++
	if a.seen < a.perExample {
		return nil, -1
	}

	entries := a.pending[:a.perExample:a.perExample]
	a.pending = a.pending[a.perExample:]
	a.seen = 0
	idx := a.finalized
	a.finalized++
	return entries, idx
}

// leftover reports pairs still waiting. Zero after a complete run.
func (a *accumulator) leftover() int { return len(a.pending) }
