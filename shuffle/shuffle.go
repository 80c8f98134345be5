// Package shuffle generates background references for attribution by
// shuffling one-hot encoded sequences. Every generator is deterministic
// for a fixed seed.
package shuffle

import (
	"fmt"
	"math/rand"

	"github.com/openfluke/lift/nn"
)

// Dinucleotide produces n shuffles of each sequence that preserve exact
// dinucleotide counts, using the last-exit Eulerian walk: each symbol's
// successor list is permuted except for its final entry, which pins the
// walk to the original terminal symbol, then the sequence is rewalked
// from the start. Returns a (batch, n, alphabet, length) tensor.
func Dinucleotide(X *nn.Tensor, n int, seed int64) (*nn.Tensor, error) {
	return generate(X, n, seed, dinucleotideWalk)
}

// Mononucleotide produces n shuffles of each sequence that preserve
// symbol composition only, by permuting positions uniformly. Returns a
// (batch, n, alphabet, length) tensor.
func Mononucleotide(X *nn.Tensor, n int, seed int64) (*nn.Tensor, error) {
	return generate(X, n, seed, func(tokens []int, alphabet int, rng *rand.Rand) []int {
		out := make([]int, len(tokens))
		for i, p := range rng.Perm(len(tokens)) {
			out[i] = tokens[p]
		}
		return out
	})
}

func generate(X *nn.Tensor, n int, seed int64, walk func(tokens []int, alphabet int, rng *rand.Rand) []int) (*nn.Tensor, error) {
	if X == nil || X.Rank() != 3 {
		return nil, fmt.Errorf("shuffle: expected a (batch, alphabet, length) tensor")
	}
	if n <= 0 {
		return nil, fmt.Errorf("shuffle: need a positive shuffle count, got %d", n)
	}
	batch, alphabet, length := X.Dim(0), X.Dim(1), X.Dim(2)

	rng := rand.New(rand.NewSource(seed))
	out := nn.NewTensor(batch, n, alphabet, length)
	for b := 0; b < batch; b++ {
		tokens, err := tokenize(X, b)
		if err != nil {
			return nil, err
		}
		for s := 0; s < n; s++ {
			shuffled := walk(tokens, alphabet, rng)
			base := b*n*alphabet*length + s*alphabet*length
			for pos, tok := range shuffled {
				out.Data[base+tok*length+pos] = 1
			}
		}
	}
	return out, nil
}

// tokenize converts one batch entry to symbol indices, verifying the
// entry is strictly one-hot.
func tokenize(X *nn.Tensor, b int) ([]int, error) {
	alphabet, length := X.Dim(1), X.Dim(2)
	tokens := make([]int, length)
	for pos := 0; pos < length; pos++ {
		hot := -1
		for a := 0; a < alphabet; a++ {
			v := X.At(b, a, pos)
			if v == 0 {
				continue
			}
			if v != 1 || hot >= 0 {
				return nil, fmt.Errorf("shuffle: sequence %d is not one-hot encoded at position %d", b, pos)
			}
			hot = a
		}
		if hot < 0 {
			return nil, fmt.Errorf("shuffle: sequence %d is not one-hot encoded at position %d", b, pos)
		}
		tokens[pos] = hot
	}
	return tokens, nil
}

// dinucleotideWalk rewalks the transition lists of one sequence with each
// symbol's successors permuted except the last.
func dinucleotideWalk(tokens []int, alphabet int, rng *rand.Rand) []int {
	result := make([]int, len(tokens))
	if len(tokens) == 0 {
		return result
	}
	result[0] = tokens[0]
	if len(tokens) == 1 {
		return result
	}

	// next[t] lists the positions following each occurrence of t,
	// in order of occurrence.
	next := make([][]int, alphabet)
	for pos := 0; pos < len(tokens)-1; pos++ {
		t := tokens[pos]
		next[t] = append(next[t], pos+1)
	}

	// Permute every successor list except its final entry.
	for t := range next {
		inds := next[t]
		if len(inds) < 3 {
			continue
		}
		perm := rng.Perm(len(inds) - 1)
		shuffled := make([]int, len(inds))
		for i, p := range perm {
			shuffled[i] = inds[p]
		}
		shuffled[len(inds)-1] = inds[len(inds)-1]
		next[t] = shuffled
	}

	counters := make([]int, alphabet)
	ind := 0
	for j := 1; j < len(tokens); j++ {
		t := tokens[ind]
		ind = next[t][counters[t]]
		counters[t]++
		result[j] = tokens[ind]
	}
	return result
}
