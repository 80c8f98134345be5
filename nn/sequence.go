package nn

import (
	"fmt"
	"strings"
)

// OneHot encodes character sequences into a (batch, alphabet, length)
// tensor. All sequences must share one length and use only alphabet
// characters.
func OneHot(seqs []string, alphabet string) (*Tensor, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("one-hot: no sequences")
	}
	length := len(seqs[0])
	out := NewTensor(len(seqs), len(alphabet), length)
	for n, seq := range seqs {
		if len(seq) != length {
			return nil, fmt.Errorf("one-hot: sequence %d has length %d, expected %d", n, len(seq), length)
		}
		for pos := 0; pos < length; pos++ {
			a := strings.IndexByte(alphabet, seq[pos])
			if a < 0 {
				return nil, fmt.Errorf("one-hot: sequence %d has character %q outside alphabet %q", n, seq[pos], alphabet)
			}
			out.Data[n*len(alphabet)*length+a*length+pos] = 1
		}
	}
	return out, nil
}

// Characters decodes a (batch, alphabet, length) tensor back into strings
// by taking the argmax over the alphabet axis at every position.
func Characters(X *Tensor, alphabet string) ([]string, error) {
	if X.Rank() != 3 {
		return nil, fmt.Errorf("characters: expected rank-3 input, got shape %v", X.Shape)
	}
	if X.Dim(1) != len(alphabet) {
		return nil, fmt.Errorf("characters: alphabet axis %d does not match alphabet %q", X.Dim(1), alphabet)
	}
	batch, size, length := X.Dim(0), X.Dim(1), X.Dim(2)

	seqs := make([]string, batch)
	var b strings.Builder
	for n := 0; n < batch; n++ {
		b.Reset()
		for pos := 0; pos < length; pos++ {
			best := 0
			for a := 1; a < size; a++ {
				if X.Data[n*size*length+a*length+pos] > X.Data[n*size*length+best*length+pos] {
					best = a
				}
			}
			b.WriteByte(alphabet[best])
		}
		seqs[n] = b.String()
	}
	return seqs, nil
}
