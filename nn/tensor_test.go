package nn

import (
	"testing"
)

// TestTensorCreation verifies basic tensor operations
func TestTensorCreation(t *testing.T) {
	tensor := NewTensor(3, 4)
	if tensor.Size() != 12 {
		t.Errorf("Expected size 12, got %d", tensor.Size())
	}
	if len(tensor.Shape) != 2 || tensor.Shape[0] != 3 || tensor.Shape[1] != 4 {
		t.Errorf("Expected shape [3, 4], got %v", tensor.Shape)
	}
	if tensor.Strides[0] != 4 || tensor.Strides[1] != 1 {
		t.Errorf("Expected strides [4, 1], got %v", tensor.Strides)
	}

	data := []float64{1, 2, 3, 4, 5, 6}
	tensor2 := NewTensorFromSlice(data, 2, 3)
	if tensor2 == nil {
		t.Fatal("NewTensorFromSlice returned nil for matching shape")
	}
	if tensor2.Data[0] != 1 || tensor2.Data[5] != 6 {
		t.Errorf("Data not correctly initialized")
	}
	if tensor2.At(1, 2) != 6 {
		t.Errorf("At(1,2): expected 6, got %v", tensor2.At(1, 2))
	}

	// Mismatched shape should return nil
	if NewTensorFromSlice(data, 2, 2) != nil {
		t.Error("NewTensorFromSlice with wrong shape should return nil")
	}
}

// TestTensorClone verifies tensor cloning
func TestTensorClone(t *testing.T) {
	original := NewTensorFromSlice([]float64{1, 2, 3, 4}, 4)
	clone := original.Clone()

	original.Data[0] = 100

	if clone.Data[0] != 1 {
		t.Errorf("Clone was modified when original changed")
	}
}

// TestTensorReshape verifies tensor reshaping
func TestTensorReshape(t *testing.T) {
	tensor := NewTensorFromSlice([]float64{1, 2, 3, 4, 5, 6}, 6)
	reshaped := tensor.Reshape(2, 3)

	if reshaped == nil {
		t.Fatal("Reshape returned nil")
	}
	if len(reshaped.Shape) != 2 || reshaped.Shape[0] != 2 || reshaped.Shape[1] != 3 {
		t.Errorf("Expected shape [2, 3], got %v", reshaped.Shape)
	}

	// Invalid reshape should return nil
	invalid := tensor.Reshape(2, 2)
	if invalid != nil {
		t.Error("Invalid reshape should return nil")
	}
}

// TestTensorConcatSplit verifies batch concatenation and splitting
func TestTensorConcatSplit(t *testing.T) {
	a := NewTensorFromSlice([]float64{1, 2, 3, 4}, 2, 2)
	b := NewTensorFromSlice([]float64{5, 6, 7, 8}, 2, 2)

	joined, err := Concat(a, b)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	if joined.Shape[0] != 4 || joined.Shape[1] != 2 {
		t.Errorf("Expected shape [4, 2], got %v", joined.Shape)
	}
	if joined.Data[4] != 5 {
		t.Errorf("Expected second tensor data at offset 4, got %v", joined.Data[4])
	}

	first, second, err := joined.SplitHalves()
	if err != nil {
		t.Fatalf("SplitHalves failed: %v", err)
	}
	if MaxAbsDiff(first.Data, a.Data) != 0 || MaxAbsDiff(second.Data, b.Data) != 0 {
		t.Error("Split halves do not match original tensors")
	}

	odd := NewTensor(3, 2)
	if _, _, err := odd.SplitHalves(); err == nil {
		t.Error("SplitHalves on odd batch should fail")
	}

	mismatched := NewTensor(2, 3)
	if _, err := Concat(a, mismatched); err == nil {
		t.Error("Concat with mismatched axes should fail")
	}
}

// TestTensorTakeStack verifies row gathering and stacking
func TestTensorTakeStack(t *testing.T) {
	x := NewTensorFromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2)

	picked, err := x.Take([]int{2, 0, 2})
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	want := []float64{5, 6, 1, 2, 5, 6}
	if MaxAbsDiff(picked.Data, want) != 0 {
		t.Errorf("Expected %v, got %v", want, picked.Data)
	}

	if _, err := x.Take([]int{3}); err == nil {
		t.Error("Take with out-of-range index should fail")
	}

	stacked, err := Stack([]*Tensor{x.Slice(0), x.Slice(1)})
	if err != nil {
		t.Fatalf("Stack failed: %v", err)
	}
	if stacked.Shape[0] != 2 || stacked.Shape[1] != 2 {
		t.Errorf("Expected shape [2, 2], got %v", stacked.Shape)
	}
	if stacked.Data[2] != 3 {
		t.Errorf("Expected 3 at offset 2, got %v", stacked.Data[2])
	}
}

// TestTensorSliceView verifies that Slice shares the backing array
func TestTensorSliceView(t *testing.T) {
	x := NewTensorFromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	view := x.Slice(1)

	if view.Shape[0] != 2 || view.Rank() != 1 {
		t.Errorf("Expected shape [2], got %v", view.Shape)
	}
	view.Data[0] = 42
	if x.Data[2] != 42 {
		t.Error("Slice should share the backing array")
	}
}

// TestOneHotRoundTrip verifies sequence encoding and decoding
func TestOneHotRoundTrip(t *testing.T) {
	seqs := []string{"ACGT", "TTCA"}
	X, err := OneHot(seqs, "ACGT")
	if err != nil {
		t.Fatalf("OneHot failed: %v", err)
	}
	if X.Shape[0] != 2 || X.Shape[1] != 4 || X.Shape[2] != 4 {
		t.Errorf("Expected shape [2, 4, 4], got %v", X.Shape)
	}

	// Column sums must be exactly one
	for n := 0; n < 2; n++ {
		for pos := 0; pos < 4; pos++ {
			sum := 0.0
			for a := 0; a < 4; a++ {
				sum += X.At(n, a, pos)
			}
			if sum != 1 {
				t.Errorf("Column (%d, %d) sums to %v, expected 1", n, pos, sum)
			}
		}
	}

	decoded, err := Characters(X, "ACGT")
	if err != nil {
		t.Fatalf("Characters failed: %v", err)
	}
	for i := range seqs {
		if decoded[i] != seqs[i] {
			t.Errorf("Expected %q, got %q", seqs[i], decoded[i])
		}
	}

	if _, err := OneHot([]string{"ACGX"}, "ACGT"); err == nil {
		t.Error("OneHot with unknown character should fail")
	}
	if _, err := OneHot([]string{"ACGT", "AC"}, "ACGT"); err == nil {
		t.Error("OneHot with ragged lengths should fail")
	}
}
