package function

import (
	"errors"
	"testing"
)

func TestCheck(t *testing.T) {
	f := New("axpy", []int{1, 2}, []int{2}, func(arg, res [][]float64) error {
		a := Zeros(arg[0], 1)[0]
		x := Zeros(arg[1], 2)
		for i := range res[0] {
			res[0][i] = a * x[i]
		}
		return nil
	})

	tests := []struct {
		name    string
		arg     [][]float64
		res     [][]float64
		wantErr bool
	}{
		{"ok", [][]float64{{2}, {1, 2}}, [][]float64{make([]float64, 2)}, false},
		{"nil input", [][]float64{nil, {1, 2}}, [][]float64{make([]float64, 2)}, false},
		{"nil output", [][]float64{{2}, {1, 2}}, [][]float64{nil}, false},
		{"short input", [][]float64{{2}, {1}}, [][]float64{make([]float64, 2)}, true},
		{"long output", [][]float64{{2}, {1, 2}}, [][]float64{make([]float64, 3)}, true},
		{"missing slot", [][]float64{{2}}, [][]float64{make([]float64, 2)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(f, tt.arg, tt.res)
			if tt.wantErr {
				if !errors.Is(err, ErrDimension) {
					t.Fatalf("expected ErrDimension, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestFuncEval(t *testing.T) {
	f := New("scale", []int{1, 2}, []int{2}, func(arg, res [][]float64) error {
		a := Zeros(arg[0], 1)[0]
		for i, v := range Zeros(arg[1], 2) {
			res[0][i] = a * v
		}
		return nil
	})
	out := make([]float64, 2)
	if err := f.Eval([][]float64{{3}, {1, -2}}, [][]float64{out}); err != nil {
		t.Fatal(err)
	}
	if out[0] != 3 || out[1] != -6 {
		t.Errorf("got %v, want [3 -6]", out)
	}
	if f.NIn() != 2 || f.NOut() != 1 || f.NnzIn(1) != 2 {
		t.Errorf("unexpected signature %d/%d/%d", f.NIn(), f.NOut(), f.NnzIn(1))
	}
}
