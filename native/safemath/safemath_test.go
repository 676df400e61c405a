package safemath

import (
	"errors"
	"math"
	"testing"
)

func TestCheckedOperations(t *testing.T) {
	tests := []struct {
		name    string
		fn      func() (uint64, error)
		want    uint64
		wantErr error
	}{
		{"add", func() (uint64, error) { return Add(2, 3) }, 5, nil},
		{"add overflow", func() (uint64, error) { return Add(math.MaxUint64, 1) }, 0, ErrOverflow},
		{"sub", func() (uint64, error) { return Sub(5, 3) }, 2, nil},
		{"sub underflow", func() (uint64, error) { return Sub(3, 5) }, 0, ErrUnderflow},
		{"mul", func() (uint64, error) { return Mul(6, 7) }, 42, nil},
		{"mul zero", func() (uint64, error) { return Mul(0, math.MaxUint64) }, 0, nil},
		{"mul overflow", func() (uint64, error) { return Mul(math.MaxUint64, 2) }, 0, ErrOverflow},
		{"div", func() (uint64, error) { return Div(7, 2) }, 3, nil},
		{"div by zero", func() (uint64, error) { return Div(7, 0) }, 0, ErrDivisionByZero},
		{"muldiv wide intermediate", func() (uint64, error) { return MulDiv(math.MaxUint64, 10, 20) }, math.MaxUint64 / 2, nil},
		{"muldiv overflow", func() (uint64, error) { return MulDiv(math.MaxUint64, 3, 2) }, 0, ErrOverflow},
		{"muldiv by zero", func() (uint64, error) { return MulDiv(1, 1, 0) }, 0, ErrDivisionByZero},
		{"bps", func() (uint64, error) { return Bps(333, 150) }, 4, nil},
		{"sum", func() (uint64, error) { return Sum([]uint64{300, 700}) }, 1000, nil},
		{"sum overflow", func() (uint64, error) { return Sum([]uint64{math.MaxUint64, 1}) }, 0, ErrOverflow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if !errors.Is(err, ErrArithmetic) {
					t.Fatalf("expected error to match ErrArithmetic, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}
