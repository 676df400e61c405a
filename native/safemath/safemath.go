// Package safemath provides checked uint64 arithmetic for every monetary
// computation in the ledger. Operations fail instead of wrapping.
package safemath

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// BpsDenominator is the number of basis points in one whole.
const BpsDenominator = 10_000

var (
	// ErrArithmetic is matched by every error returned from this package.
	ErrArithmetic     = errors.New("safemath: arithmetic error")
	ErrOverflow       = fmt.Errorf("%w: overflow", ErrArithmetic)
	ErrUnderflow      = fmt.Errorf("%w: underflow", ErrArithmetic)
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrArithmetic)
)

// Add returns a+b.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// Sub returns a-b.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d", ErrUnderflow, a, b)
	}
	return a - b, nil
}

// Mul returns a*b.
func Mul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return product, nil
}

// Div returns a/b rounded down.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: %d / 0", ErrDivisionByZero, a)
	}
	return a / b, nil
}

// MulDiv returns floor(a*b/c). The product is held in 256 bits so only a
// quotient that does not fit in uint64 is reported as overflow.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, fmt.Errorf("%w: %d * %d / 0", ErrDivisionByZero, a, b)
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quotient := product.Div(product, uint256.NewInt(c))
	if !quotient.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrOverflow, a, b, c)
	}
	return quotient.Uint64(), nil
}

// Bps returns floor(amount*rate/10000).
func Bps(amount uint64, rate uint16) (uint64, error) {
	return MulDiv(amount, uint64(rate), BpsDenominator)
}

// Sum adds all values.
func Sum(values []uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		next, err := Add(total, v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}
