package mathutil

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// ToAtomicUnits converts an amount expressed in whole units into the integer
// amount of atomic units for the given precision. Fractions smaller than an
// atomic unit are truncated.
func ToAtomicUnits(amount decimal.Decimal, precision int32) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative")
	}
	units := amount.Shift(precision).Truncate(0).BigInt()
	if units.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("amount %s overflows atomic units", amount)
	}
	return units.Uint64(), nil
}

// FromAtomicUnits converts an integer amount of atomic units into a decimal
// amount of whole units for the given precision.
func FromAtomicUnits(units uint64, precision int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -precision)
}

// Add returns x + y and whether the sum did not overflow.
func Add(x, y uint64) (uint64, bool) {
	z := x + y
	return z, z >= x
}

// Sub returns x - y and whether the result is not negative.
func Sub(x, y uint64) (uint64, bool) {
	if y > x {
		return 0, false
	}
	return x - y, true
}

// MulDiv returns x * y / z computed with arbitrary precision, and whether the
// result fits an uint64.
func MulDiv(x, y, z uint64) (uint64, bool) {
	if z == 0 {
		return 0, false
	}
	X := new(big.Int).SetUint64(x)
	Y := new(big.Int).SetUint64(y)
	res := new(big.Int).Div(new(big.Int).Mul(X, Y), new(big.Int).SetUint64(z))
	if res.Cmp(maxUint64) > 0 {
		return 0, false
	}
	return res.Uint64(), true
}
