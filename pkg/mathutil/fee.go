package mathutil

// TenThousands is the basis point denominator.
var TenThousands = uint64(10000)

// FeeAmount calculates the fee for the given amount and fee expressed in
// basis point (ie. 0.25% = 25). The result is truncated to the atomic unit.
func FeeAmount(amount, feeAsBasisPoint uint64) uint64 {
	fee, ok := MulDiv(amount, feeAsBasisPoint, TenThousands)
	if !ok {
		return 0
	}
	return fee
}

// PlusFee returns the amount with the fee added and the calculated fee.
func PlusFee(amount, feeAsBasisPoint uint64) (withFee, calculatedFee uint64) {
	calculatedFee = FeeAmount(amount, feeAsBasisPoint)
	withFee, _ = Add(amount, calculatedFee)
	return
}

// LessFee returns the amount with the fee subtracted and the calculated fee.
func LessFee(amount, feeAsBasisPoint uint64) (withFee, calculatedFee uint64) {
	calculatedFee = FeeAmount(amount, feeAsBasisPoint)
	withFee, _ = Sub(amount, calculatedFee)
	return
}
