package fees

import "math/big"

// Denominator converts basis points into a fraction of the settled amount.
const Denominator = 10_000

const (
	// MinBasisPoints is the lowest configurable standard fee rate.
	MinBasisPoints uint32 = 10
	// MaxBasisPoints is the highest configurable standard fee rate.
	MaxBasisPoints uint32 = 500
	// ArbitratedBasisPoints is the flat 5% cut applied to DAO-adjudicated
	// dispute outcomes, independent of the configurable rate.
	ArbitratedBasisPoints uint32 = 500
)

// ValidRate reports whether the supplied basis-point rate is inside the
// configurable [MinBasisPoints, MaxBasisPoints] window. Both bounds are
// accepted.
func ValidRate(bps uint32) bool {
	return bps >= MinBasisPoints && bps <= MaxBasisPoints
}

// Split divides the settled amount into an arbiter fee and a recipient
// payout at the supplied basis-point rate. Division truncates toward zero,
// so any sub-unit remainder stays with the recipient and
// fee + payout == amount holds exactly. Nil or non-positive amounts yield
// two zero values.
func Split(amount *big.Int, bps uint32) (fee, payout *big.Int) {
	fee = big.NewInt(0)
	payout = big.NewInt(0)
	if amount == nil || amount.Sign() <= 0 {
		return fee, payout
	}
	payout = new(big.Int).Set(amount)
	if bps == 0 {
		return fee, payout
	}
	fee = new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	fee.Div(fee, big.NewInt(Denominator))
	if fee.Cmp(payout) >= 0 {
		fee = new(big.Int).Set(payout)
		payout = big.NewInt(0)
		return fee, payout
	}
	payout = new(big.Int).Sub(payout, fee)
	return fee, payout
}
