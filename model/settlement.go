package model

import (
	"math/bits"

	"github.com/blnkfinance/custody/internal/apierror"
)

const (
	BasisPointsDenominator = 10_000

	// FeeCeilingBps is the hard upper bound on the platform fee, 5%.
	FeeCeilingBps uint16 = 500
)

// Split is the fee-correct division of a pool: Fee + Net == Pool.
type Split struct {
	Pool uint64 `json:"pool"`
	Fee  uint64 `json:"fee"`
	Net  uint64 `json:"net"`
}

// ValidateFeeRate rejects rates above the ceiling.
func ValidateFeeRate(feeRateBps uint16) error {
	if feeRateBps > FeeCeilingBps {
		return apierror.Validation("fee rate %d bps exceeds the ceiling of %d bps", feeRateBps, FeeCeilingBps)
	}
	return nil
}

// ComputeSplit returns fee = floor(pool*bps/10000) and net = pool-fee.
func ComputeSplit(pool uint64, feeRateBps uint16) (Split, error) {
	if feeRateBps > FeeCeilingBps {
		return Split{}, apierror.Arithmetic("fee rate %d bps exceeds the ceiling of %d bps", feeRateBps, FeeCeilingBps)
	}
	hi, lo := bits.Mul64(pool, uint64(feeRateBps))
	if hi != 0 {
		return Split{}, apierror.Arithmetic("fee computation overflows for pool %d", pool)
	}
	fee := lo / BasisPointsDenominator
	return Split{Pool: pool, Fee: fee, Net: pool - fee}, nil
}

// AddAmounts sums amounts and fails instead of wrapping.
func AddAmounts(amounts ...uint64) (uint64, error) {
	var total uint64
	for _, a := range amounts {
		sum, carry := bits.Add64(total, a, 0)
		if carry != 0 {
			return 0, apierror.Arithmetic("amount overflow adding %d to %d", a, total)
		}
		total = sum
	}
	return total, nil
}

// MulAmount multiplies a unit amount by a count and fails instead of wrapping.
func MulAmount(unit, count uint64) (uint64, error) {
	hi, lo := bits.Mul64(unit, count)
	if hi != 0 {
		return 0, apierror.Arithmetic("amount overflow multiplying %d by %d", unit, count)
	}
	return lo, nil
}
