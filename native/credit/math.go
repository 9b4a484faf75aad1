package credit

import (
	"math/big"

	"github.com/holiman/uint256"
)

// rateScale is the 1e18 fixed-point unit shared by rate tiers and
// accumulators (1.0 = no interest).
var (
	rateScale    = uint256.NewInt(1_000_000_000_000_000_000)
	rateScaleBig = new(big.Int).SetUint64(1_000_000_000_000_000_000)
	halfScale    = new(uint256.Int).Rsh(rateScale, 1)
)

// ppmScale is the parts-per-million unit used for vault percentage bounds.
const ppmScale = 1_000_000

// rpow raises a 1e18-scaled growth factor to the given power using binary
// exponentiation, rounding half-up at every step. Any intermediate product
// that leaves the representable 256-bit range fails the whole call instead of
// wrapping.
func rpow(x *uint256.Int, n uint64) (*uint256.Int, error) {
	result := new(uint256.Int).Set(rateScale)
	if n == 0 || x == nil {
		return result, nil
	}
	base := new(uint256.Int).Set(x)
	for {
		if n&1 == 1 {
			next, err := mulScaled(result, base)
			if err != nil {
				return nil, err
			}
			result = next
		}
		n >>= 1
		if n == 0 {
			break
		}
		squared, err := mulScaled(base, base)
		if err != nil {
			return nil, err
		}
		base = squared
	}
	return result, nil
}

// mulScaled multiplies two 1e18-scaled factors with half-up rounding and
// explicit overflow detection.
func mulScaled(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrRateOverflow
	}
	rounded, carry := new(uint256.Int).AddOverflow(product, halfScale)
	if carry {
		return nil, ErrRateOverflow
	}
	return rounded.Div(rounded, rateScale), nil
}

// mulDivCeil returns ceil(a*b/den) for non-negative inputs. A nil or zero
// denominator yields zero.
func mulDivCeil(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(a, b)
	if num.Sign() == 0 {
		return big.NewInt(0)
	}
	num.Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	return num.Quo(num, den)
}

// mulDivFloor returns floor(a*b/den) for non-negative inputs.
func mulDivFloor(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(a, b)
	return num.Quo(num, den)
}

// owedAmount converts a normalized principal back into the current owed
// amount under the supplied accumulated rate, ceiling rounded.
func owedAmount(normalized *big.Int, acc *uint256.Int) *big.Int {
	if normalized == nil || normalized.Sign() == 0 || acc == nil {
		return big.NewInt(0)
	}
	return mulDivCeil(normalized, acc.ToBig(), rateScaleBig)
}

// normalizeAmount divides a raw amount by the accumulated rate, ceiling
// rounded so owedAmount never undershoots the raw amount.
func normalizeAmount(amount *big.Int, acc *uint256.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 || acc == nil || acc.IsZero() {
		return big.NewInt(0)
	}
	normalized := mulDivCeil(amount, rateScaleBig, acc.ToBig())
	if normalized.Sign() == 0 {
		return big.NewInt(1)
	}
	return normalized
}

func minAmount(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
