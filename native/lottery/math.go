package lottery

import "github.com/holiman/uint256"

var hundred = uint256.NewInt(100)

func checkedMul(a, b uint64) (uint64, error) {
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !product.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return product.Uint64(), nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return sum.Uint64(), nil
}

// splitFee returns floor(total*feePercent/100) and the remainder. The product
// is formed in 256 bits so totals close to the uint64 limit do not wrap.
func splitFee(total uint64, feePercent uint8) (fee, net uint64) {
	if feePercent == 0 || total == 0 {
		return 0, total
	}
	product := new(uint256.Int).Mul(uint256.NewInt(total), uint256.NewInt(uint64(feePercent)))
	fee = product.Div(product, hundred).Uint64()
	if fee > total {
		fee = total
	}
	return fee, total - fee
}

// prizeShare divides pool equally across winners; the remainder is paid to
// whoever settles the final unclaimed entry.
func prizeShare(pool uint64, winners int) (share, remainder uint64) {
	if winners <= 0 {
		return 0, pool
	}
	n := uint64(winners)
	return pool / n, pool % n
}
