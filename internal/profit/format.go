package profit

import (
	"math/big"
	"strings"
)

// FormatUnits renders v scaled down by 10^decimals, without trailing
// fractional zeros: FormatUnits(-1500000, 6) == "-1.5".
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	if decimals == 0 {
		return v.String()
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	abs := new(big.Int).Abs(v)
	whole, frac := new(big.Int).QuoRem(abs, unit, new(big.Int))

	var b strings.Builder
	if v.Sign() < 0 {
		b.WriteByte('-')
	}
	b.WriteString(whole.String())
	if frac.Sign() != 0 {
		digits := frac.String()
		digits = strings.Repeat("0", int(decimals)-len(digits)) + digits
		b.WriteByte('.')
		b.WriteString(strings.TrimRight(digits, "0"))
	}
	return b.String()
}
