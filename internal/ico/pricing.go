package ico

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// PurchaseCost returns the lamports charged for amount whole tokens.
func PurchaseCost(amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	hi, lo := bits.Mul64(amount, LamportsPerToken)
	if hi != 0 {
		return 0, fmt.Errorf("%w: price of %d tokens overflows", ErrInvalidAmount, amount)
	}
	return lo, nil
}

// RequiredBalance is the purchase cost plus the fee reserve.
func RequiredBalance(amount uint64) (uint64, error) {
	cost, err := PurchaseCost(amount)
	if err != nil {
		return 0, err
	}
	if cost > math.MaxUint64-FeeReserveLamports {
		return 0, fmt.Errorf("%w: price of %d tokens overflows", ErrInvalidAmount, amount)
	}
	return cost + FeeReserveLamports, nil
}

// ParseAmount parses a whole-token amount. Only strictly positive base-10
// integers are accepted; signs, decimals and whitespace inside are rejected.
func ParseAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return n, nil
}

// FormatSOL renders lamports as SOL with up to nine decimals.
func FormatSOL(lamports uint64) string {
	const perSOL = 1_000_000_000
	whole := lamports / perSOL
	frac := lamports % perSOL
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	digits := strings.TrimRight(strconv.FormatUint(frac+perSOL, 10)[1:], "0")
	return strconv.FormatUint(whole, 10) + "." + digits
}
