package domain

import "strconv"

// TokenDecimals is the scale of the sale token's base units.
const TokenDecimals = 1_000_000_000

// TokenBalance is a wallet's holding of the sale token.
type TokenBalance struct {
	Owner   string // wallet address
	Account string // associated token account address
	Amount  uint64 // base units
	Exists  bool   // false when the token account has not been created
}

// Tokens returns the balance in whole tokens, rounded down.
func (b *TokenBalance) Tokens() uint64 {
	return b.Amount / TokenDecimals
}

// String formats the balance with nine decimals, trailing zeros trimmed.
func (b *TokenBalance) String() string {
	whole := b.Amount / TokenDecimals
	frac := b.Amount % TokenDecimals
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	digits := strconv.FormatUint(frac+TokenDecimals, 10)[1:]
	for digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
	}
	return strconv.FormatUint(whole, 10) + "." + digits
}
