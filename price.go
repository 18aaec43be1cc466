package x402

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// smallestUnitScale is 10^6, the scale factor between a human-readable USD
// price and the stablecoin's smallest unit.
var smallestUnitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(StablecoinDecimals), nil)

// priceFloorSmallestUnit is the minimum accepted smallest-unit amount
// ("0.001" units, per §4.1 validatePrice), as a decimal string that
// ValidatePrice compares against with *big.Int.
const priceFloorSmallestUnit = "1000" // 0.001 * 10^6, truncated per the multiply-then-round rule below is 1000

// ParsePrice accepts "$0.01", "0.01", or a bare float string, strips a
// leading currency symbol, rejects NaN/negative values, and returns the
// amount in the stablecoin's smallest unit as a decimal string.
func ParsePrice(price string) (string, error) {
	trimmed := strings.TrimSpace(price)
	trimmed = strings.TrimPrefix(trimmed, "$")
	if trimmed == "" {
		return "", fmt.Errorf("price is empty")
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return "", fmt.Errorf("invalid price %q: %w", price, err)
	}
	if value != value { // NaN
		return "", fmt.Errorf("invalid price %q: NaN", price)
	}
	if value < 0 {
		return "", fmt.Errorf("invalid price %q: negative", price)
	}

	scaled := new(big.Float).Mul(big.NewFloat(value), new(big.Float).SetInt(smallestUnitScale))
	rounded, _ := scaled.Add(scaled, big.NewFloat(0.5)).Int(nil)
	return rounded.String(), nil
}

// FormatPriceOptions configures FormatPrice's output shape.
type FormatPriceOptions struct {
	// Decimals is the number of fractional digits to render, 0..6. Zero
	// value defaults to 2.
	Decimals int
	// Symbol, when true, prefixes the result with "$".
	Symbol bool
}

// FormatPrice is the inverse of ParsePrice: given a smallest-unit decimal
// string, render a human-readable price with the requested decimal width
// (default 2, capped at 6) and optional "$" prefix.
func FormatPrice(smallestUnit string, opts FormatPriceOptions) (string, error) {
	amount, ok := new(big.Int).SetString(smallestUnit, 10)
	if !ok {
		return "", fmt.Errorf("invalid smallest-unit amount %q", smallestUnit)
	}

	decimals := opts.Decimals
	if decimals <= 0 {
		decimals = 2
	}
	if decimals > StablecoinDecimals {
		decimals = StablecoinDecimals
	}

	rat := new(big.Rat).SetFrac(amount, smallestUnitScale)
	text := rat.FloatString(decimals)

	if opts.Symbol {
		return "$" + text, nil
	}
	return text, nil
}

// ValidatePrice additionally enforces the §4.1 floor of 0.001 units on an
// already-parsed smallest-unit amount.
func ValidatePrice(smallestUnit string) error {
	amount, ok := new(big.Int).SetString(smallestUnit, 10)
	if !ok {
		return fmt.Errorf("invalid smallest-unit amount %q", smallestUnit)
	}
	floor, _ := new(big.Int).SetString(priceFloorSmallestUnit, 10)
	if amount.Cmp(floor) < 0 {
		return fmt.Errorf("price %s below minimum of %s smallest units", smallestUnit, priceFloorSmallestUnit)
	}
	return nil
}

// SplitFee computes the fee/publisher split described in §4.2 step 5:
// feeBps = round(feePercent*100); fee = value*feeBps/10000 (truncating);
// publisherAmount = value - fee.
func SplitFee(valueSmallest string, feePercent float64) (fee, publisherAmount *big.Int, err error) {
	value, ok := new(big.Int).SetString(valueSmallest, 10)
	if !ok {
		return nil, nil, fmt.Errorf("invalid value %q", valueSmallest)
	}
	feeBps := int64(feePercent*100 + 0.5)
	feeBpsBig := big.NewInt(feeBps)
	numerator := new(big.Int).Mul(value, feeBpsBig)
	fee = new(big.Int).Quo(numerator, big.NewInt(10000))
	publisherAmount = new(big.Int).Sub(value, fee)
	return fee, publisherAmount, nil
}
