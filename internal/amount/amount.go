package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Slot ceilings for the on-chain fields an amount may be packed into.
var (
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	MaxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
	MaxUint48  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 48), big.NewInt(1))
)

// TokenAmount is an integer quantity in a token's smallest unit together with
// the decimals used to derive it. Values are never negative and never mutated
// after construction.
type TokenAmount struct {
	Value    *big.Int
	Decimals int
}

func (a TokenAmount) String() string {
	if a.Value == nil {
		return "0"
	}
	return a.Value.String()
}

// DecimalString renders the amount back into human decimal form.
func (a TokenAmount) DecimalString() string {
	if a.Value == nil {
		return "0"
	}
	return FormatDecimal(a.Value, a.Decimals)
}

// ParseDecimal converts a human decimal string like "1.23" into a TokenAmount
// scaled by the token's decimals.
func ParseDecimal(value string, decimals int) (TokenAmount, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return TokenAmount{}, clierr.New(clierr.CodeUsage, "invalid amount: empty value")
	}
	if decimals < 0 || decimals > 77 {
		return TokenAmount{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid amount: unsupported token decimals %d", decimals))
	}
	if !decimalPattern.MatchString(clean) {
		return TokenAmount{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid amount: %q must be in decimal form like 1.23", value))
	}
	parts := strings.SplitN(clean, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return TokenAmount{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid amount: precision exceeds token decimals (%d)", decimals))
	}
	combined := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined = strings.TrimLeft(combined, "0")
	if combined == "" {
		combined = "0"
	}
	v, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return TokenAmount{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid amount: %q", value))
	}
	return TokenAmount{Value: v, Decimals: decimals}, nil
}

// ParseBaseUnits converts an integer base-unit string into a TokenAmount.
func ParseBaseUnits(value string, decimals int) (TokenAmount, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return TokenAmount{}, clierr.New(clierr.CodeUsage, "invalid amount: empty value")
	}
	v, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return TokenAmount{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid amount: %q must be an integer in base units", value))
	}
	if v.Sign() < 0 {
		return TokenAmount{}, clierr.New(clierr.CodeUsage, "invalid amount: must be non-negative")
	}
	return TokenAmount{Value: v, Decimals: decimals}, nil
}

// CheckWidth rejects amounts that do not fit the named slot before any network
// write is attempted.
func CheckWidth(a TokenAmount, max *big.Int, slot string) error {
	if a.Value == nil {
		return clierr.New(clierr.CodeUsage, "invalid amount: missing value")
	}
	if a.Value.Sign() < 0 {
		return clierr.New(clierr.CodeUsage, "invalid amount: must be non-negative")
	}
	if a.Value.Cmp(max) > 0 {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("value out of range for %s slot", slot))
	}
	return nil
}

// Deadline converts an offset into an absolute unix-seconds deadline.
func Deadline(now time.Time, offset time.Duration) *big.Int {
	return big.NewInt(now.Add(offset).Unix())
}

// CheckDeadline rejects deadlines that are not strictly in the future.
func CheckDeadline(deadline *big.Int, now time.Time) error {
	if deadline == nil || deadline.Cmp(big.NewInt(now.Unix())) <= 0 {
		return clierr.New(clierr.CodeDeadline, "deadline is not in the future")
	}
	return nil
}

// FormatDecimal converts a base-unit integer into a decimal string.
func FormatDecimal(v *big.Int, decimals int) string {
	s := new(big.Int).Abs(v).String()
	if decimals <= 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
