package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/loomledger/loomledger/internal/shared"
)

var twelve = decimal.NewFromInt(12)

// FeetInches is a carpet dimension written as feet.inches: the integer part
// is feet and the digits after the point are whole inches, so "7.05" and
// "7.5" are both 7 ft 5 in while "7.10" is 7 ft 10 in. It is kept as text
// because the digits matter ("7.1" and "7.10" differ).
type FeetInches string

// UnmarshalJSON accepts either a JSON string or a bare JSON number and keeps
// the literal digits.
func (f *FeetInches) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FeetInches(strings.TrimSpace(s))
		return nil
	}
	*f = FeetInches(b)
	return nil
}

// Feet converts the dimension into decimal feet. An empty dimension is zero.
func (f FeetInches) Feet() (decimal.Decimal, error) {
	raw := strings.TrimSpace(string(f))
	if raw == "" {
		return decimal.Zero, nil
	}
	feetPart, inchPart, _ := strings.Cut(raw, ".")
	feet, err := parseWhole(feetPart)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: dimension %q must be feet.inches", shared.ErrValidation, raw)
	}
	inches, err := parseWhole(inchPart)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: dimension %q must be feet.inches", shared.ErrValidation, raw)
	}
	if inches >= 12 {
		return decimal.Zero, fmt.Errorf("%w: dimension %q has %d inches", shared.ErrValidation, raw, inches)
	}
	return decimal.NewFromInt(feet).Add(decimal.NewFromInt(inches).Div(twelve)), nil
}

func parseWhole(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a whole number: %q", s)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// ComputeWage returns length × width × price when all three are positive and
// zero otherwise.
func ComputeWage(length, width, pricePerSqft decimal.Decimal) decimal.Decimal {
	if !length.IsPositive() || !width.IsPositive() || !pricePerSqft.IsPositive() {
		return decimal.Zero
	}
	return length.Mul(width).Mul(pricePerSqft)
}
