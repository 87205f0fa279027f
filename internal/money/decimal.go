// Package money implements a fixed-scale decimal suitable for wallet
// balances and fees: four fractional digits, stored internally as an
// int64 count of ten-thousandths to avoid binary-float drift, and
// serialized as plain decimal text at every store boundary.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Scale is the number of fractional digits every Decimal carries.
const Scale = 4

const scaleFactor = 10000

// Decimal is a fixed-scale fixed-point amount.
type Decimal struct {
	scaled int64
}

// Zero is the additive identity.
var Zero = Decimal{}

// New builds a Decimal from a whole-and-fractional pair, e.g.
// New(100, 0) == 100.0000.
func New(whole int64, tenThousandths int64) Decimal {
	return Decimal{scaled: whole*scaleFactor + tenThousandths}
}

// Parse reads a decimal string like "100.0000" or "0.025". Missing
// fractional digits are zero-padded; excess digits are truncated, not
// rounded, matching the fixed-scale contract.
func Parse(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("money: empty decimal string")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("money: invalid decimal %q: %w", s, err)
	}

	f := int64(0)
	if hasFrac {
		if len(frac) > Scale {
			frac = frac[:Scale]
		}
		for len(frac) < Scale {
			frac += "0"
		}
		fv, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return Zero, fmt.Errorf("money: invalid decimal %q: %w", s, err)
		}
		f = fv
	}

	d := Decimal{scaled: w*scaleFactor + f}
	if neg {
		d.scaled = -d.scaled
	}
	return d, nil
}

// MustParse is Parse but panics on error; used for compile-time constants.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the decimal with exactly Scale fractional digits.
func (d Decimal) String() string {
	neg := d.scaled < 0
	abs := d.scaled
	if neg {
		abs = -abs
	}
	whole := abs / scaleFactor
	frac := abs % scaleFactor
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%04d", sign, whole, frac)
}

// Add returns d+other.
func (d Decimal) Add(other Decimal) Decimal {
	return Decimal{scaled: d.scaled + other.scaled}
}

// Sub returns d-other.
func (d Decimal) Sub(other Decimal) Decimal {
	return Decimal{scaled: d.scaled - other.scaled}
}

// Cmp returns -1, 0, or 1 as d is less than, equal to, or greater than other.
func (d Decimal) Cmp(other Decimal) int {
	switch {
	case d.scaled < other.scaled:
		return -1
	case d.scaled > other.scaled:
		return 1
	default:
		return 0
	}
}

// IsPositive reports whether d > 0.
func (d Decimal) IsPositive() bool {
	return d.scaled > 0
}

// LessOrEqualZero reports whether d <= 0, the fee gate's refusal condition.
func (d Decimal) LessOrEqualZero() bool {
	return d.scaled <= 0
}
