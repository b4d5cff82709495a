package amm

import (
	"fmt"
	"math/big"
	"math/bits"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Amount is a USDC-denominated quantity (collateral or shares) scaled by 10^6.
// E.g., 1.5 USDC = 1,500,000 Amount.
type Amount uint64

const (
	// Scale is the number of Amount units in one whole USDC or share.
	Scale Amount = 1_000_000

	// Decimals is the number of fractional digits carried by Amount.
	Decimals = 6

	bpsDenominator = 10_000
)

func (a Amount) String() string {
	return fmt.Sprintf("%d.%06d", a/Scale, a%Scale)
}

// Float64 converts to whole units. Display only; never feed the result back
// into reserve arithmetic.
func (a Amount) Float64() float64 {
	return float64(a) / float64(Scale)
}

// Decimal returns the amount in whole units (1.5 USDC -> 1.5).
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -Decimals)
}

// Units returns the raw integer micro-units as a decimal with zero exponent,
// suitable for arbitrary-precision numeric columns.
func (a Amount) Units() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), 0)
}

// ParseAmount parses a decimal string such as "100" or "0.25" into an Amount.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q is not a number", ErrInvalidArgument, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: amount %q is negative", ErrInvalidArgument, s)
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return 0, fmt.Errorf("%w: amount %q has more than %d decimal places", ErrInvalidArgument, s, Decimals)
	}
	return AmountFromUnits(d.Shift(Decimals))
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromUnits converts integer micro-units (as stored in numeric columns)
// back into an Amount.
func AmountFromUnits(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s is not a non-negative integer unit count", ErrInvalidArgument, d)
	}
	bi := d.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows amount", ErrInvalidArgument, d)
	}
	return Amount(bi.Uint64()), nil
}

// U256FromUnits converts an integer decimal into a uint256 (used for k).
func U256FromUnits(d decimal.Decimal) (uint256.Int, error) {
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return uint256.Int{}, fmt.Errorf("%w: %s is not a non-negative integer", ErrInvalidArgument, d)
	}
	v, overflow := uint256.FromBig(d.BigInt())
	if overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s overflows uint256", ErrInvalidArgument, d)
	}
	return *v, nil
}

// U256Units renders a uint256 as an integer decimal.
func U256Units(v uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), 0)
}

func addAmounts(a, b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %s + %s overflows", ErrInvalidArgument, a, b)
	}
	return Amount(sum), nil
}

func subAmounts(a, b Amount) (Amount, error) {
	diff, borrow := bits.Sub64(uint64(a), uint64(b), 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %s - %s underflows", ErrInvalidArgument, a, b)
	}
	return Amount(diff), nil
}

// mulDiv returns floor(a * num / den) without intermediate overflow.
func mulDiv(a Amount, num, den uint64) Amount {
	var z uint256.Int
	z.Mul(uint256.NewInt(uint64(a)), uint256.NewInt(num))
	z.Div(&z, uint256.NewInt(den))
	return Amount(z.Uint64())
}

// mulDivCeil returns ceil(a * num / den).
func mulDivCeil(a Amount, num, den uint64) Amount {
	var p, q, r uint256.Int
	p.Mul(uint256.NewInt(uint64(a)), uint256.NewInt(num))
	d := uint256.NewInt(den)
	q.Div(&p, d)
	r.Mod(&p, d)
	if !r.IsZero() {
		q.AddUint64(&q, 1)
	}
	return Amount(q.Uint64())
}

func u256(a Amount) *uint256.Int {
	return uint256.NewInt(uint64(a))
}

// signedDiff returns a - b as a signed unit count.
func signedDiff(a, b Amount) (int64, error) {
	const maxInt64 = 1<<63 - 1
	if a > maxInt64 || b > maxInt64 {
		return 0, fmt.Errorf("%w: %s - %s exceeds signed range", ErrInvalidArgument, a, b)
	}
	return int64(a) - int64(b), nil
}

// MarshalText renders the amount as a decimal string ("100.500000").
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts the same syntax as ParseAmount.
func (a *Amount) UnmarshalText(text []byte) error {
	v, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// CheckedAdd returns a + b, or an ErrInvalidArgument error on overflow.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	return addAmounts(a, b)
}
