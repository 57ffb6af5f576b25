// Package amount implements the arbitrary-precision integer type used for
// every monetary quantity in the node. Values are persisted as 32-character
// zero-padded decimal strings so that lexicographic ordering of the stored
// form equals numeric ordering.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// PadLength is the width of the persisted decimal form. Writes of values
// whose decimal representation exceeds this many digits are rejected.
const PadLength = 32

var (
	// ErrTooLarge is returned when a value does not fit the persisted form.
	ErrTooLarge = errors.New("amount exceeds 32 digits")
	// ErrInvalid is returned when parsing a malformed number.
	ErrInvalid = errors.New("invalid amount")
)

var (
	bigTen      = big.NewInt(10)
	bpsDivisor  = big.NewInt(10000)
	powTenCache [PadLength + 1]*big.Int
)

func init() {
	p := big.NewInt(1)
	for i := 0; i <= PadLength; i++ {
		powTenCache[i] = new(big.Int).Set(p)
		p.Mul(p, bigTen)
	}
}

// Amount is an immutable arbitrary-precision signed integer. The zero value
// is usable and equals 0.
type Amount struct {
	i *big.Int
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// New returns an Amount holding v.
func New(v int64) Amount { return Amount{i: big.NewInt(v)} }

// FromBig copies v into an Amount. A nil v yields zero.
func FromBig(v *big.Int) Amount {
	if v == nil {
		return Amount{}
	}
	return Amount{i: new(big.Int).Set(v)}
}

// Parse reads a decimal integer, accepting both the plain and the
// zero-padded persisted forms and an optional leading minus sign.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrInvalid
	}
	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return Amount{}, ErrInvalid
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return Amount{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if neg {
		i.Neg(i)
	}
	return Amount{i: i}, nil
}

// MustParse is Parse for literals; it panics on malformed input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.i == nil {
		return new(big.Int)
	}
	return a.i
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int { return new(big.Int).Set(a.big()) }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{i: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{i: new(big.Int).Sub(a.big(), b.big())}
}

// Mul returns a * b.
func (a Amount) Mul(b Amount) Amount {
	return Amount{i: new(big.Int).Mul(a.big(), b.big())}
}

// Div returns a / b truncated toward zero. Division by zero yields zero;
// callers guard denominators where that distinction matters.
func (a Amount) Div(b Amount) Amount {
	if b.big().Sign() == 0 {
		return Amount{}
	}
	return Amount{i: new(big.Int).Quo(a.big(), b.big())}
}

// MulDiv returns a * num / den without intermediate overflow concerns.
func (a Amount) MulDiv(num, den Amount) Amount {
	if den.big().Sign() == 0 {
		return Amount{}
	}
	p := new(big.Int).Mul(a.big(), num.big())
	return Amount{i: p.Quo(p, den.big())}
}

// PercentBps returns a * bps / 10000, the basis-point share of a.
func (a Amount) PercentBps(bps int64) Amount {
	p := new(big.Int).Mul(a.big(), big.NewInt(bps))
	return Amount{i: p.Quo(p, bpsDivisor)}
}

// Sqrt returns the integer square root. Negative inputs yield zero.
func (a Amount) Sqrt() Amount {
	if a.big().Sign() < 0 {
		return Amount{}
	}
	return Amount{i: new(big.Int).Sqrt(a.big())}
}

// Neg returns -a.
func (a Amount) Neg() Amount { return Amount{i: new(big.Int).Neg(a.big())} }

// Cmp compares a and b, returning -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.big().Cmp(b.big()) }

// Sign reports -1, 0 or +1 for the sign of a.
func (a Amount) Sign() int { return a.big().Sign() }

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.big().Sign() == 0 }

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool { return a.big().Sign() < 0 }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return a.big().Sign() > 0 }

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// PowTen returns 10^n. n must be within the persisted width.
func PowTen(n int) Amount {
	if n < 0 {
		return Amount{}
	}
	if n <= PadLength {
		return Amount{i: powTenCache[n]}
	}
	return Amount{i: new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)}
}

// Rescale converts a value carrying fromDecimals fractional digits into one
// carrying toDecimals, truncating when precision shrinks.
func (a Amount) Rescale(fromDecimals, toDecimals uint8) Amount {
	switch {
	case fromDecimals == toDecimals:
		return a
	case toDecimals > fromDecimals:
		return a.Mul(PowTen(int(toDecimals - fromDecimals)))
	default:
		return a.Div(PowTen(int(fromDecimals - toDecimals)))
	}
}

// String renders the plain decimal form.
func (a Amount) String() string { return a.big().String() }

// Padded renders the persisted form: the absolute value zero-padded to 32
// digits, prefixed with '-' when negative. Values wider than 32 digits are
// rejected, which is the write-time bound on every stored quantity.
func (a Amount) Padded() (string, error) {
	abs := new(big.Int).Abs(a.big())
	digits := abs.String()
	if len(digits) > PadLength {
		return "", fmt.Errorf("%w: %s", ErrTooLarge, digits)
	}
	padded := strings.Repeat("0", PadLength-len(digits)) + digits
	if a.big().Sign() < 0 {
		return "-" + padded, nil
	}
	return padded, nil
}

// Human renders a raw value as a decimal fraction given the token's
// registered decimal count, trimming trailing fractional zeros.
func (a Amount) Human(decimals uint8) string {
	if decimals == 0 {
		return a.String()
	}
	scale := PowTen(int(decimals)).big()
	abs := new(big.Int).Abs(a.big())
	whole, frac := new(big.Int).QuoRem(abs, scale, new(big.Int))
	out := whole.String()
	fracDigits := frac.String()
	if len(fracDigits) < int(decimals) {
		fracDigits = strings.Repeat("0", int(decimals)-len(fracDigits)) + fracDigits
	}
	fracDigits = strings.TrimRight(fracDigits, "0")
	if fracDigits != "" {
		out += "." + fracDigits
	}
	if a.big().Sign() < 0 {
		out = "-" + out
	}
	return out
}

// ParseHuman reads a decimal fraction into raw units for the given decimal
// count. Excess fractional digits are rejected rather than silently dropped.
func ParseHuman(s string, decimals uint8) (Amount, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	whole, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return Amount{}, fmt.Errorf("%w: more than %d fractional digits", ErrInvalid, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))
	w, err := Parse(whole)
	if err != nil {
		return Amount{}, err
	}
	raw := w.Mul(PowTen(int(decimals)))
	if frac != "" {
		f, err := Parse(frac)
		if err != nil {
			return Amount{}, err
		}
		raw = raw.Add(f)
	}
	if neg {
		raw = raw.Neg()
	}
	return raw, nil
}

// MarshalJSON emits the persisted padded form.
func (a Amount) MarshalJSON() ([]byte, error) {
	p, err := a.Padded()
	if err != nil {
		return nil, err
	}
	return []byte(`"` + p + `"`), nil
}

// UnmarshalJSON accepts padded strings, plain decimal strings and bare JSON
// integers. Fractions are not accepted; raw units cross the wire as integers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = Amount{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
