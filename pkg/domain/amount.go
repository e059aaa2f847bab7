package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// DefaultPayoutYocto is the fixed amount paid to the originator when a lot
// reaches its terminal stage: 0.1 NEAR expressed in yoctoNEAR.
const DefaultPayoutYocto = "100000000000000000000000"

// Amount is a non-negative integer quantity of the smallest token unit.
// It serializes as a decimal string because values exceed 64 bits.
type Amount struct {
	v *big.Int
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount %q must not be negative", s)
	}
	return Amount{v: v}, nil
}

// MustParseAmount is ParseAmount for constants; it panics on malformed input.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ZeroAmount returns an amount of zero.
func ZeroAmount() Amount { return Amount{} }

func (a Amount) int() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Add returns a+b without mutating either operand.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.int(), b.int())}
}

// Cmp compares a and b as big.Int.Cmp does.
func (a Amount) Cmp(b Amount) int {
	return a.int().Cmp(b.int())
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.int().Sign() == 0
}

func (a Amount) String() string {
	return a.int().String()
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		s = n.String()
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
