package domain

import (
	"fmt"
	"math/big"
)

// TokenAmount is a token quantity in on-chain base units. The zero value
// is zero tokens. JSON encoding is a decimal string so precision survives
// the browser boundary.
type TokenAmount struct {
	i big.Int
}

// NewTokenAmount copies v into a TokenAmount. A nil v is zero.
func NewTokenAmount(v *big.Int) TokenAmount {
	var a TokenAmount
	if v != nil {
		a.i.Set(v)
	}
	return a
}

// TokenAmountFromString parses a base-10 amount.
func TokenAmountFromString(s string) (TokenAmount, error) {
	var a TokenAmount
	if s == "" {
		return a, nil
	}
	if _, ok := a.i.SetString(s, 10); !ok {
		return TokenAmount{}, fmt.Errorf("domain: parse amount %q", s)
	}
	return a, nil
}

// TokenAmountFromInt64 builds an amount from an int64.
func TokenAmountFromInt64(v int64) TokenAmount {
	var a TokenAmount
	a.i.SetInt64(v)
	return a
}

// BigInt returns a copy; mutating it does not affect a.
func (a TokenAmount) BigInt() *big.Int { return new(big.Int).Set(&a.i) }

func (a TokenAmount) IsZero() bool { return a.i.Sign() == 0 }

func (a TokenAmount) Sign() int { return a.i.Sign() }

// Cmp returns -1, 0 or 1 as a is less than, equal to or greater than b.
func (a TokenAmount) Cmp(b TokenAmount) int { return a.i.Cmp(&b.i) }

func (a TokenAmount) Add(b TokenAmount) TokenAmount {
	var r TokenAmount
	r.i.Add(&a.i, &b.i)
	return r
}

func (a TokenAmount) Sub(b TokenAmount) TokenAmount {
	var r TokenAmount
	r.i.Sub(&a.i, &b.i)
	return r
}

// MulBps scales a by bps/10000, truncating toward zero.
func (a TokenAmount) MulBps(bps int64) TokenAmount {
	var r TokenAmount
	r.i.Mul(&a.i, big.NewInt(bps))
	r.i.Quo(&r.i, big.NewInt(10000))
	return r
}

// DivisibleBy reports whether a is an exact multiple of step. A zero step
// only divides zero.
func (a TokenAmount) DivisibleBy(step TokenAmount) bool {
	if step.IsZero() {
		return a.IsZero()
	}
	var m big.Int
	m.Rem(&a.i, &step.i)
	return m.Sign() == 0
}

func (a TokenAmount) String() string { return a.i.String() }

func (a TokenAmount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.i.String() + `"`), nil
}

func (a *TokenAmount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		a.i.SetInt64(0)
		return nil
	}
	if _, ok := a.i.SetString(s, 10); !ok {
		return fmt.Errorf("domain: parse amount %q", s)
	}
	return nil
}
