package rpc

import (
	"encoding/hex"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind is the JSON value type of a parameter, named the way error messages
// report it.
type Kind string

const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindReal   Kind = "real"
	KindString Kind = "str"
	KindArray  Kind = "array"
	KindObject Kind = "obj"
)

// KindOf classifies a JSON value. Numbers written without a fraction or
// exponent are ints.
func KindOf(v gjson.Result) Kind {
	switch v.Type {
	case gjson.Null:
		return KindNull
	case gjson.True, gjson.False:
		return KindBool
	case gjson.Number:
		if strings.ContainsAny(v.Raw, ".eE") {
			return KindReal
		}
		return KindInt
	case gjson.String:
		return KindString
	default:
		if v.IsArray() {
			return KindArray
		}
		return KindObject
	}
}

// Params are the positional arguments of a request.
type Params []gjson.Result

// At returns the i-th parameter, or a zero Result (which does not Exist)
// when i is out of range.
func (p Params) At(i int) gjson.Result {
	if i < 0 || i >= len(p) {
		return gjson.Result{}
	}
	return p[i]
}

// Check verifies the leading parameters against kinds. Missing trailing
// parameters are not an error; arity is enforced by the dispatcher.
func (p Params) Check(kinds ...Kind) error {
	return p.check(false, kinds)
}

// CheckAllowNull is Check but lets any parameter be null.
func (p Params) CheckAllowNull(kinds ...Kind) error {
	return p.check(true, kinds)
}

func (p Params) check(allowNull bool, kinds []Kind) error {
	for i, want := range kinds {
		if i >= len(p) {
			break
		}
		got := KindOf(p[i])
		if got == want || (allowNull && got == KindNull) {
			continue
		}
		return NewError(ErrCodeType, "Expected type %s, got %s", want, got)
	}
	return nil
}

const (
	// Coin is the number of base units in one coin.
	Coin int64 = 1_000_000
	// MaxMoney bounds any single amount.
	MaxMoney int64 = 2_000_000_000 * Coin
)

// AmountFromValue converts a JSON number of coins to base units.
func AmountFromValue(v gjson.Result) (int64, error) {
	if v.Type != gjson.Number {
		return 0, NewError(ErrCodeType, "Expected type real, got %s", KindOf(v))
	}

	coins := v.Float()
	if coins <= 0 || coins > float64(MaxMoney/Coin) {
		return 0, NewError(ErrCodeType, "Invalid amount")
	}

	amount := int64(math.Round(coins * float64(Coin)))
	if amount <= 0 || amount > MaxMoney {
		return 0, NewError(ErrCodeType, "Invalid amount")
	}
	return amount, nil
}

// ValueFromAmount converts base units to coins for replies.
func ValueFromAmount(amount int64) float64 {
	return float64(amount) / float64(Coin)
}

// ParseHash validates a 32-byte hex hash parameter named name.
func ParseHash(v gjson.Result, name string) (string, error) {
	s := v.String()
	if v.Type != gjson.String || len(s) != 64 {
		return "", NewError(ErrCodeInvalidParameter, "%s must be hexadecimal string (not '%s')", name, s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", NewError(ErrCodeInvalidParameter, "%s must be hexadecimal string (not '%s')", name, s)
	}
	return strings.ToLower(s), nil
}
