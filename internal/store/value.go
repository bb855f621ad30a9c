// Package store defines the store-facing side of query compilation: the typed
// value domain entity attributes are stored in, the EntityQuery value handed
// to a backing store, and the filters a live subscription watches.
package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// ValueKind tags the variant of a store Value. Two values share a kind
// exactly when they are the same variant.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindBigInt
	KindBigDecimal
	KindBool
	KindBytes
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindString:
		return "String"
	case KindInt:
		return "Int"
	case KindBigInt:
		return "BigInt"
	case KindBigDecimal:
		return "BigDecimal"
	case KindBool:
		return "Bool"
	case KindBytes:
		return "Bytes"
	case KindList:
		return "List"
	}
	return "Unknown"
}

// Value is a typed attribute value. String returns the display form used in
// error messages: strings are not quoted, bytes are 0x-prefixed hex.
type Value interface {
	Kind() ValueKind
	String() string
}

type (
	Null   struct{}
	String string
	Int    int64
	Bool   bool
	Bytes  []byte
	List   []Value
)

// BigInt is an arbitrary precision integer.
type BigInt struct{ v *big.Int }

// BigDecimal is an arbitrary precision decimal.
type BigDecimal struct{ d *apd.Decimal }

func (Null) Kind() ValueKind       { return KindNull }
func (String) Kind() ValueKind     { return KindString }
func (Int) Kind() ValueKind        { return KindInt }
func (BigInt) Kind() ValueKind     { return KindBigInt }
func (BigDecimal) Kind() ValueKind { return KindBigDecimal }
func (Bool) Kind() ValueKind       { return KindBool }
func (Bytes) Kind() ValueKind      { return KindBytes }
func (List) Kind() ValueKind       { return KindList }

func (Null) String() string     { return "null" }
func (v String) String() string { return string(v) }
func (v Int) String() string    { return strconv.FormatInt(int64(v), 10) }
func (v Bool) String() string   { return strconv.FormatBool(bool(v)) }
func (v Bytes) String() string  { return "0x" + hex.EncodeToString(v) }

func (v List) String() string {
	parts := make([]string, len(v))
	for i, item := range v {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func NewBigInt(v *big.Int) BigInt { return BigInt{v: new(big.Int).Set(v)} }

// ParseBigInt parses a base-10 integer literal.
func ParseBigInt(s string) (BigInt, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return BigInt{}, fmt.Errorf("invalid BigInt %q", s)
	}
	return BigInt{v: v}, nil
}

// Big returns a copy of the underlying integer.
func (v BigInt) Big() *big.Int {
	if v.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.v)
}

func (v BigInt) String() string      { return v.Big().String() }
func (v BigInt) Equal(o BigInt) bool { return v.Big().Cmp(o.Big()) == 0 }
func (v BigInt) Cmp(o BigInt) int    { return v.Big().Cmp(o.Big()) }
func (v BigInt) Decimal() BigDecimal { return BigDecimal{d: apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(v.Big()), 0)} }

// ParseBigDecimal parses a decimal literal such as "1.5" or "-2e10".
func ParseBigDecimal(s string) (BigDecimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return BigDecimal{}, fmt.Errorf("invalid BigDecimal %q: %w", s, err)
	}
	return BigDecimal{d: d}, nil
}

func (v BigDecimal) decimal() *apd.Decimal {
	if v.d == nil {
		return apd.New(0, 0)
	}
	return v.d
}

func (v BigDecimal) String() string          { return v.decimal().Text('f') }
func (v BigDecimal) Equal(o BigDecimal) bool { return v.Cmp(o) == 0 }
func (v BigDecimal) Cmp(o BigDecimal) int    { return v.decimal().Cmp(o.decimal()) }

// ParseBytes parses hex with or without a 0x prefix.
func ParseBytes(s string) (Bytes, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid Bytes %q: %w", s, err)
	}
	return Bytes(b), nil
}

func (Null) MarshalJSON() ([]byte, error)         { return []byte("null"), nil }
func (v BigInt) MarshalJSON() ([]byte, error)     { return json.Marshal(v.String()) }
func (v BigDecimal) MarshalJSON() ([]byte, error) { return json.Marshal(v.String()) }
func (v Bytes) MarshalJSON() ([]byte, error)      { return json.Marshal(v.String()) }
