package memstore

import (
	"bytes"
	"math/big"
	"strings"

	store "github.com/hanpama/entityql/internal/store"
)

func isNull(v store.Value) bool {
	return v == nil || v.Kind() == store.KindNull
}

// matches evaluates f against the attributes of one entity. A missing
// attribute is null.
func matches(f store.EntityFilter, attrs map[string]store.Value) bool {
	if f.Op == store.OpAnd {
		for _, sub := range f.Filters {
			if !matches(sub, attrs) {
				return false
			}
		}
		return true
	}
	attr := attrs[f.Attribute]
	switch f.Op {
	case store.OpEqual:
		return equal(attr, f.Value)
	case store.OpNot:
		return !equal(attr, f.Value)
	case store.OpGreaterThan:
		c, ok := compare(attr, f.Value)
		return ok && c > 0
	case store.OpLessThan:
		c, ok := compare(attr, f.Value)
		return ok && c < 0
	case store.OpGreaterOrEqual:
		c, ok := compare(attr, f.Value)
		return ok && c >= 0
	case store.OpLessOrEqual:
		c, ok := compare(attr, f.Value)
		return ok && c <= 0
	case store.OpIn:
		return in(attr, f.Values)
	case store.OpNotIn:
		return !in(attr, f.Values)
	case store.OpContains:
		return contains(attr, f.Value)
	case store.OpNotContains:
		return !contains(attr, f.Value)
	case store.OpStartsWith:
		return affix(attr, f.Value, strings.HasPrefix, bytes.HasPrefix)
	case store.OpNotStartsWith:
		return !affix(attr, f.Value, strings.HasPrefix, bytes.HasPrefix)
	case store.OpEndsWith:
		return affix(attr, f.Value, strings.HasSuffix, bytes.HasSuffix)
	case store.OpNotEndsWith:
		return !affix(attr, f.Value, strings.HasSuffix, bytes.HasSuffix)
	}
	return false
}

func in(attr store.Value, values []store.Value) bool {
	for _, v := range values {
		if equal(attr, v) {
			return true
		}
	}
	return false
}

func equal(a, b store.Value) bool {
	if isNull(a) || isNull(b) {
		return isNull(a) && isNull(b)
	}
	if la, ok := a.(store.List); ok {
		lb, ok := b.(store.List)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	// Ids of referenced entities may be compared across String and Bytes.
	return a.String() == b.String()
}

// compare orders two non-null scalars. Numbers compare across Int, BigInt
// and BigDecimal. ok is false for values of unrelated kinds.
func compare(a, b store.Value) (c int, ok bool) {
	switch x := a.(type) {
	case store.String:
		if y, ok := b.(store.String); ok {
			return strings.Compare(string(x), string(y)), true
		}
	case store.Bytes:
		if y, ok := b.(store.Bytes); ok {
			return bytes.Compare(x, y), true
		}
	case store.Bool:
		if y, ok := b.(store.Bool); ok {
			switch {
			case x == y:
				return 0, true
			case !bool(x):
				return -1, true
			}
			return 1, true
		}
	case store.Int, store.BigInt, store.BigDecimal:
		return compareNumbers(a, b)
	}
	return 0, false
}

func compareNumbers(a, b store.Value) (int, bool) {
	ai, aInt := bigInt(a)
	bi, bInt := bigInt(b)
	if aInt && bInt {
		return ai.Cmp(bi), true
	}
	ad, ok := decimal(a)
	if !ok {
		return 0, false
	}
	bd, ok := decimal(b)
	if !ok {
		return 0, false
	}
	return ad.Cmp(bd), true
}

func bigInt(v store.Value) (*big.Int, bool) {
	switch x := v.(type) {
	case store.Int:
		return big.NewInt(int64(x)), true
	case store.BigInt:
		return x.Big(), true
	}
	return nil, false
}

func decimal(v store.Value) (store.BigDecimal, bool) {
	switch x := v.(type) {
	case store.BigDecimal:
		return x, true
	case store.BigInt:
		return x.Decimal(), true
	case store.Int:
		return store.NewBigInt(big.NewInt(int64(x))).Decimal(), true
	}
	return store.BigDecimal{}, false
}

// contains checks substrings of strings and bytes, and for list attributes
// that every element of the list value is present.
func contains(attr, v store.Value) bool {
	switch x := attr.(type) {
	case store.String:
		if y, ok := v.(store.String); ok {
			return strings.Contains(string(x), string(y))
		}
	case store.Bytes:
		if y, ok := v.(store.Bytes); ok {
			return bytes.Contains(x, y)
		}
	case store.List:
		want, ok := v.(store.List)
		if !ok {
			want = store.List{v}
		}
		for _, w := range want {
			if !in(w, x) {
				return false
			}
		}
		return true
	}
	return false
}

func affix(attr, v store.Value, str func(string, string) bool, bs func([]byte, []byte) bool) bool {
	switch x := attr.(type) {
	case store.String:
		if y, ok := v.(store.String); ok {
			return str(string(x), string(y))
		}
	case store.Bytes:
		if y, ok := v.(store.Bytes); ok {
			return bs(x, y)
		}
	}
	return false
}
