// Package document describes the result values produced by a
// query. Documents are JSON-shaped: maps of strings to scalars,
// slices and nested maps. The merge engine treats them as opaque
// except for the values it reads to order them and to identify them.
package document

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Document is a single result item
type Document map[string]interface{}

type undefined struct{}

// Undefined is returned by Get when a path does not
// resolve to a value. It sorts before every other value,
// including nil.
var Undefined interface{} = undefined{}

// Get resolves a dotted path such as "address.city"
// against the document. It returns Undefined if any
// segment of the path is missing or is not an object.
func (document Document) Get(path string) interface{} {
	if path == "" {
		return Undefined
	}

	var current interface{} = map[string]interface{}(document)

	for _, segment := range strings.Split(path, ".") {
		var object map[string]interface{}

		switch v := current.(type) {
		case map[string]interface{}:
			object = v
		case Document:
			object = v
		default:
			return Undefined
		}

		value, ok := object[segment]

		if !ok {
			return Undefined
		}

		current = value
	}

	return current
}

// Identity returns the value at path rendered as a string
// that is distinct for every distinct value. Strings are
// prefixed with "s:" and numbers with "n:", so the string "1"
// and the number 1 differ. Integers are rendered exactly.
// It returns false if the value is missing or is not a
// scalar that can identify a document.
func (document Document) Identity(path string) (string, bool) {
	switch v := document.Get(path).(type) {
	case string:
		return "s:" + v, true
	case bool, nil, undefined, []interface{}, map[string]interface{}, Document:
		return "", false
	default:
		if n, ok := formatNumber(v); ok {
			return "n:" + n, true
		}

		return "", false
	}
}

// Key returns the value at path rendered as a string without
// the type prefix of Identity, as used for partition keys
func (document Document) Key(path string) (string, bool) {
	identity, ok := document.Identity(path)

	if !ok {
		return "", false
	}

	return identity[2:], true
}

// formatNumber renders a number so that numbers of any
// go type with the same value render the same
func formatNumber(v interface{}) (string, bool) {
	if negative, magnitude, ok := toInteger(v); ok {
		if negative {
			return "-" + strconv.FormatUint(magnitude, 10), true
		}

		return strconv.FormatUint(magnitude, 10), true
	}

	f, ok := toFloat64(v)

	if !ok {
		return "", false
	}

	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10), true
	}

	return strconv.FormatFloat(f, 'g', -1, 64), true
}

// Type ranks in ascending sort order
const (
	rankUndefined = iota
	rankNull
	rankBool
	rankNumber
	rankString
	rankArray
	rankObject
)

func rank(v interface{}) int {
	switch v.(type) {
	case undefined:
		return rankUndefined
	case nil:
		return rankNull
	case bool:
		return rankBool
	case string:
		return rankString
	case []interface{}:
		return rankArray
	case map[string]interface{}, Document:
		return rankObject
	}

	if _, ok := toFloat64(v); ok {
		return rankNumber
	}

	return rankObject
}

// Compare compares two document values and returns:
// -1 if a < b
//  0 if a == b
// +1 if a > b
// Values of different types are ordered
// undefined < null < bool < number < string < array < object.
// Objects compare equal to each other.
func Compare(a, b interface{}) int {
	rankA := rank(a)
	rankB := rank(b)

	if rankA != rankB {
		if rankA < rankB {
			return -1
		}

		return 1
	}

	switch rankA {
	case rankBool:
		aBool := a.(bool)
		bBool := b.(bool)

		if aBool == bBool {
			return 0
		} else if !aBool {
			return -1
		}

		return 1
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankArray:
		aArray := a.([]interface{})
		bArray := b.([]interface{})

		for i := 0; i < len(aArray) && i < len(bArray); i++ {
			if cmp := Compare(aArray[i], bArray[i]); cmp != 0 {
				return cmp
			}
		}

		if len(aArray) < len(bArray) {
			return -1
		} else if len(aArray) > len(bArray) {
			return 1
		}
	}

	return 0
}

func compareNumbers(a, b interface{}) int {
	negativeA, magnitudeA, okA := toInteger(a)
	negativeB, magnitudeB, okB := toInteger(b)

	if okA && okB {
		return compareIntegers(negativeA, magnitudeA, negativeB, magnitudeB)
	}

	aNum, _ := toFloat64(a)
	bNum, _ := toFloat64(b)

	if aNum < bNum {
		return -1
	} else if aNum > bNum {
		return 1
	}

	return 0
}

func compareIntegers(negativeA bool, magnitudeA uint64, negativeB bool, magnitudeB uint64) int {
	if negativeA != negativeB {
		if negativeA {
			return -1
		}

		return 1
	}

	cmp := 0

	if magnitudeA < magnitudeB {
		cmp = -1
	} else if magnitudeA > magnitudeB {
		cmp = 1
	}

	if negativeA {
		return -cmp
	}

	return cmp
}

// toInteger returns v as a sign and magnitude if v is
// an integer kind or a json.Number holding an integer
func toInteger(v interface{}) (bool, uint64, bool) {
	switch n := v.(type) {
	case int:
		return signed(int64(n))
	case int8:
		return signed(int64(n))
	case int16:
		return signed(int64(n))
	case int32:
		return signed(int64(n))
	case int64:
		return signed(n)
	case uint:
		return false, uint64(n), true
	case uint8:
		return false, uint64(n), true
	case uint16:
		return false, uint64(n), true
	case uint32:
		return false, uint64(n), true
	case uint64:
		return false, n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return signed(i)
		}

		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return false, u, true
		}
	}

	return false, 0, false
}

func signed(n int64) (bool, uint64, bool) {
	if n < 0 {
		return true, uint64(-(n + 1)) + 1, true
	}

	return false, uint64(n), true
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	}

	return 0, false
}
