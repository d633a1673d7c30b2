// Package shape holds the minimal payload checks a provider response must pass
// before it is considered usable.
//
// Expressions:
//
//	any          any well-formed JSON value
//	object       a top-level object
//	array        a top-level array, items are counted
//	key:a.b      the dotted path a.b exists, counted when it is an array
//	array:a.b    the value at a.b is an array, items are counted
package shape

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
)

var ErrMalformed = errors.New("payload does not match the expected shape")

// Result describes an accepted payload.
type Result struct {
	Items      int
	Collection bool
}

// Check validates a payload and counts its items.
type Check func(payload []byte) (Result, error)

// Parse compiles a shape expression. An empty expression means "any".
// Every compiled check first requires the payload to be exactly one JSON value.
func Parse(expr string) (Check, error) {
	check, err := parse(expr)
	if err != nil {
		return nil, err
	}
	return whole(check), nil
}

func parse(expr string) (Check, error) {
	expr = strings.TrimSpace(expr)
	kind, path, _ := strings.Cut(expr, ":")
	keys := splitPath(path)

	switch kind {
	case "", "any":
		return anyValue, nil
	case "object":
		return object, nil
	case "array":
		return arrayAt(keys), nil
	case "key":
		if len(keys) == 0 {
			return nil, fmt.Errorf("shape %q: key path is required", expr)
		}
		return keyAt(keys), nil
	default:
		return nil, fmt.Errorf("shape %q: unknown kind %q", expr, kind)
	}
}

// MustParse is Parse for static expressions.
func MustParse(expr string) Check {
	check, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return check
}

// whole rejects payloads which are not a single well-formed JSON value, trailing bytes included.
func whole(check Check) Check {
	return func(payload []byte) (Result, error) {
		if !json.Valid(payload) {
			return Result{}, fmt.Errorf("%w: not a single well-formed JSON value", ErrMalformed)
		}
		return check(payload)
	}
}

func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func anyValue(payload []byte) (Result, error) {
	_, dataType, _, err := jsonparser.Get(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	if dataType == jsonparser.Array {
		return count(payload)
	}
	return Result{Items: 1}, nil
}

func object(payload []byte) (Result, error) {
	_, dataType, _, err := jsonparser.Get(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	if dataType != jsonparser.Object {
		return Result{}, fmt.Errorf("%w: expected object, got %s", ErrMalformed, dataType)
	}
	return Result{Items: 1}, nil
}

func arrayAt(keys []string) Check {
	return func(payload []byte) (Result, error) {
		value, dataType, _, err := jsonparser.Get(payload, keys...)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %s: %s", ErrMalformed, describe(keys), err.Error())
		}
		if dataType != jsonparser.Array {
			return Result{}, fmt.Errorf("%w: expected array at %s, got %s", ErrMalformed, describe(keys), dataType)
		}
		return count(value)
	}
}

func keyAt(keys []string) Check {
	return func(payload []byte) (Result, error) {
		value, dataType, _, err := jsonparser.Get(payload, keys...)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %s: %s", ErrMalformed, describe(keys), err.Error())
		}
		if dataType == jsonparser.Array {
			return count(value)
		}
		return Result{Items: 1}, nil
	}
}

func count(array []byte) (Result, error) {
	items := 0
	var itemErr error
	if _, err := jsonparser.ArrayEach(array, func(_ []byte, _ jsonparser.ValueType, _ int, err error) {
		if err != nil && itemErr == nil {
			itemErr = err
			return
		}
		items++
	}); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	if itemErr != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrMalformed, itemErr.Error())
	}
	return Result{Items: items, Collection: true}, nil
}

func describe(keys []string) string {
	if len(keys) == 0 {
		return "top level"
	}
	return strings.Join(keys, ".")
}
