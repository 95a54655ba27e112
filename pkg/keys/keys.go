// Package keys identifies records by single or composite key specifications.
//
// A Key is an ordered list of attribute names. A Key of length one is a scalar
// key and identifies a record by a single value; longer keys are composite and
// identify a record by a positional tuple ([]interface{}).
package keys

import (
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Record is a row of application data keyed by attribute name.
type Record = map[string]interface{}

var (
	ErrIncompatibleKeys = errors.New("incompatible keys")
	ErrKeyLength        = errors.New("identity does not match key length")
	ErrMissingKeyField  = errors.New("record is missing a key attribute")
	ErrNotARecord       = errors.New("value is not a record")
)

// Key is a key specification.
type Key []string

// Attr builds a Key from attribute names.
func Attr(names ...string) Key {
	return Key(names)
}

func (k Key) Cardinality() int { return len(k) }

func (k Key) IsComposite() bool { return len(k) > 1 }

func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// Prefixed returns a copy with prefix prepended to each attribute.
func (k Key) Prefixed(prefix string) Key {
	out := make(Key, len(k))
	for i, a := range k {
		out[i] = prefix + a
	}
	return out
}

// Qualified returns a copy with every attribute written as table.attribute.
func (k Key) Qualified(table string) Key {
	return k.Prefixed(table + ".")
}

func (k Key) String() string {
	if len(k) == 1 {
		return k[0]
	}
	return "(" + strings.Join(k, ", ") + ")"
}

// Cardinality is 0 for an empty key, else its length.
func Cardinality(k Key) int {
	return len(k)
}

// Compatible reports whether a and b are non-empty and of equal cardinality.
func Compatible(a, b Key) bool {
	ca, cb := Cardinality(a), Cardinality(b)
	return ca > 0 && ca == cb
}

// AssertCompatible checks every pair of named keys and reports the first
// incompatible pair in name order.
func AssertCompatible(named map[string]Key) error {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := named[names[i]], named[names[j]]
			if !Compatible(a, b) {
				return errors.Wrapf(ErrIncompatibleKeys,
					"%s %v (cardinality %d) and %s %v (cardinality %d)",
					names[i], []string(a), Cardinality(a),
					names[j], []string(b), Cardinality(b))
			}
		}
	}
	return nil
}

// Targets is the normalized form of a record argument list.
type Targets struct {
	Records []Record
	// Single is set when the call received exactly one non-slice argument.
	Single bool
}

// One returns the record of a single-record call.
func (t Targets) One() Record {
	if len(t.Records) == 0 {
		return nil
	}
	return t.Records[0]
}

// Values returns the records as a []interface{} for identification.
func (t Targets) Values() []interface{} {
	out := make([]interface{}, len(t.Records))
	for i, r := range t.Records {
		out[i] = r
	}
	return out
}

// NormalizeRecords flattens a variadic record argument list. Exactly one
// non-slice argument yields a single-record result (which may hold a nil
// record); anything else is flattened and compacted of nil records.
func NormalizeRecords(args ...interface{}) (Targets, error) {
	if len(args) == 1 {
		if _, isList := asList(args[0]); !isList {
			rec, err := asRecord(args[0])
			if err != nil {
				return Targets{}, err
			}
			return Targets{Records: []Record{rec}, Single: true}, nil
		}
	}

	records := make([]Record, 0, len(args))
	var walk func(v interface{}) error
	walk = func(v interface{}) error {
		if list, ok := asList(v); ok {
			for _, item := range list {
				if err := walk(item); err != nil {
					return err
				}
			}
			return nil
		}
		rec, err := asRecord(v)
		if err != nil {
			return err
		}
		if rec != nil {
			records = append(records, rec)
		}
		return nil
	}
	for _, arg := range args {
		if err := walk(arg); err != nil {
			return Targets{}, err
		}
	}
	return Targets{Records: records}, nil
}

func asRecord(v interface{}) (Record, error) {
	switch r := v.(type) {
	case nil:
		return nil, nil
	case Record:
		return r, nil
	default:
		return nil, errors.Wrapf(ErrNotARecord, "got %T", v)
	}
}

// asList converts any slice or array except []byte into []interface{}.
func asList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case nil, []byte:
		return nil, false
	case []interface{}:
		return t, true
	case []Record:
		out := make([]interface{}, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
