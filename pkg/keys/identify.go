package keys

import (
	"atlas/pkg/utils/coerce"

	"github.com/pkg/errors"
)

// IdentifyOneBy extracts the identity of a single record or id.
//
// Values that are not records are taken to be identities already. For a
// composite key a raw tuple must have exactly as many members as the key.
func IdentifyOneBy(k Key, v interface{}) (interface{}, error) {
	if rec, ok := v.(Record); ok {
		if rec == nil {
			return nil, nil
		}
		if !k.IsComposite() {
			if len(k) == 0 {
				return nil, errors.Wrap(ErrIncompatibleKeys, "empty key")
			}
			return rec[k[0]], nil
		}
		tuple := make([]interface{}, len(k))
		for i, attr := range k {
			val, present := rec[attr]
			if !present {
				return nil, errors.Wrapf(ErrMissingKeyField, "attribute %q of key %s", attr, k)
			}
			tuple[i] = val
		}
		return tuple, nil
	}

	if k.IsComposite() {
		if tuple, ok := asList(v); ok {
			if len(tuple) != len(k) {
				return nil, errors.Wrapf(ErrKeyLength,
					"key %s expects %d values, got %d", k, len(k), len(tuple))
			}
			return tuple, nil
		}
	}
	return v, nil
}

// IdentifyAllBy maps IdentifyOneBy over values.
func IdentifyAllBy(k Key, values []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(values))
	for i, v := range values {
		id, err := IdentifyOneBy(k, v)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// Identity is the result of IdentifyBy.
type Identity struct {
	Value  interface{}
	Values []interface{}
	Plural bool
	// Defined is false when IdentifyBy received no arguments at all.
	Defined bool
}

// All returns the identities as a list whatever the call shape was.
func (id Identity) All() []interface{} {
	if !id.Defined {
		return nil
	}
	if id.Plural {
		return id.Values
	}
	return []interface{}{id.Value}
}

// IsSingle reports a defined single identity.
func (id Identity) IsSingle() bool {
	return id.Defined && !id.Plural
}

// IdentifyBy identifies one or many records or ids. A single non-slice
// argument, or a single raw tuple for a composite key, is a singular call;
// everything else is flattened into a plural result.
func IdentifyBy(k Key, args ...interface{}) (Identity, error) {
	if len(args) == 0 {
		return Identity{}, nil
	}

	if len(args) == 1 && isSingular(k, args[0]) {
		id, err := IdentifyOneBy(k, args[0])
		if err != nil {
			return Identity{}, err
		}
		return Identity{Value: id, Defined: true}, nil
	}

	values := make([]interface{}, 0, len(args))
	var walk func(v interface{})
	walk = func(v interface{}) {
		if list, ok := asList(v); ok && !(k.IsComposite() && isTuple(list)) {
			for _, item := range list {
				walk(item)
			}
			return
		}
		values = append(values, v)
	}
	for _, arg := range args {
		walk(arg)
	}

	ids, err := IdentifyAllBy(k, values)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Values: ids, Plural: true, Defined: true}, nil
}

func isSingular(k Key, v interface{}) bool {
	list, ok := asList(v)
	if !ok {
		return true
	}
	return k.IsComposite() && isTuple(list)
}

// isTuple reports a non-empty list of plain values.
func isTuple(list []interface{}) bool {
	if len(list) == 0 {
		return false
	}
	for _, item := range list {
		if _, ok := item.(Record); ok {
			return false
		}
		if _, ok := asList(item); ok {
			return false
		}
	}
	return true
}

// IndexKey renders an identity value as a lookup key.
func IndexKey(identity interface{}) string {
	return coerce.Canonical(identity)
}

// KeyBy indexes records by their identity, the last record winning on
// duplicates.
func KeyBy(k Key, records []Record) (map[string]Record, error) {
	index := make(map[string]Record, len(records))
	for _, rec := range records {
		id, err := IdentifyOneBy(k, rec)
		if err != nil {
			return nil, err
		}
		index[IndexKey(id)] = rec
	}
	return index, nil
}

// GroupBy collects records sharing an identity, preserving input order.
func GroupBy(k Key, records []Record) (map[string][]Record, error) {
	index := make(map[string][]Record, len(records))
	for _, rec := range records {
		id, err := IdentifyOneBy(k, rec)
		if err != nil {
			return nil, err
		}
		key := IndexKey(id)
		index[key] = append(index[key], rec)
	}
	return index, nil
}
