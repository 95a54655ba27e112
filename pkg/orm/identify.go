package orm

import "atlas/pkg/keys"

// Identify resolves ids or records to identities of the mapper's id attribute.
func (m *Mapper) Identify(args ...interface{}) (keys.Identity, error) {
	return m.IdentifyBy(m.st.idAttribute, args...)
}

// IdentifyBy resolves ids or records to identities of key.
func (m *Mapper) IdentifyBy(key keys.Key, args ...interface{}) (keys.Identity, error) {
	return keys.IdentifyBy(key, args...)
}

// IdentifyAllBy identifies every record of a normalized record set.
func (m *Mapper) IdentifyAllBy(key keys.Key, records []keys.Record) ([]interface{}, error) {
	values := make([]interface{}, len(records))
	for i, r := range records {
		values[i] = r
	}
	return keys.IdentifyAllBy(key, values)
}
