package orm

import "atlas/pkg/keys"

// Defaults merges attrs into the values applied to forged and inserted
// records. Later calls override earlier ones key by key.
func (m *Mapper) Defaults(attrs keys.Record) *Mapper {
	return m.derive(func(s *state) {
		if s.defaults == nil {
			s.defaults = make(keys.Record, len(attrs))
		}
		for k, v := range attrs {
			s.defaults[k] = v
		}
	})
}

// GetDefaults returns a copy of the registered defaults.
func (m *Mapper) GetDefaults() keys.Record {
	out := make(keys.Record, len(m.st.defaults))
	for k, v := range m.st.defaults {
		out[k] = v
	}
	return out
}

// Forge builds a new record from the defaults overlaid with attrs. Nothing is
// written to the database.
func (m *Mapper) Forge(attrs keys.Record) keys.Record {
	rec := m.GetDefaults()
	for k, v := range attrs {
		rec[k] = v
	}
	return rec
}

// ForgeAll forges one record per element of attrs.
func (m *Mapper) ForgeAll(attrs ...keys.Record) []keys.Record {
	out := make([]keys.Record, len(attrs))
	for i, a := range attrs {
		out[i] = m.Forge(a)
	}
	return out
}
