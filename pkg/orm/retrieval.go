package orm

import (
	"context"

	"atlas/pkg/keys"
	"atlas/pkg/query"

	"github.com/pkg/errors"
)

// Require makes an empty result an error: ErrNotFound from First and Find,
// ErrNoRowsFound from Fetch and FindAll.
func (m *Mapper) Require() *Mapper {
	return m.derive(func(s *state) { s.required = true })
}

// IsRequired reports whether Require was called on the chain.
func (m *Mapper) IsRequired() bool { return m.st.required }

// Fetch runs the query and eager loads the relations requested with With.
func (m *Mapper) Fetch(ctx context.Context) ([]keys.Record, error) {
	rows, err := m.fetchRows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if m.st.required {
			return nil, errors.Wrapf(ErrNoRowsFound, "table %q", m.st.table)
		}
		return rows, nil
	}

	loaded, err := m.eagerLoad(ctx, keys.Targets{Records: rows}, RenestRecursives(m.st.related))
	if err != nil {
		return nil, err
	}
	return loaded.Records, nil
}

// First fetches a single record. A missing record is nil unless the mapper is
// required.
func (m *Mapper) First(ctx context.Context) (keys.Record, error) {
	rows, err := m.Limit(1).fetchRows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if m.st.required {
			return nil, errors.Wrapf(ErrNotFound, "table %q", m.st.table)
		}
		return nil, nil
	}

	loaded, err := m.eagerLoad(ctx, keys.Targets{Records: rows[:1], Single: true}, RenestRecursives(m.st.related))
	if err != nil {
		return nil, err
	}
	return loaded.One(), nil
}

// Find fetches the record identified by id, a raw id, a tuple or a record.
func (m *Mapper) Find(ctx context.Context, id interface{}) (keys.Record, error) {
	return m.Target(id).First(ctx)
}

// FindAll fetches every record identified by ids. A lone id is still a
// plural lookup.
func (m *Mapper) FindAll(ctx context.Context, ids ...interface{}) ([]keys.Record, error) {
	id, err := m.Identify(ids...)
	if err != nil {
		return nil, err
	}
	if !id.Defined {
		return nil, errors.Wrapf(ErrNoTarget, "table %q", m.st.table)
	}
	if !id.Plural {
		id = keys.Identity{Values: []interface{}{id.Value}, Plural: true, Defined: true}
	}
	return m.scopeTo(m.st.idAttribute, id).Fetch(ctx)
}

// Count counts the rows matched by the current scope.
func (m *Mapper) Count(ctx context.Context) (int64, error) {
	if err := m.checkReady(); err != nil {
		return 0, err
	}
	return query.Count(ctx, m.st.exec, m.st.query)
}

// fetchRows runs the SELECT without eager loading or required checks.
func (m *Mapper) fetchRows(ctx context.Context) ([]keys.Record, error) {
	if err := m.checkReady(); err != nil {
		return nil, err
	}
	return query.Select(ctx, m.st.exec, m.st.query)
}
