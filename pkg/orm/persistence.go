package orm

import (
	"context"

	"atlas/pkg/keys"
	"atlas/pkg/query"
	"atlas/pkg/utils/coerce"

	"github.com/pkg/errors"
)

// Insert forges and writes each record. The returned targets mirror the call
// shape and carry the generated id when the driver reports one.
func (m *Mapper) Insert(ctx context.Context, records ...interface{}) (keys.Targets, error) {
	if err := m.checkReady(); err != nil {
		return keys.Targets{}, err
	}
	targets, err := keys.NormalizeRecords(records...)
	if err != nil {
		return keys.Targets{}, err
	}

	qs := m.unscoped().st.query
	out := keys.Targets{Records: make([]keys.Record, 0, len(targets.Records)), Single: targets.Single}
	for _, rec := range targets.Records {
		if rec == nil {
			out.Records = append(out.Records, nil)
			continue
		}
		data := m.Forge(rec)
		var returning []string
		if !m.st.idAttribute.IsComposite() {
			returning = []string(m.st.idAttribute)
		}
		generated, err := query.Insert(ctx, m.st.exec, qs, data, returning)
		if err != nil {
			return keys.Targets{}, errors.Wrapf(err, "insert into %q", m.st.table)
		}
		if generated != nil && len(returning) == 1 && coerce.IsZeroID(data[returning[0]]) {
			data[returning[0]] = generated
		}
		out.Records = append(out.Records, data)
	}
	return out, nil
}

// Update writes the non-key attributes of record to the row it identifies,
// within the current scope.
func (m *Mapper) Update(ctx context.Context, record keys.Record) (int64, error) {
	if err := m.checkReady(); err != nil {
		return 0, err
	}
	id, err := keys.IdentifyOneBy(m.st.idAttribute, record)
	if err != nil {
		return 0, err
	}
	if isNilIdentity(id) {
		return 0, errors.Wrapf(ErrNoTarget, "update %q: record has no %s", m.st.table, m.st.idAttribute)
	}

	data := make(query.Row, len(record))
	for k, v := range record {
		data[k] = v
	}
	for _, attr := range m.st.idAttribute {
		delete(data, attr)
	}
	if len(data) == 0 {
		return 0, nil
	}

	scoped := m.WhereKey(m.qualify(m.st.idAttribute), id)
	return query.Update(ctx, m.st.exec, scoped.st.query, data)
}

// Save inserts records without an id and updates the rest.
func (m *Mapper) Save(ctx context.Context, records ...interface{}) (keys.Targets, error) {
	targets, err := keys.NormalizeRecords(records...)
	if err != nil {
		return keys.Targets{}, err
	}

	out := keys.Targets{Records: make([]keys.Record, 0, len(targets.Records)), Single: targets.Single}
	for _, rec := range targets.Records {
		if rec == nil {
			out.Records = append(out.Records, nil)
			continue
		}
		if m.isNew(rec) {
			inserted, err := m.Insert(ctx, rec)
			if err != nil {
				return keys.Targets{}, err
			}
			out.Records = append(out.Records, inserted.One())
			continue
		}
		if _, err := m.Update(ctx, rec); err != nil {
			return keys.Targets{}, err
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func (m *Mapper) isNew(rec keys.Record) bool {
	for _, attr := range m.st.idAttribute {
		if coerce.IsZeroID(rec[attr]) {
			return true
		}
	}
	return false
}

// Destroy deletes the rows identified by ids, or every row in scope when no
// ids are given. An unconstrained delete is refused.
func (m *Mapper) Destroy(ctx context.Context, ids ...interface{}) (int64, error) {
	scoped := m
	if len(ids) > 0 {
		scoped = m.Target(ids...)
	}
	if err := scoped.checkReady(); err != nil {
		return 0, err
	}
	if len(scoped.st.query.Where) == 0 {
		return 0, errors.Wrapf(ErrUnsafeDestroy, "table %q", m.st.table)
	}
	return query.Delete(ctx, scoped.st.exec, scoped.st.query)
}
