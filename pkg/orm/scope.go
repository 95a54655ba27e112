package orm

import (
	"strings"

	"atlas/pkg/keys"
	"atlas/pkg/query"

	"github.com/pkg/errors"
)

// Where adds an equality constraint. A nil value matches NULL.
func (m *Mapper) Where(column string, value interface{}) *Mapper {
	return m.WhereOp(column, "=", value)
}

// WhereOp adds a comparison constraint such as ">", "LIKE", "IN" or "NULL".
func (m *Mapper) WhereOp(column, op string, value interface{}) *Mapper {
	return m.Query(func(qs *query.QueryState) {
		qs.Where = append(qs.Where, query.WhereCond{Logical: "AND", Column: column, Op: op, Value: value})
	})
}

// OrWhere adds an equality constraint joined with OR.
func (m *Mapper) OrWhere(column string, value interface{}) *Mapper {
	return m.Query(func(qs *query.QueryState) {
		qs.Where = append(qs.Where, query.WhereCond{Logical: "OR", Column: column, Op: "=", Value: value})
	})
}

// WhereIn adds a membership constraint. For a composite key each value is a
// tuple with one member per column.
func (m *Mapper) WhereIn(columns keys.Key, values []interface{}) *Mapper {
	return m.Query(func(qs *query.QueryState) {
		qs.Where = append(qs.Where, membership(columns, values))
	})
}

// WhereKey matches a single identity against columns.
func (m *Mapper) WhereKey(columns keys.Key, identity interface{}) *Mapper {
	return m.Query(func(qs *query.QueryState) {
		qs.Where = append(qs.Where, equality(columns, identity))
	})
}

func membership(columns keys.Key, values []interface{}) query.WhereCond {
	if columns.IsComposite() {
		return query.WhereCond{Logical: "AND", Columns: []string(columns), Op: "IN", Value: values}
	}
	return query.WhereCond{Logical: "AND", Column: columns[0], Op: "IN", Value: values}
}

func equality(columns keys.Key, identity interface{}) query.WhereCond {
	if columns.IsComposite() {
		return query.WhereCond{Logical: "AND", Columns: []string(columns), Op: "=", Value: identity}
	}
	return query.WhereCond{Logical: "AND", Column: columns[0], Op: "=", Value: identity}
}

// Join adds an INNER JOIN.
func (m *Mapper) Join(table string, on ...query.JoinOn) *Mapper {
	return m.Query(func(qs *query.QueryState) {
		qs.Joins = append(qs.Joins, query.JoinDef{Type: "INNER", Table: table, On: on})
	})
}

func (m *Mapper) LeftJoin(table string, on ...query.JoinOn) *Mapper {
	return m.Query(func(qs *query.QueryState) {
		qs.Joins = append(qs.Joins, query.JoinDef{Type: "LEFT", Table: table, On: on})
	})
}

// Select appends columns. "column AS alias" is accepted.
func (m *Mapper) Select(columns ...string) *Mapper {
	return m.Query(func(qs *query.QueryState) {
		qs.Columns = append(qs.Columns, columns...)
	})
}

func (m *Mapper) Distinct() *Mapper {
	return m.Query(func(qs *query.QueryState) { qs.Distinct = true })
}

// OrderBy appends an ordering. direction is "asc", "desc" or empty.
func (m *Mapper) OrderBy(column, direction string) *Mapper {
	return m.Query(func(qs *query.QueryState) {
		qs.OrderBy = append(qs.OrderBy, query.OrderDef{Column: column, Direction: direction})
	})
}

func (m *Mapper) Limit(n int) *Mapper {
	return m.Query(func(qs *query.QueryState) { qs.Limit = n })
}

func (m *Mapper) Offset(n int) *Mapper {
	return m.Query(func(qs *query.QueryState) { qs.Offset = n })
}

// Query exposes the underlying query state of a copy of the mapper.
func (m *Mapper) Query(fn func(qs *query.QueryState)) *Mapper {
	return m.derive(func(s *state) { fn(s.query) })
}

// Target scopes the mapper to records identified by the id attribute. ids may
// be raw ids, tuples for composite keys, records, or slices of those.
func (m *Mapper) Target(ids ...interface{}) *Mapper {
	return m.TargetBy(m.st.idAttribute, ids...)
}

// TargetBy is Target for an arbitrary key.
func (m *Mapper) TargetBy(key keys.Key, ids ...interface{}) *Mapper {
	id, err := m.IdentifyBy(key, ids...)
	if err != nil {
		return m.fail(err)
	}
	if !id.Defined {
		return m.fail(errors.Wrapf(ErrNoTarget, "table %q", m.st.table))
	}
	return m.scopeTo(key, id)
}

// scopeTo constrains key (qualified with the table name) to id. Plural
// identities are deduplicated and nil identities dropped. A nil identity
// matches nothing, never the rows whose key IS NULL.
func (m *Mapper) scopeTo(key keys.Key, id keys.Identity) *Mapper {
	columns := m.qualify(key)
	if id.IsSingle() {
		if isNilIdentity(id.Value) {
			return m.WhereIn(columns, nil)
		}
		return m.WhereKey(columns, id.Value)
	}

	seen := make(map[string]bool, len(id.Values))
	values := make([]interface{}, 0, len(id.Values))
	for _, v := range id.Values {
		if isNilIdentity(v) {
			continue
		}
		k := keys.IndexKey(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		values = append(values, v)
	}
	return m.WhereIn(columns, values)
}

func (m *Mapper) qualify(key keys.Key) keys.Key {
	out := make(keys.Key, len(key))
	for i, attr := range key {
		if strings.Contains(attr, ".") || m.st.table == "" {
			out[i] = attr
		} else {
			out[i] = m.st.table + "." + attr
		}
	}
	return out
}

// isNilIdentity reports nil scalars and tuples containing a nil member.
func isNilIdentity(v interface{}) bool {
	if v == nil {
		return true
	}
	if tuple, ok := v.([]interface{}); ok {
		for _, member := range tuple {
			if member == nil {
				return true
			}
		}
	}
	return false
}
