package orm

import (
	"sort"
	"strings"

	"atlas/pkg/keys"
	"atlas/pkg/query"

	"github.com/pkg/errors"
)

// BelongsTo relates each Self record to the Other record its foreign key
// points at.
type BelongsTo struct{ relation }

// BelongsTo defaults the Self key to "{other table}_{other id}" and the Other
// key to Other's id attribute.
func (m *Mapper) BelongsTo(other *Mapper, opts ...RelationOption) (*BelongsTo, error) {
	cfg := newRelationConfig(opts)
	r := &BelongsTo{relation{self: m, other: other, single: true}}
	if other == nil {
		return nil, r.validate("BelongsTo", nil)
	}
	r.selfAttribute = orKey(cfg.selfKey, foreignKey(other))
	r.otherAttribute = orKey(cfg.otherKey, other.st.idAttribute)
	if err := r.validate("BelongsTo", map[string]keys.Key{
		"selfAttribute": r.selfAttribute, "otherAttribute": r.otherAttribute,
	}); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *BelongsTo) Of(targets ...interface{}) (*Mapper, error) {
	return r.scopeOther(true, targets...)
}

func (r *BelongsTo) MapRelated(targets keys.Targets, related []keys.Record) ([]interface{}, error) {
	return r.mapRelated(targets, related, r.otherAttribute)
}

// HasOne relates each Self record to the one Other record pointing back at it.
type HasOne struct{ relation }

// HasOne defaults the Self key to Self's id attribute and the Other key to
// "{self table}_{self id}".
func (m *Mapper) HasOne(other *Mapper, opts ...RelationOption) (*HasOne, error) {
	r := &HasOne{}
	if err := r.setup("HasOne", m, other, true, opts); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *HasOne) Of(targets ...interface{}) (*Mapper, error) {
	return r.scopeOther(true, targets...)
}

func (r *HasOne) MapRelated(targets keys.Targets, related []keys.Record) ([]interface{}, error) {
	return r.mapRelated(targets, related, r.otherAttribute)
}

// HasMany relates each Self record to every Other record pointing back at it.
type HasMany struct{ relation }

// HasMany uses the same default keys as HasOne. Like BelongsTo and HasOne, a
// relation scoped to a single parent through Of registers the foreign key as a
// default, so records inserted through it belong to that parent.
func (m *Mapper) HasMany(other *Mapper, opts ...RelationOption) (*HasMany, error) {
	r := &HasMany{}
	if err := r.setup("HasMany", m, other, false, opts); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *HasMany) Of(targets ...interface{}) (*Mapper, error) {
	return r.scopeOther(true, targets...)
}

func (r *HasMany) MapRelated(targets keys.Targets, related []keys.Record) ([]interface{}, error) {
	return r.mapRelated(targets, related, r.otherAttribute)
}

// setup sets up the keys shared by HasOne and HasMany.
func (r *relation) setup(kind string, self, other *Mapper, single bool, opts []RelationOption) error {
	cfg := newRelationConfig(opts)
	*r = relation{self: self, other: other, single: single}
	if self == nil || other == nil {
		return r.validate(kind, nil)
	}
	r.selfAttribute = orKey(cfg.selfKey, self.st.idAttribute)
	r.otherAttribute = orKey(cfg.otherKey, foreignKey(self))
	return r.validate(kind, map[string]keys.Key{
		"selfAttribute": r.selfAttribute, "otherAttribute": r.otherAttribute,
	})
}

func orKey(explicit, fallback keys.Key) keys.Key {
	if len(explicit) > 0 {
		return explicit
	}
	return append(keys.Key(nil), fallback...)
}

// pivotPrefix marks pivot columns selected alongside Other records.
const pivotPrefix = "_pivot_"

// BelongsToMany relates Self and Other records through a pivot table.
type BelongsToMany struct {
	relation
	pivot         *Mapper
	pivotSelfRef  keys.Key
	pivotOtherRef keys.Key
	pivotAttrs    []string
}

// BelongsToMany joins through a pivot table named after both tables in
// alphabetical order, e.g. "actors_movies". Pivot columns default to
// "{table}_{id}" for each side.
func (m *Mapper) BelongsToMany(other *Mapper, opts ...RelationOption) (*BelongsToMany, error) {
	cfg := newRelationConfig(opts)
	r := &BelongsToMany{relation: relation{self: m, other: other}}
	if m == nil || other == nil {
		return nil, r.validate("BelongsToMany", nil)
	}

	r.selfAttribute = orKey(cfg.selfKey, m.st.idAttribute)
	r.otherAttribute = orKey(cfg.otherKey, other.st.idAttribute)
	r.pivotSelfRef = orKey(cfg.pivotSelfKey, foreignKey(m))
	r.pivotOtherRef = orKey(cfg.pivotOtherKey, foreignKey(other))

	switch {
	case cfg.pivot != nil:
		r.pivot = cfg.pivot
	default:
		table := cfg.pivotTable
		if table == "" {
			table = pivotTableName(m.st.table, other.st.table)
		}
		id := append(append(keys.Key(nil), r.pivotSelfRef...), r.pivotOtherRef...)
		r.pivot = New(m.st.exec, m.Dialect()).Logger(m.st.logger).Table(table).IdAttribute(id...)
	}

	if err := r.validate("BelongsToMany", map[string]keys.Key{
		"selfAttribute": r.selfAttribute, "pivotSelfRef": r.pivotSelfRef,
	}); err != nil {
		return nil, err
	}
	if err := r.validate("BelongsToMany", map[string]keys.Key{
		"otherAttribute": r.otherAttribute, "pivotOtherRef": r.pivotOtherRef,
	}); err != nil {
		return nil, err
	}
	if r.pivot.st.table == "" {
		return nil, errors.Wrap(ErrNoTable, "BelongsToMany pivot")
	}
	return r, nil
}

func pivotTableName(a, b string) string {
	names := []string{a, b}
	sort.Strings(names)
	return strings.Join(names, "_")
}

func (r *BelongsToMany) copy() *BelongsToMany {
	c := *r
	c.pivotAttrs = append([]string(nil), r.pivotAttrs...)
	return &c
}

// WithPivot selects pivot columns onto related records as "_pivot_<column>".
func (r *BelongsToMany) WithPivot(attrs ...string) *BelongsToMany {
	c := r.copy()
	c.pivotAttrs = append(c.pivotAttrs, attrs...)
	return c
}

// Singular makes the relation yield one record per Self record. Only a single
// Self record can be loaded at a time; see Of.
func (r *BelongsToMany) Singular() *BelongsToMany {
	c := r.copy()
	c.single = true
	return c
}

func (r *BelongsToMany) Pivot() *Mapper { return r.pivot }

func (r *BelongsToMany) PivotSelfRef() keys.Key { return append(keys.Key(nil), r.pivotSelfRef...) }

func (r *BelongsToMany) PivotOtherRef() keys.Key { return append(keys.Key(nil), r.pivotOtherRef...) }

// Of joins Other to the pivot table and constrains the pivot's Self columns.
// A singular relation scoped to several Self records would need a top-1 per
// group query and is rejected with ErrUnsupported.
func (r *BelongsToMany) Of(targets ...interface{}) (*Mapper, error) {
	id, err := keys.IdentifyBy(r.selfAttribute, targets...)
	if err != nil {
		return nil, err
	}
	if !id.Defined {
		return nil, errors.Wrapf(ErrNoTarget, "relation to %q", r.other.st.table)
	}
	if r.single && id.Plural {
		return nil, errors.Wrapf(ErrUnsupported,
			"singular BelongsToMany %s -> %s loaded for several records", r.self.st.table, r.other.st.table)
	}

	pivotTable := r.pivot.st.table
	otherTable := r.other.st.table

	on := make([]query.JoinOn, len(r.pivotOtherRef))
	for i := range r.pivotOtherRef {
		on[i] = query.JoinOn{
			Left:  pivotTable + "." + r.pivotOtherRef[i],
			Op:    "=",
			Right: otherTable + "." + r.otherAttribute[i],
		}
	}

	scoped := r.other.WithMutations(func(w *Mapper) {
		if len(w.st.query.Columns) == 0 {
			w.Select(otherTable + ".*")
		}
		for _, col := range r.pivotSelfRef {
			w.Select(pivotTable + "." + col + " as " + pivotPrefix + col)
		}
		for _, col := range r.pivotAttrs {
			w.Select(pivotTable + "." + col + " as " + pivotPrefix + col)
		}
		w.Join(pivotTable, on...)
		w.scopeTo(r.pivotSelfRef.Qualified(pivotTable), id)
		if r.single {
			w.Distinct().Limit(1)
		}
	})
	return scoped, nil
}

func (r *BelongsToMany) MapRelated(targets keys.Targets, related []keys.Record) ([]interface{}, error) {
	return r.mapRelated(targets, related, r.pivotSelfRef.Prefixed(pivotPrefix))
}
