package orm

import (
	"reflect"

	"atlas/pkg/keys"

	"github.com/pkg/errors"
)

// Relation describes how a set of Self records reaches related Other records.
type Relation interface {
	Self() *Mapper
	Other() *Mapper
	SelfAttribute() keys.Key
	OtherAttribute() keys.Key

	// IsSingle reports whether each Self record relates to at most one record.
	IsSingle() bool

	// Of scopes Other to the records related to targets, which may be
	// identities or Self records.
	Of(targets ...interface{}) (*Mapper, error)

	// MapRelated pairs every target with its related value: a record or nil
	// for single relations, a []keys.Record for plural ones.
	MapRelated(targets keys.Targets, related []keys.Record) ([]interface{}, error)
}

// RelationFactory builds a relation for the mapper it is registered on. Self
// is passed unscoped.
type RelationFactory func(self *Mapper) (Relation, error)

// Relations maps relation names to factories.
type Relations map[string]RelationFactory

// Relations registers relation factories. Existing names are replaced.
func (m *Mapper) Relations(defs Relations) *Mapper {
	return m.derive(func(s *state) {
		if s.relations == nil {
			s.relations = make(Relations, len(defs))
		}
		for name, factory := range defs {
			s.relations[name] = factory
		}
	})
}

// GetRelation builds the named relation.
func (m *Mapper) GetRelation(name string) (Relation, error) {
	factory, ok := m.st.relations[name]
	if !ok || factory == nil {
		return nil, errors.Wrapf(ErrUnknownRelation, "%q on table %q", name, m.st.table)
	}
	rel, err := factory(m.unscoped())
	if err != nil {
		return nil, errors.Wrapf(err, "relation %q on table %q", name, m.st.table)
	}
	if isNilRelation(rel) {
		return nil, errors.Wrapf(ErrInvalidRelation, "%q on table %q", name, m.st.table)
	}
	return rel, nil
}

func isNilRelation(rel Relation) bool {
	if rel == nil {
		return true
	}
	v := reflect.ValueOf(rel)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// RelationOption overrides a default of a relation constructor.
type RelationOption func(*relationConfig)

type relationConfig struct {
	selfKey       keys.Key
	otherKey      keys.Key
	pivotTable    string
	pivot         *Mapper
	pivotSelfKey  keys.Key
	pivotOtherKey keys.Key
}

func newRelationConfig(opts []RelationOption) *relationConfig {
	cfg := &relationConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// SelfKey sets the key read from Self records.
func SelfKey(attrs ...string) RelationOption {
	return func(c *relationConfig) { c.selfKey = keys.Attr(attrs...) }
}

// OtherKey sets the key matched on Other records.
func OtherKey(attrs ...string) RelationOption {
	return func(c *relationConfig) { c.otherKey = keys.Attr(attrs...) }
}

// PivotTable names the join table of a many-to-many relation.
func PivotTable(name string) RelationOption {
	return func(c *relationConfig) { c.pivotTable = name }
}

// Pivot supplies the join table mapper of a many-to-many relation.
func Pivot(pivot *Mapper) RelationOption {
	return func(c *relationConfig) { c.pivot = pivot }
}

// PivotSelfKey sets the pivot columns referencing Self.
func PivotSelfKey(attrs ...string) RelationOption {
	return func(c *relationConfig) { c.pivotSelfKey = keys.Attr(attrs...) }
}

// PivotOtherKey sets the pivot columns referencing Other.
func PivotOtherKey(attrs ...string) RelationOption {
	return func(c *relationConfig) { c.pivotOtherKey = keys.Attr(attrs...) }
}

// foreignKey derives "{table}_{attr}" for every attribute of a mapper's id.
func foreignKey(m *Mapper) keys.Key {
	return m.st.idAttribute.Prefixed(m.st.table + "_")
}

// relation holds what every descriptor shares.
type relation struct {
	self           *Mapper
	other          *Mapper
	selfAttribute  keys.Key
	otherAttribute keys.Key
	single         bool
}

func (r *relation) Self() *Mapper            { return r.self }
func (r *relation) Other() *Mapper           { return r.other }
func (r *relation) SelfAttribute() keys.Key  { return append(keys.Key(nil), r.selfAttribute...) }
func (r *relation) OtherAttribute() keys.Key { return append(keys.Key(nil), r.otherAttribute...) }
func (r *relation) IsSingle() bool           { return r.single }

func (r *relation) validate(kind string, named map[string]keys.Key) error {
	if r.self == nil || r.other == nil {
		return errors.Wrapf(ErrConfiguration, "%s requires both mappers", kind)
	}
	if err := keys.AssertCompatible(named); err != nil {
		return errors.Wrapf(err, "%s %s -> %s", kind, r.self.st.table, r.other.st.table)
	}
	return nil
}

// scopeOther resolves the Self identity of targets and constrains the Other
// attribute to it. A single non-nil identity is also registered as a default
// so that records forged through the scoped mapper carry the foreign key.
func (r *relation) scopeOther(withDefaults bool, targets ...interface{}) (*Mapper, error) {
	id, err := keys.IdentifyBy(r.selfAttribute, targets...)
	if err != nil {
		return nil, err
	}
	if !id.Defined {
		return nil, errors.Wrapf(ErrNoTarget, "relation to %q", r.other.st.table)
	}

	scoped := r.other.scopeTo(r.otherAttribute, id)
	if withDefaults && id.IsSingle() && !isNilIdentity(id.Value) {
		scoped = scoped.Defaults(keyedValues(r.otherAttribute, id.Value))
	}
	return scoped, nil
}

// keyedValues spreads an identity over the attributes of key.
func keyedValues(key keys.Key, identity interface{}) keys.Record {
	out := make(keys.Record, len(key))
	if !key.IsComposite() {
		out[key[0]] = identity
		return out
	}
	tuple, _ := identity.([]interface{})
	for i, attr := range key {
		if i < len(tuple) {
			out[attr] = tuple[i]
		}
	}
	return out
}

// mapRelated pairs targets with related records matched on relatedKey.
func (r *relation) mapRelated(targets keys.Targets, related []keys.Record, relatedKey keys.Key) ([]interface{}, error) {
	if targets.Single {
		return []interface{}{r.singleValue(related)}, nil
	}

	out := make([]interface{}, len(targets.Records))
	if r.single {
		index := make(map[string]keys.Record, len(related))
		for _, rec := range related {
			id, err := keys.IdentifyOneBy(relatedKey, rec)
			if err != nil {
				return nil, err
			}
			k := keys.IndexKey(id)
			if _, dup := index[k]; dup {
				r.self.st.logger.Warn("single relation matched several records",
					"table", r.other.st.table, "key", relatedKey.String(), "identity", id)
			}
			index[k] = rec
		}
		for i, target := range targets.Records {
			out[i] = nil
			id, err := keys.IdentifyOneBy(r.selfAttribute, target)
			if err != nil {
				return nil, err
			}
			if rec, ok := index[keys.IndexKey(id)]; ok && !isNilIdentity(id) {
				out[i] = rec
			}
		}
		return out, nil
	}

	groups, err := keys.GroupBy(relatedKey, related)
	if err != nil {
		return nil, err
	}
	for i, target := range targets.Records {
		id, err := keys.IdentifyOneBy(r.selfAttribute, target)
		if err != nil {
			return nil, err
		}
		group := groups[keys.IndexKey(id)]
		if group == nil || isNilIdentity(id) {
			group = []keys.Record{}
		}
		out[i] = group
	}
	return out, nil
}

func (r *relation) singleValue(related []keys.Record) interface{} {
	if r.single {
		if len(related) == 0 {
			return nil
		}
		return related[0]
	}
	if related == nil {
		return []keys.Record{}
	}
	return related
}
