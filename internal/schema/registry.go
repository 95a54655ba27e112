package schema

import (
	"log/slog"
	"sort"
	"sync"

	"atlas/pkg/dbmanager"
	"atlas/pkg/keys"
	"atlas/pkg/orm"
	"atlas/pkg/query"

	"github.com/pkg/errors"
)

// Registry holds one mapper per schema entry. Relations between entries are
// resolved lazily, so mappers may refer to each other in any order.
type Registry struct {
	mu      sync.RWMutex
	mappers map[string]*orm.Mapper
}

// Build creates the mappers of s on exec.
func Build(s *Schema, exec query.SQLExecutor, dialect dbmanager.Dialect, logger *slog.Logger) (*Registry, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	reg := &Registry{mappers: make(map[string]*orm.Mapper, len(s.Mappers))}
	base := orm.New(exec, dialect).Logger(logger)

	for _, name := range s.Names() {
		def := s.Mappers[name]
		m := base.WithMutations(func(m *orm.Mapper) {
			m.Table(s.TableName(name))
			if len(def.ID) > 0 {
				m.IdAttribute(def.ID...)
			}
			if len(def.Defaults) > 0 {
				m.Defaults(keys.Record(def.Defaults))
			}
			relations := make(orm.Relations, len(def.Relations))
			for relName, rel := range def.Relations {
				relations[relName] = reg.factory(rel)
			}
			m.Relations(relations)
		})
		reg.mappers[name] = m
	}
	return reg, nil
}

// factory turns a relation definition into an orm.RelationFactory that looks
// the target up when the relation is first used.
func (r *Registry) factory(def RelationDef) orm.RelationFactory {
	return func(self *orm.Mapper) (orm.Relation, error) {
		other, ok := r.Get(def.Target)
		if !ok {
			return nil, errors.Wrapf(orm.ErrConfiguration, "unknown target mapper %q", def.Target)
		}
		if len(def.Where) > 0 {
			other = other.WithMutations(func(m *orm.Mapper) {
				for _, col := range sortedKeys(def.Where) {
					m.Where(col, def.Where[col])
				}
			})
		}

		var opts []orm.RelationOption
		if len(def.SelfKey) > 0 {
			opts = append(opts, orm.SelfKey(def.SelfKey...))
		}
		if len(def.OtherKey) > 0 {
			opts = append(opts, orm.OtherKey(def.OtherKey...))
		}

		switch def.Type {
		case BelongsTo:
			return self.BelongsTo(other, opts...)
		case HasOne:
			return self.HasOne(other, opts...)
		case HasMany:
			return self.HasMany(other, opts...)
		default:
			var columns []string
			if p := def.Pivot; p != nil {
				if p.Table != "" {
					opts = append(opts, orm.PivotTable(p.Table))
				}
				if len(p.SelfKey) > 0 {
					opts = append(opts, orm.PivotSelfKey(p.SelfKey...))
				}
				if len(p.OtherKey) > 0 {
					opts = append(opts, orm.PivotOtherKey(p.OtherKey...))
				}
				columns = p.Columns
			}
			rel, err := self.BelongsToMany(other, opts...)
			if err != nil {
				return nil, err
			}
			if len(columns) > 0 {
				rel = rel.WithPivot(columns...)
			}
			if def.Single {
				rel = rel.Singular()
			}
			return rel, nil
		}
	}
}

// Get returns the named mapper.
func (r *Registry) Get(name string) (*orm.Mapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappers[name]
	return m, ok
}

// Names lists the registered mappers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.mappers))
	for name := range r.mappers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
