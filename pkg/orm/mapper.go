// Package orm is a small object-relational mapper built around an immutable,
// chainable Mapper.
//
// A Mapper is a scoped view over one table. Every setter returns a new Mapper
// and leaves the receiver untouched, so partially scoped mappers can be shared
// and extended freely:
//
//	users := orm.New(db, dialect).Table("users")
//	active := users.Where("active", true)
//	admins := active.Where("role", "admin") // active is unchanged
//
// Relations between mappers are declared with Relations and loaded eagerly
// with With or Load:
//
//	posts = orm.New(db, dialect).Table("posts").Relations(orm.Relations{
//		"author": func(m *orm.Mapper) (orm.Relation, error) {
//			return m.BelongsTo(users, orm.SelfKey("author_id"))
//		},
//	})
//	rows, err := posts.With("author").Fetch(ctx)
package orm

import (
	"log/slog"
	"sort"

	"atlas/pkg/dbmanager"
	"atlas/pkg/keys"
	"atlas/pkg/query"

	"github.com/pkg/errors"
)

type state struct {
	table       string
	idAttribute keys.Key
	query       *query.QueryState
	exec        query.SQLExecutor
	logger      *slog.Logger
	defaults    keys.Record
	relations   Relations
	related     Tree
	required    bool
	err         error
}

func (s *state) clone() *state {
	c := *s
	c.idAttribute = append(keys.Key(nil), s.idAttribute...)
	c.query = s.query.Clone()
	if s.defaults != nil {
		c.defaults = make(keys.Record, len(s.defaults))
		for k, v := range s.defaults {
			c.defaults[k] = v
		}
	}
	if s.relations != nil {
		c.relations = make(Relations, len(s.relations))
		for k, v := range s.relations {
			c.relations[k] = v
		}
	}
	return &c
}

// Mapper is an immutable, scoped view over one table.
type Mapper struct {
	st      *state
	mutable bool
}

// New returns an unscoped Mapper bound to exec. Call Table before querying.
func New(exec query.SQLExecutor, dialect dbmanager.Dialect) *Mapper {
	return &Mapper{st: &state{
		idAttribute: keys.Attr("id"),
		query:       &query.QueryState{Dialect: dialect},
		exec:        exec,
		logger:      slog.Default(),
	}}
}

// FromManager binds a new Mapper to a named DBManager connection.
func FromManager(mgr *dbmanager.DBManager, name string) (*Mapper, error) {
	db, dialect, err := mgr.Lookup(name)
	if err != nil {
		return nil, err
	}
	return New(db, dialect), nil
}

// derive applies fn to a copy of the state, or to the state itself inside
// WithMutations.
func (m *Mapper) derive(fn func(s *state)) *Mapper {
	if m.mutable {
		fn(m.st)
		return m
	}
	n := &Mapper{st: m.st.clone()}
	fn(n.st)
	return n
}

// WithMutations runs fn against a private mutable copy, so a batch of setters
// does not copy the state once per call. The copy is frozen when fn returns.
func (m *Mapper) WithMutations(fn func(m *Mapper)) *Mapper {
	w := &Mapper{st: m.st.clone(), mutable: true}
	fn(w)
	w.mutable = false
	return &Mapper{st: w.st}
}

// fail records the first error raised while building the chain. It is
// returned by the next operation that talks to the database.
func (m *Mapper) fail(err error) *Mapper {
	return m.derive(func(s *state) {
		if s.err == nil {
			s.err = err
		}
	})
}

// Err returns the first error recorded while building the chain.
func (m *Mapper) Err() error { return m.st.err }

func (m *Mapper) Table(name string) *Mapper {
	return m.derive(func(s *state) {
		s.table = name
		s.query.Table = name
	})
}

func (m *Mapper) TableName() string { return m.st.table }

// IdAttribute sets the primary key. Several attributes form a composite key.
func (m *Mapper) IdAttribute(attrs ...string) *Mapper {
	return m.derive(func(s *state) {
		s.idAttribute = keys.Attr(attrs...)
	})
}

func (m *Mapper) GetIdAttribute() keys.Key {
	return append(keys.Key(nil), m.st.idAttribute...)
}

// Executor rebinds the mapper, for example to a *sql.Tx.
func (m *Mapper) Executor(exec query.SQLExecutor) *Mapper {
	return m.derive(func(s *state) { s.exec = exec })
}

func (m *Mapper) Dialect() dbmanager.Dialect { return m.st.query.Dialect }

func (m *Mapper) Logger(l *slog.Logger) *Mapper {
	return m.derive(func(s *state) { s.logger = l })
}

// ToSQL renders the SELECT the mapper would run.
func (m *Mapper) ToSQL() (string, []interface{}) {
	return m.st.query.BuildSQL("SELECT")
}

// unscoped keeps the mapper's identity (table, key, connection, relations)
// and drops every query constraint, default and eager-load request.
func (m *Mapper) unscoped() *Mapper {
	s := &state{
		table:       m.st.table,
		idAttribute: append(keys.Key(nil), m.st.idAttribute...),
		query:       &query.QueryState{Table: m.st.table, Dialect: m.st.query.Dialect},
		exec:        m.st.exec,
		logger:      m.st.logger,
		relations:   m.st.relations,
	}
	return &Mapper{st: s}
}

func (m *Mapper) checkReady() error {
	if m.st.err != nil {
		return m.st.err
	}
	if m.st.table == "" {
		return errors.WithStack(ErrNoTable)
	}
	if m.st.exec == nil {
		return errors.Wrapf(ErrNoExecutor, "table %q", m.st.table)
	}
	return nil
}

// RelationNames lists the registered relation names in sorted order.
func (m *Mapper) RelationNames() []string {
	names := make([]string, 0, len(m.st.relations))
	for name := range m.st.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
