package orm

import (
	"strconv"

	"atlas/pkg/fastjson"
)

// Recursions counts how many extra times a relation is applied to its own
// result. It is either finite or infinite.
type Recursions struct {
	n        int
	infinite bool
}

// Infinite recurses until a level yields no records.
var Infinite = Recursions{infinite: true}

// Finite returns n recursions. Negative counts are clamped to zero.
func Finite(n int) Recursions {
	if n < 0 {
		n = 0
	}
	return Recursions{n: n}
}

func (r Recursions) IsZero() bool     { return !r.infinite && r.n == 0 }
func (r Recursions) IsInfinite() bool { return r.infinite }

// Count is the finite count, or -1 when infinite.
func (r Recursions) Count() int {
	if r.infinite {
		return -1
	}
	return r.n
}

// Next is the count left after one level has been consumed. Infinite stays
// infinite and zero stays zero.
func (r Recursions) Next() Recursions {
	if r.infinite || r.n == 0 {
		return r
	}
	return Recursions{n: r.n - 1}
}

func (r Recursions) String() string {
	if r.infinite {
		return "Infinity"
	}
	return strconv.Itoa(r.n)
}

func (r Recursions) MarshalJSON() ([]byte, error) {
	if r.infinite {
		return []byte(`"Infinity"`), nil
	}
	return []byte(strconv.Itoa(r.n)), nil
}

// Initializer scopes the mapper of a related fetch, for example to add a
// Where or an OrderBy.
type Initializer func(m *Mapper) *Mapper

// Initializers maps relation paths to initializers. It is accepted anywhere a
// relation spec is.
type Initializers map[string]Initializer

// Node describes one relation to eager load. Nodes are immutable: every
// setter returns a copy.
type Node struct {
	name         string
	recursions   Recursions
	nested       Tree
	initializers []Initializer
	required     bool
	relation     Relation
	err          error
}

// Related starts a node for the named relation.
func Related(name string) *Node {
	return &Node{name: name}
}

func (n *Node) copy() *Node {
	c := *n
	c.nested = n.nested.clone()
	if n.initializers != nil {
		c.initializers = append([]Initializer(nil), n.initializers...)
	}
	return &c
}

func (n *Node) Name() string { return n.name }

func (n *Node) GetRecursions() Recursions { return n.recursions }

// Nested returns the relations loaded on this relation's result.
func (n *Node) Nested() Tree { return n.nested.clone() }

func (n *Node) IsRequired() bool { return n.required }

// BoundRelation returns the relation bound with Relation, if any.
func (n *Node) BoundRelation() Relation { return n.relation }

func (n *Node) Err() error { return n.err }

// Recursions sets a finite recursion count. The first load is not counted:
// Recursions(2) loads the relation three levels deep.
func (n *Node) Recursions(count int) *Node {
	c := n.copy()
	c.recursions = Finite(count)
	return c
}

// RecurseForever follows the relation until a level comes back empty.
func (n *Node) RecurseForever() *Node {
	c := n.copy()
	c.recursions = Infinite
	return c
}

// With adds relations to load on this relation's result.
func (n *Node) With(specs ...interface{}) *Node {
	c := n.copy()
	tree, err := Normalize(specs...)
	if err != nil {
		if c.err == nil {
			c.err = err
		}
		return c
	}
	c.nested = MergeTrees(c.nested, tree)
	return c
}

// Mapper adds an initializer applied before the fetch.
func (n *Node) Mapper(init Initializer) *Node {
	c := n.copy()
	if init != nil {
		c.initializers = append(c.initializers, init)
	}
	return c
}

// Require fails the load when a target has no related record.
func (n *Node) Require() *Node {
	c := n.copy()
	c.required = true
	return c
}

// Relation binds an explicit relation instead of looking the name up on the
// mapper.
func (n *Node) Relation(rel Relation) *Node {
	c := n.copy()
	c.relation = rel
	return c
}

type nodeDump struct {
	Recursions   Recursions `json:"recursions"`
	Required     bool       `json:"required,omitempty"`
	Initializers int        `json:"initializers,omitempty"`
	Bound        bool       `json:"bound,omitempty"`
	Nested       Tree       `json:"nested,omitempty"`
}

// MarshalJSON dumps the node for debugging. Initializers are counted.
func (n *Node) MarshalJSON() ([]byte, error) {
	return fastjson.Marshal(nodeDump{
		Recursions:   n.recursions,
		Required:     n.required,
		Initializers: len(n.initializers),
		Bound:        n.relation != nil,
		Nested:       n.nested,
	})
}
