package orm

import (
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Tree maps relation names to the nodes describing how to load them.
type Tree map[string]*Node

// Names returns the relation names in sorted order.
func (t Tree) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t Tree) clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for name, node := range t {
		out[name] = node.copy()
	}
	return out
}

type sentinel int

const (
	// All stands for every relation registered on the mapper.
	All sentinel = iota + 1
	// None clears the relations requested so far.
	None
)

func (s sentinel) String() string {
	if s == All {
		return "All"
	}
	return "None"
}

// FromString compiles a dotted relation path. Each segment may end in a
// recursion suffix: "^" for one, "^N" for N, "^Infinity" for unbounded. init
// is attached to the deepest segment.
//
//	FromString("author.posts^2", nil)
func FromString(path string, init Initializer) (Tree, error) {
	segments := strings.Split(path, ".")
	var tree Tree
	for i := len(segments) - 1; i >= 0; i-- {
		node, err := parseSegment(segments[i])
		if err != nil {
			return nil, errors.Wrapf(err, "path %q", path)
		}
		if i == len(segments)-1 && init != nil {
			node.initializers = []Initializer{init}
		}
		node.nested = tree
		tree = Tree{node.name: node}
	}
	return tree, nil
}

func parseSegment(segment string) (*Node, error) {
	name, suffix, recursive := strings.Cut(strings.TrimSpace(segment), "^")
	if name == "" {
		return nil, errors.Wrapf(ErrInvalidRelated, "empty relation name in %q", segment)
	}
	node := &Node{name: name}
	if !recursive {
		return node, nil
	}

	switch suffix {
	case "":
		node.recursions = Finite(1)
	case "Infinity", "inf":
		node.recursions = Infinite
	default:
		n, err := strconv.Atoi(suffix)
		if err != nil || n < 0 {
			return nil, errors.Wrapf(ErrInvalidRelated, "bad recursion count %q", suffix)
		}
		node.recursions = Finite(n)
	}
	return node, nil
}

// Normalize folds relation specs into one tree. Accepted specs are Tree,
// *Node, path strings, Initializers, and slices of any of these.
func Normalize(specs ...interface{}) (Tree, error) {
	return normalize(slog.Default(), specs...)
}

func normalize(logger *slog.Logger, specs ...interface{}) (Tree, error) {
	var tree Tree
	add := func(t Tree) { tree = mergeTrees(logger, tree, t) }

	for _, spec := range specs {
		switch s := spec.(type) {
		case nil:
		case Tree:
			add(s.clone())
		case *Node:
			if s == nil {
				continue
			}
			if s.err != nil {
				return nil, s.err
			}
			if s.name == "" {
				return nil, errors.Wrap(ErrInvalidRelated, "related node without a name")
			}
			add(Tree{s.name: s.copy()})
		case string:
			t, err := FromString(s, nil)
			if err != nil {
				return nil, err
			}
			add(t)
		case []string:
			for _, path := range s {
				t, err := FromString(path, nil)
				if err != nil {
					return nil, err
				}
				add(t)
			}
		case Initializers:
			t, err := fromInitializers(s)
			if err != nil {
				return nil, err
			}
			add(t)
		case map[string]Initializer:
			t, err := fromInitializers(s)
			if err != nil {
				return nil, err
			}
			add(t)
		case []*Node:
			for _, n := range s {
				t, err := normalize(logger, n)
				if err != nil {
					return nil, err
				}
				add(t)
			}
		case []interface{}:
			t, err := normalize(logger, s...)
			if err != nil {
				return nil, err
			}
			add(t)
		case sentinel:
			return nil, errors.Wrapf(ErrInvalidRelated, "%s is only accepted by Mapper.With and Mapper.Load", s)
		default:
			return nil, errors.Wrapf(ErrInvalidRelated, "unsupported spec of type %T", spec)
		}
	}
	return tree, nil
}

func fromInitializers(inits map[string]Initializer) (Tree, error) {
	paths := make([]string, 0, len(inits))
	for path := range inits {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var tree Tree
	for _, path := range paths {
		t, err := FromString(path, inits[path])
		if err != nil {
			return nil, err
		}
		tree = MergeTrees(tree, t)
	}
	return tree, nil
}

// MergeTrees unions two trees by relation name, merging shared nodes. The
// result is nil when both are empty.
func MergeTrees(a, b Tree) Tree {
	return mergeTrees(slog.Default(), a, b)
}

func mergeTrees(logger *slog.Logger, a, b Tree) Tree {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(Tree, len(a)+len(b))
	for name, node := range a {
		out[name] = node
	}
	for _, name := range b.Names() {
		if existing, ok := out[name]; ok {
			out[name] = mergeNodes(logger, existing, b[name])
			continue
		}
		out[name] = b[name]
	}
	return out
}

// mergeNodes combines two nodes of the same name. A non-zero recursion count
// in b replaces a's, required is sticky, initializers run in merge order and
// the first explicitly bound relation is kept.
func mergeNodes(logger *slog.Logger, a, b *Node) *Node {
	out := a.copy()
	if !b.recursions.IsZero() {
		out.recursions = b.recursions
	}
	out.required = a.required || b.required
	if len(b.initializers) > 0 {
		out.initializers = append(out.initializers, b.initializers...)
	}
	out.nested = mergeTrees(logger, a.nested, b.nested)

	switch {
	case out.relation == nil:
		out.relation = b.relation
	case b.relation != nil && !sameRelation(out.relation, b.relation):
		logger.Warn("relation requested twice with different definitions, keeping the first",
			"relation", a.name)
	}
	if out.err == nil {
		out.err = b.err
	}
	return out
}

func sameRelation(a, b Relation) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Ptr {
		return va.Pointer() == vb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

// RenestRecursives unrolls one level of every recursive node into its nested
// tree, so the loader only ever walks plain nesting:
//
//	next^2  =>  next(2){ next(1){ next(0) } }
//
// An infinite node gains a single infinite child, which the loader expands
// again when it reaches it.
func RenestRecursives(tree Tree) Tree {
	if tree == nil {
		return nil
	}
	out := make(Tree, len(tree))
	for name, node := range tree {
		out[name] = renestNode(node)
	}
	return out
}

func renestNode(node *Node) *Node {
	out := node.copy()
	out.nested = RenestRecursives(node.nested)
	if node.recursions.IsZero() {
		return out
	}

	next := node.copy()
	next.recursions = node.recursions.Next()
	if !node.recursions.IsInfinite() {
		next = renestNode(next)
	}
	out.nested = mergeTrees(slog.Default(), out.nested, Tree{node.name: next})
	return out
}

// Compile normalizes specs and unrolls recursion.
func Compile(specs ...interface{}) (Tree, error) {
	tree, err := Normalize(specs...)
	if err != nil {
		return nil, err
	}
	return RenestRecursives(tree), nil
}
