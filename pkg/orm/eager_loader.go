package orm

import (
	"context"

	"atlas/pkg/keys"
	"atlas/pkg/metrics"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// With requests relations to be eager loaded by Fetch, First, Find and
// FindAll. Specs accumulate across calls; pass None to clear them and All to
// request every registered relation.
func (m *Mapper) With(specs ...interface{}) *Mapper {
	tree, reset, err := m.resolveSpecs(specs)
	if err != nil {
		return m.fail(err)
	}
	return m.derive(func(s *state) {
		if reset {
			s.related = nil
		}
		s.related = mergeTrees(s.logger, s.related, tree)
	})
}

// Related returns the normalized tree requested with With.
func (m *Mapper) Related() Tree { return m.st.related.clone() }

// resolveSpecs normalizes specs, expanding All and None. reset is set when a
// None appears; only the specs after the last None are kept.
func (m *Mapper) resolveSpecs(specs []interface{}) (tree Tree, reset bool, err error) {
	pending := make([]interface{}, 0, len(specs))
	for _, spec := range specs {
		switch spec {
		case None:
			pending = pending[:0]
			reset = true
		case All:
			for _, name := range m.RelationNames() {
				pending = append(pending, name)
			}
		default:
			pending = append(pending, spec)
		}
	}
	tree, err = normalize(m.st.logger, pending...)
	return tree, reset, err
}

// Loader attaches relations to records that were fetched already.
type Loader struct {
	mapper *Mapper
	tree   Tree
	err    error
}

// Load prepares a loader for the given relation specs.
func (m *Mapper) Load(specs ...interface{}) *Loader {
	tree, _, err := m.resolveSpecs(specs)
	return &Loader{mapper: m, tree: RenestRecursives(tree), err: err}
}

// Into loads the relations onto records. A single record argument yields a
// single-record result; anything else is treated as a list. The input records
// are not modified.
func (l *Loader) Into(ctx context.Context, records ...interface{}) (keys.Targets, error) {
	if l.err != nil {
		return keys.Targets{}, l.err
	}
	if err := l.mapper.Err(); err != nil {
		return keys.Targets{}, err
	}
	targets, err := keys.NormalizeRecords(records...)
	if err != nil {
		return keys.Targets{}, err
	}
	return l.mapper.eagerLoad(ctx, targets, l.tree)
}

// branch is one top level relation of an eager load.
type branch struct {
	node     *Node
	relation Relation
	values   []interface{}
}

// eagerLoad attaches every relation of a compiled tree to targets. All
// relations are resolved before any query runs; the fetches of one level run
// concurrently and the first failure cancels the rest.
func (m *Mapper) eagerLoad(ctx context.Context, targets keys.Targets, tree Tree) (keys.Targets, error) {
	if len(tree) == 0 || !hasRecords(targets) {
		return targets, nil
	}

	names := tree.Names()
	branches := make([]*branch, len(names))
	for i, name := range names {
		node := tree[name]
		if node.err != nil {
			return keys.Targets{}, node.err
		}
		rel := node.relation
		if rel == nil {
			var err error
			if rel, err = m.GetRelation(name); err != nil {
				return keys.Targets{}, err
			}
		}
		branches[i] = &branch{node: node, relation: rel}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range branches {
		g.Go(func() error {
			values, err := m.loadBranch(gctx, targets, b.node, b.relation)
			if err != nil {
				return errors.Wrapf(err, "load %q", b.node.name)
			}
			b.values = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return keys.Targets{}, err
	}

	out := keys.Targets{Records: make([]keys.Record, len(targets.Records)), Single: targets.Single}
	for i, rec := range targets.Records {
		if rec == nil {
			continue
		}
		merged := make(keys.Record, len(rec)+len(branches))
		for k, v := range rec {
			merged[k] = v
		}
		for _, b := range branches {
			merged[b.node.name] = b.values[i]
		}
		out.Records[i] = merged
	}
	return out, nil
}

// loadBranch fetches one relation for targets, loads its nested relations on
// the fetched rows and pairs the result with each target.
func (m *Mapper) loadBranch(ctx context.Context, targets keys.Targets, node *Node, rel Relation) ([]interface{}, error) {
	var of []interface{}
	if targets.Single {
		of = []interface{}{targets.One()}
	} else {
		of = []interface{}{targets.Records}
	}
	scoped, err := rel.Of(of...)
	if err != nil {
		return nil, err
	}
	for _, init := range node.initializers {
		scoped = init(scoped)
	}

	rows, err := scoped.fetchRows(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RelationLoaded(node.name)

	nested := node.nested
	if node.recursions.IsInfinite() {
		if _, expanded := nested[node.name]; !expanded {
			nested = renestNode(node).nested
		}
	}
	nested = mergeTrees(m.st.logger, RenestRecursives(scoped.st.related), nested)
	if len(nested) > 0 && len(rows) > 0 {
		loaded, err := scoped.eagerLoad(ctx, keys.Targets{Records: rows}, nested)
		if err != nil {
			return nil, err
		}
		rows = loaded.Records
	}

	values, err := rel.MapRelated(targets, rows)
	if err != nil {
		return nil, err
	}
	if node.required || scoped.st.required {
		if err := checkRequired(targets, values, node.name); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func hasRecords(targets keys.Targets) bool {
	for _, rec := range targets.Records {
		if rec != nil {
			return true
		}
	}
	return false
}

// checkRequired fails when any target received nothing. Single-target loads
// report ErrNotFound, multi-target loads ErrNoRowsFound.
func checkRequired(targets keys.Targets, values []interface{}, name string) error {
	for i, v := range values {
		empty := v == nil
		if list, ok := v.([]keys.Record); ok {
			empty = len(list) == 0
		}
		if !empty {
			continue
		}
		if targets.Single {
			return errors.Wrapf(ErrNotFound, "required relation %q", name)
		}
		return errors.Wrapf(ErrNoRowsFound, "required relation %q for record %d", name, i)
	}
	return nil
}
