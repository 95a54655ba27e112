// Package filter evaluates boolean expressions against fetched records.
//
//	title startsWith "Im" && author.name == "Dean"
//	num(price) >= 9.99 || len(posts) > 2
//
// Columns missing from a record evaluate to nil instead of failing.
package filter

import (
	"fmt"

	"atlas/pkg/keys"
	"atlas/pkg/utils/coerce"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/shopspring/decimal"
)

type Filter struct {
	source  string
	program *vm.Program
}

// helpers are merged into every record env. A record column with the same
// name shadows the helper.
var helpers = map[string]interface{}{
	// num reads DECIMAL columns that drivers return as strings.
	"num": func(v interface{}) float64 {
		d, err := decimal.NewFromString(coerce.ToString(v))
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	},
}

func Compile(source string) (*Filter, error) {
	env := make(map[string]interface{}, len(helpers))
	for k, v := range helpers {
		env[k] = v
	}

	program, err := expr.Compile(source,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("filter: syntax error in %q: %w", source, err)
	}
	return &Filter{source: source, program: program}, nil
}

func (f *Filter) String() string { return f.source }

func (f *Filter) Match(rec keys.Record) (bool, error) {
	env := make(map[string]interface{}, len(rec)+len(helpers))
	for k, v := range helpers {
		env[k] = v
	}
	for k, v := range rec {
		env[k] = v
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("filter: %q: %w", f.source, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Apply keeps the records that match, preserving order.
func (f *Filter) Apply(records []keys.Record) ([]keys.Record, error) {
	out := make([]keys.Record, 0, len(records))
	for _, rec := range records {
		ok, err := f.Match(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
