package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"atlas/pkg/export"
	"atlas/pkg/fastjson"
	"atlas/pkg/filter"
	"atlas/pkg/keys"
	"atlas/pkg/orm"

	"gopkg.in/alecthomas/kingpin.v2"
)

type fetchCmd struct {
	mapper string
	id     string
	with   []string
	filter string
	order  string
	desc   bool
	limit  int
	xlsx   string
}

func (f *fetchCmd) register(app *kingpin.Application) {
	cmd := app.Command("fetch", "Load records of a mapper together with their relations.")
	cmd.Arg("mapper", "Mapper name from the schema file.").Required().StringVar(&f.mapper)
	cmd.Flag("id", "Load a single record by id.").StringVar(&f.id)
	cmd.Flag("with", "Relation spec to eager load. Repeatable.").Short('w').StringsVar(&f.with)
	cmd.Flag("filter", "Expression records must satisfy, e.g. 'len(posts) > 1'.").StringVar(&f.filter)
	cmd.Flag("order", "Column to order by.").StringVar(&f.order)
	cmd.Flag("desc", "Order descending.").BoolVar(&f.desc)
	cmd.Flag("limit", "Maximum number of records.").IntVar(&f.limit)
	cmd.Flag("xlsx", "Write the records to this spreadsheet instead of stdout.").StringVar(&f.xlsx)
}

func (f *fetchCmd) run(ctx context.Context, out io.Writer, envFile string) error {
	_, mgr, reg, err := open(envFile)
	if err != nil {
		return err
	}
	defer mgr.Close()

	m, ok := reg.Get(f.mapper)
	if !ok {
		return fmt.Errorf("unknown mapper %q", f.mapper)
	}

	var match *filter.Filter
	if f.filter != "" {
		if match, err = filter.Compile(f.filter); err != nil {
			return err
		}
	}

	rows, err := f.load(ctx, m)
	if err != nil {
		return err
	}
	if match != nil {
		if rows, err = match.Apply(rows); err != nil {
			return err
		}
	}

	if f.xlsx != "" {
		file, err := os.Create(f.xlsx)
		if err != nil {
			return err
		}
		if err := export.WriteXLSX(file, f.mapper, rows); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "wrote %d records to %s\n", len(rows), f.xlsx)
		return err
	}

	if f.id != "" {
		if len(rows) == 0 {
			return fastjson.WriteIndent(out, nil)
		}
		return fastjson.WriteIndent(out, rows[0])
	}
	return fastjson.WriteIndent(out, rows)
}

func (f *fetchCmd) load(ctx context.Context, m *orm.Mapper) ([]keys.Record, error) {
	specs := make([]interface{}, len(f.with))
	for i, s := range f.with {
		specs[i] = s
	}

	m = m.WithMutations(func(m *orm.Mapper) {
		m.With(specs...)
		if f.order != "" {
			dir := "asc"
			if f.desc {
				dir = "desc"
			}
			m.OrderBy(f.order, dir)
		}
		if f.limit > 0 {
			m.Limit(f.limit)
		}
	})

	if f.id == "" {
		return m.Fetch(ctx)
	}
	rec, err := m.Require().Find(ctx, f.id)
	if err != nil {
		return nil, err
	}
	return []keys.Record{rec}, nil
}
