package cli

import (
	"io"

	"atlas/pkg/fastjson"
	"atlas/pkg/orm"

	"gopkg.in/alecthomas/kingpin.v2"
)

type treeCmd struct {
	specs []string
}

func (t *treeCmd) register(app *kingpin.Application) {
	cmd := app.Command("tree", "Print the compiled relation tree of one or more specs as JSON.")
	cmd.Arg("spec", `Relation paths such as "author.posts" or "next^3".`).Required().StringsVar(&t.specs)
}

func (t *treeCmd) run(out io.Writer) error {
	specs := make([]interface{}, len(t.specs))
	for i, s := range t.specs {
		specs[i] = s
	}
	tree, err := orm.Compile(specs...)
	if err != nil {
		return err
	}
	return fastjson.WriteIndent(out, tree)
}
