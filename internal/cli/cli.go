// Package cli implements the atlas command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"atlas/internal/config"
	"atlas/internal/schema"
	"atlas/pkg/dbmanager"
	"atlas/pkg/logger"

	"gopkg.in/alecthomas/kingpin.v2"
)

// Version is set at build time with -ldflags "-X atlas/internal/cli.Version=...".
var Version = "dev"

type CLI struct {
	app *kingpin.Application
	out io.Writer
	ctx context.Context

	envFile string

	tree  treeCmd
	fetch fetchCmd
	serve serveCmd
}

func New(ctx context.Context, out io.Writer) *CLI {
	c := &CLI{
		app: kingpin.New("atlas", "Relation-aware record loader."),
		out: out,
		ctx: ctx,
	}
	c.app.Writer(out)
	c.app.Terminate(nil)
	c.app.HelpFlag.Short('h')
	c.app.Flag("env-file", "Dotenv file read before the environment.").Default(".env").StringVar(&c.envFile)

	c.app.Command("version", "Print the atlas version.")
	c.tree.register(c.app)
	c.fetch.register(c.app)
	c.serve.register(c.app)
	return c
}

// Run parses args (without the program name) and executes the command.
func (c *CLI) Run(args []string) error {
	cmd, err := c.app.Parse(args)
	if err != nil {
		return err
	}

	switch cmd {
	case "version":
		_, err = fmt.Fprintf(c.out, "atlas %s\n", Version)
		return err
	case "tree":
		return c.tree.run(c.out)
	case "fetch":
		return c.fetch.run(c.ctx, c.out, c.envFile)
	case "serve":
		return c.serve.run(c.ctx, c.envFile)
	default:
		return nil
	}
}

// open loads config, connects the default database and builds the mapper
// registry from the schema file.
func open(envFile string) (*config.Config, *dbmanager.DBManager, *schema.Registry, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Setup(cfg.Env)

	s, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		return nil, nil, nil, err
	}

	mgr := dbmanager.NewDBManager()
	if err := mgr.AddConnection("default", cfg.DBDriver, cfg.DBDSN, cfg.DBMaxOpen, cfg.DBMaxIdle); err != nil {
		return nil, nil, nil, err
	}
	slog.Debug("database connected", "driver", cfg.DBDriver)

	db, dialect := mgr.GetDefault()
	reg, err := schema.Build(s, db, dialect, logger.Log)
	if err != nil {
		_ = mgr.Close()
		return nil, nil, nil, err
	}
	return cfg, mgr, reg, nil
}
