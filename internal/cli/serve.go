package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"atlas/internal/server"

	"gopkg.in/alecthomas/kingpin.v2"
)

type serveCmd struct {
	port      string
	blockFile string
}

func (s *serveCmd) register(app *kingpin.Application) {
	cmd := app.Command("serve", "Serve the schema as a read-only JSON API.")
	cmd.Flag("port", "Listen port, overrides APP_PORT.").StringVar(&s.port)
	cmd.Flag("blocklist", "File with one blocked IP per line.").StringVar(&s.blockFile)
}

func (s *serveCmd) run(ctx context.Context, envFile string) error {
	cfg, mgr, reg, err := open(envFile)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if s.port != "" {
		cfg.Port = s.port
	}

	srv := server.New(cfg, mgr, reg)
	if s.blockFile != "" {
		f, err := os.Open(s.blockFile)
		if err != nil {
			return err
		}
		_, err = srv.BlockList().ReadFrom(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	slog.Info("starting atlas", "env", cfg.Env, "mappers", len(reg.Names()), "blocked_ips", srv.BlockList().Len())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
