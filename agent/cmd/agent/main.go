package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cardiosense/cardiosense/agent/internal/collector"
	"github.com/cardiosense/cardiosense/agent/internal/config"
	"github.com/cardiosense/cardiosense/agent/internal/shipper"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with secrets referenced by *_env keys")
	flag.Parse()

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	level := new(slog.LevelVar)
	setLevel(level, cfg.Agent.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("cardiosense-agent starting", "config", *configPath)
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"sources", len(cfg.Agent.Sources),
		"interval", cfg.Agent.Interval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ship, err := shipper.New(cfg.Agent)
	if err != nil {
		slog.Error("failed to build shipper", "err", err)
		os.Exit(1)
	}
	go ship.Run(ctx)

	coll := collector.New(cfg.Agent, ship)
	go coll.Run(ctx)

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			setLevel(level, updated.Agent.LogLevel)
			if err := ship.Reconfigure(updated.Agent); err != nil {
				slog.Error("shipper reconfigure failed, keeping previous server settings", "err", err)
			}
			coll.Apply(updated.Agent)
			slog.Info("config hot-reloaded",
				"sources", coll.Sources(),
				"interval", coll.Interval(),
			)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("cardiosense-agent shutting down", "pending", ship.Pending())
}

func setLevel(v *slog.LevelVar, name string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		l = slog.LevelInfo
	}
	v.Set(l)
}
