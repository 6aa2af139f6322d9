package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"Dreamy/ai"
	"Dreamy/bot"
	"Dreamy/core"
	"Dreamy/gallery"
	"Dreamy/lib/sl"
	"Dreamy/storage"
	"Dreamy/web"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("model", conf.OpenAI.Model),
		sl.Secret(conf.OpenAI.ApiKey),
	).Info("starting dreamy")

	store := setupStorage(conf, log)

	generator := ai.NewDalle(conf, log)
	manager := gallery.NewManager(generator, store, conf.Session.IdleTTL, log)
	if err := manager.StartSweeper(conf.Session.Sweep); err != nil {
		log.Error("session sweeper disabled", sl.Err(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	if conf.Listen.Enabled {
		server, err := web.NewServer(conf.ListenAddr(), manager, log)
		if err != nil {
			log.Error("creating web server", sl.Err(err))
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(ctx); err != nil {
				log.Error("web server stopped with error", sl.Err(err))
				cancel()
			}
		}()
	}

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf, manager, log)
		if err != nil {
			log.Error("creating telegram", sl.Err(err))
			return
		}
		go func() {
			if err := tgBot.Start(); err != nil {
				log.Error("bot stopped with error", sl.Err(err))
			}
		}()
		log.Info("bot started")
	}

	if !conf.Listen.Enabled && !conf.Telegram.Enabled {
		log.Error("nothing to run: enable listen or telegram")
		return
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	cancel()
	if tgBot != nil {
		tgBot.Stop()
	}
	wg.Wait()
	manager.Stop()

	if err := store.Close(); err != nil {
		log.Error("closing storage", sl.Err(err))
	}

	log.Info("shutdown complete")
}

// setupStorage falls back to memory when the configured database is unreachable
func setupStorage(conf *core.Config, log *slog.Logger) storage.Storage {
	switch conf.Storage.Driver {
	case "mongo":
		store, err := storage.NewMongoStorage(conf.MongoURI(), conf.Mongo.Database, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Mongo.Database),
				slog.String("user", conf.Mongo.User),
				slog.String("host", conf.Mongo.Host),
			).Error("falling back to memory", sl.Err(err))
			return storage.NewMemoryStorage()
		}
		log.Info("using MongoDB storage")
		return store
	case "postgres":
		store, err := storage.NewPostgresStorage(conf.Postgres.URL, log)
		if err != nil {
			log.Error("falling back to memory", sl.Err(err))
			return storage.NewMemoryStorage()
		}
		log.Info("using PostgreSQL storage")
		return store
	}
	log.Info("using in-memory storage")
	return storage.NewMemoryStorage()
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
