package main

import (
	"LiveChat/impl/core"
	"LiveChat/internal/config"
	repository "LiveChat/internal/database"
	"LiveChat/internal/events"
	"LiveChat/internal/http-server/api"
	"LiveChat/internal/lib/limiter"
	"LiveChat/internal/lib/logger"
	"LiveChat/internal/lib/sl"
	"LiveChat/internal/ws"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	lg.Info("starting livechat", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := core.New(lg)
	handler.SetAuthKey(conf.Auth.JwtSecret, conf.Auth.TokenTTL)
	handler.SetAccountKey(conf.Auth.AccountJwtSecret)
	handler.SetMaxBody(conf.Chat.MaxBody)
	handler.SetPollInterval(conf.Chat.PollInterval)

	switch conf.Database.Driver {
	case "mongo":
		db, err := repository.NewMongoClient(conf, lg)
		if err != nil {
			lg.With(sl.Err(err)).Error("mongo client")
			return
		}
		defer func() { _ = db.Close() }()
		handler.SetRepository(db)
		lg.With(
			slog.String("host", conf.Mongo.Host),
			slog.String("port", conf.Mongo.Port),
			slog.String("user", conf.Mongo.User),
			slog.String("database", conf.Mongo.Database),
		).Info("mongo client initialized")
	default:
		if dir := filepath.Dir(conf.Sqlite.Path); dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		store, err := repository.NewSQLiteStore(conf.Sqlite.Path, lg)
		if err != nil {
			lg.With(sl.Err(err)).Error("sqlite store")
			return
		}
		defer func() { _ = store.Close() }()
		handler.SetRepository(store)
		lg.With(slog.String("path", conf.Sqlite.Path)).Info("sqlite store initialized")
	}

	hub := ws.NewHub(lg)
	handler.SetBroadcaster(hub)

	if conf.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.With(sl.Err(err)).Warn("redis unavailable, running single instance")
		} else {
			backplane := ws.NewRedisBackplane(rdb, conf.Redis.Channel, uuid.NewString(), lg)
			hub.SetBackplane(backplane)
			hub.SetPresence(ws.NewRedisPresence(rdb, conf.Redis.Channel+":presence", lg))
			go backplane.Run(ctx, hub)

			handler.SetLimiter(limiter.NewFixedWindow(rdb, "livechat:rate", conf.Chat.VisitorRateLimit, conf.Chat.VisitorRateWindow))
			lg.With(
				slog.String("addr", conf.Redis.Addr),
				slog.String("channel", conf.Redis.Channel),
			).Info("redis backplane initialized")
		}
	}

	var publisher events.Publisher = events.NewFallback(lg)
	if conf.Rabbit.Enabled {
		rabbit, err := events.NewRabbit(ctx, events.ConnectionOptions{
			URL:           conf.Rabbit.URL,
			Exchange:      conf.Rabbit.Exchange,
			RetryAttempts: conf.Rabbit.RetryAttempts,
			Delay:         conf.Rabbit.RetryDelay,
		}, lg)
		if err != nil {
			lg.With(sl.Err(err)).Error("rabbitmq publisher, events will only be logged")
		} else {
			publisher = rabbit
			lg.With(slog.String("exchange", conf.Rabbit.Exchange)).Info("rabbitmq publisher initialized")
		}
	}
	defer func() { _ = publisher.Close() }()
	handler.SetEventPublisher(publisher)

	if conf.Admin.Username != "" {
		if err := handler.EnsureAdmin(ctx, conf.Admin.Username, conf.Admin.Password, conf.Admin.Name); err != nil {
			lg.With(sl.Err(err)).Error("ensure admin")
		}
	}

	handler.Init(ctx, conf.Chat.StaleAfter, conf.Chat.SweepInterval)

	// *** blocking start with http server ***
	errCh := make(chan error, 1)
	go func() { errCh <- api.New(conf, lg, handler, hub) }()

	select {
	case err := <-errCh:
		lg.Error("server start", sl.Err(err))
	case <-ctx.Done():
		lg.Info("shutdown signal received")
	}
	lg.Error("service stopped")
}
