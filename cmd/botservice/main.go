package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/security"
	"github.com/pitabwire/frame/workerpool"
	"github.com/redis/go-redis/v9"

	botconfig "github.com/Anmol9893/botservice/config"
	"github.com/Anmol9893/botservice/internal/connectutil"
	"github.com/Anmol9893/botservice/internal/samplebot"
	"github.com/Anmol9893/botservice/internal/telemetry"
	turnhandler "github.com/Anmol9893/botservice/internal/turn/handler"
	"github.com/Anmol9893/botservice/internal/turn/turnv1"
	"github.com/Anmol9893/botservice/pkg/bot"
	"github.com/Anmol9893/botservice/pkg/channel"
	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/dispatch"
	"github.com/Anmol9893/botservice/pkg/events"
	"github.com/Anmol9893/botservice/pkg/recognizer"
	"github.com/Anmol9893/botservice/pkg/state"
	"github.com/Anmol9893/botservice/pkg/urlvalidation"
)

const defaultPoolName = "__default__pool_name__"

func main() {
	ctx := context.Background()

	// A missing .env file is fine outside local development.
	_ = godotenv.Load()

	cfg, err := config.LoadWithOIDC[botconfig.BotConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	opts := []frame.Option{
		frame.WithConfig(&cfg),
		frame.WithName("botservice"),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	}
	if cfg.NeedsDatastore() {
		opts = append(opts, frame.WithDatastore())
	}
	if cfg.AuthEnabled {
		opts = append(opts, frame.WithRegisterServerOauth2Client())
	}
	ctx, srv := frame.NewService(opts...)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "bot", eventRef)
	metrics := telemetry.New(nil)

	store, err := newStore(ctx, srv, &cfg)
	if err != nil {
		log.Fatalf("setting up state store: %v", err)
	}

	rec, err := newRecognizer(&cfg)
	if err != nil {
		log.Fatalf("setting up recognizer: %v", err)
	}

	loader := dialog.NewLoader(cfg.DialogDir)
	if _, err := loader.LoadAll(); err != nil {
		log.Printf("warning: loading dialogs: %v", err)
	}
	rt, err := samplebot.NewRuntime(loader.All(), cfg.PromptRetries, dispatch.WithEmitter(pub))
	if err != nil {
		log.Fatalf("building dialogs: %v", err)
	}

	b, err := bot.New(store, rt,
		bot.WithRecognizer(rec),
		bot.WithEmitter(pub),
		bot.WithMetrics(metrics),
		bot.WithMaxHistory(cfg.MaxHistory),
	)
	if err != nil {
		log.Fatalf("creating bot: %v", err)
	}

	if cfg.WatchDialogs {
		go watchDialogs(ctx, loader, b, &cfg, pub)
	}

	deliverer, err := newDeliverer(ctx, srv, &cfg, pool, pub, metrics)
	if err != nil {
		log.Fatalf("setting up delivery: %v", err)
	}

	handler := turnhandler.NewTurnHandler(b, deliverer, pool)

	var authenticator security.Authenticator
	if cfg.AuthEnabled {
		authenticator = srv.SecurityManager().GetAuthenticator(ctx)
	}

	mux := http.NewServeMux()
	connectOpts, err := connectutil.HandlerOptions(ctx, authenticator)
	if err != nil {
		log.Fatalf("setting up interceptors: %v", err)
	}
	path, hdlr := turnv1.NewTurnServiceHandler(handler, connectOpts...)
	mux.Handle(path, hdlr)

	rest := http.NewServeMux()
	handler.RegisterRoutes(rest)
	mux.Handle("/api/", connectutil.HTTPMiddleware(rest, authenticator))
	mux.Handle("GET /metrics", metrics.Handler())

	srv.Init(ctx, frame.WithHTTPHandler(connectutil.H2CHandler(mux)))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

func newStore(ctx context.Context, srv *frame.Service, cfg *botconfig.BotConfig) (state.Store, error) {
	var store state.Store
	switch cfg.StateBackend {
	case botconfig.StateBackendMemory, "":
		store = state.NewMemoryStore()
	case botconfig.StateBackendRedis:
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		store = state.NewRedisStore(redis.NewClient(redisOpts),
			state.WithPrefix(cfg.StatePrefix), state.WithTTL(cfg.StateTTL()))
	case botconfig.StateBackendBlob:
		blob, err := state.NewBlobStore(state.BlobConfig{
			Endpoint:  cfg.BlobEndpoint,
			Region:    cfg.BlobRegion,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
			UseSSL:    cfg.BlobUseSSL,
		})
		if err != nil {
			return nil, err
		}
		store = blob
	case botconfig.StateBackendDB:
		db := state.NewDBStore(srv.DatastoreManager().GetPool(ctx, defaultPoolName))
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate state table: %w", err)
		}
		store = db
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}

	if cfg.StateCacheSize > 0 {
		return state.NewCachedStore(store, cfg.StateCacheSize)
	}
	return store, nil
}

func newRecognizer(cfg *botconfig.BotConfig) (recognizer.Recognizer, error) {
	var extra []recognizer.Recognizer
	if cfg.RecognizerURL != "" {
		remote, err := recognizer.NewHTTPRecognizer(recognizer.HTTPConfig{
			URL:        cfg.RecognizerURL,
			AuthType:   cfg.RecognizerAuthType,
			AuthSecret: cfg.RecognizerAuthSecret,
			Timeout:    cfg.RecognizerTimeout(),
		}, urlvalidation.AllowHosts(cfg.AllowedDeliveryHosts()...))
		if err != nil {
			return nil, err
		}
		extra = append(extra, remote)
	}
	return samplebot.NewRecognizer(cfg.RulesPath, cfg.MinScore, extra...)
}

func newDeliverer(
	ctx context.Context,
	srv *frame.Service,
	cfg *botconfig.BotConfig,
	pool workerpool.WorkerPool,
	pub *events.Publisher,
	metrics *telemetry.Metrics,
) (*channel.Deliverer, error) {
	opts := []channel.Option{
		channel.WithPool(pool),
		channel.WithEmitter(pub),
		channel.WithMetrics(metrics),
		channel.WithURLOptions(urlvalidation.AllowHosts(cfg.AllowedDeliveryHosts()...)),
	}
	if cfg.DeadLettersEnabled {
		repo := channel.NewRepository(srv.DatastoreManager().GetPool(ctx, defaultPoolName))
		if err := repo.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate dead letters: %w", err)
		}
		opts = append(opts, channel.WithDeadLetters(repo))
	}
	return channel.NewDeliverer(channel.Config{
		Secret:           cfg.ReplySecret,
		MaxAttempts:      cfg.DeliveryMaxAttempts,
		Timeout:          secs(cfg.DeliveryTimeoutSec),
		BackoffInitial:   secs(cfg.DeliveryBackoffSec),
		BackoffMax:       secs(cfg.DeliveryBackoffMax),
		BreakerThreshold: cfg.CBFailThreshold,
		BreakerReset:     secs(cfg.CBResetTimeoutSec),
	}, opts...), nil
}

// watchDialogs recompiles the runtime whenever the dialog directory changes.
// A definition set that fails to compile leaves the running set in place.
func watchDialogs(ctx context.Context, loader *dialog.Loader, b *bot.Bot, cfg *botconfig.BotConfig, pub *events.Publisher) {
	err := loader.WatchAndReload(ctx.Done(), func(defs []*dialog.Definition) {
		rt, err := samplebot.NewRuntime(defs, cfg.PromptRetries, dispatch.WithEmitter(pub))
		if err != nil {
			slog.ErrorContext(ctx, "dialog reload rejected", slog.String("error", err.Error()))
			return
		}
		b.Swap(rt)
		slog.InfoContext(ctx, "dialogs reloaded", slog.Int("forms", len(defs)))
	})
	if err != nil {
		slog.ErrorContext(ctx, "dialog watcher stopped", slog.String("error", err.Error()))
	}
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
