package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/ai"
	"github.com/cumplo-spotter/cumplo-spotter/internal/ai/gemini"
	"github.com/cumplo-spotter/cumplo-spotter/internal/cumplo"
	"github.com/cumplo-spotter/cumplo-spotter/internal/dispatch"
	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/logger"
	"github.com/cumplo-spotter/cumplo-spotter/internal/metrics"
	"github.com/cumplo-spotter/cumplo-spotter/internal/secrets"
	"github.com/cumplo-spotter/cumplo-spotter/internal/spotter"
	"github.com/cumplo-spotter/cumplo-spotter/internal/store"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

// userStore is what the commands need from any store driver.
type userStore interface {
	spotter.Store
	GetUser(ctx context.Context, id string) (*users.User, error)
	SaveUser(ctx context.Context, u *users.User) error
}

// deps lazily builds the backends shared by the commands and closes them at the end.
type deps struct {
	cfg     *Config
	logger  *zap.Logger
	redis   *redis.Client
	closers []func(ctx context.Context) error
}

// mustDeps loads the configuration and the logger. Like every command setup, it exits on failure.
func mustDeps() *deps {
	config, err := getConfig()
	if err != nil {
		log.Fatalf("getting a config: %s", err)
	}
	if config == nil {
		config = &Config{}
	}

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), config.Log)
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	logger.Info("starting the cumplo-spotter", zap.String("version", resolveVersion()))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(*config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return &deps{cfg: config, logger: logger}
}

func redacted(c Config) Config {
	c.Store.Redis.Password = mask(c.Store.Redis.Password)
	c.API.InternalToken = mask(c.API.InternalToken)
	if c.AI != nil && c.AI.Gemini != nil {
		aiCfg := *c.AI
		g := *c.AI.Gemini
		g.APIKey = mask(g.APIKey)
		aiCfg.Gemini = &g
		c.AI = &aiCfg
	}
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func (d *deps) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			d.logger.Warn("closing backend", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

func (d *deps) lexicon() funding.Lexicon {
	if d.cfg.Dicom == nil {
		return funding.DefaultLexicon
	}
	return funding.DefaultLexicon.Override(*d.cfg.Dicom)
}

func (d *deps) source() *cumplo.Client {
	return cumplo.New(d.logger.Named("cumplo"), d.cfg.Cumplo, d.lexicon())
}

func (d *deps) redisClient(ctx context.Context) (*redis.Client, error) {
	if d.redis != nil {
		return d.redis, nil
	}

	cfg := d.cfg.Store.Redis
	password, err := secrets.Optional(secrets.Source{
		Name:  "redis password",
		Value: cfg.Password,
		File:  cfg.PasswordFile,
	})
	if err != nil {
		return nil, err
	}
	cfg.Password = password

	client, err := store.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.redis = client
	d.closers = append(d.closers, func(context.Context) error { return client.Close() })
	return client, nil
}

func (d *deps) userStore(ctx context.Context) (userStore, error) {
	switch d.cfg.Store.Driver {
	case store.DriverMemory, "":
		d.logger.Warn("using the in-memory store, users are lost on exit")
		return store.NewMemory(), nil
	case store.DriverRedis:
		client, err := d.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewRedis(client, d.cfg.Store.Redis.Prefix), nil
	case store.DriverMongo:
		m, err := store.NewMongo(ctx, d.cfg.Store.Mongo)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, m.Close)
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", d.cfg.Store.Driver)
	}
}

// queue returns the raw task queue, the one workers pop from.
func (d *deps) queue(ctx context.Context) (dispatch.Queue, error) {
	cfg := d.cfg.Dispatch
	switch cfg.Driver {
	case dispatch.DriverMemory, "":
		return dispatch.NewMemoryQueue(), nil
	case dispatch.DriverRedis:
		client, err := d.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return dispatch.NewRedisQueue(client, d.queueKey()), nil
	case dispatch.DriverRabbitMQ:
		q, err := dispatch.NewRabbitQueue(cfg.RabbitMQURL, cfg.Queue)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func(context.Context) error { return q.Close() })
		return q, nil
	default:
		return nil, fmt.Errorf("unsupported dispatch driver: %s", cfg.Driver)
	}
}

// enqueuer deduplicates webhook tasks through redis whenever redis is configured.
func (d *deps) enqueuer(ctx context.Context, q dispatch.Queue) (spotter.Enqueuer, error) {
	if d.cfg.Dispatch.DedupeWindow <= 0 || d.cfg.Store.Redis.Addr == "" {
		return q, nil
	}
	client, err := d.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	return dispatch.NewDeduplicated(q, client, d.dedupePrefix(), d.cfg.Dispatch.DedupeWindow), nil
}

func (d *deps) queueKey() string {
	return store.KeyPrefix(d.cfg.Store.Redis.Prefix) + d.cfg.Dispatch.Queue
}

func (d *deps) dedupePrefix() string {
	return store.KeyPrefix(d.cfg.Store.Redis.Prefix) + "dedupe:"
}

func (d *deps) summarizer(ctx context.Context) (spotter.Summarizer, error) {
	cfg := d.cfg.AI
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	switch provider := strings.TrimSpace(strings.ToLower(cfg.Provider)); provider {
	case "plain":
		return ai.Plain{}, nil
	case "gemini", "":
		if cfg.Gemini == nil {
			return nil, fmt.Errorf("gemini configuration is required when ai digest is enabled")
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}

		generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries)
		if err != nil {
			return nil, err
		}

		genLogger := logger.WithAI(d.logger, "gemini", generator.Model())
		return gemini.NewSummarizer(generator, genLogger, cfg.Language, cfg.Gemini.MaxLogLength), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// service wires the notifier. The returned queue is the one to run a local worker on.
func (d *deps) service(ctx context.Context) (*spotter.Service, userStore, dispatch.Queue, error) {
	st, err := d.userStore(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building store: %w", err)
	}

	q, err := d.queue(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building queue: %w", err)
	}

	enq, err := d.enqueuer(ctx, q)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building deduplication: %w", err)
	}

	summarizer, err := d.summarizer(ctx)
	if err != nil {
		// the digest is optional, notifications still go out without it
		d.logger.Warn("skipping ai digest", zap.Error(err))
		summarizer = nil
	}

	svc := spotter.New(d.cfg.Spotter, spotter.Deps{
		Source:     d.source(),
		Store:      st,
		Queue:      enq,
		Summarizer: summarizer,
		Logger:     d.logger.Named("spotter"),
	})
	return svc, st, q, nil
}

// localWorker delivers tasks in process when the queue lives in memory and cannot be shared with a worker command.
func (d *deps) localWorker(ctx context.Context, q dispatch.Queue) {
	if _, ok := q.(*dispatch.MemoryQueue); !ok {
		return
	}
	w := dispatch.NewWorker(d.logger.Named("worker"), q, nil)
	go func() {
		_ = w.Run(ctx)
	}()
}

// flush delivers what a one-shot command left in an in-memory queue.
func (d *deps) flush(ctx context.Context, q dispatch.Queue) {
	if n := dispatch.NewWorker(d.logger.Named("worker"), q, nil).Drain(ctx); n > 0 {
		d.logger.Info("in-memory queue flushed", zap.Int("tasks", n))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
