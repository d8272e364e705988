package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/tapthat/adapters/chain"
	"github.com/layer-3/tapthat/adapters/events"
	"github.com/layer-3/tapthat/adapters/push"
	"github.com/layer-3/tapthat/adapters/store"
	"github.com/layer-3/tapthat/config"
	"github.com/layer-3/tapthat/logger"
	"github.com/layer-3/tapthat/ports"
	"github.com/layer-3/tapthat/service"
	transporthttp "github.com/layer-3/tapthat/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "tapthat-relay",
		Usage: "Gasless relay for chip-authorized on-chain actions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "relayer-private-key",
				Usage:   "Hex private key of the account paying gas",
				EnvVars: []string{config.EnvRelayerPrivateKey},
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Bridge request store: memory, postgres or redis",
				Value:   string(config.StoreMemory),
				EnvVars: []string{config.EnvStoreBackend},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL DSN",
				EnvVars: []string{config.EnvDatabaseURL},
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the redis store and bridge lifecycle events",
				EnvVars: []string{config.EnvRedisURL},
			},
			&cli.StringFlag{
				Name:    "vapid-public-key",
				EnvVars: []string{config.EnvVAPIDPublicKey},
			},
			&cli.StringFlag{
				Name:    "vapid-private-key",
				EnvVars: []string{config.EnvVAPIDPrivateKey},
			},
			&cli.StringFlag{
				Name:    "vapid-subject",
				Value:   push.DefaultSubject,
				EnvVars: []string{config.EnvVAPIDSubject},
			},
			&cli.StringFlag{
				Name:    "deployments",
				Usage:   "YAML file with RPC URLs and contract addresses per chain",
				EnvVars: []string{config.EnvDeploymentsFile},
			},
			&cli.StringFlag{
				Name:    "listen",
				Value:   config.DefaultListenAddr,
				EnvVars: []string{config.EnvListenAddr},
			},
			&cli.DurationFlag{
				Name:    "bridge-request-ttl",
				Value:   config.DefaultBridgeRequestTTL,
				EnvVars: []string{config.EnvBridgeRequestTTL},
			},
			&cli.BoolFlag{
				Name:    "debug",
				EnvVars: []string{config.EnvDebug},
			},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create or update the PostgreSQL schema and exit",
				Action: runMigrate,
			},
			{
				Name:  "watch-events",
				Usage: "Log bridge lifecycle events from Redis streams",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "group",
						Value: "tapthat-watch",
						Usage: "Consumer group name",
					},
				},
				Action: runWatchEvents,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	deployments, err := config.LoadDeployments(c.String("deployments"))
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		RelayerPrivateKey: c.String("relayer-private-key"),
		DatabaseURL:       c.String("database-url"),
		RedisURL:          c.String("redis-url"),
		StoreBackend:      config.StoreBackend(c.String("store")),
		VAPIDPublicKey:    c.String("vapid-public-key"),
		VAPIDPrivateKey:   c.String("vapid-private-key"),
		VAPIDSubject:      c.String("vapid-subject"),
		DeploymentsFile:   c.String("deployments"),
		Deployments:       deployments,
		ListenAddr:        c.String("listen"),
		BridgeRequestTTL:  c.Duration("bridge-request-ttl"),
		Debug:             c.Bool("debug"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServer(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	lg, err := logger.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer lg.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	bridgeStore, subscriptions, closeStore, err := openStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeStore()

	retrier := store.NewRetrier(lg)
	bridgeStore = store.WithRetry(bridgeStore, retrier)
	subscriptions = store.WithSubscriptionRetry(subscriptions, retrier)

	var publisher ports.EventPublisher = events.NopPublisher{}
	if redisClient != nil {
		streams, err := events.NewRedisStreamPublisher(redisClient, events.NewZapLoggerAdapter(lg))
		if err != nil {
			return err
		}
		defer streams.Close()
		publisher = events.NewWatermillPublisher(streams)
	}

	sender := push.NewWebPushSender(push.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}, &http.Client{Timeout: 10 * time.Second})
	if sender.PublicKey() == "" {
		lg.Warn("VAPID keys are not configured, bridge approvals will not be pushed")
	}

	notifications := service.NewNotificationService(subscriptions, sender, lg)
	relay := service.NewRelayService(service.RelayConfig{
		Deployments:      cfg.Deployments,
		RelayerKey:       cfg.RelayerPrivateKey,
		BridgeRequestTTL: cfg.BridgeRequestTTL,
	}, chain.Dialer(lg), bridgeStore, notifications, publisher, lg)
	defer relay.Close()
	bridges := service.NewBridgeService(bridgeStore, publisher, cfg.Deployments, lg)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transporthttp.SetupRouter(transporthttp.NewHandlers(relay, bridges, notifications, lg), lg)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("relay listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("store", string(cfg.StoreBackend)),
			zap.Int("chains", len(cfg.Deployments)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore builds the configured backend. The returned stores are the same
// value for every backend.
func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (ports.BridgeRequestStore, ports.SubscriptionStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, pg, func() { _ = pg.Close() }, nil

	case config.StoreRedis:
		rs := store.NewRedisStore(redisClient)
		return rs, rs, func() {}, nil

	default:
		mem := store.NewMemoryStore()
		return mem, mem, func() {}, nil
	}
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func runMigrate(c *cli.Context) error {
	dsn := c.String("database-url")
	if dsn == "" {
		return fmt.Errorf("%s is required", config.EnvDatabaseURL)
	}

	pg, err := store.OpenPostgres(c.Context, dsn)
	if err != nil {
		return err
	}
	defer pg.Close()

	log.Println("schema is up to date")
	return nil
}

func runWatchEvents(c *cli.Context) error {
	lg, err := logger.New(c.Bool("debug"))
	if err != nil {
		return err
	}
	defer lg.Sync() //nolint:errcheck

	url := c.String("redis-url")
	if url == "" {
		return fmt.Errorf("%s is required", config.EnvRedisURL)
	}
	client, err := newRedisClient(url)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	subscriber, err := events.NewRedisStreamSubscriber(client, c.String("group"), events.NewZapLoggerAdapter(lg))
	if err != nil {
		return err
	}
	defer subscriber.Close()

	for _, topic := range []string{events.TopicBridgeRequested, events.TopicBridgeCompleted} {
		messages, err := subscriber.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		go logEvents(lg.With(zap.String("topic", topic)), messages)
	}

	<-ctx.Done()
	return nil
}

func logEvents(lg *zap.Logger, messages <-chan *message.Message) {
	for msg := range messages {
		lg.Info("event",
			zap.String("uuid", msg.UUID),
			zap.ByteString("payload", msg.Payload),
		)
		msg.Ack()
	}
}
