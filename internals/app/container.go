package app

import (
	"context"
	"time"

	"pulsewatch/config"
	middle "pulsewatch/internals/middleware"
	"pulsewatch/internals/modules/dispatch"
	"pulsewatch/internals/modules/ingest"
	"pulsewatch/internals/modules/notify"
	"pulsewatch/internals/modules/status"
	"pulsewatch/internals/modules/target"
	"pulsewatch/internals/security"
	"pulsewatch/pkg/httpclient"
	"pulsewatch/pkg/rabbitmq"
	"pulsewatch/pkg/redisstore"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Container struct {
	DB          *pgxpool.Pool
	RedisClient *redisstore.Client
	AMQPConn    *amqp091.Connection
	Publisher   *rabbitmq.Publisher
	Consumer    *rabbitmq.Consumer
	Logger      *zerolog.Logger

	targetHandler *target.Handler
	notifyHandler *notify.Handler
	statusHandler *status.Handler
	ingestHandler *ingest.Handler
	authMW        *middle.AuthMiddleware

	dispatchRepo *dispatch.Repository

	Dispatcher  *dispatch.Dispatcher
	Ingestor    *ingest.Ingestor
	Watchdog    *ingest.Watchdog
	Reconciler  *status.Reconciler
	Notifier    *notify.Dispatcher
	NotifyRetry *notify.RetryLoop
}

func NewContainer(ctx context.Context, db *pgxpool.Pool, cfg *config.Config, logger *zerolog.Logger) (*Container, error) {

	redisClient, err := redisstore.New(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	amqpConn, err := rabbitmq.NewConnection(&cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}
	if err := rabbitmq.SetupTopology(amqpConn, &cfg.RabbitMQ, cfg.Regions); err != nil {
		return nil, err
	}
	publisher, err := rabbitmq.NewPublisher(amqpConn, cfg.RabbitMQ.ExchangeName)
	if err != nil {
		return nil, err
	}
	consumer, err := rabbitmq.NewConsumer(amqpConn, cfg.RabbitMQ.ResultsQueue, cfg.RabbitMQ.WorkerCount, logger)
	if err != nil {
		return nil, err
	}

	transitions := make(chan notify.TransitionEvent, 500)

	validator := validator.New()
	httpClient := httpclient.New()

	targetRepo := target.NewRepository(db, logger)
	dispatchRepo := dispatch.NewRepository(db, logger)
	statusRepo := status.NewRepository(db, logger)
	ingestRepo := ingest.NewRepository(db, statusRepo, logger)
	channelRepo := notify.NewChannelRepository(db, logger)
	eventRepo := notify.NewEventRepository(db, logger)

	providers := notify.NewProviderSet(
		notify.NewHTTPEmailProvider(cfg.Notifier.EmailEndpoint, cfg.Notifier.EmailAPIKey, httpClient),
		notify.NewHTTPSMSProvider(cfg.Notifier.SMSEndpoint, cfg.Notifier.SMSAPIKey, httpClient),
	)

	targetSvc := target.NewService(targetRepo, redisClient, cfg.IntervalAllowed, cfg.Regions)
	notifySvc := notify.NewService(channelRepo, redisClient, providers, cfg.Notifier.CodeTTL)
	publicSvc := status.NewPublicService(targetRepo, statusRepo, redisClient, logger)

	dispatcher := dispatch.NewDispatcher(
		ctx,
		cfg.Dispatcher.Interval,
		cfg.Dispatcher.BatchSize,
		targetRepo,
		dispatchRepo,
		redisClient,
		publisher,
		logger,
	)

	ingestor := ingest.NewIngestor(
		ctx,
		cfg.Ingestor.Interval,
		cfg.Ingestor.WorkerPoolSize,
		cfg.Ingestor.BatchSize,
		dispatchRepo,
		ingestRepo,
		logger,
	)

	// a request is stale once it has gone unanswered for the configured
	// number of dispatch ticks
	cutoffAge := time.Duration(cfg.Watchdog.MissedTicks) * cfg.Dispatcher.Interval
	watchdog := ingest.NewWatchdog(
		ctx,
		cfg.Watchdog.Interval,
		cutoffAge,
		cfg.Ingestor.BatchSize,
		dispatchRepo,
		ingestRepo,
		logger,
	)

	reconciler := status.NewReconciler(
		ctx,
		cfg.Reconciler.Interval,
		statusRepo,
		targetRepo,
		redisClient,
		transitions,
		logger,
	)

	notifier := notify.NewDispatcher(
		ctx,
		cfg.Notifier.WorkerCount,
		cfg.Notifier.CooldownWindow,
		transitions,
		channelRepo,
		eventRepo,
		redisClient,
		providers,
		logger,
	)

	notifyRetry := notify.NewRetryLoop(
		ctx,
		cfg.Notifier.RetryInterval,
		cfg.Notifier.MaxAttempts,
		eventRepo,
		channelRepo,
		providers,
		logger,
	)

	tokenSvc := security.NewTokenService(&cfg.Auth)
	authMW := middle.NewAuthMiddleware(tokenSvc)

	return &Container{
		DB:          db,
		RedisClient: redisClient,
		AMQPConn:    amqpConn,
		Publisher:   publisher,
		Consumer:    consumer,
		Logger:      logger,

		targetHandler: target.NewHandler(targetSvc, validator),
		notifyHandler: notify.NewHandler(notifySvc, validator),
		statusHandler: status.NewHandler(publicSvc),
		ingestHandler: ingest.NewHandler(cfg.IngestSecret, dispatchRepo),
		authMW:        authMW,

		dispatchRepo: dispatchRepo,

		Dispatcher:  dispatcher,
		Ingestor:    ingestor,
		Watchdog:    watchdog,
		Reconciler:  reconciler,
		Notifier:    notifier,
		NotifyRetry: notifyRetry,
	}, nil
}

// Shutdown drains the pipeline back to front: the reconciler closes the
// transition channel when its loop exits, notifier workers finish their
// in-flight deliveries, then broker, redis and the pool go down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.Notifier.WorkerClosingWait()

	if c.Consumer != nil {
		if err := c.Consumer.Shutdown(ctx); err != nil {
			c.Logger.Error().Err(err).Msg("consumer shutdown failed")
		}
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.Logger.Error().Err(err).Msg("publisher close failed")
		}
	}
	if c.AMQPConn != nil {
		if err := c.AMQPConn.Close(); err != nil {
			c.Logger.Error().Err(err).Msg("amqp connection close failed")
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Error().Err(err).Msg("redis close failed")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	return nil
}
