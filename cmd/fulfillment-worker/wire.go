package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"digital-fulfillment/internal/pkg/bootstrap"
	"digital-fulfillment/internal/pkg/config"
	"digital-fulfillment/internal/pkg/httpclient"
	"digital-fulfillment/internal/pkg/lock"
	"digital-fulfillment/internal/pkg/logger"
	"digital-fulfillment/internal/pkg/metrics"
	"digital-fulfillment/internal/pkg/mq"
	"digital-fulfillment/internal/service/fulfillment/application"
	"digital-fulfillment/internal/service/fulfillment/application/pipeline"
	"digital-fulfillment/internal/service/fulfillment/domain/port"
	"digital-fulfillment/internal/service/fulfillment/infrastructure"
	"digital-fulfillment/internal/service/fulfillment/infrastructure/adapter"
	"digital-fulfillment/internal/service/fulfillment/infrastructure/policy"
	"digital-fulfillment/internal/service/fulfillment/interfaces"
	"digital-fulfillment/internal/tracing"
)

const zkSessionTimeout = 10 * time.Second

// runWorker 是应用的"组装根"：创建并组装所有依赖项，然后启动 worker。
// 任何启动失败都直接返回，已经创建的资源在返回前释放。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. 初始化核心技术组件
	_, logCloser := logger.Init(logger.Options{
		Service:    config.ServiceName,
		Level:      cfg.Log.Level,
		Path:       cfg.Log.Path,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    cfg.Log.Console,
	})
	defer func() { _ = logCloser.Close() }()

	tp, err := tracing.InitTracerProvider(config.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		return errors.Wrap(err, "initialize tracer provider")
	}
	tracer := otel.Tracer(config.ServiceName)

	db, err := infrastructure.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.BusyTimeout)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		_ = tp.Shutdown(ctx)
		return err
	}

	eligibility, err := policy.NewCELEligibilityPolicy(cfg.Worker.Eligibility)
	if err != nil {
		_ = db.Close()
		_ = tp.Shutdown(ctx)
		return err
	}
	formatter, err := pipeline.NewCodeFormatter(cfg.Delivery.CodeTemplate)
	if err != nil {
		_ = db.Close()
		_ = tp.Shutdown(ctx)
		return err
	}

	// 2. 出站适配器
	client := httpclient.NewClient(tracer, cfg.Market.RequestTimeout)
	client.Header.Set("Authorization", "Bearer "+cfg.Market.APIToken)
	endpoint := adapter.MarketEndpoint{
		BaseURL:    cfg.Market.BaseURL,
		BusinessID: cfg.Market.BusinessID,
		CampaignID: cfg.Market.CampaignID,
	}

	var events port.EventPublisher = adapter.NoopEventPublisher{}
	var eventCloser func(context.Context) error = func(context.Context) error { return nil }
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaAdapter := adapter.NewEventKafkaAdapter(mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		events = kafkaAdapter
		eventCloser = func(context.Context) error { return kafkaAdapter.Close() }
	}

	locker, err := newLocker(cfg.Lock)
	if err != nil {
		_ = eventCloser(ctx)
		_ = db.Close()
		_ = tp.Shutdown(ctx)
		return err
	}

	// 关停顺序：租约 → kafka → tracer → 数据库
	closers := []bootstrap.Closer{
		{Name: "lease", Close: func(context.Context) error { return locker.Close() }},
		{Name: "kafka", Close: eventCloser},
		{Name: "tracer", Close: tp.Shutdown},
		{Name: "database", Close: func(context.Context) error { return db.Close() }},
	}

	// 3. 业务服务
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	service := application.NewFulfillmentService(
		adapter.NewMarketOrderSource(client, endpoint),
		infrastructure.NewSQLOrderLedger(db),
		infrastructure.NewSQLInventoryStore(db),
		adapter.NewMarketDeliveryGateway(client, endpoint),
		eligibility,
		events,
		formatter,
		collector,
		tracer,
		application.Options{
			BatchSize:             cfg.Worker.BatchSize,
			OrderTimeout:          cfg.Worker.OrderTimeout,
			ActivationValidity:    cfg.Delivery.ActivationValidity,
			ActivateTillLayout:    cfg.Delivery.ActivateTillLayout,
			StaleReservationAfter: cfg.Worker.StaleReservationAfter,
		},
	)

	// 4. 驱动适配器
	poller := interfaces.NewPoller(service, locker, cfg.Worker.PollInterval, collector)
	status := interfaces.NewStatusHandler(poller, nil)

	logger.Ctx(ctx).Info().
		Str("database", cfg.Database.Driver).
		Str("lock", cfg.Lock.Backend).
		Str("eligibility", eligibility.String()).
		Dur("poll_interval", cfg.Worker.PollInterval).
		Msg("Fulfillment worker starting")

	return bootstrap.StartService(ctx, bootstrap.AppInfo{
		ServiceName:      config.ServiceName,
		HTTPAddr:         cfg.Metrics.Addr,
		RegisterHandlers: func(mux *http.ServeMux) { status.RegisterRoutes(mux) },
		Run:              poller.Start,
		Closers:          closers,
	})
}

func newLocker(cfg config.LockConfig) (lock.Locker, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: 5 * time.Second,
		})
		return lock.NewRedisLocker(client, cfg.Key, cfg.TTL), nil
	case "zookeeper":
		l, err := lock.DialZookeeper(cfg.ZookeeperServers, cfg.Key, zkSessionTimeout)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return lock.Noop{}, nil
	}
}
