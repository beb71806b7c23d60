package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/notify"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/rest"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/returns"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
	"github.com/vladislavdragonenkov/fulfillment/internal/version"
)

// repositories группирует хранилища, выбранные конфигурацией.
type repositories struct {
	orders    domain.OrderRepository
	inventory domain.InventoryRepository
	returns   domain.ReturnRepository
	bulk      domain.BulkRepository
	timeline  domain.TimelineRepository
	sequence  domain.OrderNumberSequence
}

// Run собирает зависимости и обслуживает HTTP до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	var (
		repos   repositories
		pgStore *postgres.Store
	)
	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		pgStore = store
		repos = repositories{
			orders:    postgres.NewOrderRepository(store),
			inventory: postgres.NewInventoryRepository(store),
			returns:   postgres.NewReturnRepository(store),
			bulk:      postgres.NewBulkRepository(store),
			timeline:  postgres.NewTimelineRepository(store),
			sequence:  postgres.NewOrderNumberSequence(store),
		}
		logger.Info("using postgres storage")
	} else {
		repos = repositories{
			orders:    memory.NewOrderRepository(),
			inventory: memory.NewInventoryRepository(),
			returns:   memory.NewReturnRepository(),
			bulk:      memory.NewBulkRepository(),
			timeline:  memory.NewTimelineRepository(),
			sequence:  memory.NewOrderNumberSequence(),
		}
		logger.Info("using in-memory storage")
	}

	// Kafka опциональна: без брокеров события уходят в логирующий sink.
	var (
		sink          domain.NotificationSink
		kafkaProducer *kafka.Producer
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			kafkaProducer = producer
			sink = kafka.NewSink(producer, logger.WithField("component", "kafka-sink"))
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}
	if sink == nil {
		sink = notify.NewNoop(logger.WithField("component", "notify-noop"))
	}
	defer func() {
		if kafkaProducer != nil {
			if err := kafkaProducer.Close(); err != nil {
				logger.WithError(err).Warn("failed to close kafka producer")
			}
		}
	}()

	engineMetrics := metrics.NewEngineMetrics()

	ledger := inventory.NewLedgerWithMetrics(repos.inventory, engineMetrics, logger.WithField("component", "inventory-ledger"))
	store := orders.NewStoreWithMetrics(
		repos.orders, repos.timeline, repos.sequence, ledger, sink,
		engineMetrics, logger.WithField("component", "order-store"),
	)
	processor := returns.NewProcessorWithMetrics(
		repos.returns, store, ledger, sink,
		engineMetrics, logger.WithField("component", "return-processor"),
	)
	executor := bulk.NewExecutorWithMetrics(
		repos.bulk, ledger, store, sink,
		engineMetrics, logger.WithField("component", "bulk-executor"),
	)
	executor.SetTimeout(cfg.BulkTimeout)

	handler := rest.NewHandler(store, ledger, processor, executor, logger.WithField("component", "http"))

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if pgStore != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pgStore.Ping(checkCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP сервер слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
