package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	cartapp "github.com/wyfcoding/storefront/internal/cart/application"
	cartdomain "github.com/wyfcoding/storefront/internal/cart/domain"
	cartmysql "github.com/wyfcoding/storefront/internal/cart/infrastructure/persistence/mysql"
	carthttp "github.com/wyfcoding/storefront/internal/cart/interfaces/http"
	catalogapp "github.com/wyfcoding/storefront/internal/catalog/application"
	catalogdomain "github.com/wyfcoding/storefront/internal/catalog/domain"
	catalogmysql "github.com/wyfcoding/storefront/internal/catalog/infrastructure/persistence/mysql"
	cataloghttp "github.com/wyfcoding/storefront/internal/catalog/interfaces/http"
	"github.com/wyfcoding/storefront/internal/fanout"
	fanouthttp "github.com/wyfcoding/storefront/internal/fanout/interfaces/http"
	orderapp "github.com/wyfcoding/storefront/internal/order/application"
	orderdomain "github.com/wyfcoding/storefront/internal/order/domain"
	ordermysql "github.com/wyfcoding/storefront/internal/order/infrastructure/persistence/mysql"
	orderhttp "github.com/wyfcoding/storefront/internal/order/interfaces/http"
	paymentapp "github.com/wyfcoding/storefront/internal/payment/application"
	paymentdomain "github.com/wyfcoding/storefront/internal/payment/domain"
	"github.com/wyfcoding/storefront/internal/payment/infrastructure/gateway"
	paymentmysql "github.com/wyfcoding/storefront/internal/payment/infrastructure/persistence/mysql"
	paymenthttp "github.com/wyfcoding/storefront/internal/payment/interfaces/http"
	"github.com/wyfcoding/storefront/pkg/cache"
	"github.com/wyfcoding/storefront/pkg/config"
	"github.com/wyfcoding/storefront/pkg/db"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/metrics"
	"github.com/wyfcoding/storefront/pkg/middleware"
	"github.com/wyfcoding/storefront/pkg/mq"
)

func main() {
	configPath := flag.String("config", "configs/storefront/config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	ctx := context.Background()
	logger.Info(ctx, "starting service",
		"service", cfg.ServiceName, "version", cfg.Version, "environment", cfg.Environment)

	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		TxAcquireTimeout:   cfg.Database.TxAcquireTimeout,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init database", "error", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&catalogdomain.Category{},
		&catalogdomain.Product{},
		&cartdomain.Cart{},
		&cartdomain.CartItem{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&paymentdomain.Payment{},
	); err != nil {
		logger.Fatal(ctx, "failed to migrate database", "error", err)
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.New(cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			logger.Fatal(ctx, "failed to connect to redis", "error", err)
		}
		defer redisCache.Close()
	}

	var producer *mq.KafkaProducer
	if cfg.Kafka.Enabled {
		producer, err = mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			logger.Fatal(ctx, "failed to create kafka producer", "error", err)
		}
		defer producer.Close()
	}

	m := metrics.New(cfg.ServiceName)
	if cfg.Metrics.Enabled {
		if err := m.Register(); err != nil {
			logger.Fatal(ctx, "failed to register metrics", "error", err)
		}
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Fatal(ctx, "failed to start metrics server", "error", err)
		}
	}

	hub := fanout.NewHub(cfg.Events.QueueSize, cfg.Events.SubscriberBuffer, m.FanoutDroppedTotal)
	defer hub.Close()
	var sender fanout.Sender
	if producer != nil {
		sender = producer
	}
	events := fanout.NewKafkaMirror(hub, sender, cfg.Kafka.OrderTopic, cfg.Kafka.StockTopic, cfg.Events.QueueSize)
	defer events.Close()

	productRepo := catalogmysql.NewProductRepository(database.DB)
	cartRepo := cartmysql.NewCartRepository(database.DB)
	orderRepo := ordermysql.NewOrderRepository(database.DB)
	paymentRepo := paymentmysql.NewPaymentRepository(database.DB)

	productTTL := time.Duration(cfg.Redis.ProductTTL) * time.Second
	catalogService := catalogapp.NewCatalogService(productRepo, redisCache, productTTL)
	cartService := cartapp.NewCartApplicationService(cartRepo, productRepo, m.CartMergesTotal)
	placementService := orderapp.NewPlacementService(
		ordermysql.NewPlacementStore(database),
		events,
		catalogService,
		m,
		cfg.Inventory.LowStockThreshold,
	)
	orderQueries := orderapp.NewQueryService(orderRepo)

	declineRate := cfg.Payment.SimulatedDeclineRate
	paymentService := paymentapp.NewPaymentApplicationService(
		paymentRepo, orderRepo, events, m,
		gateway.NewCODProcessor(),
		gateway.NewCardProcessor(declineRate),
		gateway.NewWalletProcessor(declineRate),
		gateway.NewBankTransferProcessor(),
	)

	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinMetricsMiddleware(m),
		middleware.GinIdentityMiddleware(cfg.HTTP.SessionCookie, cfg.HTTP.SessionDays),
	)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	api := router.Group("/api/v1")
	carthttp.NewCartHandler(cartService, events).RegisterRoutes(api)
	orderhttp.NewOrderHandler(placementService, orderQueries, cartService).RegisterRoutes(api)
	cataloghttp.NewCatalogHandler(catalogService, cfg.Inventory.LowStockThreshold).RegisterRoutes(api)
	fanouthttp.NewSSEHandler(hub).RegisterRoutes(api)

	paymentHandler := paymenthttp.NewPaymentHandler(paymentService)
	paymentHandler.RegisterRoutes(api)
	paymentHandler.RegisterWebhook(router)

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:     router,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		// SSE 长连接不能设写超时
		WriteTimeout: 0,
	}

	go func() {
		logger.Info(ctx, "http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "http server failed", "error", err)
		}
	}()

	stop, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-stop.Done()

	logger.Info(ctx, "shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", "error", err)
	}
	logger.Info(ctx, "service stopped")
}
