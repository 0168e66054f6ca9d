// @title                       Storefront Order Service
// @version                     1.0
// @description                 Orders, payment confirmation and delivery tracking.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	_ "github.com/MikeMC777/storefront/docs"
	"github.com/MikeMC777/storefront/internal/auth"
	"github.com/MikeMC777/storefront/internal/config"
	"github.com/MikeMC777/storefront/internal/httpx"
	"github.com/MikeMC777/storefront/internal/messaging"
	"github.com/MikeMC777/storefront/internal/metrics"
	"github.com/MikeMC777/storefront/internal/order"
	"github.com/MikeMC777/storefront/internal/payment"
	"github.com/MikeMC777/storefront/internal/product"
	"github.com/MikeMC777/storefront/internal/user"
)

func newRouter(svc *order.Service, tokens httpx.TokenParser) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(), httpx.Metrics())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	g := r.Group("/orders", httpx.Auth(tokens))
	g.POST("", createOrderHandler(svc))
	g.GET("/myorders", myOrdersHandler(svc))
	g.GET("/:id", getOrderHandler(svc))
	g.GET("/:id/tracking", trackingHandler(svc))
	g.PUT("/:id/pay", payOrderHandler(svc))

	admin := g.Group("", httpx.AdminOnly())
	admin.GET("", listOrdersHandler(svc))
	admin.PUT("/:id/deliver", deliverOrderHandler(svc))
	return r
}

// openStore connects the configured backend and returns the repository with
// its cleanup. The pool is returned for postgres so stock reservation can
// share it.
func openStore(ctx context.Context, cfg config.Config) (order.Repository, *pgxpool.Pool, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("pgxpool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("postgres ping: %w", err)
		}
		repo := order.NewPGRepo(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate orders: %w", err)
		}
		return repo, pool, pool.Close, nil
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		repo := order.NewMongoRepo(client.Database(cfg.MongoDB))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return repo, nil, func() { _ = client.Disconnect(context.Background()) }, nil
	case "sqlite":
		repo, err := order.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return repo, nil, func() { _ = repo.Close() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}

type publisher interface {
	order.Publisher
	io.Closer
}

func openPublisher(cfg config.Config) (order.Publisher, func(), error) {
	var (
		p   publisher
		err error
	)
	switch cfg.EventsBackend {
	case "", "none":
		return order.NopPublisher{}, func() {}, nil
	case "amqp":
		p, err = messaging.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, 5, 2*time.Second)
	case "kafka":
		brokers := messaging.ParseBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, nil, errors.New("KAFKA_BROKERS is empty")
		}
		p = messaging.NewKafkaPublisher(brokers, cfg.KafkaTopic)
	default:
		return nil, nil, fmt.Errorf("unknown EVENTS_BACKEND %q", cfg.EventsBackend)
	}
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Close() }, nil
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, pool, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[order-service] store: %v", err)
	}
	defer closeStore()

	events, closeEvents, err := openPublisher(cfg)
	if err != nil {
		log.Fatalf("[order-service] events: %v", err)
	}
	defer closeEvents()

	opts := []order.Option{order.WithPublisher(events)}
	if cfg.ProductSvcBaseURL != "" {
		opts = append(opts, order.WithCatalog(order.NewHTTPCatalog(cfg.ProductSvcBaseURL)))
	}
	if cfg.ReserveStock {
		if pool == nil {
			log.Fatalf("[order-service] RESERVE_STOCK needs STORE_BACKEND=postgres")
		}
		catalog := product.NewCatalog(product.NewPGRepo(pool))
		opts = append(opts, order.WithCatalog(catalog), order.WithStock(catalog))
	}
	if cfg.UserSvcAddr != "" {
		dir, err := user.DialDirectory(cfg.UserSvcAddr)
		if err != nil {
			log.Fatalf("[order-service] user directory: %v", err)
		}
		defer dir.Close()
		opts = append(opts, order.WithDirectory(dir))
	}
	svc := order.NewService(repo, opts...)

	var verifier order.PaymentVerifier = payment.NewSimulated(0, 0)
	if cfg.PaymentBaseURL != "" {
		verifier = payment.NewHTTPVerifier(cfg.PaymentBaseURL)
	}
	rec := order.NewReconciler(svc, verifier, order.ReconcilerConfig{Grace: cfg.ReconcileGrace, MaxAge: cfg.ReconcileMaxAge})
	go rec.Run(ctx, cfg.ReconcileInterval)

	tokens := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	srv := &http.Server{
		Addr:              cfg.OrderSvcAddr,
		Handler:           newRouter(svc, tokens),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Printf("[order-service] listening on %s", cfg.OrderSvcAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[order-service] %v", err)
	}
}
