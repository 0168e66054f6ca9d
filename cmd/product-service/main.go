package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeMC777/storefront/internal/auth"
	"github.com/MikeMC777/storefront/internal/config"
	"github.com/MikeMC777/storefront/internal/httpx"
	"github.com/MikeMC777/storefront/internal/metrics"
	prod "github.com/MikeMC777/storefront/internal/product"
)

func newRouter(repo prod.Repository, tokens httpx.TokenParser) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(), httpx.Metrics())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/products", listOnlyHandler(repo))
	r.GET("/products/search", searchHandler(repo))
	r.GET("/products/:id", getProductHandler(repo))
	r.POST("/products", httpx.Auth(tokens), httpx.AdminOnly(), createProductHandler(repo))
	return r
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serve blocks until srv fails or ctx is cancelled. A cancelled ctx drains
// in-flight requests for up to ten seconds and returns nil.
func serve(ctx context.Context, srv *http.Server) error {
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := pgxpool.New(initCtx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[product-service] pgxpool: %v", err)
	}
	defer pool.Close()

	repo := prod.NewPGRepo(pool)
	if err := repo.Migrate(initCtx); err != nil {
		log.Fatalf("[product-service] migrate products: %v", err)
	}
	cancel()

	srv := newServer(cfg.ProductSvcAddr, newRouter(repo, auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)))
	log.Printf("[product-service] listening on %s", cfg.ProductSvcAddr)
	if err := serve(ctx, srv); err != nil {
		log.Fatalf("[product-service] %v", err)
	}
}
