package main

import (
	"context"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"

	"github.com/MikeMC777/storefront/internal/auth"
	"github.com/MikeMC777/storefront/internal/config"
	"github.com/MikeMC777/storefront/internal/user"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("pgxpool: %v", err)
	}
	defer pool.Close()

	repo := user.NewPGRepo(pool)
	migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := repo.Migrate(migrateCtx); err != nil {
		log.Fatalf("migrate users: %v", err)
	}
	cancel()

	svc := user.NewService(repo, auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL))
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := svc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("seed admin: %v", err)
		}
		log.Printf("[user] admin account %s ready", cfg.AdminEmail)
	}

	l, err := net.Listen("tcp", cfg.UserSvcListen)
	if err != nil {
		log.Fatal(err)
	}
	srv := grpc.NewServer()
	user.RegisterDirectoryServer(srv, svc)
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	log.Printf("user-service listening on %s", cfg.UserSvcListen)
	if err := srv.Serve(l); err != nil {
		log.Fatal(err)
	}
}
