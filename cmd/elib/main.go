package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"elib/internal/app"
	"elib/internal/config"
	"elib/internal/ratelimit"
	"elib/internal/server"
	"elib/internal/util"
	"elib/pkg/storage"
	"elib/pkg/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session ttl: %v", err)
	}
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	shutdownTimeout, err := config.ParseShutdownTimeout(cfg.ShutdownTimeout)
	if err != nil {
		log.Fatalf("failed to parse shutdown timeout: %v", err)
	}
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	defer dataStore.Close()

	revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	defer revoker.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = revoker.Ping(pingCtx)
	cancelPing()
	if err != nil {
		log.Fatalf("failed to reach redis at %s: %v", cfg.RedisAddr, err)
	}
	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, revoker, store.JWTOptions{
		Issuer: cfg.JWTIssuer,
		Leeway: jwtLeeway,
	})
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	media, err := storage.NewMinioMediaStore(storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.MediaPublicURL,
	})
	if err != nil {
		log.Fatalf("failed to init media store: %v", err)
	}
	staging, err := storage.NewStaging(cfg.UploadDir)
	if err != nil {
		log.Fatalf("failed to init upload dir: %v", err)
	}

	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "elib:ratelimit:auth", cfg.AuthRateLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}
	defer limiter.Close()

	appCore, err := app.New(app.Config{
		Store:      dataStore,
		Media:      media,
		Sessions:   sessions,
		Staging:    staging,
		RequirePDF: cfg.RequirePDF,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Staging:        staging,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AuthLimiter:    limiter,
		TrustedProxies: trustedProxies,
		FrontendDomain: cfg.FrontendDomain,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("elib server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		sCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sCtx); err != nil {
			return err
		}
		slog.Info("elib server stopped")
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
