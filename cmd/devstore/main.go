package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appcfg "github.com/park285/h2h-ledger/internal/config"
	"github.com/park285/h2h-ledger/internal/devstore"
	"github.com/park285/h2h-ledger/internal/obslog"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Printf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.LoadDevStore()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	store := devstore.New(cfg.PlayerOne, cfg.PlayerTwo, logger.Named("devstore"))
	srv := &http.Server{
		Addr:              cfg.DevStoreAddr,
		Handler:           store.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("devstore_listen", zap.String("addr", cfg.DevStoreAddr), zap.String("p1", cfg.PlayerOne), zap.String("p2", cfg.PlayerTwo))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("devstore_listen_failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("devstore_shutdown", zap.Error(err))
	}
}
