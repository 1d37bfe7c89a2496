package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wenhao0221/contract-compare/api/handlers"
	"github.com/wenhao0221/contract-compare/api/routes"
	"github.com/wenhao0221/contract-compare/config"
	"github.com/wenhao0221/contract-compare/internal/app"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

func main() {
	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 装配服务，server 进程带 asynq 分发端
	application, err := app.New(ctx, app.Options{WithDispatcher: true}, log)
	if err != nil {
		log.Fatal("Failed to bootstrap application", logger.Error(err))
	}
	defer application.Close()

	appCfg := config.GetAppConfig()

	// init handlers
	h := handlers.NewHandlers(
		application.Documents,
		application.Comparisons,
		application.Queue,
		application.Dispatcher,
		log,
	)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, appCfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", appCfg.Server.Port),
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.Int("port", appCfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error:", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown:", logger.Error(err))
	}
}
