package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"go.uber.org/zap"

	"tgw-batch-service/internal/batch-manager/api"
	batchDB "tgw-batch-service/internal/batch-manager/db"
	bmKafka "tgw-batch-service/internal/batch-manager/kafka"
	"tgw-batch-service/internal/batch-manager/services"
	"tgw-batch-service/internal/config"
	"tgw-batch-service/internal/generation"
	"tgw-batch-service/internal/logging"
	"tgw-batch-service/internal/tokens"
	gormdb "tgw-batch-service/pkg/db"
)

func main() {
	cfg := config.New()
	logger := logging.Build(cfg.Logger)
	defer logger.Sync()

	logger.Info("batch manager starting")

	appCtx, appCancel := context.WithCancel(context.Background())

	gormDB, err := gormdb.NewGormDB(cfg.DB.Type, cfg.DB.DSN)
	if err != nil {
		stdlog.Fatalf("Failed to initialize database: %v", err)
	}
	if err := gormdb.AutoMigrate(gormDB,
		&batchDB.PromptTemplate{}, &batchDB.BatchRun{}, &batchDB.GenerationRecord{}); err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}

	client := generation.NewClient(cfg.API.BaseURL, cfg.API.RequestTimeout, logger)
	if !client.HealthCheck(appCtx) {
		logger.Warn("completion API is not reachable, batch runs will fail until it comes up",
			zap.String("base_url", cfg.API.BaseURL))
	}

	producer := bmKafka.NewProducer(cfg.Kafka, logger)

	runService := services.NewRunService(gormDB, client, cfg.Batch, producer, logger)
	schedulerService, err := services.NewSchedulerService(appCtx, gormDB, runService, logger)
	if err != nil {
		stdlog.Fatalf("Failed to create scheduler service: %v", err)
	}
	schedulerService.Start()

	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlog.LevelInfo)

	h := server.Default(server.WithHostPorts(cfg.Server.Addr), server.WithExitWaitTime(5*time.Second))

	api.RegisterRoutes(h,
		api.NewPromptTemplateHandler(gormDB, schedulerService, logger),
		api.NewBatchHandler(runService, logger),
		api.NewAnalysisHandler(tokens.NewAnalyzer(client, logger)),
	)

	adminGroup := h.Group("/admin")
	adminGroup.POST("/scheduler/refresh", func(c context.Context, ctxReq *app.RequestContext) {
		schedulerService.RefreshScheduledJobs()
		ctxReq.JSON(http.StatusOK, utils.H{"message": "Scheduler refresh triggered"})
	})

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		appCancel()

		shutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpShutdownCancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Error("hertz server shutdown error", zap.Error(err))
		}

		schedulerService.Stop()

		if err := producer.Close(); err != nil {
			logger.Error("kafka producer close error", zap.Error(err))
		}
		logger.Info("batch manager shut down")
	}()

	logger.Info("batch manager listening", zap.String("addr", cfg.Server.Addr))
	h.Spin()
}
