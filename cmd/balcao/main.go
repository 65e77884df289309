package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/balcao-pos/balcao/internal/app"
	"github.com/balcao-pos/balcao/internal/cache"
	"github.com/balcao-pos/balcao/internal/cashshift"
	"github.com/balcao-pos/balcao/internal/catalog"
	"github.com/balcao-pos/balcao/internal/observability"
	"github.com/balcao-pos/balcao/internal/platform/db"
	"github.com/balcao-pos/balcao/internal/quotes"
	"github.com/balcao-pos/balcao/internal/sales"
	"github.com/balcao-pos/balcao/internal/shared"
	"github.com/balcao-pos/balcao/internal/stock"
	"github.com/balcao-pos/balcao/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	shiftCache := cache.NewShiftCache(redisClient, cfg.ShiftTTL)

	catalogRepo := catalog.NewRepository(pool)
	quoteRepo := quotes.NewRepository(pool)
	quoteHandler := quotes.NewHandler(logger, quoteRepo)

	shiftRepo := cashshift.NewRepository(pool)
	shiftService := cashshift.NewService(shiftRepo, auditLogger, shiftCache, jobClient, metrics, cfg.Tolerance(), logger)
	shiftHandler := cashshift.NewHandler(logger, shiftService)

	stockRepo := stock.NewRepository(pool)
	stockEngine := stock.NewEngine(stockRepo, approvalRecorder, auditLogger, metrics, stock.Policy{
		AllowNegative:    cfg.StockAllowNegative,
		AutoApproveLimit: cfg.AutoApproveLimit(),
		ReasonWhitelist:  cfg.ReasonWhitelist(),
		MinJustification: cfg.AdjMinJustification,
	}, logger)
	stockHandler := stock.NewHandler(logger, stockEngine)

	saleRepo := sales.NewRepository(pool, stockEngine, shiftService, quoteRepo)
	saleService := sales.NewService(saleRepo, catalogRepo, quoteRepo, auditLogger, metrics, sales.Policy{
		CancelWindow:        cfg.SaleCancelWindow,
		CancelApprovalLimit: cfg.CancelApprovalLimit(),
		Tolerance:           cfg.Tolerance(),
	}, logger)
	saleHandler := sales.NewHandler(logger, saleService)

	router := app.NewRouter(app.RouterDeps{
		Logger:  logger,
		Config:  cfg,
		Pool:    pool,
		Metrics: metrics,
		Modules: []app.RouteMounter{shiftHandler, stockHandler, saleHandler, quoteHandler},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
