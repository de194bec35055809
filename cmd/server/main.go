package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"fundingbot/internal/api"
	"fundingbot/internal/config"
	"fundingbot/internal/exchange"
	"fundingbot/internal/hedge"
	"fundingbot/internal/repository"
	"fundingbot/internal/websocket"
	"fundingbot/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("[FundingBot] database connection failed", zap.Error(err))
	}
	defer db.Close()

	logger.Info("[FundingBot] connected to database",
		zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Подключение бирж. Адаптеры регистрируют свои фабрики через
	// exchange.RegisterFactory в init().
	venues := exchange.NewRegistry()
	for _, name := range cfg.Hedge.Venues {
		ex, err := exchange.NewExchange(name)
		if err != nil {
			logger.Fatal("[FundingBot] exchange init failed",
				zap.String("venue", name), zap.Error(err))
		}
		venues.Register(ex)
		logger.Info("[FundingBot] exchange connected", zap.String("venue", ex.Name()))
	}

	// Фид ставок фандинга
	feed := exchange.NewRateFeed(cfg.Hedge.RateFeedURL, cfg.Hedge.Venues, logger)

	// История сделок
	tradeRepo := repository.NewTradeRepository(db)

	// WebSocket hub - получатель событий оркестратора
	hub := websocket.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	// Ядро: реестр позиций, бухгалтерия, оркестратор саг
	positions := hedge.NewRegistry()
	accountant := hedge.NewAccountant(venues, logger)
	orch := hedge.NewOrchestrator(venues, positions, accountant, feed, tradeRepo, hub, cfg.Hedge, logger)

	// Контекст жизни фоновых процессов
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Мониторинг открытых позиций (свипы)
	monitor := hedge.NewMonitor(orch, venues, accountant, feed, cfg.Hedge, logger)
	go monitor.Run(ctx)

	// Продюсер сигналов (опционально)
	scanner := hedge.NewScanner(orch, feed, cfg.Hedge, logger)
	if cfg.Hedge.AutoOpenEnabled {
		go scanner.Run(ctx)
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		Orchestrator: orch,
		Positions:    positions,
		Intents:      scanner,
		Rates:        feed,
		Trades:       tradeRepo,
		Hub:          hub,
		APITokenHash: cfg.Security.APITokenHash,
		Log:          logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("[FundingBot] starting server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("[FundingBot] server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("[FundingBot] server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("[FundingBot] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("[FundingBot] server forced to shutdown", zap.Error(err))
	}

	logger.Info("[FundingBot] server exited",
		zap.Int("open_positions", positions.Len()))
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
