package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exchange/internal/api"
	"exchange/internal/api/middleware"
	"exchange/internal/config"
	"exchange/internal/engine"
	"exchange/internal/journal"
	"exchange/internal/ledger"
	"exchange/internal/marketdata"
	"exchange/internal/models"
	"exchange/internal/repository"
	"exchange/internal/service"
	"exchange/internal/websocket"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Connected to database successfully")

	// Инициализация репозиториев
	marketRepo := repository.NewMarketRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	txRepo := repository.NewTransactionRepository(db)

	// Журнал событий (опционален)
	var j *journal.Journal
	if cfg.Journal.Dir != "" {
		j, err = journal.Open(cfg.Journal.Dir)
		if err != nil {
			log.Fatalf("Failed to open event journal: %v", err)
		}
		defer j.Close()
		log.Printf("Event journal opened at %s", cfg.Journal.Dir)
	} else {
		log.Println("WARN: event journal disabled, replay will not be available")
	}

	// Kafka фид (опционален)
	var feed *marketdata.Feed
	if len(cfg.Kafka.Brokers) > 0 {
		feed = marketdata.NewFeed(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer feed.Close()
		log.Printf("Kafka feed enabled: brokers=%v topic=%s", cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	// Публикатор рыночных данных и WebSocket hub.
	// Hub подписчиков догоняет через journal replay публикатора,
	// поэтому публикатор создается первым, hub подключается вторым.
	publisher := marketdata.NewPublisher(j, feed, nil, marketdata.Options{
		BufferSize: cfg.MarketData.BufferSize,
	})
	hub := websocket.NewHub(publisher)
	publisher.SetHub(hub)
	go hub.Run()
	publisher.Start()

	// Recorder пишет сделки и статусы ордеров в БД
	recorder := service.NewRecorder(orderRepo, tradeRepo)
	recorder.Start()

	// Общий ledger балансов
	l := ledger.New()

	// Сервисы
	exchangeService := service.NewExchangeService(publisher, orderRepo, tradeRepo)
	walletService := service.NewWalletService(l, txRepo)

	// Движок на каждый рынок
	markets, err := loadMarkets(marketRepo)
	if err != nil {
		log.Fatalf("Failed to load markets: %v", err)
	}

	engines := make([]*engine.Engine, 0, len(markets))
	for _, m := range markets {
		eng := engine.New(m, l, engine.Fanout{publisher, recorder}, engine.Options{
			QueueSize:   cfg.Engine.QueueSize,
			DepthLevels: cfg.Engine.DepthLevels,
		})
		eng.Start()
		engines = append(engines, eng)
		exchangeService.RegisterEngine(eng)
		log.Printf("Matching engine started for market %s", m.ID)
	}

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		ExchangeService: exchangeService,
		WalletService:   walletService,
		Hub:             hub,
		Limiter:         middleware.NewAPILimiter(),
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("ERROR: server shutdown failed: %v", err)
	}

	// Движки останавливаются до потребителей, чтобы хвост событий
	// успел дойти до журнала и БД
	for _, eng := range engines {
		eng.Stop()
	}
	publisher.Stop()
	recorder.Stop()
	hub.Stop()

	log.Println("Server stopped")
}

// loadMarkets читает каталог рынков, засеивая дефолтные пары при
// пустой таблице
func loadMarkets(repo *repository.MarketRepository) ([]*models.Market, error) {
	markets, err := repo.GetAll()
	if err != nil {
		return nil, err
	}
	if len(markets) > 0 {
		for _, m := range markets {
			if err := m.Validate(); err != nil {
				return nil, err
			}
		}
		return markets, nil
	}

	log.Println("No markets configured, seeding defaults")
	defaults := []*models.Market{
		{
			ID:          "BTC-USDT",
			Base:        "BTC",
			Quote:       "USDT",
			TickSize:    decimal.RequireFromString("0.01"),
			LotSize:     decimal.RequireFromString("0.0001"),
			MinNotional: decimal.RequireFromString("10"),
			Active:      true,
		},
		{
			ID:          "ETH-USDT",
			Base:        "ETH",
			Quote:       "USDT",
			TickSize:    decimal.RequireFromString("0.01"),
			LotSize:     decimal.RequireFromString("0.001"),
			MinNotional: decimal.RequireFromString("10"),
			Active:      true,
		},
	}
	for _, m := range defaults {
		if err := repo.Create(m); err != nil {
			return nil, fmt.Errorf("failed to seed market %s: %w", m.ID, err)
		}
	}
	return defaults, nil
}

// initDatabase открывает соединение с БД и проверяет его
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database (%s): %w", cfg.Database.DSNWithoutPassword(), err)
	}

	return db, nil
}
