// Package integration contains integration tests for the exchange.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle through engine and ledger
// - WebSocket tests: subscription, broadcast, replay
//
// Tests require a running PostgreSQL instance and skip themselves when
// the database is not reachable. Connection parameters come from
// TEST_DB_* environment variables.
package integration

import (
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/lib/pq"

	"exchange/internal/api"
	"exchange/internal/api/middleware"
	"exchange/internal/engine"
	"exchange/internal/journal"
	"exchange/internal/ledger"
	"exchange/internal/marketdata"
	"exchange/internal/models"
	"exchange/internal/repository"
	"exchange/internal/service"
	"exchange/internal/websocket"
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB        *sql.DB
	Server    *httptest.Server
	Hub       *websocket.Hub
	Ledger    *ledger.Ledger
	Publisher *marketdata.Publisher
	Engine    *engine.Engine
	Repos     *TestRepositories
	Cleanup   func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Market      *repository.MarketRepository
	Order       *repository.OrderRepository
	Trade       *repository.TradeRepository
	Transaction *repository.TransactionRepository
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "exchange_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components:
// ledger, one matching engine for BTC-USDT, journal-backed publisher,
// websocket hub and the HTTP API on top.
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	repos := &TestRepositories{
		Market:      repository.NewMarketRepository(db),
		Order:       repository.NewOrderRepository(db),
		Trade:       repository.NewTradeRepository(db),
		Transaction: repository.NewTransactionRepository(db),
	}

	// Journal in a temp dir so replay works in websocket tests
	j, err := journal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}

	publisher := marketdata.NewPublisher(j, nil, nil, marketdata.Options{})
	hub := websocket.NewHub(publisher)
	publisher.SetHub(hub)
	go hub.Run()
	publisher.Start()

	recorder := service.NewRecorder(repos.Order, repos.Trade)
	recorder.Start()

	l := ledger.New()

	market := testMarket()
	eng := engine.New(market, l, engine.Fanout{publisher, recorder}, engine.Options{})
	eng.Start()

	exchangeService := service.NewExchangeService(publisher, repos.Order, repos.Trade)
	exchangeService.RegisterEngine(eng)
	walletService := service.NewWalletService(l, repos.Transaction)

	deps := &api.Dependencies{
		ExchangeService: exchangeService,
		WalletService:   walletService,
		Hub:             hub,
		Limiter:         middleware.NewAPILimiter(),
	}
	router := api.SetupRoutes(deps)
	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		eng.Stop()
		publisher.Stop()
		recorder.Stop()
		hub.Stop()
		j.Close()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:        db,
		Server:    server,
		Hub:       hub,
		Ledger:    l,
		Publisher: publisher,
		Engine:    eng,
		Repos:     repos,
		Cleanup:   cleanup,
	}
}

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("invalid decimal %q: %v", s, err)
	}
	return d
}

func testMarket() *models.Market {
	return &models.Market{
		ID:          "BTC-USDT",
		Base:        "BTC",
		Quote:       "USDT",
		TickSize:    decimal.RequireFromString("0.01"),
		LotSize:     decimal.RequireFromString("0.0001"),
		MinNotional: decimal.RequireFromString("10"),
		Active:      true,
	}
}

// initTestTables creates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS markets (
			id VARCHAR(20) PRIMARY KEY,
			base_asset VARCHAR(10) NOT NULL,
			quote_asset VARCHAR(10) NOT NULL,
			tick_size DECIMAL(30, 10) NOT NULL,
			lot_size DECIMAL(30, 10) NOT NULL,
			min_notional DECIMAL(30, 10) NOT NULL,
			active BOOLEAN DEFAULT true,
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(36) PRIMARY KEY,
			account_id VARCHAR(64) NOT NULL,
			market_id VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			type VARCHAR(10) NOT NULL,
			price DECIMAL(30, 10) NOT NULL,
			quantity DECIMAL(30, 10) NOT NULL,
			filled_quantity DECIMAL(30, 10) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			sequence_number BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id VARCHAR(36) PRIMARY KEY,
			market_id VARCHAR(20) NOT NULL,
			maker_order_id VARCHAR(36) NOT NULL,
			taker_order_id VARCHAR(36) NOT NULL,
			maker_account_id VARCHAR(64) NOT NULL,
			taker_account_id VARCHAR(64) NOT NULL,
			price DECIMAL(30, 10) NOT NULL,
			quantity DECIMAL(30, 10) NOT NULL,
			maker_side VARCHAR(4) NOT NULL,
			sequence_number BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(36) PRIMARY KEY,
			account_id VARCHAR(64) NOT NULL,
			asset VARCHAR(10) NOT NULL,
			type VARCHAR(10) NOT NULL,
			amount DECIMAL(30, 10) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"trades",
		"orders",
		"transactions",
		"markets",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}
