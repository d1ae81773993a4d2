package service

import (
	"context"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// MarketRepositoryInterface определяет интерфейс репозитория рынков
type MarketRepositoryInterface interface {
	GetAll() ([]*models.Market, error)
	GetByID(id string) (*models.Market, error)
	Create(m *models.Market) error
	SetActive(id string, active bool) error
}

// OrderRepositoryInterface определяет интерфейс репозитория ордеров
type OrderRepositoryInterface interface {
	Upsert(order *models.Order) error
	GetByID(id string) (*models.Order, error)
	GetByAccount(accountID string, limit int) ([]*models.Order, error)
	GetByMarket(marketID string, limit int) ([]*models.Order, error)
}

// TradeRepositoryInterface определяет интерфейс репозитория сделок
type TradeRepositoryInterface interface {
	Create(trade *models.Trade) error
	GetByMarket(marketID string, limit int) ([]*models.Trade, error)
	GetByAccount(accountID string, limit int) ([]*models.Trade, error)
}

// TransactionRepositoryInterface определяет интерфейс репозитория транзакций
type TransactionRepositoryInterface interface {
	Create(tx *models.Transaction) error
	GetByAccount(accountID string, limit int) ([]*models.Transaction, error)
}

// ExchangeServiceInterface определяет интерфейс торгового сервиса.
// Используется хендлерами API.
type ExchangeServiceInterface interface {
	Markets() []*models.Market
	Market(id string) (*models.Market, error)
	PlaceOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CancelOrder(ctx context.Context, accountID, marketID, orderID string) (*models.Order, error)
	OpenOrders(accountID, marketID string) ([]*models.Order, error)
	OrderHistory(accountID string, limit int) ([]*models.Order, error)
	Depth(marketID string) (*models.Depth, error)
	Stats(marketID string) (*models.MarketStats, error)
	Candles(marketID string, limit int) ([]*models.Candle, error)
	RecentTrades(marketID string, limit int) ([]*models.Trade, error)
	AccountTrades(accountID string, limit int) ([]*models.Trade, error)
}

// WalletServiceInterface определяет интерфейс кошелькового сервиса
type WalletServiceInterface interface {
	Deposit(ctx context.Context, accountID, asset string, amount decimal.Decimal) (*models.Transaction, error)
	Withdraw(ctx context.Context, accountID, asset string, amount decimal.Decimal) (*models.Transaction, error)
	Balances(accountID string) []models.Balance
	Transactions(accountID string, limit int) ([]*models.Transaction, error)
}

// MarketDataInterface - доступ к кешам рыночных данных публикатора
type MarketDataInterface interface {
	Depth(marketID string) *models.Depth
	Stats(marketID string) *models.MarketStats
	Candles(marketID string, limit int) []*models.Candle
	LastSequence(marketID string) uint64
	Replay(marketID string, fromSeq uint64, fn func(models.Event) error) error
}
