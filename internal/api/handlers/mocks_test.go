package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
	"exchange/internal/service"
)

// ErrMockInternal используется для симуляции внутренних ошибок сервиса
var ErrMockInternal = errors.New("mock internal error")

// ============ Mock Exchange Service ============

// MockExchangeService мок для ExchangeServiceInterface
type MockExchangeService struct {
	markets    map[string]*models.Market
	orders     map[string]*models.Order
	trades     []*models.Trade
	placeErr   error
	cancelErr  error
	queryErr   error
	lastPlaced *models.Order
	nextSeq    uint64
	mu         sync.RWMutex
}

// NewMockExchangeService создает мок с одним активным рынком BTC-USDT
func NewMockExchangeService() *MockExchangeService {
	return &MockExchangeService{
		markets: map[string]*models.Market{
			"BTC-USDT": {
				ID:          "BTC-USDT",
				Base:        "BTC",
				Quote:       "USDT",
				TickSize:    decimal.RequireFromString("0.01"),
				LotSize:     decimal.RequireFromString("0.0001"),
				MinNotional: decimal.RequireFromString("10"),
				Active:      true,
			},
		},
		orders: make(map[string]*models.Order),
	}
}

func (m *MockExchangeService) Markets() []*models.Market {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Market, 0, len(m.markets))
	for _, mk := range m.markets {
		result = append(result, mk)
	}
	return result
}

func (m *MockExchangeService) Market(id string) (*models.Market, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if mk, ok := m.markets[id]; ok {
		return mk, nil
	}
	return nil, service.ErrMarketNotFound
}

func (m *MockExchangeService) PlaceOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.placeErr != nil {
		return nil, m.placeErr
	}
	if _, ok := m.markets[order.MarketID]; !ok {
		return nil, service.ErrMarketNotFound
	}

	m.nextSeq++
	placed := order.Clone()
	placed.ID = fmt.Sprintf("order-%d", m.nextSeq)
	placed.Status = models.OrderStatusOpen
	placed.SequenceNumber = m.nextSeq
	placed.CreatedAt = time.Now()
	m.orders[placed.ID] = placed
	m.lastPlaced = placed
	return placed, nil
}

func (m *MockExchangeService) CancelOrder(ctx context.Context, accountID, marketID, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	if _, ok := m.markets[marketID]; !ok {
		return nil, service.ErrMarketNotFound
	}

	order, ok := m.orders[orderID]
	if !ok || order.AccountID != accountID {
		return nil, ErrMockInternal
	}
	order.Status = models.OrderStatusCancelled
	return order, nil
}

func (m *MockExchangeService) OpenOrders(accountID, marketID string) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}

	var result []*models.Order
	for _, o := range m.orders {
		if o.AccountID != accountID || o.Status != models.OrderStatusOpen {
			continue
		}
		if marketID != "" && o.MarketID != marketID {
			continue
		}
		result = append(result, o)
	}
	return result, nil
}

func (m *MockExchangeService) OrderHistory(accountID string, limit int) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}

	var result []*models.Order
	for _, o := range m.orders {
		if o.AccountID == accountID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockExchangeService) Depth(marketID string) (*models.Depth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if _, ok := m.markets[marketID]; !ok {
		return nil, service.ErrMarketNotFound
	}

	return &models.Depth{
		MarketID: marketID,
		Bids: []models.DepthLevel{
			{Price: decimal.RequireFromString("50000"), Quantity: decimal.RequireFromString("1.5")},
		},
		Asks: []models.DepthLevel{
			{Price: decimal.RequireFromString("50100"), Quantity: decimal.RequireFromString("0.5")},
		},
		SequenceNumber: 42,
		Timestamp:      time.Now(),
	}, nil
}

func (m *MockExchangeService) Stats(marketID string) (*models.MarketStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if _, ok := m.markets[marketID]; !ok {
		return nil, service.ErrMarketNotFound
	}

	return &models.MarketStats{
		MarketID:  marketID,
		LastPrice: decimal.RequireFromString("50050"),
		High24h:   decimal.RequireFromString("51000"),
		Low24h:    decimal.RequireFromString("49000"),
		Volume24h: decimal.RequireFromString("12.5"),
		Trades24h: 100,
	}, nil
}

func (m *MockExchangeService) Candles(marketID string, limit int) ([]*models.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if _, ok := m.markets[marketID]; !ok {
		return nil, service.ErrMarketNotFound
	}

	return []*models.Candle{
		{
			MarketID: marketID,
			Start:    time.Now().Truncate(time.Minute),
			Open:     decimal.RequireFromString("50000"),
			High:     decimal.RequireFromString("50100"),
			Low:      decimal.RequireFromString("49900"),
			Close:    decimal.RequireFromString("50050"),
			Volume:   decimal.RequireFromString("3.2"),
		},
	}, nil
}

func (m *MockExchangeService) RecentTrades(marketID string, limit int) ([]*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if _, ok := m.markets[marketID]; !ok {
		return nil, service.ErrMarketNotFound
	}
	return m.trades, nil
}

func (m *MockExchangeService) AccountTrades(accountID string, limit int) ([]*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.trades, nil
}

// ============ Mock Wallet Service ============

// MockWalletService мок для WalletServiceInterface
type MockWalletService struct {
	balances    map[string]map[string]decimal.Decimal // accountID -> asset -> available
	txs         []*models.Transaction
	depositErr  error
	withdrawErr error
	queryErr    error
	mu          sync.RWMutex
}

// NewMockWalletService создает новый мок кошелькового сервиса
func NewMockWalletService() *MockWalletService {
	return &MockWalletService{
		balances: make(map[string]map[string]decimal.Decimal),
	}
}

func (m *MockWalletService) Deposit(ctx context.Context, accountID, asset string, amount decimal.Decimal) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.depositErr != nil {
		return nil, m.depositErr
	}

	if m.balances[accountID] == nil {
		m.balances[accountID] = make(map[string]decimal.Decimal)
	}
	m.balances[accountID][asset] = m.balances[accountID][asset].Add(amount)

	tx := &models.Transaction{
		ID:        "tx-1",
		AccountID: accountID,
		Asset:     asset,
		Type:      models.TransactionTypeDeposit,
		Amount:    amount,
		CreatedAt: time.Now(),
	}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *MockWalletService) Withdraw(ctx context.Context, accountID, asset string, amount decimal.Decimal) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.withdrawErr != nil {
		return nil, m.withdrawErr
	}

	tx := &models.Transaction{
		ID:        "tx-2",
		AccountID: accountID,
		Asset:     asset,
		Type:      models.TransactionTypeWithdrawal,
		Amount:    amount,
		CreatedAt: time.Now(),
	}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *MockWalletService) Balances(accountID string) []models.Balance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Balance
	for asset, available := range m.balances[accountID] {
		result = append(result, models.Balance{
			AccountID: accountID,
			Asset:     asset,
			Available: available,
		})
	}
	return result
}

func (m *MockWalletService) Transactions(accountID string, limit int) ([]*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}

	var result []*models.Transaction
	for _, tx := range m.txs {
		if tx.AccountID == accountID {
			result = append(result, tx)
		}
	}
	return result, nil
}
