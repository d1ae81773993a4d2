package service

import (
	"sync"

	"exchange/internal/models"
	"exchange/internal/repository"
)

// Моки репозиториев для тестов сервисов

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	err    error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*models.Order)}
}

func (m *mockOrderRepo) Upsert(order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *mockOrderRepo) GetByID(id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepo) GetByAccount(accountID string, limit int) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Order
	for _, o := range m.orders {
		if o.AccountID == accountID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) GetByMarket(marketID string, limit int) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Order
	for _, o := range m.orders {
		if o.MarketID == marketID {
			out = append(out, o)
		}
	}
	return out, nil
}

type mockTradeRepo struct {
	mu     sync.Mutex
	trades []*models.Trade
	err    error
}

func (m *mockTradeRepo) Create(trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.trades = append(m.trades, trade)
	return nil
}

func (m *mockTradeRepo) GetByMarket(marketID string, limit int) ([]*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Trade
	for _, t := range m.trades {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTradeRepo) GetByAccount(accountID string, limit int) ([]*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Trade
	for _, t := range m.trades {
		if t.MakerAccountID == accountID || t.TakerAccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTradeRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades)
}

type mockTxRepo struct {
	mu  sync.Mutex
	txs []*models.Transaction
	err error
}

func (m *mockTxRepo) Create(tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.txs = append(m.txs, tx)
	return nil
}

func (m *mockTxRepo) GetByAccount(accountID string, limit int) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, tx := range m.txs {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// mockMarketData - минимальная реализация MarketDataInterface
type mockMarketData struct {
	depths map[string]*models.Depth
}

func newMockMarketData() *mockMarketData {
	return &mockMarketData{depths: make(map[string]*models.Depth)}
}

func (m *mockMarketData) Depth(marketID string) *models.Depth { return m.depths[marketID] }

func (m *mockMarketData) Stats(marketID string) *models.MarketStats {
	return &models.MarketStats{MarketID: marketID}
}

func (m *mockMarketData) Candles(marketID string, limit int) []*models.Candle { return nil }

func (m *mockMarketData) LastSequence(marketID string) uint64 { return 0 }

func (m *mockMarketData) Replay(marketID string, fromSeq uint64, fn func(models.Event) error) error {
	return nil
}
