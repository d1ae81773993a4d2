package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"exchange/internal/engine"
	"exchange/internal/models"
)

// Ошибки торгового сервиса
var (
	ErrMarketNotFound = errors.New("market not found")
	ErrInvalidAccount = errors.New("account id is required")
	ErrInvalidMarket  = errors.New("market id is required")
)

// ExchangeService - бизнес-логика торговли.
//
// Держит реестр движков (один на рынок) и направляет команды в
// нужный. Отмена требует market id: ордера живут внутри движка
// своего рынка.
type ExchangeService struct {
	mu         sync.RWMutex
	engines    map[string]*engine.Engine
	marketdata MarketDataInterface
	orderRepo  OrderRepositoryInterface
	tradeRepo  TradeRepositoryInterface
}

var _ ExchangeServiceInterface = (*ExchangeService)(nil)

// NewExchangeService создает новый экземпляр торгового сервиса
func NewExchangeService(
	md MarketDataInterface,
	orderRepo OrderRepositoryInterface,
	tradeRepo TradeRepositoryInterface,
) *ExchangeService {
	return &ExchangeService{
		engines:    make(map[string]*engine.Engine),
		marketdata: md,
		orderRepo:  orderRepo,
		tradeRepo:  tradeRepo,
	}
}

// RegisterEngine добавляет движок рынка в реестр.
// Вызывается при старте, по одному разу на рынок.
func (s *ExchangeService) RegisterEngine(e *engine.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[e.Market().ID] = e
}

func (s *ExchangeService) engineFor(marketID string) (*engine.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.engines[marketID]
	if !ok {
		return nil, ErrMarketNotFound
	}
	return e, nil
}

// Markets возвращает все зарегистрированные рынки, отсортированные по ID
func (s *ExchangeService) Markets() []*models.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Market, 0, len(s.engines))
	for _, e := range s.engines {
		out = append(out, e.Market())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Market возвращает рынок по ID
func (s *ExchangeService) Market(id string) (*models.Market, error) {
	e, err := s.engineFor(id)
	if err != nil {
		return nil, err
	}
	return e.Market(), nil
}

// PlaceOrder валидирует заявку и отправляет ее в движок рынка.
// ID и sequence number присваиваются системой, клиентские игнорируются.
func (s *ExchangeService) PlaceOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if strings.TrimSpace(order.AccountID) == "" {
		return nil, ErrInvalidAccount
	}
	if strings.TrimSpace(order.MarketID) == "" {
		return nil, ErrInvalidMarket
	}

	e, err := s.engineFor(order.MarketID)
	if err != nil {
		return nil, err
	}

	order.ID = uuid.NewString()
	return e.PlaceOrder(ctx, order)
}

// CancelOrder отменяет отдыхающий ордер
func (s *ExchangeService) CancelOrder(ctx context.Context, accountID, marketID, orderID string) (*models.Order, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrInvalidAccount
	}

	e, err := s.engineFor(marketID)
	if err != nil {
		return nil, err
	}
	return e.CancelOrder(ctx, accountID, orderID)
}

// OpenOrders возвращает открытые ордера аккаунта.
// marketID == "" означает все рынки.
func (s *ExchangeService) OpenOrders(accountID, marketID string) ([]*models.Order, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrInvalidAccount
	}

	if marketID != "" {
		e, err := s.engineFor(marketID)
		if err != nil {
			return nil, err
		}
		return sortBySeq(e.OpenOrders(accountID)), nil
	}

	s.mu.RLock()
	engines := make([]*engine.Engine, 0, len(s.engines))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	s.mu.RUnlock()

	var out []*models.Order
	for _, e := range engines {
		out = append(out, e.OpenOrders(accountID)...)
	}
	return sortBySeq(out), nil
}

func sortBySeq(orders []*models.Order) []*models.Order {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].SequenceNumber < orders[j].SequenceNumber
	})
	return orders
}

// OrderHistory возвращает последние ордера аккаунта из БД
func (s *ExchangeService) OrderHistory(accountID string, limit int) ([]*models.Order, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrInvalidAccount
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.orderRepo.GetByAccount(accountID, limit)
}

// Depth возвращает последний снапшот стакана рынка
func (s *ExchangeService) Depth(marketID string) (*models.Depth, error) {
	if _, err := s.engineFor(marketID); err != nil {
		return nil, err
	}

	depth := s.marketdata.Depth(marketID)
	if depth == nil {
		// Рынок без единого события: пустой стакан
		return &models.Depth{MarketID: marketID}, nil
	}
	return depth, nil
}

// Stats возвращает 24h статистику рынка
func (s *ExchangeService) Stats(marketID string) (*models.MarketStats, error) {
	if _, err := s.engineFor(marketID); err != nil {
		return nil, err
	}
	return s.marketdata.Stats(marketID), nil
}

// Candles возвращает минутные свечи рынка
func (s *ExchangeService) Candles(marketID string, limit int) ([]*models.Candle, error) {
	if _, err := s.engineFor(marketID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1440 {
		limit = 100
	}
	return s.marketdata.Candles(marketID, limit), nil
}

// RecentTrades возвращает последние сделки рынка из БД
func (s *ExchangeService) RecentTrades(marketID string, limit int) ([]*models.Trade, error) {
	if _, err := s.engineFor(marketID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.tradeRepo.GetByMarket(marketID, limit)
}

// AccountTrades возвращает последние сделки аккаунта
func (s *ExchangeService) AccountTrades(accountID string, limit int) ([]*models.Trade, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrInvalidAccount
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.tradeRepo.GetByAccount(accountID, limit)
}
