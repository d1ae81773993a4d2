package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"exchange/internal/api/middleware"
	"exchange/internal/engine"
	"exchange/internal/ledger"
	"exchange/internal/models"
	"exchange/internal/service"
)

// OrderHandler отвечает за торговые операции аккаунта
//
// Endpoints:
// - POST /api/v1/orders               - разместить ордер
// - DELETE /api/v1/orders/{id}        - отменить ордер
// - GET /api/v1/orders                - открытые ордера
// - GET /api/v1/orders/history        - история ордеров
// - GET /api/v1/orders/trades         - сделки аккаунта
//
// Аккаунт берется из контекста (X-Account-ID заголовок).
type OrderHandler struct {
	exchangeService service.ExchangeServiceInterface
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимостей
func NewOrderHandler(exchangeService service.ExchangeServiceInterface) *OrderHandler {
	return &OrderHandler{
		exchangeService: exchangeService,
	}
}

// PlaceOrderRequest структура запроса на размещение ордера
type PlaceOrderRequest struct {
	MarketID string `json:"market_id"` // BTC-USDT
	Side     string `json:"side"`      // buy | sell
	Type     string `json:"type"`      // limit | market
	Price    string `json:"price"`     // обязательна для limit
	Quantity string `json:"quantity"`
}

// PlaceOrder размещает новый ордер
// POST /api/v1/orders
//
// Request Body:
//
//	{
//	  "market_id": "BTC-USDT",
//	  "side": "buy",
//	  "type": "limit",
//	  "price": "50000.00",
//	  "quantity": "0.5"
//	}
//
// Response:
// - 201 Created: ордер принят (статус в теле: open/filled/...)
// - 400 Bad Request: невалидные параметры или недостаточно средств
// - 404 Not Found: рынок не найден
// - 503 Service Unavailable: рынок остановлен
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	order, err := h.orderFromRequest(r, &req)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}

	placed, err := h.exchangeService.PlaceOrder(r.Context(), order)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, placed)
}

func (h *OrderHandler) orderFromRequest(r *http.Request, req *PlaceOrderRequest) (*models.Order, error) {
	side := models.Side(req.Side)
	if side != models.SideBuy && side != models.SideSell {
		return nil, errors.New("side must be \"buy\" or \"sell\"")
	}

	orderType := models.OrderType(req.Type)
	if orderType != models.OrderTypeLimit && orderType != models.OrderTypeMarket {
		return nil, errors.New("type must be \"limit\" or \"market\"")
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, errors.New("quantity must be a decimal string")
	}

	order := &models.Order{
		AccountID: middleware.AccountID(r),
		MarketID:  req.MarketID,
		Side:      side,
		Type:      orderType,
		Quantity:  quantity,
	}

	if orderType == models.OrderTypeLimit {
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			return nil, errors.New("price must be a decimal string")
		}
		order.Price = price
	}

	return order, nil
}

// CancelOrder отменяет отдыхающий ордер
// DELETE /api/v1/orders/{id}?market_id=BTC-USDT
//
// Response:
// - 200 OK: ордер отменен
// - 409 Conflict: ордер уже исполнен/отменен или неизвестен
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	marketID := r.URL.Query().Get("market_id")
	if marketID == "" {
		respondWithError(w, http.StatusBadRequest, "missing_market_id", "market_id query parameter is required", "")
		return
	}

	cancelled, err := h.exchangeService.CancelOrder(r.Context(), middleware.AccountID(r), marketID, mux.Vars(r)["id"])
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, cancelled)
}

// GetOpenOrders возвращает открытые ордера аккаунта
// GET /api/v1/orders?market_id=BTC-USDT
//
// market_id опционален: без него возвращаются ордера со всех рынков.
func (h *OrderHandler) GetOpenOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.exchangeService.OpenOrders(middleware.AccountID(r), r.URL.Query().Get("market_id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	respondWithJSON(w, http.StatusOK, orders)
}

// GetOrderHistory возвращает последние ордера аккаунта из БД
// GET /api/v1/orders/history?limit=100
func (h *OrderHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := h.exchangeService.OrderHistory(middleware.AccountID(r), queryInt(r, "limit", 100))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	respondWithJSON(w, http.StatusOK, orders)
}

// GetAccountTrades возвращает последние сделки аккаунта
// GET /api/v1/orders/trades?limit=100
func (h *OrderHandler) GetAccountTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.exchangeService.AccountTrades(middleware.AccountID(r), queryInt(r, "limit", 100))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if trades == nil {
		trades = []*models.Trade{}
	}
	respondWithJSON(w, http.StatusOK, trades)
}

func (h *OrderHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMarketNotFound):
		respondWithError(w, http.StatusNotFound, "market_not_found", "Market not found", "")

	case errors.Is(err, service.ErrInvalidAccount):
		respondWithError(w, http.StatusUnauthorized, "missing_account", "Account is required", "")

	case errors.Is(err, models.ErrInvalidPrice):
		respondWithError(w, http.StatusBadRequest, "invalid_price", "Price is not a multiple of the market tick size", "")

	case errors.Is(err, models.ErrInvalidQuantity):
		respondWithError(w, http.StatusBadRequest, "invalid_quantity", "Quantity is not a multiple of the market lot size", "")

	case errors.Is(err, models.ErrBelowMinNotional):
		respondWithError(w, http.StatusBadRequest, "below_min_notional", "Order value is below the market minimum", "")

	case errors.Is(err, ledger.ErrInsufficientBalance):
		respondWithError(w, http.StatusBadRequest, "insufficient_balance", "Insufficient available balance", "")

	case errors.Is(err, engine.ErrInvalidOrder):
		respondWithError(w, http.StatusBadRequest, "invalid_order", "Invalid order", err.Error())

	case errors.Is(err, engine.ErrMarketInactive):
		respondWithError(w, http.StatusConflict, "market_inactive", "Market is not accepting orders", "")

	case errors.Is(err, engine.ErrOrderNotCancellable):
		respondWithError(w, http.StatusConflict, "order_not_cancellable", "Order already filled, cancelled or unknown", "")

	case errors.Is(err, engine.ErrMarketHalted):
		respondWithError(w, http.StatusServiceUnavailable, "market_halted", "Market is halted", "")

	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}
