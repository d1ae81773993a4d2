package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"exchange/internal/service"
)

// MarketHandler отвечает за публичные рыночные данные
//
// Endpoints:
// - GET /api/v1/markets                  - список рынков
// - GET /api/v1/markets/{id}             - параметры рынка
// - GET /api/v1/markets/{id}/depth       - стакан (топ-N уровней)
// - GET /api/v1/markets/{id}/trades      - последние сделки
// - GET /api/v1/markets/{id}/stats       - 24h статистика
// - GET /api/v1/markets/{id}/candles     - минутные OHLC свечи
type MarketHandler struct {
	exchangeService service.ExchangeServiceInterface
}

// NewMarketHandler создает новый MarketHandler с внедрением зависимостей
func NewMarketHandler(exchangeService service.ExchangeServiceInterface) *MarketHandler {
	return &MarketHandler{
		exchangeService: exchangeService,
	}
}

// GetMarkets возвращает список всех рынков
// GET /api/v1/markets
func (h *MarketHandler) GetMarkets(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.exchangeService.Markets())
}

// GetMarket возвращает параметры рынка
// GET /api/v1/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	market, err := h.exchangeService.Market(mux.Vars(r)["id"])
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, market)
}

// GetDepth возвращает снапшот стакана
// GET /api/v1/markets/{id}/depth
func (h *MarketHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.exchangeService.Depth(mux.Vars(r)["id"])
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, depth)
}

// GetTrades возвращает последние сделки рынка
// GET /api/v1/markets/{id}/trades?limit=100
func (h *MarketHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.exchangeService.RecentTrades(mux.Vars(r)["id"], queryInt(r, "limit", 100))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, trades)
}

// GetStats возвращает статистику рынка за 24 часа
// GET /api/v1/markets/{id}/stats
func (h *MarketHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.exchangeService.Stats(mux.Vars(r)["id"])
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// GetCandles возвращает минутные свечи рынка
// GET /api/v1/markets/{id}/candles?limit=100
func (h *MarketHandler) GetCandles(w http.ResponseWriter, r *http.Request) {
	candles, err := h.exchangeService.Candles(mux.Vars(r)["id"], queryInt(r, "limit", 100))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, candles)
}

func (h *MarketHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMarketNotFound):
		respondWithError(w, http.StatusNotFound, "market_not_found", "Market not found", "")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}
