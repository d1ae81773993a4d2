package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"exchange/internal/api/handlers"
	"exchange/internal/api/middleware"
	"exchange/internal/service"
	"exchange/internal/websocket"
	"exchange/pkg/ratelimit"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	ExchangeService service.ExchangeServiceInterface
	WalletService   service.WalletServiceInterface
	Hub             *websocket.Hub
	Limiter         *ratelimit.MultiLimiter
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /markets/
//	│   ├── GET /              - список рынков
//	│   ├── GET /{id}          - параметры рынка
//	│   ├── GET /{id}/depth    - стакан
//	│   ├── GET /{id}/trades   - последние сделки
//	│   ├── GET /{id}/stats    - 24h статистика
//	│   └── GET /{id}/candles  - минутные свечи
//	├── /orders/
//	│   ├── POST /             - разместить ордер
//	│   ├── DELETE /{id}       - отменить ордер
//	│   ├── GET /              - открытые ордера
//	│   ├── GET /history       - история ордеров
//	│   └── GET /trades        - сделки аккаунта
//	└── /wallet/
//	    ├── GET /balances      - балансы
//	    ├── POST /deposits     - ввод средств
//	    ├── POST /withdrawals  - вывод средств
//	    └── GET /transactions  - история транзакций
//
// /ws/stream - WebSocket поток событий рынков
// /health    - проверка живости
// /metrics   - Prometheus метрики
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Account (идентификация аккаунта)
// 5. RequireAccount + RateLimit (для приватных групп)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)
	router.Use(middleware.Account)

	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewAPILimiter()
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// Публичные рыночные данные
	if deps.ExchangeService != nil {
		marketHandler := handlers.NewMarketHandler(deps.ExchangeService)

		markets := api.PathPrefix("/markets").Subrouter()
		markets.Use(middleware.RateLimit(limiter, middleware.CategoryMarketData))
		markets.HandleFunc("", marketHandler.GetMarkets).Methods("GET")
		markets.HandleFunc("/{id}", marketHandler.GetMarket).Methods("GET")
		markets.HandleFunc("/{id}/depth", marketHandler.GetDepth).Methods("GET")
		markets.HandleFunc("/{id}/trades", marketHandler.GetTrades).Methods("GET")
		markets.HandleFunc("/{id}/stats", marketHandler.GetStats).Methods("GET")
		markets.HandleFunc("/{id}/candles", marketHandler.GetCandles).Methods("GET")

		// Торговые операции (требуют аккаунт)
		orderHandler := handlers.NewOrderHandler(deps.ExchangeService)

		orders := api.PathPrefix("/orders").Subrouter()
		orders.Use(middleware.RequireAccount)
		orders.Use(middleware.RateLimit(limiter, middleware.CategoryTrading))
		orders.HandleFunc("", orderHandler.PlaceOrder).Methods("POST")
		orders.HandleFunc("", orderHandler.GetOpenOrders).Methods("GET")
		orders.HandleFunc("/history", orderHandler.GetOrderHistory).Methods("GET")
		orders.HandleFunc("/trades", orderHandler.GetAccountTrades).Methods("GET")
		orders.HandleFunc("/{id}", orderHandler.CancelOrder).Methods("DELETE")
	}

	// Кошелек (требует аккаунт)
	if deps.WalletService != nil {
		walletHandler := handlers.NewWalletHandler(deps.WalletService)

		wallet := api.PathPrefix("/wallet").Subrouter()
		wallet.Use(middleware.RequireAccount)
		wallet.Use(middleware.RateLimit(limiter, middleware.CategoryWallet))
		wallet.HandleFunc("/balances", walletHandler.GetBalances).Methods("GET")
		wallet.HandleFunc("/deposits", walletHandler.Deposit).Methods("POST")
		wallet.HandleFunc("/withdrawals", walletHandler.Withdraw).Methods("POST")
		wallet.HandleFunc("/transactions", walletHandler.GetTransactions).Methods("GET")
	}

	// WebSocket поток событий
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}
