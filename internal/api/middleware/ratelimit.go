package middleware

import (
	"net/http"

	"exchange/pkg/ratelimit"
)

// Категории rate limit для групп endpoints
const (
	CategoryTrading    = "trading"    // размещение и отмена ордеров
	CategoryMarketData = "marketdata" // стакан, сделки, статистика
	CategoryWallet     = "wallet"     // вводы/выводы и балансы
)

// NewAPILimiter создает MultiLimiter с лимитами по категориям.
// Торговые команды лимитируются жестче чем чтение рыночных данных:
// каждая проходит через однопоточный цикл движка.
func NewAPILimiter() *ratelimit.MultiLimiter {
	ml := ratelimit.NewMultiLimiter()
	ml.Add(CategoryTrading, 50, 100)
	ml.Add(CategoryMarketData, 200, 400)
	ml.Add(CategoryWallet, 20, 40)
	return ml
}

// RateLimit - middleware ограничения частоты запросов категории.
// Превышение лимита отвечает 429 без ожидания: клиент сам решает
// когда повторить.
func RateLimit(ml *ratelimit.MultiLimiter, category string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ml.Allow(category) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
