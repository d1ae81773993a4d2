package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const accountIDKey contextKey = "account_id"

// Account - middleware идентификации аккаунта
//
// Аккаунт берется из заголовка X-Account-ID и кладется в context
// запроса. Проверка подлинности (JWT, подписи запросов) - дело
// внешнего gateway; здесь идентификатор принимается как есть.
// Endpoints, требующие аккаунт, отвечают 401 при его отсутствии
// через RequireAccount.
func Account(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := strings.TrimSpace(r.Header.Get("X-Account-ID"))
		if accountID != "" {
			r = r.WithContext(context.WithValue(r.Context(), accountIDKey, accountID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAccount отклоняет запросы без идентификатора аккаунта
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AccountID(r) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"X-Account-ID header is required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccountID возвращает идентификатор аккаунта запроса ("" если нет)
func AccountID(r *http.Request) string {
	if v, ok := r.Context().Value(accountIDKey).(string); ok {
		return v
	}
	return ""
}
