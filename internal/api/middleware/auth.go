package middleware

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"cryptotrader/pkg/crypto"
)

// Ключ доступа к API: заголовок, для WebSocket из браузера query параметр
const (
	APIKeyHeader = "X-API-Key"
	APIKeyQuery  = "api_key"
)

// APIKeyAuth проверяет ключ из заголовка X-API-Key по bcrypt хешу
//
// Пустой хеш отключает проверку (локальное развертывание).
// bcrypt дорогой, поэтому последний подтвержденный ключ запоминается и
// дальше сравнивается в constant-time.
func APIKeyAuth(keyHash string) func(http.Handler) http.Handler {
	var (
		mu       sync.RWMutex
		verified []byte
	)

	check := func(key string) bool {
		mu.RLock()
		cached := verified
		mu.RUnlock()
		if cached != nil && subtle.ConstantTimeCompare(cached, []byte(key)) == 1 {
			return true
		}
		if !crypto.CheckAPIKey(key, keyHash) {
			return false
		}
		mu.Lock()
		verified = []byte(key)
		mu.Unlock()
		return true
	}

	return func(next http.Handler) http.Handler {
		if keyHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				key = r.URL.Query().Get(APIKeyQuery)
			}
			if key == "" || !check(key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","code":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
