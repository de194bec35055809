package middleware

import (
	"net/http"
	"strings"

	"fundingbot/pkg/crypto"
)

// Auth - middleware аутентификации операторского API
//
// Единственный пользователь системы - оператор. Вместо JWT и сессий
// используется статический токен: оператор передаёт его в заголовке
// Authorization: Bearer <token>, сервер хранит только bcrypt-хеш
// (API_TOKEN_HASH в конфигурации).
//
// Возвращает 401 при отсутствии или несовпадении токена.
func Auth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !crypto.CheckToken(token, tokenHash) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
