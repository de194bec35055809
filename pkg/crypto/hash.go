// Package crypto - хеширование и проверка операторского токена API.
package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования
var (
	ErrEmptyToken    = errors.New("token cannot be empty")
	ErrTokenMismatch = errors.New("token does not match hash")
	ErrInvalidHash   = errors.New("invalid token hash format")
	ErrTokenTooLong  = errors.New("token exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость хеширования по умолчанию (рекомендуемое значение)
const DefaultCost = 12

// MaxTokenLength - максимальная длина токена для bcrypt (72 байта)
const MaxTokenLength = 72

// HashToken хеширует операторский токен с использованием bcrypt.
// Автоматически генерирует криптографически стойкий salt.
// Результат кладётся в переменную окружения API_TOKEN_HASH.
func HashToken(token string) (string, error) {
	return HashTokenWithCost(token, DefaultCost)
}

// HashTokenWithCost хеширует токен с указанной стоимостью.
// cost должен быть от bcrypt.MinCost (4) до bcrypt.MaxCost (31).
func HashTokenWithCost(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken проверяет соответствие токена хешу.
// Использует constant-time comparison для защиты от timing attacks.
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrTokenMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// CheckToken проверяет соответствие токена хешу и возвращает bool.
// Удобная обёртка для использования в условиях.
func CheckToken(token, hash string) bool {
	return VerifyToken(token, hash) == nil
}
