package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки ключей API
var (
	ErrEmptyKey    = errors.New("api key cannot be empty")
	ErrKeyMismatch = errors.New("api key does not match hash")
	ErrInvalidHash = errors.New("invalid api key hash format")
	ErrKeyTooLong  = errors.New("api key exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt по умолчанию
const DefaultCost = 12

// MaxKeyLength - bcrypt учитывает только первые 72 байта
const MaxKeyLength = 72

// KeyPrefix отличает ключи сервиса от прочих секретов в конфигурации
const KeyPrefix = "ct_"

// keyBytes - энтропия ключа, 64 hex символа
const keyBytes = 32

// GenerateAPIKey создает случайный ключ вида ct_<64 hex>
func GenerateAPIKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

// HashAPIKey хеширует ключ bcrypt со стоимостью по умолчанию
func HashAPIKey(key string) (string, error) {
	return HashAPIKeyWithCost(key, DefaultCost)
}

// HashAPIKeyWithCost хеширует ключ; cost приводится к [bcrypt.MinCost, bcrypt.MaxCost]
func HashAPIKeyWithCost(key string, cost int) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if len(key) > MaxKeyLength {
		return "", ErrKeyTooLong
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAPIKey проверяет ключ по хешу
func VerifyAPIKey(key, hash string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if hash == "" {
		return ErrInvalidHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrKeyMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// CheckAPIKey - VerifyAPIKey для условий
func CheckAPIKey(key, hash string) bool {
	return VerifyAPIKey(key, hash) == nil
}

// HashCost возвращает cost существующего хеша
func HashCost(hash string) (int, error) {
	if hash == "" {
		return 0, ErrInvalidHash
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, ErrInvalidHash
	}
	return cost, nil
}

// NeedsRehash возвращает true если cost хеша ниже желаемого или хеш битый
func NeedsRehash(hash string, desiredCost int) bool {
	cost, err := HashCost(hash)
	if err != nil {
		return true
	}
	return cost < desiredCost
}
