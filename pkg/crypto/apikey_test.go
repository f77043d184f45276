package crypto

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	b, _ := GenerateAPIKey()

	if !strings.HasPrefix(a, KeyPrefix) {
		t.Errorf("key should start with %q, got %s", KeyPrefix, a)
	}
	if len(a) != len(KeyPrefix)+2*keyBytes {
		t.Errorf("unexpected key length %d", len(a))
	}
	if len(a) > MaxKeyLength {
		t.Errorf("generated key exceeds bcrypt limit")
	}
	if a == b {
		t.Error("two generated keys must differ")
	}
}

func TestHashAndVerifyAPIKey(t *testing.T) {
	key, _ := GenerateAPIKey()
	hash, err := HashAPIKeyWithCost(key, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashAPIKeyWithCost failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
		t.Errorf("hash should start with bcrypt prefix, got %s", hash)
	}

	tests := []struct {
		name string
		key  string
		hash string
		want error
	}{
		{"верный ключ", key, hash, nil},
		{"чужой ключ", key + "x", hash, ErrKeyMismatch},
		{"пустой ключ", "", hash, ErrEmptyKey},
		{"пустой хеш", key, "", ErrInvalidHash},
		{"битый хеш", key, "not-a-hash", ErrInvalidHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyAPIKey(tt.key, tt.hash); err != tt.want {
				t.Errorf("VerifyAPIKey: got %v, want %v", err, tt.want)
			}
			if CheckAPIKey(tt.key, tt.hash) != (tt.want == nil) {
				t.Errorf("CheckAPIKey disagrees with VerifyAPIKey")
			}
		})
	}
}

func TestHashAPIKey_Errors(t *testing.T) {
	if _, err := HashAPIKey(""); err != ErrEmptyKey {
		t.Errorf("got %v, want %v", err, ErrEmptyKey)
	}
	if _, err := HashAPIKeyWithCost(strings.Repeat("k", 73), bcrypt.MinCost); err != ErrKeyTooLong {
		t.Errorf("got %v, want %v", err, ErrKeyTooLong)
	}
}

func TestHashCostAndRehash(t *testing.T) {
	hash, err := HashAPIKeyWithCost("ct_key", 1) // приводится к MinCost
	if err != nil {
		t.Fatalf("HashAPIKeyWithCost failed: %v", err)
	}
	cost, err := HashCost(hash)
	if err != nil || cost != bcrypt.MinCost {
		t.Errorf("expected cost %d, got %d (%v)", bcrypt.MinCost, cost, err)
	}

	if !NeedsRehash(hash, DefaultCost) {
		t.Error("min cost hash should need rehash")
	}
	if NeedsRehash(hash, bcrypt.MinCost) {
		t.Error("hash at desired cost should not need rehash")
	}
	if !NeedsRehash("garbage", bcrypt.MinCost) {
		t.Error("invalid hash should need rehash")
	}
	if _, err := HashCost(""); err != ErrInvalidHash {
		t.Errorf("got %v, want %v", err, ErrInvalidHash)
	}
}

func BenchmarkVerifyAPIKey(b *testing.B) {
	hash, _ := HashAPIKeyWithCost("ct_bench", bcrypt.MinCost)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = VerifyAPIKey("ct_bench", hash)
	}
}
