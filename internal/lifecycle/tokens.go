package lifecycle

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultTokenTTL is how long an issued verification token stays reserved.
const DefaultTokenTTL = 30 * 24 * time.Hour

// ErrTokensExhausted is returned when no free token could be drawn.
var ErrTokensExhausted = errors.New("no free verification token")

const (
	minToken = 100000
	maxToken = 999999
)

// TokenIssuer hands out six-digit pickup verification tokens, keeping each
// one reserved for the TTL so two live orders never share a token.
type TokenIssuer struct {
	issued *cache.Cache
	ttl    time.Duration
}

func NewTokenIssuer(ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		issued: cache.New(ttl, time.Hour),
		ttl:    ttl,
	}
}

// Issue draws and reserves a token.
func (ti *TokenIssuer) Issue() (string, error) {
	for i := 0; i < 20; i++ {
		token := fmt.Sprintf("%06d", minToken+rand.Intn(maxToken-minToken+1))
		if err := ti.issued.Add(token, struct{}{}, ti.ttl); err == nil {
			return token, nil
		}
	}
	return "", ErrTokensExhausted
}

// Release frees a token whose order was never written.
func (ti *TokenIssuer) Release(token string) {
	ti.issued.Delete(token)
}

// Reserved reports whether token is currently held.
func (ti *TokenIssuer) Reserved(token string) bool {
	_, ok := ti.issued.Get(token)
	return ok
}
