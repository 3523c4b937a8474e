package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
)

// TokenIssuer implements the connection-authorization handshake: single-use
// connect tokens that expire within a short configurable window.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (token string, ttl time.Duration)
	// Consume redeems a token exactly once. A second redemption, an unknown
	// token and an expired token all fail identically.
	Consume(token string) (uuid.UUID, error)
}

// Interface guard
var _ TokenIssuer = (*TokenService)(nil)

type TokenService struct {
	ttl time.Duration

	// mu serializes Get+Remove so a token can never be redeemed twice.
	mu    sync.Mutex
	cache *expirable.LRU[string, uuid.UUID]
}

func NewTokenService(ttl time.Duration, cacheSize int) *TokenService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if cacheSize <= 0 {
		cacheSize = 16384
	}
	return &TokenService{
		ttl:   ttl,
		cache: expirable.NewLRU[string, uuid.UUID](cacheSize, nil, ttl),
	}
}

func (s *TokenService) Issue(userID uuid.UUID) (string, time.Duration) {
	token := uuid.NewString()

	s.mu.Lock()
	s.cache.Add(token, userID)
	s.mu.Unlock()

	return token, s.ttl
}

func (s *TokenService) Consume(token string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.cache.Get(token)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: unknown or expired token", model.ErrValidation)
	}
	s.cache.Remove(token)
	return userID, nil
}
