package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eventplanner/planner/internal/core/domain"
)

const defaultTokenTTL = time.Hour

// TokenStore issues single-use tokens (password reset, email confirmation)
// that map to a user id.
// Key format: token:<purpose>:<uuid>
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenStore{client: client, ttl: ttl}
}

// Issue stores a fresh token for userID and returns it.
func (s *TokenStore) Issue(ctx context.Context, purpose, userID string) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.key(purpose, token), userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("issue %s token: %w", purpose, err)
	}
	return token, nil
}

// Consume returns the user id of token and deletes it. Unknown or expired
// tokens yield domain.ErrInvalidToken.
func (s *TokenStore) Consume(ctx context.Context, purpose, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, s.key(purpose, token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("consume %s token: %w", purpose, err)
	}
	return userID, nil
}

func (s *TokenStore) key(purpose, token string) string {
	return fmt.Sprintf("token:%s:%s", purpose, token)
}
