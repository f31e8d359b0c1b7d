// Package redis holds the ephemeral login-handshake state. Temp tokens
// bridge "password verified" and "second factor verified" without
// re-transmitting the password; Redis TTLs give them their 10-minute
// lifetime for free.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/newsinsight/api/internal/domain"
	"github.com/redis/go-redis/v9"
)

const tempTokenPrefix = "mfa:temp:"

// TempTokenStore issues and resolves the short-lived opaque tokens that
// carry pending-MFA login state.
type TempTokenStore struct {
	client redis.UniversalClient
}

func NewTempTokenStore(client redis.UniversalClient) *TempTokenStore {
	return &TempTokenStore{client: client}
}

// Issue mints a random token bound to userID with the given TTL.
func (s *TempTokenStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate temp token: %w", err)
	}
	token := hex.EncodeToString(b)
	if err := s.client.Set(ctx, tempTokenPrefix+token, userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("store temp token: %w", err)
	}
	return token, nil
}

// Resolve returns the user id bound to token without consuming it, so a
// user can request an email code and still fall back to another method.
func (s *TempTokenStore) Resolve(ctx context.Context, token string) (string, error) {
	userID, err := s.client.Get(ctx, tempTokenPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("temp token invalid or expired: %w", domain.ErrUnauthorized)
		}
		return "", fmt.Errorf("resolve temp token: %w", err)
	}
	return userID, nil
}

// Consume resolves and deletes the token in one round trip (GETDEL), so a
// token completes at most one login even under concurrent submissions.
func (s *TempTokenStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, tempTokenPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("temp token invalid or expired: %w", domain.ErrUnauthorized)
		}
		return "", fmt.Errorf("consume temp token: %w", err)
	}
	return userID, nil
}
