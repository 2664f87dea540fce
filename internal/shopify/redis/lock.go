package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/breez/payments-rest-api/internal/logger"
)

// Lock serializes invoice creation per checkout so double-submitted
// checkout webhooks never mint two invoices for the same cart.
type Lock struct {
	Client *redis.Client
	TTL    time.Duration
	log    *logger.Logger
}

func NewLock(client *redis.Client, ttl time.Duration, log *logger.Logger) *Lock {
	return &Lock{Client: client, TTL: ttl, log: log}
}

func checkoutKey(token string) string {
	return "checkout_lock:" + token
}

// AcquireCheckout takes the lock for a checkout token. Returns false
// when another request already holds it.
func (l *Lock) AcquireCheckout(token string) (bool, error) {
	ok, err := l.Client.SetNX(context.Background(), checkoutKey(token), "locked", l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		l.log.Debug("REDIS", "checkout "+token+" already locked")
	}
	return ok, nil
}

// ReleaseCheckout drops the lock. Releasing an expired or missing lock
// is a no-op.
func (l *Lock) ReleaseCheckout(token string) error {
	err := l.Client.Del(context.Background(), checkoutKey(token)).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release checkout lock: %w", err)
	}
	return nil
}
