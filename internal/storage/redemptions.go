package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"offer-storefront-engine/internal/config"
)

const redemptionKeyPrefix = "storefront:redemptions:"

// RedemptionStore keeps per-offer redemption counts in Redis. The lifecycle
// policy reads them at evaluation time; redemption events increment them.
type RedemptionStore struct {
	rdb *redis.Client
}

func NewRedemptionStore(cfg config.Config) *RedemptionStore {
	return &RedemptionStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}),
	}
}

func (s *RedemptionStore) Close() error {
	return s.rdb.Close()
}

// Count returns the redemption count for an offer. A missing key reads as 0.
func (s *RedemptionStore) Count(ctx context.Context, offerID string) (int, error) {
	n, err := s.rdb.Get(ctx, redemptionKeyPrefix+offerID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get redemption count: %w", err)
	}
	return n, nil
}

// Record increments an offer's redemption count and returns the new value.
func (s *RedemptionStore) Record(ctx context.Context, offerID string) (int, error) {
	n, err := s.rdb.Incr(ctx, redemptionKeyPrefix+offerID).Result()
	if err != nil {
		return 0, fmt.Errorf("incr redemption count: %w", err)
	}
	return int(n), nil
}
