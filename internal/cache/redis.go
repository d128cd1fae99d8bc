package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/busline/ticketing-backend/internal/config"
	"github.com/busline/ticketing-backend/internal/models"
)

// RedisCache provides short-lived seat holds during checkout and a cache
// for trip search results. All methods treat a cache miss as a nil result,
// never an error.
type RedisCache struct {
	client      *redis.Client
	seatHoldTTL time.Duration
	searchTTL   time.Duration
}

// NewRedisCache connects to Redis using the given configuration.
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{
		client:      client,
		seatHoldTTL: cfg.SeatHoldTTL,
		searchTTL:   cfg.CacheTTL,
	}, nil
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// HoldSeats places a short-lived hold on each seat for the given user. It
// acquires all seats or none: when any seat is already held by another
// user, holds taken so far are released and the conflicting seat IDs are
// returned.
func (c *RedisCache) HoldSeats(ctx context.Context, tripID string, seatIDs []string, userID string) ([]string, error) {
	var acquired []string
	var conflicts []string

	for _, seatID := range seatIDs {
		ok, err := c.client.SetNX(ctx, seatHoldKey(tripID, seatID), userID, c.seatHoldTTL).Result()
		if err != nil {
			c.releaseKeys(ctx, tripID, acquired)
			return nil, fmt.Errorf("failed to hold seat %s: %w", seatID, err)
		}
		if !ok {
			// Holding the seat yourself is not a conflict.
			holder, err := c.client.Get(ctx, seatHoldKey(tripID, seatID)).Result()
			if err == nil && holder == userID {
				acquired = append(acquired, seatID)
				continue
			}
			conflicts = append(conflicts, seatID)
			continue
		}
		acquired = append(acquired, seatID)
	}

	if len(conflicts) > 0 {
		c.releaseKeys(ctx, tripID, acquired)
		return conflicts, nil
	}
	return nil, nil
}

// ReleaseSeats drops the holds for the given seats regardless of holder.
func (c *RedisCache) ReleaseSeats(ctx context.Context, tripID string, seatIDs []string) error {
	return c.releaseKeys(ctx, tripID, seatIDs)
}

func (c *RedisCache) releaseKeys(ctx context.Context, tripID string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	keys := make([]string, len(seatIDs))
	for i, seatID := range seatIDs {
		keys[i] = seatHoldKey(tripID, seatID)
	}
	return c.client.Del(ctx, keys...).Err()
}

// GetSearchResults returns cached trips for a search, or nil on a miss.
func (c *RedisCache) GetSearchResults(ctx context.Context, params models.TripSearchParams) ([]models.Trip, error) {
	data, err := c.client.Get(ctx, searchKey(params)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var trips []models.Trip
	if err := json.Unmarshal(data, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// SetSearchResults caches the trips for a search.
func (c *RedisCache) SetSearchResults(ctx context.Context, params models.TripSearchParams, trips []models.Trip) error {
	payload, err := json.Marshal(trips)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, searchKey(params), payload, c.searchTTL).Err()
}

// InvalidateSearch drops all cached search results. Called when trips
// change so stale availability is never served.
func (c *RedisCache) InvalidateSearch(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "cache:search:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func seatHoldKey(tripID, seatID string) string {
	return fmt.Sprintf("hold:trip:%s:seat:%s", tripID, seatID)
}

func searchKey(params models.TripSearchParams) string {
	return fmt.Sprintf("cache:search:%s:%s:%s:%d:%s:%s",
		params.Origin, params.Destination, params.TravelDate.Format("2006-01-02"),
		params.SeatsNeeded, params.SortBy, params.SortOrder)
}
