package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

const (
	// Префиксы ключей для различных типов данных
	adSubscriptionKeyPrefix      = "ad_subscription:"
	restaurantActiveSubKeyPrefix = "restaurant_active_sub:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кеширование подписок с использованием Redis.
// Кеш исключительно для чтений: бюджетные инварианты обеспечиваются
// основным хранилищем, кеш никогда не участвует в погашении.
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CacheSubscription кеширует подписку в Redis
func (r *RedisCacheRepository) CacheSubscription(ctx context.Context, sub *domain.Subscription) error {
	key := fmt.Sprintf("%s%s", adSubscriptionKeyPrefix, sub.ID)

	data, err := json.Marshal(sub)
	if err != nil {
		r.log.Errorw("Failed to marshal subscription for caching", "error", err, "subscriptionID", sub.ID)
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache subscription in Redis", "error", err, "subscriptionID", sub.ID)
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	r.log.Debugw("Subscription cached successfully", "subscriptionID", sub.ID)
	return nil
}

// GetCachedSubscription получает подписку из кеша
func (r *RedisCacheRepository) GetCachedSubscription(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	key := fmt.Sprintf("%s%s", adSubscriptionKeyPrefix, subscriptionID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Ключ не найден в кеше
			r.log.Debugw("Subscription not found in cache", "subscriptionID", subscriptionID)
			return nil, nil // Возвращаем nil вместо ошибки
		}
		r.log.Errorw("Error getting subscription from Redis", "error", err, "subscriptionID", subscriptionID)
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		r.log.Errorw("Failed to unmarshal cached subscription", "error", err, "subscriptionID", subscriptionID)
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}

	r.log.Debugw("Subscription retrieved from cache", "subscriptionID", subscriptionID)
	return &sub, nil
}

// DeleteCachedSubscription удаляет подписку из кеша
func (r *RedisCacheRepository) DeleteCachedSubscription(ctx context.Context, subscriptionID uuid.UUID) error {
	key := fmt.Sprintf("%s%s", adSubscriptionKeyPrefix, subscriptionID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to delete subscription from cache", "error", err, "subscriptionID", subscriptionID)
		return fmt.Errorf("failed to delete subscription from cache: %w", err)
	}

	r.log.Debugw("Subscription deleted from cache", "subscriptionID", subscriptionID)
	return nil
}

// CacheRestaurantActiveSubscription кеширует активную подписку ресторана
func (r *RedisCacheRepository) CacheRestaurantActiveSubscription(ctx context.Context, restaurantID uuid.UUID, sub *domain.Subscription) error {
	key := fmt.Sprintf("%s%s", restaurantActiveSubKeyPrefix, restaurantID)

	data, err := json.Marshal(sub)
	if err != nil {
		r.log.Errorw("Failed to marshal active subscription for caching", "error", err, "restaurantID", restaurantID)
		return fmt.Errorf("failed to marshal active subscription: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache active subscription in Redis", "error", err, "restaurantID", restaurantID)
		return fmt.Errorf("failed to cache active subscription: %w", err)
	}

	r.log.Debugw("Active subscription cached successfully", "restaurantID", restaurantID)
	return nil
}

// GetCachedRestaurantActiveSubscription получает активную подписку ресторана из кеша
func (r *RedisCacheRepository) GetCachedRestaurantActiveSubscription(ctx context.Context, restaurantID uuid.UUID) (*domain.Subscription, error) {
	key := fmt.Sprintf("%s%s", restaurantActiveSubKeyPrefix, restaurantID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.Debugw("Active subscription not found in cache", "restaurantID", restaurantID)
			return nil, nil
		}
		r.log.Errorw("Error getting active subscription from Redis", "error", err, "restaurantID", restaurantID)
		return nil, fmt.Errorf("failed to get active subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		r.log.Errorw("Failed to unmarshal cached active subscription", "error", err, "restaurantID", restaurantID)
		return nil, fmt.Errorf("failed to unmarshal cached active subscription: %w", err)
	}

	r.log.Debugw("Active subscription retrieved from cache", "restaurantID", restaurantID)
	return &sub, nil
}

// InvalidateRestaurantActiveSubscription удаляет кеш активной подписки ресторана
func (r *RedisCacheRepository) InvalidateRestaurantActiveSubscription(ctx context.Context, restaurantID uuid.UUID) error {
	key := fmt.Sprintf("%s%s", restaurantActiveSubKeyPrefix, restaurantID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to invalidate active subscription cache", "error", err, "restaurantID", restaurantID)
		return fmt.Errorf("failed to invalidate active subscription cache: %w", err)
	}

	r.log.Debugw("Active subscription cache invalidated", "restaurantID", restaurantID)
	return nil
}
