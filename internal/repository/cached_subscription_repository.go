package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием.
// Кеш ускоряет только чтения; CommitRedemption всегда идет в основное
// хранилище, потому что только там держится блокировка строки подписки.
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(
	repo SubscriptionRepository,
	cache *RedisCacheRepository,
	log *logger.Logger,
) SubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Create сохраняет подписку в БД и кеширует ее
func (r *CachedSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	// Сначала сохраняем в основное хранилище
	if err := r.repo.Create(ctx, sub); err != nil {
		return err
	}

	// Затем кешируем подписку
	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after creation", "error", err, "subscriptionID", sub.ID)
		// Продолжаем выполнение, несмотря на ошибку кеширования
	}

	if err := r.cache.CacheRestaurantActiveSubscription(ctx, sub.RestaurantID, sub); err != nil {
		r.log.Warnw("Failed to cache active subscription", "error", err, "restaurantID", sub.RestaurantID)
	}

	return nil
}

// GetByID получает подписку по ID (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	// Пытаемся получить из кеша
	cachedSub, err := r.cache.GetCachedSubscription(ctx, id)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "subscriptionID", id)
		// Продолжаем выполнение при ошибке кеша
	}

	// Если нашли в кеше, возвращаем
	if cachedSub != nil {
		r.log.Debugw("Subscription found in cache", "subscriptionID", id)
		return cachedSub, nil
	}

	// Если не нашли в кеше, ищем в БД
	sub, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Кешируем найденную подписку
	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "subscriptionID", id)
	}

	return sub, nil
}

// GetActiveByRestaurantID возвращает активную подписку ресторана (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) GetActiveByRestaurantID(ctx context.Context, restaurantID uuid.UUID) (*domain.Subscription, error) {
	cachedSub, err := r.cache.GetCachedRestaurantActiveSubscription(ctx, restaurantID)
	if err != nil {
		r.log.Warnw("Error getting active subscription from cache", "error", err, "restaurantID", restaurantID)
	}

	if cachedSub != nil {
		r.log.Debugw("Active subscription found in cache", "restaurantID", restaurantID)
		return cachedSub, nil
	}

	sub, err := r.repo.GetActiveByRestaurantID(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheRestaurantActiveSubscription(ctx, restaurantID, sub); err != nil {
		r.log.Warnw("Failed to cache active subscription after fetching", "error", err, "restaurantID", restaurantID)
	}

	return sub, nil
}

// Cancel отменяет подписку в БД и инвалидирует кеш
func (r *CachedSubscriptionRepository) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Subscription, error) {
	sub, err := r.repo.Cancel(ctx, id, at)
	if err != nil {
		return nil, err
	}

	if err := r.cache.DeleteCachedSubscription(ctx, id); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache after cancel", "error", err, "subscriptionID", id)
	}
	if err := r.cache.InvalidateRestaurantActiveSubscription(ctx, sub.RestaurantID); err != nil {
		r.log.Warnw("Failed to invalidate active subscription cache after cancel", "error", err, "restaurantID", sub.RestaurantID)
	}

	return sub, nil
}

// CommitRedemption фиксирует погашение в основном хранилище и обновляет кеш
// свежим состоянием подписки.
func (r *CachedSubscriptionRepository) CommitRedemption(ctx context.Context, params CommitRedemptionParams) (*RedemptionOutcome, error) {
	outcome, err := r.repo.CommitRedemption(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheSubscription(ctx, outcome.Subscription); err != nil {
		r.log.Warnw("Failed to refresh subscription cache after redemption", "error", err, "subscriptionID", params.SubscriptionID)
	}
	if err := r.cache.CacheRestaurantActiveSubscription(ctx, outcome.Subscription.RestaurantID, outcome.Subscription); err != nil {
		r.log.Warnw("Failed to refresh active subscription cache after redemption", "error", err, "restaurantID", outcome.Subscription.RestaurantID)
	}

	return outcome, nil
}
