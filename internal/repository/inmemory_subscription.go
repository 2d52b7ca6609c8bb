package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
)

// InMemorySubscriptionRepository хранит подписки в памяти под мьютексом.
// CommitRedemption держит мьютекс на протяжении всей пары проверка+запись,
// воспроизводя семантику SELECT ... FOR UPDATE постгресовой реализации.
// Порядок захвата всегда s.mu -> coupons.mu, обратного пути нет.
type InMemorySubscriptionRepository struct {
	mu            sync.Mutex
	subscriptions map[uuid.UUID]*domain.Subscription
	coupons       *InMemoryCouponRepository
	history       []domain.MultiplierHistoryEntry
}

// NewInMemorySubscriptionRepository создает in-memory хранилище подписок,
// связанное с хранилищем купонов для атомарных погашений.
func NewInMemorySubscriptionRepository(coupons *InMemoryCouponRepository) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subscriptions: make(map[uuid.UUID]*domain.Subscription),
		coupons:       coupons,
	}
}

// Create сохраняет подписку; вторая активная подписка ресторана отклоняется.
func (r *InMemorySubscriptionRepository) Create(_ context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscriptions[sub.ID]; exists {
		return ErrDuplicate
	}
	for _, existing := range r.subscriptions {
		if existing.RestaurantID == sub.RestaurantID && existing.Status == domain.SubscriptionStatusActive {
			return ErrDuplicate
		}
	}

	copied := *sub
	r.subscriptions[sub.ID] = &copied
	return nil
}

// GetByID возвращает копию подписки по ее ID.
func (r *InMemorySubscriptionRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

// GetActiveByRestaurantID возвращает копию активной подписки ресторана.
func (r *InMemorySubscriptionRepository) GetActiveByRestaurantID(_ context.Context, restaurantID uuid.UUID) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subscriptions {
		if sub.RestaurantID == restaurantID && sub.Status == domain.SubscriptionStatusActive {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// Cancel переводит подписку в cancelled. Идемпотентно.
func (r *InMemorySubscriptionRepository) Cancel(_ context.Context, id uuid.UUID, at time.Time) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}

	if sub.Status.CanTransitionTo(domain.SubscriptionStatusCancelled) {
		sub.Status = domain.SubscriptionStatusCancelled
		cancelledAt := at
		sub.CancelledAt = &cancelledAt
		sub.UpdatedAt = at
	}

	copied := *sub
	return &copied, nil
}

// CommitRedemption атомарно проверяет и фиксирует погашение под мьютексом.
func (r *InMemorySubscriptionRepository) CommitRedemption(_ context.Context, params CommitRedemptionParams) (*RedemptionOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[params.SubscriptionID]
	if !ok {
		return nil, ErrNotFound
	}

	r.coupons.mu.Lock()
	defer r.coupons.mu.Unlock()

	coupon, ok := r.coupons.getLocked(params.CouponID)
	if !ok {
		return nil, ErrNotFound
	}
	if coupon.SubscriptionID != params.SubscriptionID {
		return nil, domain.ErrInvalid
	}

	check := domain.CanRedeem(sub, coupon, params.Amount, params.Now)
	if !check.CanRedeem {
		return nil, domain.NewRedemptionError(check)
	}

	// Переход статуса до инкремента бюджета: если таблица переходов его
	// запрещает, леджер не трогаем
	if err := coupon.TransitionTo(domain.CouponStatusRedeemed); err != nil {
		return nil, err
	}

	newTotal := sub.TotalRedeemedAmount.Add(params.Amount)
	newMultiplier := params.Multiplier.Multiplier(newTotal)
	multiplierChanged := !newMultiplier.Equal(sub.TrafficMultiplier)

	if multiplierChanged {
		r.history = append(r.history, domain.MultiplierHistoryEntry{
			ID:                     uuid.New(),
			SubscriptionID:         sub.ID,
			PreviousMultiplier:     sub.TrafficMultiplier,
			NewMultiplier:          newMultiplier,
			RedeemedAmountAtChange: newTotal,
			CalculatedAt:           params.Now,
		})
	}

	sub.TotalRedeemedAmount = newTotal
	sub.TrafficMultiplier = newMultiplier
	sub.UpdatedAt = params.Now

	amount := params.Amount
	now := params.Now
	userID := params.UserID
	if coupon.ClaimedBy == nil {
		coupon.ClaimedBy = &userID
	}
	coupon.RedeemedAmount = &amount
	coupon.RedeemedAt = &now

	r.coupons.recordUsageLocked(params.UserID, params.CouponID, params.Now)

	subCopy := *sub
	couponCopy := *coupon
	return &RedemptionOutcome{
		Subscription:      &subCopy,
		Coupon:            &couponCopy,
		MultiplierChanged: multiplierChanged,
	}, nil
}

// MultiplierHistory возвращает копию журнала изменений множителя подписки.
func (r *InMemorySubscriptionRepository) MultiplierHistory(subscriptionID uuid.UUID) []domain.MultiplierHistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []domain.MultiplierHistoryEntry
	for _, entry := range r.history {
		if entry.SubscriptionID == subscriptionID {
			entries = append(entries, entry)
		}
	}
	return entries
}
