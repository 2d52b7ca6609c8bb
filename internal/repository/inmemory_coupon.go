package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
)

// userCouponKey пара (пользователь, купон); на пару допускается одна запись.
type userCouponKey struct {
	userID   uuid.UUID
	couponID uuid.UUID
}

// InMemoryCouponRepository хранит купоны в памяти под мьютексом.
// Используется в тестах и локальной разработке без PostgreSQL; семантика
// одного победителя при Claim сохраняется за счет мьютекса вместо
// статусно-защищенного UPDATE.
type InMemoryCouponRepository struct {
	mu          sync.Mutex
	coupons     map[uuid.UUID]*domain.Coupon
	userCoupons map[userCouponKey]*domain.UserCoupon
}

// NewInMemoryCouponRepository создает пустое in-memory хранилище купонов.
func NewInMemoryCouponRepository() *InMemoryCouponRepository {
	return &InMemoryCouponRepository{
		coupons:     make(map[uuid.UUID]*domain.Coupon),
		userCoupons: make(map[userCouponKey]*domain.UserCoupon),
	}
}

// BulkCreate сохраняет пакет купонов.
func (r *InMemoryCouponRepository) BulkCreate(_ context.Context, coupons []domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range coupons {
		if _, exists := r.coupons[coupons[i].ID]; exists {
			return ErrDuplicate
		}
	}
	for i := range coupons {
		c := coupons[i]
		r.coupons[c.ID] = &c
	}
	return nil
}

// GetByID возвращает копию купона по его ID.
func (r *InMemoryCouponRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon, ok := r.coupons[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *coupon
	return &copied, nil
}

// ListBySubscriptionID возвращает копии всех купонов подписки, новые первыми.
func (r *InMemoryCouponRepository) ListBySubscriptionID(_ context.Context, subscriptionID uuid.UUID) ([]domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []domain.Coupon{}
	for _, coupon := range r.coupons {
		if coupon.SubscriptionID == subscriptionID {
			result = append(result, *coupon)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// Claim выполняет переход available -> claimed под мьютексом.
func (r *InMemoryCouponRepository) Claim(_ context.Context, couponID, userID uuid.UUID, now time.Time) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon, ok := r.coupons[couponID]
	if !ok {
		return nil, ErrNotFound
	}

	key := userCouponKey{userID: userID, couponID: couponID}
	if _, exists := r.userCoupons[key]; exists {
		return nil, ErrDuplicate
	}

	if coupon.IsExpired(now) || coupon.Status == domain.CouponStatusExpired {
		return nil, domain.ErrCouponExpired
	}
	if coupon.Status != domain.CouponStatusAvailable {
		return nil, domain.ErrCouponUsed
	}

	if err := coupon.TransitionTo(domain.CouponStatusClaimed); err != nil {
		return nil, err
	}
	claimedBy := userID
	claimedAt := now
	coupon.ClaimedBy = &claimedBy
	coupon.ClaimedAt = &claimedAt

	r.userCoupons[key] = &domain.UserCoupon{
		ID:        uuid.New(),
		UserID:    userID,
		CouponID:  couponID,
		Status:    "claimed",
		ClaimedAt: now,
	}

	copied := *coupon
	return &copied, nil
}

// getLocked возвращает купон без копирования; вызывающий обязан держать r.mu.
func (r *InMemoryCouponRepository) getLocked(id uuid.UUID) (*domain.Coupon, bool) {
	coupon, ok := r.coupons[id]
	return coupon, ok
}

// recordUsageLocked помечает запись user_coupons использованной;
// вызывающий обязан держать r.mu.
func (r *InMemoryCouponRepository) recordUsageLocked(userID, couponID uuid.UUID, now time.Time) {
	key := userCouponKey{userID: userID, couponID: couponID}
	if uc, exists := r.userCoupons[key]; exists {
		uc.Status = "used"
		usedAt := now
		uc.UsedAt = &usedAt
		return
	}
	usedAt := now
	r.userCoupons[key] = &domain.UserCoupon{
		ID:        uuid.New(),
		UserID:    userID,
		CouponID:  couponID,
		Status:    "used",
		ClaimedAt: now,
		UsedAt:    &usedAt,
	}
}
