package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
)

// CommitRedemptionParams параметры атомарного погашения купона.
type CommitRedemptionParams struct {
	SubscriptionID uuid.UUID
	CouponID       uuid.UUID
	// UserID пользователь, предъявивший купон; для available-купона без
	// предварительного получения запись user_coupons создается при погашении
	UserID uuid.UUID
	// Amount сумма списания с бюджета, вычисленная координатором заранее
	Amount decimal.Decimal
	Now    time.Time
	// Multiplier конфигурация пересчета множителя трафика
	Multiplier domain.MultiplierConfig
}

// RedemptionOutcome результат подтвержденного погашения.
type RedemptionOutcome struct {
	Subscription *domain.Subscription
	Coupon       *domain.Coupon
	// MultiplierChanged true, если погашение перевело множитель на новый шаг
	MultiplierChanged bool
}

// SubscriptionRepository определяет методы для работы с хранилищем подписок.
// CommitRedemption — единственный мутатор total_redeemed_amount; подписка
// служит точкой сериализации, купон меняется только в той же транзакции.
type SubscriptionRepository interface {
	// Create сохраняет новую подписку. Вторая активная подписка
	// того же ресторана отклоняется с ErrDuplicate.
	Create(ctx context.Context, sub *domain.Subscription) error

	// GetByID возвращает подписку по ее ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)

	// GetActiveByRestaurantID возвращает активную подписку ресторана.
	GetActiveByRestaurantID(ctx context.Context, restaurantID uuid.UUID) (*domain.Subscription, error)

	// Cancel переводит подписку в cancelled. Идемпотентно: повторная отмена
	// возвращает подписку как есть. Накопленные погашения не трогаются.
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Subscription, error)

	// CommitRedemption атомарно проверяет и фиксирует погашение: блокирует
	// строку подписки, перепроверяет валидатор по свежему состоянию,
	// инкрементирует total_redeemed_amount, пересчитывает множитель и
	// помечает купон погашенным. Отказ валидатора возвращается как
	// *domain.RedemptionError; никакое частичное изменение не сохраняется.
	CommitRedemption(ctx context.Context, params CommitRedemptionParams) (*RedemptionOutcome, error)
}
