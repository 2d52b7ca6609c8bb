package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus статус рекламной подписки
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// SubscriptionType тип подписки по способу оплаты
type SubscriptionType string

const (
	SubscriptionTypeCashOnly SubscriptionType = "cash_only"
	SubscriptionTypeHybrid   SubscriptionType = "hybrid"
)

// subscriptionTransitions единая таблица допустимых переходов статуса.
// Переходы только вперед: отмененная или истекшая подписка не возвращается в active.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive:    {SubscriptionStatusCancelled, SubscriptionStatusExpired},
	SubscriptionStatusCancelled: {},
	SubscriptionStatusExpired:   {},
}

// CanTransitionTo проверяет допустимость перехода статуса по таблице переходов.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Subscription представляет рекламную подписку ресторана.
// На ресторан допускается не более одной активной подписки.
// Все денежные поля хранятся как точные decimal, не float.
type Subscription struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	RestaurantID uuid.UUID       `json:"restaurant_id" db:"restaurant_id"`
	PlanAmount   decimal.Decimal `json:"plan_amount" db:"plan_amount"`
	CashPaid     decimal.Decimal `json:"cash_paid" db:"cash_paid"`
	// CouponBudget = PlanAmount - CashPaid, фиксируется при создании
	CouponBudget decimal.Decimal `json:"coupon_budget" db:"coupon_budget"`
	// CouponRatio доля купонного бюджета в плане, в процентах
	CouponRatio decimal.Decimal `json:"coupon_ratio" db:"coupon_ratio"`
	// TotalRedeemedAmount сумма всех подтвержденных погашений.
	// Инвариант: TotalRedeemedAmount <= CouponBudget при любой конкуренции.
	TotalRedeemedAmount decimal.Decimal    `json:"total_redeemed_amount" db:"total_redeemed_amount"`
	TrafficMultiplier   decimal.Decimal    `json:"traffic_multiplier" db:"traffic_multiplier"`
	Status              SubscriptionStatus `json:"status" db:"status"`
	SubscriptionType    SubscriptionType   `json:"subscription_type" db:"subscription_type"`
	StartedAt           time.Time          `json:"started_at" db:"started_at"`
	ExpiresAt           time.Time          `json:"expires_at" db:"expires_at"`
	CancelledAt         *time.Time         `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at" db:"updated_at"`
}

// NewSubscription создает подписку с производными полями.
// cashPaid не может превышать planAmount, оба неотрицательны.
func NewSubscription(restaurantID uuid.UUID, planAmount, cashPaid decimal.Decimal, expiresAt time.Time, now time.Time) (*Subscription, error) {
	if planAmount.IsNegative() || cashPaid.IsNegative() {
		return nil, ErrInvalid
	}
	if cashPaid.GreaterThan(planAmount) {
		return nil, ErrInvalid
	}

	couponBudget := planAmount.Sub(cashPaid)

	couponRatio := decimal.Zero
	if planAmount.IsPositive() {
		couponRatio = couponBudget.Div(planAmount).Mul(decimal.NewFromInt(100)).Round(2)
	}

	subscriptionType := SubscriptionTypeCashOnly
	if couponBudget.IsPositive() {
		subscriptionType = SubscriptionTypeHybrid
	}

	return &Subscription{
		ID:                  uuid.New(),
		RestaurantID:        restaurantID,
		PlanAmount:          planAmount,
		CashPaid:            cashPaid,
		CouponBudget:        couponBudget,
		CouponRatio:         couponRatio,
		TotalRedeemedAmount: decimal.Zero,
		TrafficMultiplier:   DefaultMultiplierConfig().Multiplier(decimal.Zero),
		Status:              SubscriptionStatusActive,
		SubscriptionType:    subscriptionType,
		StartedAt:           now,
		ExpiresAt:           expiresAt,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// RemainingBudget возвращает остаток купонного бюджета, никогда не отрицательный.
func (s *Subscription) RemainingBudget() decimal.Decimal {
	remaining := s.CouponBudget.Sub(s.TotalRedeemedAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// BudgetUsagePercent возвращает процент использования бюджета, 0 при нулевом бюджете.
func (s *Subscription) BudgetUsagePercent() float64 {
	if !s.CouponBudget.IsPositive() {
		return 0
	}
	percent, _ := s.TotalRedeemedAmount.Div(s.CouponBudget).Mul(decimal.NewFromInt(100)).Float64()
	return percent
}

// IsActive проверяет, что подписка активна и не отменена.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IsExpired проверяет истечение срока подписки на момент now.
// Истечение ленивое, как у купонов: статус в хранилище может отставать,
// фоновой задачи перевода в expired нет.
func (s *Subscription) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
