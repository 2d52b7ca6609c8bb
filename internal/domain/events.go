package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetEvent событие изменения бюджета после подтвержденного погашения.
// Публикуется в Kafka для дашбордов и нотификаций; пороги предупреждений
// (60/80/100%) вычисляет потребитель, сравнивая usage до и после.
type BudgetEvent struct {
	SubscriptionID      uuid.UUID       `json:"subscription_id"`
	RestaurantID        uuid.UUID       `json:"restaurant_id"`
	CouponID            uuid.UUID       `json:"coupon_id"`
	RedeemedAmount      decimal.Decimal `json:"redeemed_amount"`
	TotalRedeemedAmount decimal.Decimal `json:"total_redeemed_amount"`
	RemainingBudget     decimal.Decimal `json:"remaining_budget"`
	BudgetUsagePercent  float64         `json:"budget_usage_percent"`
	TrafficMultiplier   decimal.Decimal `json:"traffic_multiplier"`
	OccurredAt          time.Time       `json:"occurred_at"`
}

// SubscriptionEvent событие жизненного цикла подписки (создание, отмена).
type SubscriptionEvent struct {
	SubscriptionID uuid.UUID          `json:"subscription_id"`
	RestaurantID   uuid.UUID          `json:"restaurant_id"`
	Status         SubscriptionStatus `json:"status"`
	CouponBudget   decimal.Decimal    `json:"coupon_budget"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
