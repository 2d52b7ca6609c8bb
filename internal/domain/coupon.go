package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType тип скидки купона
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// CouponStatus статус купона
type CouponStatus string

const (
	CouponStatusAvailable CouponStatus = "available"
	CouponStatusClaimed   CouponStatus = "claimed"
	CouponStatusRedeemed  CouponStatus = "redeemed"
	CouponStatusExpired   CouponStatus = "expired"
)

// couponTransitions таблица допустимых переходов статуса купона.
// Переходы только вперед; redeemed и expired терминальны.
var couponTransitions = map[CouponStatus][]CouponStatus{
	CouponStatusAvailable: {CouponStatusClaimed, CouponStatusRedeemed, CouponStatusExpired},
	CouponStatusClaimed:   {CouponStatusRedeemed, CouponStatusExpired},
	CouponStatusRedeemed:  {},
	CouponStatusExpired:   {},
}

// CanTransitionTo проверяет допустимость перехода статуса купона.
func (s CouponStatus) CanTransitionTo(next CouponStatus) bool {
	for _, allowed := range couponTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo переводит купон в следующий статус по таблице переходов.
// Единственная точка смены статуса: писатели не присваивают Status напрямую,
// поэтому недопустимый переход (например, redeemed -> available) невозможен.
func (c *Coupon) TransitionTo(next CouponStatus) error {
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.Status, next)
	}
	c.Status = next
	return nil
}

// Coupon представляет рекламный купон, выпущенный в рамках подписки.
// Купон принадлежит ровно одной подписке и никогда не переназначается.
// Купоны не удаляются физически: истечение это переход статуса, история сохраняется.
type Coupon struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id" db:"subscription_id"`
	RestaurantID   uuid.UUID       `json:"restaurant_id" db:"restaurant_id"`
	DiscountType   DiscountType    `json:"discount_type" db:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value" db:"discount_value"`
	MinSpend       decimal.Decimal `json:"min_spend" db:"min_spend"`
	// MaxDiscount потолок для процентных купонов, nil если не задан
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty" db:"max_discount"`
	Status      CouponStatus     `json:"status" db:"status"`
	ClaimedBy   *uuid.UUID       `json:"claimed_by,omitempty" db:"claimed_by"`
	ClaimedAt   *time.Time       `json:"claimed_at,omitempty" db:"claimed_at"`
	// RedeemedAmount фактическая сумма, списанная с бюджета подписки.
	// Для процентных купонов вычисляется в момент погашения, не выпуска.
	RedeemedAmount *decimal.Decimal `json:"redeemed_amount,omitempty" db:"redeemed_amount"`
	RedeemedAt     *time.Time       `json:"redeemed_at,omitempty" db:"redeemed_at"`
	ExpiresAt      time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// IsExpired проверяет истечение срока действия на момент now.
// Истечение ленивое: статус в хранилище может отставать от реального времени.
func (c *Coupon) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// RedemptionAmount вычисляет сумму погашения для указанной суммы чека.
// Для fixed это номинал купона. Для percentage это discount_value процентов
// от spend, округленные до 2 знаков (round half away from zero) и ограниченные
// max_discount. Чек меньше min_spend отклоняется как некорректный запрос.
func (c *Coupon) RedemptionAmount(spend decimal.Decimal) (decimal.Decimal, error) {
	if spend.LessThan(c.MinSpend) {
		return decimal.Zero, fmt.Errorf("%w: spend %s below min spend %s",
			ErrInvalid, spend.StringFixed(2), c.MinSpend.StringFixed(2))
	}

	switch c.DiscountType {
	case DiscountTypeFixed:
		return c.DiscountValue, nil
	case DiscountTypePercentage:
		amount := spend.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
		if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
			amount = *c.MaxDiscount
		}
		return amount, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown discount type %q", ErrInvalid, c.DiscountType)
	}
}

// UserCoupon фиксирует факт получения купона пользователем.
// На пару (user, coupon) допускается не более одной записи.
type UserCoupon struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	CouponID  uuid.UUID  `json:"coupon_id" db:"coupon_id"`
	Status    string     `json:"status" db:"status"`
	ClaimedAt time.Time  `json:"claimed_at" db:"claimed_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
}

// CouponStats агрегированная статистика купонов подписки для дашборда владельца.
type CouponStats struct {
	TotalCoupons        int             `json:"total_coupons"`
	AvailableCoupons    int             `json:"available_coupons"`
	ClaimedCoupons      int             `json:"claimed_coupons"`
	RedeemedCoupons     int             `json:"redeemed_coupons"`
	ExpiredCoupons      int             `json:"expired_coupons"`
	ClaimRate           float64         `json:"claim_rate"`
	RedemptionRate      float64         `json:"redemption_rate"`
	TotalRedeemedAmount decimal.Decimal `json:"total_redeemed_amount"`
}

// BuildCouponStats считает статистику по списку купонов подписки.
func BuildCouponStats(coupons []Coupon) *CouponStats {
	stats := &CouponStats{TotalRedeemedAmount: decimal.Zero}
	for i := range coupons {
		c := &coupons[i]
		stats.TotalCoupons++
		switch c.Status {
		case CouponStatusAvailable:
			stats.AvailableCoupons++
		case CouponStatusClaimed:
			stats.ClaimedCoupons++
		case CouponStatusRedeemed:
			stats.RedeemedCoupons++
		case CouponStatusExpired:
			stats.ExpiredCoupons++
		}
		if c.RedeemedAmount != nil {
			stats.TotalRedeemedAmount = stats.TotalRedeemedAmount.Add(*c.RedeemedAmount)
		}
	}

	if stats.TotalCoupons > 0 {
		stats.ClaimRate = float64(stats.ClaimedCoupons+stats.RedeemedCoupons) / float64(stats.TotalCoupons) * 100
	}
	if claimedOrRedeemed := stats.ClaimedCoupons + stats.RedeemedCoupons; claimedOrRedeemed > 0 {
		stats.RedemptionRate = float64(stats.RedeemedCoupons) / float64(claimedOrRedeemed) * 100
	}
	return stats
}
