package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DenyReason причина отказа в погашении купона
type DenyReason string

const (
	ReasonBudgetExhausted DenyReason = "budget_exhausted"
	ReasonCouponExpired   DenyReason = "coupon_expired"
	ReasonCouponUsed      DenyReason = "coupon_used"
	ReasonInvalid         DenyReason = "invalid"
)

// RedemptionCheck результат проверки возможности погашения.
// Остаток бюджета и процент использования возвращаются и при отказе,
// чтобы вызывающая сторона могла показать их без повторного запроса.
type RedemptionCheck struct {
	CanRedeem          bool            `json:"can_redeem"`
	Reason             DenyReason      `json:"reason,omitempty"`
	RemainingBudget    decimal.Decimal `json:"remaining_budget"`
	BudgetUsagePercent float64         `json:"budget_usage_percent"`
}

// CanRedeem чистая функция-валидатор погашения. Порядок проверок фиксирован,
// выигрывает первая сработавшая причина:
//  1. подписка неактивна или ее срок истек -> budget_exhausted (для
//     вызывающего это эквивалент исчерпания: новых погашений не будет;
//     истечение подписки ленивое, по now, как у купонов);
//  2. остатка бюджета меньше запрошенной суммы -> budget_exhausted;
//  3. статус купона вне {available, claimed} -> coupon_used;
//  4. срок купона истек -> coupon_expired (ленивая проверка по now,
//     даже если статус в хранилище еще не обновлен).
//
// Исчерпание бюджета сообщается раньше проблем купона: на сигнал о бюджете
// оператор может отреагировать, на единичный протухший купон нет.
func CanRedeem(sub *Subscription, coupon *Coupon, amount decimal.Decimal, now time.Time) RedemptionCheck {
	remaining := sub.RemainingBudget()
	usagePercent := sub.BudgetUsagePercent()

	deny := func(reason DenyReason) RedemptionCheck {
		return RedemptionCheck{
			CanRedeem:          false,
			Reason:             reason,
			RemainingBudget:    remaining,
			BudgetUsagePercent: usagePercent,
		}
	}

	if !sub.IsActive() || sub.IsExpired(now) {
		return deny(ReasonBudgetExhausted)
	}
	if remaining.LessThan(amount) {
		return deny(ReasonBudgetExhausted)
	}
	if coupon.Status != CouponStatusAvailable && coupon.Status != CouponStatusClaimed {
		return deny(ReasonCouponUsed)
	}
	if coupon.IsExpired(now) {
		return deny(ReasonCouponExpired)
	}

	return RedemptionCheck{
		CanRedeem:          true,
		RemainingBudget:    remaining,
		BudgetUsagePercent: usagePercent,
	}
}
