package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeSubscription(t *testing.T, budget string) *Subscription {
	t.Helper()
	now := time.Now().UTC()
	sub, err := NewSubscription(uuid.New(), dec(budget), decimal.Zero, now.AddDate(0, 1, 0), now)
	require.NoError(t, err)
	return sub
}

func availableCoupon(sub *Subscription, expiresAt time.Time) *Coupon {
	return &Coupon{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		RestaurantID:   sub.RestaurantID,
		DiscountType:   DiscountTypeFixed,
		DiscountValue:  dec("100"),
		MinSpend:       dec("300"),
		Status:         CouponStatusAvailable,
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestCanRedeem_Allows(t *testing.T) {
	now := time.Now().UTC()
	sub := activeSubscription(t, "1000")
	coupon := availableCoupon(sub, now.Add(time.Hour))

	check := CanRedeem(sub, coupon, dec("100"), now)

	assert.True(t, check.CanRedeem)
	assert.Empty(t, check.Reason)
	assert.True(t, check.RemainingBudget.Equal(dec("1000")))
}

func TestCanRedeem_AllowsClaimedCoupon(t *testing.T) {
	now := time.Now().UTC()
	sub := activeSubscription(t, "1000")
	coupon := availableCoupon(sub, now.Add(time.Hour))
	coupon.Status = CouponStatusClaimed

	check := CanRedeem(sub, coupon, dec("100"), now)
	assert.True(t, check.CanRedeem)
}

func TestCanRedeem_InactiveSubscriptionWinsOverEverything(t *testing.T) {
	now := time.Now().UTC()
	sub := activeSubscription(t, "1000")
	sub.Status = SubscriptionStatusCancelled

	// Купон одновременно погашен и истек, но причина отказа все равно
	// budget_exhausted: подписка неактивна
	coupon := availableCoupon(sub, now.Add(-time.Hour))
	coupon.Status = CouponStatusRedeemed

	check := CanRedeem(sub, coupon, dec("100"), now)

	assert.False(t, check.CanRedeem)
	assert.Equal(t, ReasonBudgetExhausted, check.Reason)
}

func TestCanRedeem_LazilyExpiredSubscription(t *testing.T) {
	now := time.Now().UTC()
	sub := activeSubscription(t, "1000")

	// Статус в хранилище еще active, но срок подписки прошел:
	// ленивое истечение, отказ как при исчерпании бюджета
	sub.ExpiresAt = now.Add(-time.Hour)
	coupon := availableCoupon(sub, now.Add(time.Hour))

	check := CanRedeem(sub, coupon, dec("100"), now)

	assert.False(t, check.CanRedeem)
	assert.Equal(t, ReasonBudgetExhausted, check.Reason)
}

func TestCanRedeem_BudgetBeforeCouponProblems(t *testing.T) {
	now := time.Now().UTC()
	sub := activeSubscription(t, "1000")
	sub.TotalRedeemedAmount = dec("950")

	// Остатка 50 не хватает на 100; купон при этом погашен и истек,
	// но бюджет проверяется раньше
	coupon := availableCoupon(sub, now.Add(-time.Hour))
	coupon.Status = CouponStatusRedeemed

	check := CanRedeem(sub, coupon, dec("100"), now)

	assert.False(t, check.CanRedeem)
	assert.Equal(t, ReasonBudgetExhausted, check.Reason)
	assert.True(t, check.RemainingBudget.Equal(dec("50")))
}

func TestCanRedeem_ExactRemainingAllowed(t *testing.T) {
	now := time.Now().UTC()
	sub := activeSubscription(t, "1000")
	sub.TotalRedeemedAmount = dec("900")
	coupon := availableCoupon(sub, now.Add(time.Hour))

	// Остаток ровно равен сумме: погашение разрешено
	check := CanRedeem(sub, coupon, dec("100"), now)
	assert.True(t, check.CanRedeem)
}

func TestCanRedeem_UsedBeforeExpired(t *testing.T) {
	now := time.Now().UTC()
	sub := activeSubscription(t, "1000")

	// Купон и погашен, и истек: статус проверяется раньше срока
	coupon := availableCoupon(sub, now.Add(-time.Hour))
	coupon.Status = CouponStatusRedeemed

	check := CanRedeem(sub, coupon, dec("100"), now)

	assert.False(t, check.CanRedeem)
	assert.Equal(t, ReasonCouponUsed, check.Reason)
}

func TestCanRedeem_ExpiredByClockNotStatus(t *testing.T) {
	now := time.Now().UTC()
	sub := activeSubscription(t, "1000")

	// Статус в хранилище еще available, но срок прошел: ленивое истечение
	coupon := availableCoupon(sub, now.Add(-time.Minute))

	check := CanRedeem(sub, coupon, dec("100"), now)

	assert.False(t, check.CanRedeem)
	assert.Equal(t, ReasonCouponExpired, check.Reason)
}

func TestRedemptionError_UnwrapsToSentinel(t *testing.T) {
	now := time.Now().UTC()
	sub := activeSubscription(t, "50")
	coupon := availableCoupon(sub, now.Add(time.Hour))

	check := CanRedeem(sub, coupon, dec("100"), now)
	require.False(t, check.CanRedeem)

	err := NewRedemptionError(check)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Contains(t, err.Error(), "budget_exhausted")
}
