package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedemptionAmount_Fixed(t *testing.T) {
	coupon := &Coupon{
		DiscountType:  DiscountTypeFixed,
		DiscountValue: dec("100"),
		MinSpend:      dec("300"),
	}

	amount, err := coupon.RedemptionAmount(dec("450"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("100")))
}

func TestRedemptionAmount_BelowMinSpend(t *testing.T) {
	coupon := &Coupon{
		DiscountType:  DiscountTypeFixed,
		DiscountValue: dec("100"),
		MinSpend:      dec("300"),
	}

	_, err := coupon.RedemptionAmount(dec("299.99"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRedemptionAmount_PercentageRounding(t *testing.T) {
	maxDiscount := dec("200")
	coupon := &Coupon{
		DiscountType:  DiscountTypePercentage,
		DiscountValue: dec("15"),
		MinSpend:      dec("100"),
		MaxDiscount:   &maxDiscount,
	}

	// 333.33 * 15% = 49.9995 -> 50.00
	amount, err := coupon.RedemptionAmount(dec("333.33"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("50.00")), "got %s", amount)
}

func TestRedemptionAmount_PercentageCappedByMaxDiscount(t *testing.T) {
	maxDiscount := dec("50")
	coupon := &Coupon{
		DiscountType:  DiscountTypePercentage,
		DiscountValue: dec("20"),
		MinSpend:      dec("100"),
		MaxDiscount:   &maxDiscount,
	}

	// 20% от 1000 = 200, но потолок 50
	amount, err := coupon.RedemptionAmount(dec("1000"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("50")))
}

func TestRedemptionAmount_PercentageWithoutCap(t *testing.T) {
	coupon := &Coupon{
		DiscountType:  DiscountTypePercentage,
		DiscountValue: dec("10"),
		MinSpend:      dec("0"),
	}

	amount, err := coupon.RedemptionAmount(dec("250"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("25")))
}

func TestCouponStatusTransitions(t *testing.T) {
	assert.True(t, CouponStatusAvailable.CanTransitionTo(CouponStatusClaimed))
	assert.True(t, CouponStatusAvailable.CanTransitionTo(CouponStatusRedeemed))
	assert.True(t, CouponStatusAvailable.CanTransitionTo(CouponStatusExpired))
	assert.True(t, CouponStatusClaimed.CanTransitionTo(CouponStatusRedeemed))

	// redeemed и expired терминальны
	assert.False(t, CouponStatusRedeemed.CanTransitionTo(CouponStatusAvailable))
	assert.False(t, CouponStatusRedeemed.CanTransitionTo(CouponStatusExpired))
	assert.False(t, CouponStatusExpired.CanTransitionTo(CouponStatusAvailable))
	assert.False(t, CouponStatusClaimed.CanTransitionTo(CouponStatusAvailable))
}

func TestCouponTransitionTo(t *testing.T) {
	coupon := &Coupon{Status: CouponStatusAvailable}

	require.NoError(t, coupon.TransitionTo(CouponStatusClaimed))
	require.NoError(t, coupon.TransitionTo(CouponStatusRedeemed))

	// Терминальный статус: переход отклоняется, статус не меняется
	err := coupon.TransitionTo(CouponStatusAvailable)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, CouponStatusRedeemed, coupon.Status)
}

func TestSubscriptionStatusTransitions(t *testing.T) {
	assert.True(t, SubscriptionStatusActive.CanTransitionTo(SubscriptionStatusCancelled))
	assert.True(t, SubscriptionStatusActive.CanTransitionTo(SubscriptionStatusExpired))
	assert.False(t, SubscriptionStatusCancelled.CanTransitionTo(SubscriptionStatusActive))
	assert.False(t, SubscriptionStatusExpired.CanTransitionTo(SubscriptionStatusActive))
}

func TestNewSubscription_DerivedFields(t *testing.T) {
	now := time.Now().UTC()
	sub, err := NewSubscription(uuid.New(), dec("1000"), dec("400"), now.AddDate(0, 1, 0), now)
	require.NoError(t, err)

	assert.True(t, sub.CouponBudget.Equal(dec("600")))
	assert.True(t, sub.CouponRatio.Equal(dec("60")))
	assert.Equal(t, SubscriptionTypeHybrid, sub.SubscriptionType)
	assert.True(t, sub.TrafficMultiplier.Equal(dec("0.8")))
	assert.Equal(t, SubscriptionStatusActive, sub.Status)
}

func TestNewSubscription_CashOnly(t *testing.T) {
	now := time.Now().UTC()
	sub, err := NewSubscription(uuid.New(), dec("1000"), dec("1000"), now.AddDate(0, 1, 0), now)
	require.NoError(t, err)

	assert.True(t, sub.CouponBudget.IsZero())
	assert.Equal(t, SubscriptionTypeCashOnly, sub.SubscriptionType)
	assert.Equal(t, float64(0), sub.BudgetUsagePercent())
}

func TestNewSubscription_CashAbovePlanRejected(t *testing.T) {
	now := time.Now().UTC()
	_, err := NewSubscription(uuid.New(), dec("500"), dec("600"), now.AddDate(0, 1, 0), now)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestBuildCouponStats(t *testing.T) {
	redeemed := dec("80")
	coupons := []Coupon{
		{Status: CouponStatusAvailable},
		{Status: CouponStatusAvailable},
		{Status: CouponStatusClaimed},
		{Status: CouponStatusRedeemed, RedeemedAmount: &redeemed},
		{Status: CouponStatusExpired},
	}

	stats := BuildCouponStats(coupons)

	assert.Equal(t, 5, stats.TotalCoupons)
	assert.Equal(t, 2, stats.AvailableCoupons)
	assert.Equal(t, 1, stats.ClaimedCoupons)
	assert.Equal(t, 1, stats.RedeemedCoupons)
	assert.Equal(t, 1, stats.ExpiredCoupons)
	assert.InDelta(t, 40.0, stats.ClaimRate, 0.001)
	assert.InDelta(t, 50.0, stats.RedemptionRate, 0.001)
	assert.True(t, stats.TotalRedeemedAmount.Equal(dec("80")))
}

func TestBuildCouponStats_Empty(t *testing.T) {
	stats := BuildCouponStats(nil)
	assert.Equal(t, 0, stats.TotalCoupons)
	assert.Equal(t, float64(0), stats.ClaimRate)
	assert.Equal(t, float64(0), stats.RedemptionRate)
}
