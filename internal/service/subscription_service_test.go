package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/internal/metrics"
	"github.com/Dhoini/AdCoupon-microservice/internal/repository"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

func newSubscriptionService(t *testing.T) (SubscriptionService, *repository.InMemorySubscriptionRepository, *recordingProducer) {
	t.Helper()

	couponRepo := repository.NewInMemoryCouponRepository()
	subRepo := repository.NewInMemorySubscriptionRepository(couponRepo)
	producer := &recordingProducer{}
	log := logger.NewNop()
	m := metrics.NewRedemptionMetrics(prometheus.NewRegistry(), log)

	svc := NewSubscriptionService(subRepo, couponRepo, producer, m, domain.DefaultMultiplierConfig(), log)
	return svc, subRepo, producer
}

func TestCreateSubscription_DerivesFields(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)

	sub, err := svc.Create(context.Background(), CreateSubscriptionParams{
		RestaurantID: uuid.New(),
		PlanAmount:   dec("1000"),
		CashPaid:     dec("400"),
		DurationDays: 30,
	})
	require.NoError(t, err)

	assert.True(t, sub.CouponBudget.Equal(dec("600")))
	assert.Equal(t, domain.SubscriptionTypeHybrid, sub.SubscriptionType)
	assert.True(t, sub.TrafficMultiplier.Equal(dec("0.8")))
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
}

func TestCreateSubscription_SecondActiveRejected(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)
	restaurantID := uuid.New()

	params := CreateSubscriptionParams{
		RestaurantID: restaurantID,
		PlanAmount:   dec("1000"),
		CashPaid:     dec("0"),
		DurationDays: 30,
	}

	_, err := svc.Create(context.Background(), params)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), params)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestCreateSubscription_InvalidInput(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)

	_, err := svc.Create(context.Background(), CreateSubscriptionParams{
		RestaurantID: uuid.New(),
		PlanAmount:   dec("500"),
		CashPaid:     dec("600"),
		DurationDays: 30,
	})
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = svc.Create(context.Background(), CreateSubscriptionParams{
		RestaurantID: uuid.New(),
		PlanAmount:   dec("500"),
		CashPaid:     dec("100"),
		DurationDays: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestCancelSubscription_Idempotent(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)

	sub, err := svc.Create(context.Background(), CreateSubscriptionParams{
		RestaurantID: uuid.New(),
		PlanAmount:   dec("1000"),
		CashPaid:     dec("0"),
		DurationDays: 30,
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	// Повторная отмена не ошибка и не меняет состояние
	again, err := svc.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, again.Status)
	assert.Equal(t, cancelled.CancelledAt.Unix(), again.CancelledAt.Unix())
}

func TestBudgetUsage_WithMilestone(t *testing.T) {
	svc, subRepo, _ := newSubscriptionService(t)

	now := time.Now().UTC()
	sub, err := domain.NewSubscription(uuid.New(), dec("1000"), decimal.Zero, now.AddDate(0, 1, 0), now)
	require.NoError(t, err)
	sub.TotalRedeemedAmount = dec("400")
	require.NoError(t, subRepo.Create(context.Background(), sub))

	usage, err := svc.BudgetUsage(context.Background(), sub.ID)
	require.NoError(t, err)

	assert.True(t, usage.RemainingBudget.Equal(dec("600")))
	assert.InDelta(t, 40.0, usage.BudgetUsagePercent, 0.001)
	require.NotNil(t, usage.NextMilestone)
	assert.True(t, usage.NextMilestone.Amount.Equal(dec("100")))
	assert.True(t, usage.NextMilestone.NewMultiplier.Equal(dec("0.85")))
}

func TestBudgetUsage_NoMilestoneWhenUnreachable(t *testing.T) {
	svc, subRepo, _ := newSubscriptionService(t)

	now := time.Now().UTC()
	sub, err := domain.NewSubscription(uuid.New(), dec("950"), decimal.Zero, now.AddDate(0, 1, 0), now)
	require.NoError(t, err)
	sub.TotalRedeemedAmount = dec("900")
	require.NoError(t, subRepo.Create(context.Background(), sub))

	// До рубежа 1000 нужно 100, остаток 50: рубеж не сообщается
	usage, err := svc.BudgetUsage(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Nil(t, usage.NextMilestone)
}

func TestGenerateCoupons_CreatesBatch(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)

	sub, err := svc.Create(context.Background(), CreateSubscriptionParams{
		RestaurantID: uuid.New(),
		PlanAmount:   dec("1000"),
		CashPaid:     dec("0"),
		DurationDays: 30,
	})
	require.NoError(t, err)

	coupons, err := svc.GenerateCoupons(context.Background(), GenerateCouponsParams{
		SubscriptionID: sub.ID,
		Config: domain.CouponConfig{
			CouponCount:           20,
			SingleCouponFaceValue: dec("100"),
			MinSpend:              dec("300"),
		},
		ValidityDays: 14,
	})
	require.NoError(t, err)
	require.Len(t, coupons, 20)

	for _, c := range coupons {
		assert.Equal(t, domain.CouponStatusAvailable, c.Status)
		assert.Equal(t, domain.DiscountTypeFixed, c.DiscountType)
		assert.Equal(t, sub.ID, c.SubscriptionID)
		assert.True(t, c.DiscountValue.Equal(dec("100")))
	}

	stats, err := svc.CouponStats(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.TotalCoupons)
	assert.Equal(t, 20, stats.AvailableCoupons)
}

func TestGenerateCoupons_RejectsOversizedConfig(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)

	sub, err := svc.Create(context.Background(), CreateSubscriptionParams{
		RestaurantID: uuid.New(),
		PlanAmount:   dec("1000"),
		CashPaid:     dec("0"),
		DurationDays: 30,
	})
	require.NoError(t, err)

	// Номинал 3000 при выпускаемом лимите 2000 * 1.1
	_, err = svc.GenerateCoupons(context.Background(), GenerateCouponsParams{
		SubscriptionID: sub.ID,
		Config: domain.CouponConfig{
			CouponCount:           30,
			SingleCouponFaceValue: dec("100"),
			MinSpend:              dec("300"),
		},
		ValidityDays: 14,
	})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestGenerateCoupons_RejectsCancelledSubscription(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)

	sub, err := svc.Create(context.Background(), CreateSubscriptionParams{
		RestaurantID: uuid.New(),
		PlanAmount:   dec("1000"),
		CashPaid:     dec("0"),
		DurationDays: 30,
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)

	_, err = svc.GenerateCoupons(context.Background(), GenerateCouponsParams{
		SubscriptionID: sub.ID,
		Config: domain.CouponConfig{
			CouponCount:           5,
			SingleCouponFaceValue: dec("100"),
			MinSpend:              dec("300"),
		},
		ValidityDays: 14,
	})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestGenerateCoupons_PercentageRequiresMaxDiscount(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)

	sub, err := svc.Create(context.Background(), CreateSubscriptionParams{
		RestaurantID: uuid.New(),
		PlanAmount:   dec("1000"),
		CashPaid:     dec("0"),
		DurationDays: 30,
	})
	require.NoError(t, err)

	_, err = svc.GenerateCoupons(context.Background(), GenerateCouponsParams{
		SubscriptionID: sub.ID,
		Config: domain.CouponConfig{
			CouponCount:           5,
			SingleCouponFaceValue: dec("15"),
			MinSpend:              dec("100"),
		},
		DiscountType: domain.DiscountTypePercentage,
		ValidityDays: 14,
	})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestAnalyzeBudget_Service(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)

	result, err := svc.AnalyzeBudget(dec("1000"), dec("400"))
	require.NoError(t, err)

	assert.True(t, result.Analysis.CouponBudget.Equal(dec("600")))
	assert.True(t, result.Analysis.IssuableFaceValue.Equal(dec("1200")))
	assert.NotEmpty(t, result.Plans)

	_, err = svc.AnalyzeBudget(dec("100"), dec("200"))
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestCreateAndCancel_PublishEvents(t *testing.T) {
	svc, _, producer := newSubscriptionService(t)

	sub, err := svc.Create(context.Background(), CreateSubscriptionParams{
		RestaurantID: uuid.New(),
		PlanAmount:   dec("1000"),
		CashPaid:     dec("0"),
		DurationDays: 30,
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		producer.mu.Lock()
		defer producer.mu.Unlock()
		return len(producer.subscriptionEvents) == 2
	}, time.Second, 10*time.Millisecond)
}
