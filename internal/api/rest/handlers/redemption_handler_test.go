package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/AdCoupon-microservice/internal/api/rest/middleware"
	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/internal/kafka"
	"github.com/Dhoini/AdCoupon-microservice/internal/metrics"
	"github.com/Dhoini/AdCoupon-microservice/internal/repository"
	"github.com/Dhoini/AdCoupon-microservice/internal/service"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

type handlerEnv struct {
	router     *gin.Engine
	sub        *domain.Subscription
	couponRepo *repository.InMemoryCouponRepository
	userID     uuid.UUID
}

func newHandlerEnv(t *testing.T, planAmount, cashPaid string) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	couponRepo := repository.NewInMemoryCouponRepository()
	subRepo := repository.NewInMemorySubscriptionRepository(couponRepo)
	log := logger.NewNop()
	m := metrics.NewRedemptionMetrics(prometheus.NewRegistry(), log)

	redemptionSvc := service.NewRedemptionService(
		subRepo, couponRepo, kafka.NoOpProducer{}, m, domain.DefaultMultiplierConfig(), log)

	now := time.Now().UTC()
	sub, err := domain.NewSubscription(uuid.New(),
		decimal.RequireFromString(planAmount), decimal.RequireFromString(cashPaid),
		now.AddDate(0, 1, 0), now)
	require.NoError(t, err)
	require.NoError(t, subRepo.Create(context.Background(), sub))

	userID := uuid.New()

	r := gin.New()
	// Подменяем auth middleware: кладем пользователя в контекст напрямую
	r.Use(func(c *gin.Context) {
		c.Set(string(middleware.ContextUserIDKey), userID.String())
		c.Next()
	})

	redemptionHandler := NewRedemptionHandler(redemptionSvc, log)
	couponHandler := NewCouponHandler(redemptionSvc, log)
	r.POST("/redemptions", redemptionHandler.Redeem)
	r.POST("/redemptions/check", redemptionHandler.Check)
	r.POST("/coupons/:id/claim", couponHandler.ClaimCoupon)

	return &handlerEnv{
		router:     r,
		sub:        sub,
		couponRepo: couponRepo,
		userID:     userID,
	}
}

func (e *handlerEnv) addCoupon(t *testing.T, faceValue, minSpend string, expiresAt time.Time) *domain.Coupon {
	t.Helper()
	coupon := domain.Coupon{
		ID:             uuid.New(),
		SubscriptionID: e.sub.ID,
		RestaurantID:   e.sub.RestaurantID,
		DiscountType:   domain.DiscountTypeFixed,
		DiscountValue:  decimal.RequireFromString(faceValue),
		MinSpend:       decimal.RequireFromString(minSpend),
		Status:         domain.CouponStatusAvailable,
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, e.couponRepo.BulkCreate(context.Background(), []domain.Coupon{coupon}))
	return &coupon
}

func (e *handlerEnv) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRedeemEndpoint_Success(t *testing.T) {
	env := newHandlerEnv(t, "1000", "0")
	coupon := env.addCoupon(t, "100", "300", time.Now().UTC().Add(time.Hour))

	w := env.postJSON(t, "/redemptions", gin.H{
		"coupon_id":    coupon.ID.String(),
		"spend_amount": "450",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "100", resp["redeemed_amount"])
	assert.Equal(t, "900", resp["remaining_budget"])
}

func TestRedeemEndpoint_BudgetExhausted(t *testing.T) {
	env := newHandlerEnv(t, "50", "0")
	coupon := env.addCoupon(t, "100", "100", time.Now().UTC().Add(time.Hour))

	w := env.postJSON(t, "/redemptions", gin.H{
		"coupon_id":    coupon.ID.String(),
		"spend_amount": "200",
	})

	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.ReasonBudgetExhausted), resp["reason"])
	assert.Equal(t, "50", resp["remaining_budget"])
}

func TestRedeemEndpoint_ExpiredCouponGone(t *testing.T) {
	env := newHandlerEnv(t, "1000", "0")
	coupon := env.addCoupon(t, "100", "100", time.Now().UTC().Add(-time.Minute))

	w := env.postJSON(t, "/redemptions", gin.H{
		"coupon_id":    coupon.ID.String(),
		"spend_amount": "200",
	})

	require.Equal(t, http.StatusGone, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.ReasonCouponExpired), resp["reason"])
}

func TestRedeemEndpoint_UsedCouponConflict(t *testing.T) {
	env := newHandlerEnv(t, "1000", "0")
	coupon := env.addCoupon(t, "100", "100", time.Now().UTC().Add(time.Hour))

	first := env.postJSON(t, "/redemptions", gin.H{
		"coupon_id":    coupon.ID.String(),
		"spend_amount": "200",
	})
	require.Equal(t, http.StatusOK, first.Code)

	second := env.postJSON(t, "/redemptions", gin.H{
		"coupon_id":    coupon.ID.String(),
		"spend_amount": "200",
	})
	require.Equal(t, http.StatusConflict, second.Code, second.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.ReasonCouponUsed), resp["reason"])
}

func TestRedeemEndpoint_InvalidBody(t *testing.T) {
	env := newHandlerEnv(t, "1000", "0")

	w := env.postJSON(t, "/redemptions", gin.H{"coupon_id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRedeemEndpoint_SpendBelowMinimum(t *testing.T) {
	env := newHandlerEnv(t, "1000", "0")
	coupon := env.addCoupon(t, "100", "300", time.Now().UTC().Add(time.Hour))

	w := env.postJSON(t, "/redemptions", gin.H{
		"coupon_id":    coupon.ID.String(),
		"spend_amount": "100",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestCheckEndpoint_ReportsDenyWithoutMutation(t *testing.T) {
	env := newHandlerEnv(t, "50", "0")
	coupon := env.addCoupon(t, "100", "100", time.Now().UTC().Add(time.Hour))

	w := env.postJSON(t, "/redemptions/check", gin.H{
		"coupon_id":    coupon.ID.String(),
		"spend_amount": "200",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var check domain.RedemptionCheck
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.False(t, check.CanRedeem)
	assert.Equal(t, domain.ReasonBudgetExhausted, check.Reason)

	stored, err := env.couponRepo.GetByID(context.Background(), coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CouponStatusAvailable, stored.Status)
}

func TestClaimEndpoint_SecondClaimConflict(t *testing.T) {
	env := newHandlerEnv(t, "1000", "0")
	coupon := env.addCoupon(t, "100", "100", time.Now().UTC().Add(time.Hour))

	first := env.postJSON(t, "/coupons/"+coupon.ID.String()+"/claim", gin.H{})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	// Тот же пользователь повторно
	second := env.postJSON(t, "/coupons/"+coupon.ID.String()+"/claim", gin.H{})
	assert.Equal(t, http.StatusConflict, second.Code, second.Body.String())
}

func TestClaimEndpoint_UnknownCoupon(t *testing.T) {
	env := newHandlerEnv(t, "1000", "0")

	w := env.postJSON(t, "/coupons/"+uuid.NewString()+"/claim", gin.H{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
