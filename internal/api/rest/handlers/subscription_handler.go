package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/internal/service"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

// CreateSubscriptionRequest тело запроса на создание рекламной подписки.
// Денежные суммы передаются строками и разбираются в точный decimal.
type CreateSubscriptionRequest struct {
	RestaurantID string `json:"restaurant_id" binding:"required,uuid"`
	PlanAmount   string `json:"plan_amount" binding:"required,money"`
	CashPaid     string `json:"cash_paid" binding:"required,money"`
	DurationDays int    `json:"duration_days" binding:"required,gt=0"`
}

// GenerateCouponsRequest тело запроса на выпуск пакета купонов.
type GenerateCouponsRequest struct {
	CouponCount  int     `json:"coupon_count" binding:"required,gt=0"`
	FaceValue    string  `json:"single_coupon_face_value" binding:"required,money"`
	MinSpend     string  `json:"min_spend" binding:"required,money"`
	MaxDiscount  *string `json:"max_discount"`
	DiscountType string  `json:"discount_type" binding:"omitempty,oneof=fixed percentage"`
	ValidityDays int     `json:"validity_days" binding:"required,gt=0"`
}

// AnalyzeBudgetRequest тело запроса мастера настройки бюджета.
type AnalyzeBudgetRequest struct {
	PlanAmount string `json:"plan_amount" binding:"required,money"`
	CashPaid   string `json:"cash_paid" binding:"required,money"`
}

// ValidateConfigRequest тело запроса проверки конфигурации выпуска.
type ValidateConfigRequest struct {
	CouponBudget string  `json:"coupon_budget" binding:"required,money"`
	CouponCount  int     `json:"coupon_count" binding:"required"`
	FaceValue    string  `json:"single_coupon_face_value" binding:"required,money"`
	MinSpend     string  `json:"min_spend" binding:"required,money"`
	MaxDiscount  *string `json:"max_discount"`
}

// SubscriptionHandler обработчик для рекламных подписок
type SubscriptionHandler struct {
	subscriptionSvc service.SubscriptionService
	log             *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик подписок
func NewSubscriptionHandler(subscriptionSvc service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionSvc: subscriptionSvc,
		log:             log,
	}
}

// CreateSubscription создает новую рекламную подписку
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnw("Invalid create subscription request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	planAmount, ok := parseMoney(c, "plan_amount", req.PlanAmount)
	if !ok {
		return
	}
	cashPaid, ok := parseMoney(c, "cash_paid", req.CashPaid)
	if !ok {
		return
	}

	sub, err := h.subscriptionSvc.Create(c.Request.Context(), service.CreateSubscriptionParams{
		RestaurantID: uuid.MustParse(req.RestaurantID),
		PlanAmount:   planAmount,
		CashPaid:     cashPaid,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// GetSubscription возвращает подписку по ID
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// GetActiveSubscription возвращает активную подписку ресторана
func (h *SubscriptionHandler) GetActiveSubscription(c *gin.Context) {
	restaurantID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptionSvc.GetActiveByRestaurantID(c.Request.Context(), restaurantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// CancelSubscription отменяет подписку
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptionSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// GetBudgetUsage возвращает состояние бюджета подписки
func (h *SubscriptionHandler) GetBudgetUsage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	usage, err := h.subscriptionSvc.BudgetUsage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, usage)
}

// GenerateCoupons выпускает пакет купонов для подписки
func (h *SubscriptionHandler) GenerateCoupons(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req GenerateCouponsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnw("Invalid generate coupons request", "error", err, "subscriptionID", id)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, ok := h.couponConfigFromRequest(c, req.CouponCount, req.FaceValue, req.MinSpend, req.MaxDiscount)
	if !ok {
		return
	}

	coupons, err := h.subscriptionSvc.GenerateCoupons(c.Request.Context(), service.GenerateCouponsParams{
		SubscriptionID: id,
		Config:         cfg,
		DiscountType:   domain.DiscountType(req.DiscountType),
		ValidityDays:   req.ValidityDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"coupons": coupons, "count": len(coupons)})
}

// GetCouponStats возвращает статистику купонов подписки
func (h *SubscriptionHandler) GetCouponStats(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.subscriptionSvc.CouponStats(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// AnalyzeBudget возвращает разбивку бюджета и справочные планы выпуска
func (h *SubscriptionHandler) AnalyzeBudget(c *gin.Context) {
	var req AnalyzeBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	planAmount, ok := parseMoney(c, "plan_amount", req.PlanAmount)
	if !ok {
		return
	}
	cashPaid, ok := parseMoney(c, "cash_paid", req.CashPaid)
	if !ok {
		return
	}

	result, err := h.subscriptionSvc.AnalyzeBudget(planAmount, cashPaid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ValidateCouponConfig проверяет конфигурацию выпуска против бюджета
func (h *SubscriptionHandler) ValidateCouponConfig(c *gin.Context) {
	var req ValidateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	couponBudget, ok := parseMoney(c, "coupon_budget", req.CouponBudget)
	if !ok {
		return
	}
	cfg, ok := h.couponConfigFromRequest(c, req.CouponCount, req.FaceValue, req.MinSpend, req.MaxDiscount)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, h.subscriptionSvc.ValidateCouponConfig(cfg, couponBudget))
}

func (h *SubscriptionHandler) couponConfigFromRequest(c *gin.Context, count int, faceValue, minSpend string, maxDiscount *string) (domain.CouponConfig, bool) {
	face, ok := parseMoney(c, "single_coupon_face_value", faceValue)
	if !ok {
		return domain.CouponConfig{}, false
	}
	spend, ok := parseMoney(c, "min_spend", minSpend)
	if !ok {
		return domain.CouponConfig{}, false
	}

	cfg := domain.CouponConfig{
		CouponCount:           count,
		SingleCouponFaceValue: face,
		MinSpend:              spend,
	}
	if maxDiscount != nil {
		var maxValue decimal.Decimal
		maxValue, ok = parseMoney(c, "max_discount", *maxDiscount)
		if !ok {
			return domain.CouponConfig{}, false
		}
		cfg.MaxDiscount = &maxValue
	}
	return cfg, true
}
