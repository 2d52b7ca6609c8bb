package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Dhoini/AdCoupon-microservice/internal/service"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

// RedeemRequest тело запроса на погашение купона.
type RedeemRequest struct {
	CouponID    string `json:"coupon_id" binding:"required,uuid"`
	SpendAmount string `json:"spend_amount" binding:"required,money"`
}

// CheckRedemptionRequest тело запроса предварительной проверки погашения.
type CheckRedemptionRequest struct {
	CouponID    string `json:"coupon_id" binding:"required,uuid"`
	SpendAmount string `json:"spend_amount" binding:"required,money"`
}

// RedemptionHandler обработчик погашений купонов
type RedemptionHandler struct {
	redemptionSvc service.RedemptionService
	log           *logger.Logger
}

// NewRedemptionHandler создает новый обработчик погашений
func NewRedemptionHandler(redemptionSvc service.RedemptionService, log *logger.Logger) *RedemptionHandler {
	return &RedemptionHandler{
		redemptionSvc: redemptionSvc,
		log:           log,
	}
}

// Redeem выполняет погашение купона.
// Отказы: budget_exhausted и coupon_used -> 409, coupon_expired -> 410,
// invalid -> 400. Тело отказа несет причину и остаток бюджета.
func (h *RedemptionHandler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnw("Invalid redeem request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	spend, ok := parseMoney(c, "spend_amount", req.SpendAmount)
	if !ok {
		return
	}

	result, err := h.redemptionSvc.Redeem(c.Request.Context(), service.RedeemParams{
		CouponID:    uuid.MustParse(req.CouponID),
		UserID:      userID,
		SpendAmount: spend,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Check выполняет read-only проверку возможности погашения
func (h *RedemptionHandler) Check(c *gin.Context) {
	var req CheckRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	spend, ok := parseMoney(c, "spend_amount", req.SpendAmount)
	if !ok {
		return
	}

	check, err := h.redemptionSvc.CheckRedemption(c.Request.Context(), uuid.MustParse(req.CouponID), spend)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, check)
}
