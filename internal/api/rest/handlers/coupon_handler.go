package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/AdCoupon-microservice/internal/service"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

// CouponHandler обработчик купонов для пользовательской стороны
type CouponHandler struct {
	redemptionSvc service.RedemptionService
	log           *logger.Logger
}

// NewCouponHandler создает новый обработчик купонов
func NewCouponHandler(redemptionSvc service.RedemptionService, log *logger.Logger) *CouponHandler {
	return &CouponHandler{
		redemptionSvc: redemptionSvc,
		log:           log,
	}
}

// ClaimCoupon закрепляет купон за текущим пользователем.
// При гонке двух пользователей за один купон выигрывает ровно один.
func (h *CouponHandler) ClaimCoupon(c *gin.Context) {
	couponID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	coupon, err := h.redemptionSvc.ClaimCoupon(c.Request.Context(), couponID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, coupon)
}
