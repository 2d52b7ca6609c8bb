package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/AdCoupon-microservice/internal/api/rest/middleware"
	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/internal/repository"
)

// respondError переводит доменные ошибки в HTTP статусы.
// Отказ в погашении несет остаток бюджета и процент использования,
// чтобы клиент показал осмысленное сообщение без второго запроса.
func respondError(c *gin.Context, err error) {
	var redemptionErr *domain.RedemptionError
	if errors.As(err, &redemptionErr) {
		status := http.StatusConflict
		if redemptionErr.Reason == domain.ReasonCouponExpired {
			status = http.StatusGone
		}
		c.JSON(status, gin.H{
			"error":                redemptionErr.Error(),
			"reason":               redemptionErr.Reason,
			"remaining_budget":     redemptionErr.RemainingBudget,
			"budget_usage_percent": redemptionErr.BudgetUsagePercent,
		})
		return
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, repository.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate", "reason": "duplicate"})
	case errors.Is(err, domain.ErrCouponExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error(), "reason": domain.ReasonCouponExpired})
	case errors.Is(err, domain.ErrCouponUsed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reason": domain.ReasonCouponUsed})
	case errors.Is(err, domain.ErrBudgetExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reason": domain.ReasonBudgetExhausted})
	case errors.Is(err, domain.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reason": domain.ReasonCouponUsed})
	case errors.Is(err, domain.ErrInvalid), errors.Is(err, repository.ErrInvalidData):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": domain.ReasonInvalid})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// parseIDParam разбирает UUID из path-параметра.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// parseMoney разбирает денежную сумму из строки запроса.
func parseMoney(c *gin.Context, field, value string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + field})
		return decimal.Zero, false
	}
	return amount, true
}

// userIDFromContext достает ID пользователя, положенный auth middleware.
func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(string(middleware.ContextUserIDKey))
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw.(string))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
		return uuid.Nil, false
	}
	return userID, true
}
