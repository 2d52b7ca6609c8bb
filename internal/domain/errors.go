package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Application errors
var (
	// ErrBudgetExhausted подписка неактивна или остатка бюджета не хватает
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrCouponExpired срок действия купона истек
	ErrCouponExpired = errors.New("coupon expired")

	// ErrCouponUsed купон уже погашен или не подлежит погашению
	ErrCouponUsed = errors.New("coupon already used")

	// ErrInvalid сущность не найдена, запрос некорректен или отказала инфраструктура
	ErrInvalid = errors.New("invalid redemption request")

	// ErrIllegalTransition запрошен недопустимый переход статуса
	ErrIllegalTransition = errors.New("illegal status transition")
)

// RedemptionError представляет отказ в погашении купона.
// Несет остаток бюджета и процент использования, чтобы вызывающая сторона
// могла показать осмысленное сообщение без повторного запроса.
type RedemptionError struct {
	Reason             DenyReason
	RemainingBudget    decimal.Decimal
	BudgetUsagePercent float64
}

// Error реализует интерфейс error
func (e *RedemptionError) Error() string {
	return fmt.Sprintf("redemption denied [%s]: remaining budget %s (%.1f%% used)",
		e.Reason, e.RemainingBudget.StringFixed(2), e.BudgetUsagePercent)
}

// Unwrap возвращает сентинел, соответствующий причине отказа,
// чтобы работали errors.Is(err, domain.ErrBudgetExhausted) и т.п.
func (e *RedemptionError) Unwrap() error {
	switch e.Reason {
	case ReasonBudgetExhausted:
		return ErrBudgetExhausted
	case ReasonCouponExpired:
		return ErrCouponExpired
	case ReasonCouponUsed:
		return ErrCouponUsed
	default:
		return ErrInvalid
	}
}

// NewRedemptionError создает ошибку отказа из результата проверки валидатора.
func NewRedemptionError(check RedemptionCheck) *RedemptionError {
	return &RedemptionError{
		Reason:             check.Reason,
		RemainingBudget:    check.RemainingBudget,
		BudgetUsagePercent: check.BudgetUsagePercent,
	}
}
