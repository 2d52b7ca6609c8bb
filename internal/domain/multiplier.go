package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MultiplierConfig бизнес-константы движка множителя трафика.
// Шаг и размер шага настраиваются, это не зашитые литералы.
type MultiplierConfig struct {
	// Base базовый множитель видимости, ниже него значение не опускается
	Base decimal.Decimal
	// Ceiling максимальный множитель, полная видимость
	Ceiling decimal.Decimal
	// StepAmount сумма погашений, дающая один шаг прироста
	StepAmount decimal.Decimal
	// StepIncrease прирост множителя за один шаг
	StepIncrease decimal.Decimal
}

// DefaultMultiplierConfig возвращает конфигурацию по умолчанию:
// база 0.8, потолок 1.0, каждые 500 единиц погашений дают +0.05.
func DefaultMultiplierConfig() MultiplierConfig {
	return MultiplierConfig{
		Base:         decimal.RequireFromString("0.8"),
		Ceiling:      decimal.RequireFromString("1.0"),
		StepAmount:   decimal.NewFromInt(500),
		StepIncrease: decimal.RequireFromString("0.05"),
	}
}

// Multiplier вычисляет множитель трафика для накопленной суммы погашений.
// Монотонно неубывающая функция: floor(total/step)*increase поверх базы,
// с потолком Ceiling.
func (c MultiplierConfig) Multiplier(totalRedeemed decimal.Decimal) decimal.Decimal {
	if totalRedeemed.IsNegative() || !c.StepAmount.IsPositive() {
		return c.Base
	}
	steps := totalRedeemed.Div(c.StepAmount).Floor()
	multiplier := c.Base.Add(steps.Mul(c.StepIncrease))
	if multiplier.GreaterThan(c.Ceiling) {
		return c.Ceiling
	}
	return multiplier
}

// Milestone следующий рубеж роста множителя.
type Milestone struct {
	// Amount сумма, которую осталось погасить до рубежа
	Amount decimal.Decimal `json:"amount"`
	// NewMultiplier множитель после достижения рубежа
	NewMultiplier decimal.Decimal `json:"new_multiplier"`
}

// NextMilestone возвращает следующий достижимый рубеж или nil, если множитель
// уже на потолке либо до рубежа не хватает остатка бюджета. Недостижимый
// рубеж никогда не сообщается как достижимый.
func (c MultiplierConfig) NextMilestone(totalRedeemed, remainingBudget decimal.Decimal) *Milestone {
	current := c.Multiplier(totalRedeemed)
	if current.GreaterThanOrEqual(c.Ceiling) {
		return nil
	}

	steps := totalRedeemed.Div(c.StepAmount).Floor()
	nextTotal := steps.Add(decimal.NewFromInt(1)).Mul(c.StepAmount)
	needed := nextTotal.Sub(totalRedeemed)
	if !needed.IsPositive() || needed.GreaterThan(remainingBudget) {
		return nil
	}

	newMultiplier := c.Multiplier(nextTotal)
	return &Milestone{Amount: needed, NewMultiplier: newMultiplier}
}

// MultiplierHistoryEntry запись журнала изменений множителя трафика.
// Журнал только добавляется, записи не редактируются.
type MultiplierHistoryEntry struct {
	ID                     uuid.UUID       `json:"id" db:"id"`
	SubscriptionID         uuid.UUID       `json:"subscription_id" db:"subscription_id"`
	PreviousMultiplier     decimal.Decimal `json:"previous_multiplier" db:"previous_multiplier"`
	NewMultiplier          decimal.Decimal `json:"new_multiplier" db:"new_multiplier"`
	RedeemedAmountAtChange decimal.Decimal `json:"redeemed_amount_at_change" db:"redeemed_amount_at_change"`
	CalculatedAt           time.Time       `json:"calculated_at" db:"calculated_at"`
}
