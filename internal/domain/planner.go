package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Константы генератора справочных планов. Выпускаемый номинал превышает бюджет,
// так как реально погашается лишь часть купонов.
var (
	// issuableFaceValueMultiplier множитель бюджета для суммарного номинала
	issuableFaceValueMultiplier = decimal.NewFromInt(2)
	// configSlackRatio допуск 10% на погрешность оценки при валидации конфигурации
	configSlackRatio = decimal.RequireFromString("1.1")
)

// CouponConfig конфигурация выпуска купонов.
type CouponConfig struct {
	CouponCount           int              `json:"coupon_count"`
	SingleCouponFaceValue decimal.Decimal  `json:"single_coupon_face_value"`
	MinSpend              decimal.Decimal  `json:"min_spend"`
	MaxDiscount           *decimal.Decimal `json:"max_discount,omitempty"`
}

// ReferencePlan именованная справочная конфигурация выпуска купонов.
// Советующая сущность: никаких инвариантов не несет.
type ReferencePlan struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Config      CouponConfig `json:"config"`
	// EstimatedReach оценка охвата аудитории
	EstimatedReach int `json:"estimated_reach"`
	// EstimatedRedemptionRate оценка доли погашений, в процентах
	EstimatedRedemptionRate int `json:"estimated_redemption_rate"`
}

// BudgetAnalysis разбивка бюджета подписки для мастера настройки.
type BudgetAnalysis struct {
	PlanAmount   decimal.Decimal `json:"plan_amount"`
	CashPaid     decimal.Decimal `json:"cash_paid"`
	CouponBudget decimal.Decimal `json:"coupon_budget"`
	// IssuableFaceValue суммарный номинал к выпуску (бюджет x 2)
	IssuableFaceValue decimal.Decimal `json:"issuable_face_value"`
	// RedemptionCap жесткий потолок погашений (= купонный бюджет)
	RedemptionCap decimal.Decimal `json:"redemption_cap"`
}

// ConfigValidation структурированный результат проверки конфигурации.
// Это совещательная проверка, а не операционная ошибка, поэтому не error.
type ConfigValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// IssuableFaceValue возвращает суммарный номинал, доступный к выпуску.
func IssuableFaceValue(couponBudget decimal.Decimal) decimal.Decimal {
	return couponBudget.Mul(issuableFaceValueMultiplier)
}

// AnalyzeBudget считает разбивку бюджета по сумме плана и наличной части.
func AnalyzeBudget(planAmount, cashPaid decimal.Decimal) BudgetAnalysis {
	couponBudget := planAmount.Sub(cashPaid)
	return BudgetAnalysis{
		PlanAmount:        planAmount,
		CashPaid:          cashPaid,
		CouponBudget:      couponBudget,
		IssuableFaceValue: IssuableFaceValue(couponBudget),
		RedemptionCap:     couponBudget,
	}
}

// referencePlanSpec шаблон одного справочного плана.
type referencePlanSpec struct {
	id             string
	name           string
	description    string
	faceValue      int64
	minSpend       int64
	reachPerCoupon int
	redemptionRate int
}

var referencePlanSpecs = []referencePlanSpec{
	{
		id:             "conservative",
		name:           "Conservative",
		description:    "High threshold, low redemption rate, suits high-ticket restaurants",
		faceValue:      150,
		minSpend:       500,
		reachPerCoupon: 10,
		redemptionRate: 25,
	},
	{
		id:             "balanced",
		name:           "Balanced",
		description:    "Medium threshold, balanced redemption rate, suits most restaurants",
		faceValue:      100,
		minSpend:       300,
		reachPerCoupon: 8,
		redemptionRate: 35,
	},
	{
		id:             "aggressive",
		name:           "Aggressive",
		description:    "Low threshold, high redemption rate, drives traffic fast",
		faceValue:      50,
		minSpend:       150,
		reachPerCoupon: 6,
		redemptionRate: 50,
	},
}

// ReferencePlans строит до трех справочных конфигураций для купонного бюджета.
// Планы с нулевым количеством купонов (слишком маленький бюджет) опускаются.
func ReferencePlans(couponBudget decimal.Decimal) []ReferencePlan {
	issuable := IssuableFaceValue(couponBudget)

	plans := make([]ReferencePlan, 0, len(referencePlanSpecs))
	for _, spec := range referencePlanSpecs {
		faceValue := decimal.NewFromInt(spec.faceValue)
		count := int(issuable.Div(faceValue).Floor().IntPart())
		if count <= 0 {
			continue
		}

		maxDiscount := faceValue
		plans = append(plans, ReferencePlan{
			ID:          spec.id,
			Name:        spec.name,
			Description: spec.description,
			Config: CouponConfig{
				CouponCount:           count,
				SingleCouponFaceValue: faceValue,
				MinSpend:              decimal.NewFromInt(spec.minSpend),
				MaxDiscount:           &maxDiscount,
			},
			EstimatedReach:          count * spec.reachPerCoupon,
			EstimatedRedemptionRate: spec.redemptionRate,
		})
	}
	return plans
}

// ValidateCouponConfig проверяет конфигурацию выпуска против доступного номинала.
// Отклоняется: неположительное количество или номинал, min_spend ниже номинала,
// суммарный номинал выше issuable x 1.1.
func ValidateCouponConfig(cfg CouponConfig, issuableFaceValue decimal.Decimal) ConfigValidation {
	if cfg.CouponCount <= 0 {
		return ConfigValidation{Valid: false, Error: "coupon count must be greater than 0"}
	}
	if !cfg.SingleCouponFaceValue.IsPositive() {
		return ConfigValidation{Valid: false, Error: "coupon face value must be greater than 0"}
	}
	if cfg.MinSpend.LessThan(cfg.SingleCouponFaceValue) {
		return ConfigValidation{Valid: false, Error: "min spend cannot be below the coupon face value"}
	}

	totalFaceValue := cfg.SingleCouponFaceValue.Mul(decimal.NewFromInt(int64(cfg.CouponCount)))
	if totalFaceValue.GreaterThan(issuableFaceValue.Mul(configSlackRatio)) {
		return ConfigValidation{
			Valid: false,
			Error: fmt.Sprintf("total face value (%s) exceeds issuable limit (%s)",
				totalFaceValue.StringFixed(2), issuableFaceValue.StringFixed(2)),
		}
	}

	return ConfigValidation{Valid: true}
}
