package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMultiplier_Steps(t *testing.T) {
	cfg := DefaultMultiplierConfig()

	tests := []struct {
		name          string
		totalRedeemed string
		want          string
	}{
		{"zero redeemed gives base", "0", "0.8"},
		{"just below first step", "499.99", "0.8"},
		{"first step boundary", "500", "0.85"},
		{"between steps", "999.99", "0.85"},
		{"second step", "1000", "0.9"},
		{"third step", "1500", "0.95"},
		{"ceiling reached", "2000", "1.0"},
		{"above ceiling stays capped", "7500", "1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.Multiplier(dec(tt.totalRedeemed))
			assert.True(t, got.Equal(dec(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestMultiplier_NegativeInputGivesBase(t *testing.T) {
	cfg := DefaultMultiplierConfig()
	assert.True(t, cfg.Multiplier(dec("-100")).Equal(cfg.Base))
}

func TestMultiplier_CustomConfig(t *testing.T) {
	cfg := MultiplierConfig{
		Base:         dec("0.5"),
		Ceiling:      dec("2.0"),
		StepAmount:   dec("100"),
		StepIncrease: dec("0.1"),
	}

	assert.True(t, cfg.Multiplier(dec("0")).Equal(dec("0.5")))
	assert.True(t, cfg.Multiplier(dec("250")).Equal(dec("0.7")))
	assert.True(t, cfg.Multiplier(dec("10000")).Equal(dec("2.0")))
}

func TestNextMilestone_Reachable(t *testing.T) {
	cfg := DefaultMultiplierConfig()

	// Погашено 900 из бюджета 1000: до рубежа 1000 не хватает 100,
	// остатка 100 достаточно
	milestone := cfg.NextMilestone(dec("900"), dec("100"))
	require.NotNil(t, milestone)
	assert.True(t, milestone.Amount.Equal(dec("100")))
	assert.True(t, milestone.NewMultiplier.Equal(dec("0.9")))
}

func TestNextMilestone_UnreachableNotReported(t *testing.T) {
	cfg := DefaultMultiplierConfig()

	// До рубежа нужно 100, остаток бюджета 50: рубеж недостижим
	assert.Nil(t, cfg.NextMilestone(dec("900"), dec("50")))
}

func TestNextMilestone_NilAtCeiling(t *testing.T) {
	cfg := DefaultMultiplierConfig()
	assert.Nil(t, cfg.NextMilestone(dec("2000"), dec("10000")))
}

func TestNextMilestone_ExactBoundary(t *testing.T) {
	cfg := DefaultMultiplierConfig()

	// Ровно на рубеже: следующий рубеж через полный шаг
	milestone := cfg.NextMilestone(dec("500"), dec("500"))
	require.NotNil(t, milestone)
	assert.True(t, milestone.Amount.Equal(dec("500")))
	assert.True(t, milestone.NewMultiplier.Equal(dec("0.9")))
}
