package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

// RedemptionMetrics интерфейс для метрик погашений и купонов
type RedemptionMetrics interface {
	IncRedemption(result string)
	ObserveRedeemedAmount(amount float64)
	SetBudgetUsage(restaurantID string, percent float64)
	IncCouponClaimed(result string)
	IncCouponsGenerated(count int)
}

type redemptionMetrics struct {
	log              *logger.Logger
	redemptions      *prometheus.CounterVec
	redeemedAmount   prometheus.Histogram
	budgetUsage      *prometheus.GaugeVec
	couponsClaimed   *prometheus.CounterVec
	couponsGenerated prometheus.Counter
}

// NewRedemptionMetrics создает новые метрики погашений
func NewRedemptionMetrics(registry *prometheus.Registry, log *logger.Logger) RedemptionMetrics {
	redemptions := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupon_redemptions_total",
			Help: "The total number of coupon redemption attempts by result",
		},
		[]string{"result"},
	)

	redeemedAmount := promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coupon_redeemed_amount",
			Help:    "Redeemed coupon amounts distribution",
			Buckets: prometheus.ExponentialBuckets(10, 10, 5), // 10, 100, 1000, 10000, 100000
		},
	)

	budgetUsage := promauto.With(registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscription_budget_usage_percent",
			Help: "Current coupon budget usage percent per restaurant",
		},
		[]string{"restaurant_id"},
	)

	couponsClaimed := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupons_claimed_total",
			Help: "The total number of coupon claim attempts by result",
		},
		[]string{"result"},
	)

	couponsGenerated := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "coupons_generated_total",
			Help: "The total number of generated coupons",
		},
	)

	return &redemptionMetrics{
		log:              log,
		redemptions:      redemptions,
		redeemedAmount:   redeemedAmount,
		budgetUsage:      budgetUsage,
		couponsClaimed:   couponsClaimed,
		couponsGenerated: couponsGenerated,
	}
}

// IncRedemption увеличивает счетчик попыток погашения по результату
// (redeemed, budget_exhausted, coupon_expired, coupon_used, invalid)
func (m *redemptionMetrics) IncRedemption(result string) {
	m.redemptions.WithLabelValues(result).Inc()
}

// ObserveRedeemedAmount записывает сумму подтвержденного погашения
func (m *redemptionMetrics) ObserveRedeemedAmount(amount float64) {
	m.redeemedAmount.Observe(amount)
}

// SetBudgetUsage обновляет процент использования бюджета ресторана
func (m *redemptionMetrics) SetBudgetUsage(restaurantID string, percent float64) {
	m.budgetUsage.WithLabelValues(restaurantID).Set(percent)
}

// IncCouponClaimed увеличивает счетчик получений купонов по результату
func (m *redemptionMetrics) IncCouponClaimed(result string) {
	m.couponsClaimed.WithLabelValues(result).Inc()
}

// IncCouponsGenerated увеличивает счетчик выпущенных купонов
func (m *redemptionMetrics) IncCouponsGenerated(count int) {
	m.couponsGenerated.Add(float64(count))
}
