package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/internal/kafka"
	"github.com/Dhoini/AdCoupon-microservice/internal/metrics"
	"github.com/Dhoini/AdCoupon-microservice/internal/repository"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

const (
	// opTimeout потолок времени на одну операцию с хранилищем
	opTimeout = 5 * time.Second
	// publishTimeout потолок времени на доставку события в Kafka с ретраями
	publishTimeout = 30 * time.Second
)

// CreateSubscriptionParams параметры создания рекламной подписки.
type CreateSubscriptionParams struct {
	RestaurantID uuid.UUID
	PlanAmount   decimal.Decimal
	CashPaid     decimal.Decimal
	// DurationDays срок действия подписки в днях
	DurationDays int
}

// GenerateCouponsParams параметры выпуска пакета купонов.
type GenerateCouponsParams struct {
	SubscriptionID uuid.UUID
	Config         domain.CouponConfig
	// DiscountType тип выпускаемых купонов; для percentage номинал конфигурации
	// трактуется как процент скидки, max_discount обязателен
	DiscountType domain.DiscountType
	// ValidityDays срок действия купонов в днях
	ValidityDays int
}

// BudgetUsage текущее состояние бюджета подписки для дашборда владельца.
type BudgetUsage struct {
	SubscriptionID      uuid.UUID                 `json:"subscription_id"`
	Status              domain.SubscriptionStatus `json:"status"`
	CouponBudget        decimal.Decimal           `json:"coupon_budget"`
	TotalRedeemedAmount decimal.Decimal           `json:"total_redeemed_amount"`
	RemainingBudget     decimal.Decimal           `json:"remaining_budget"`
	BudgetUsagePercent  float64                   `json:"budget_usage_percent"`
	TrafficMultiplier   decimal.Decimal           `json:"traffic_multiplier"`
	// NextMilestone ближайший достижимый рубеж роста множителя, nil если
	// множитель на потолке или остатка бюджета не хватает
	NextMilestone *domain.Milestone `json:"next_milestone,omitempty"`
}

// PlannerResult разбивка бюджета вместе со справочными планами выпуска.
type PlannerResult struct {
	Analysis domain.BudgetAnalysis  `json:"analysis"`
	Plans    []domain.ReferencePlan `json:"plans"`
}

// SubscriptionService интерфейс сервиса для работы с рекламными подписками
type SubscriptionService interface {
	Create(ctx context.Context, params CreateSubscriptionParams) (*domain.Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	GetActiveByRestaurantID(ctx context.Context, restaurantID uuid.UUID) (*domain.Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	BudgetUsage(ctx context.Context, id uuid.UUID) (*BudgetUsage, error)

	GenerateCoupons(ctx context.Context, params GenerateCouponsParams) ([]domain.Coupon, error)
	CouponStats(ctx context.Context, subscriptionID uuid.UUID) (*domain.CouponStats, error)

	// AnalyzeBudget чистый расчет: разбивка бюджета и справочные планы.
	// Советующая операция, хранилище не трогает.
	AnalyzeBudget(planAmount, cashPaid decimal.Decimal) (*PlannerResult, error)
	// ValidateCouponConfig совещательная проверка конфигурации выпуска.
	ValidateCouponConfig(cfg domain.CouponConfig, couponBudget decimal.Decimal) domain.ConfigValidation
}

type subscriptionService struct {
	subscriptionRepo repository.SubscriptionRepository
	couponRepo       repository.CouponRepository
	producer         kafka.Producer
	metrics          metrics.RedemptionMetrics
	multiplierCfg    domain.MultiplierConfig
	log              *logger.Logger
}

// NewSubscriptionService создает новый сервис для работы с подписками
func NewSubscriptionService(
	subscriptionRepo repository.SubscriptionRepository,
	couponRepo repository.CouponRepository,
	producer kafka.Producer,
	redemptionMetrics metrics.RedemptionMetrics,
	multiplierCfg domain.MultiplierConfig,
	log *logger.Logger,
) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		couponRepo:       couponRepo,
		producer:         producer,
		metrics:          redemptionMetrics,
		multiplierCfg:    multiplierCfg,
		log:              log,
	}
}

// Create создает новую рекламную подписку
func (s *subscriptionService) Create(ctx context.Context, params CreateSubscriptionParams) (*domain.Subscription, error) {
	s.log.Debugw("Creating subscription", "restaurantID", params.RestaurantID, "planAmount", params.PlanAmount.StringFixed(2))

	if params.DurationDays <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", domain.ErrInvalid)
	}

	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, params.DurationDays)

	sub, err := domain.NewSubscription(params.RestaurantID, params.PlanAmount, params.CashPaid, expiresAt, now)
	if err != nil {
		s.log.Warnw("Invalid subscription parameters", "error", err, "restaurantID", params.RestaurantID)
		return nil, err
	}
	sub.TrafficMultiplier = s.multiplierCfg.Multiplier(decimal.Zero)

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.subscriptionRepo.Create(opCtx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.Warnw("Restaurant already has an active subscription", "restaurantID", params.RestaurantID)
			return nil, err
		}
		s.log.Errorw("Failed to create subscription", "error", err, "restaurantID", params.RestaurantID)
		return nil, err
	}

	s.metrics.SetBudgetUsage(sub.RestaurantID.String(), 0)

	s.publishSubscriptionEvent(ctx, kafka.TopicSubscriptionCreated, sub)

	s.log.Infow("Subscription created",
		"subscriptionID", sub.ID,
		"restaurantID", sub.RestaurantID,
		"couponBudget", sub.CouponBudget.StringFixed(2),
		"type", sub.SubscriptionType)
	return sub, nil
}

// GetByID возвращает подписку по ее ID
func (s *subscriptionService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.subscriptionRepo.GetByID(opCtx, id)
}

// GetActiveByRestaurantID возвращает активную подписку ресторана
func (s *subscriptionService) GetActiveByRestaurantID(ctx context.Context, restaurantID uuid.UUID) (*domain.Subscription, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.subscriptionRepo.GetActiveByRestaurantID(opCtx, restaurantID)
}

// Cancel отменяет подписку. Идемпотентно: повторная отмена возвращает
// подписку как есть. Накопленные погашения и история множителя сохраняются.
func (s *subscriptionService) Cancel(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sub, err := s.subscriptionRepo.Cancel(opCtx, id, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		s.log.Errorw("Failed to cancel subscription", "error", err, "subscriptionID", id)
		return nil, err
	}

	s.publishSubscriptionEvent(ctx, kafka.TopicSubscriptionCancelled, sub)

	s.log.Infow("Subscription cancelled", "subscriptionID", id, "restaurantID", sub.RestaurantID)
	return sub, nil
}

// BudgetUsage возвращает состояние бюджета подписки вместе с ближайшим
// рубежом роста множителя.
func (s *subscriptionService) BudgetUsage(ctx context.Context, id uuid.UUID) (*BudgetUsage, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sub, err := s.subscriptionRepo.GetByID(opCtx, id)
	if err != nil {
		return nil, err
	}

	usage := &BudgetUsage{
		SubscriptionID:      sub.ID,
		Status:              sub.Status,
		CouponBudget:        sub.CouponBudget,
		TotalRedeemedAmount: sub.TotalRedeemedAmount,
		RemainingBudget:     sub.RemainingBudget(),
		BudgetUsagePercent:  sub.BudgetUsagePercent(),
		TrafficMultiplier:   sub.TrafficMultiplier,
	}
	if sub.IsActive() {
		usage.NextMilestone = s.multiplierCfg.NextMilestone(sub.TotalRedeemedAmount, sub.RemainingBudget())
	}
	return usage, nil
}

// GenerateCoupons выпускает пакет купонов для подписки.
// Конфигурация проверяется против доступного номинала (бюджет x 2);
// купоны создаются в статусе available и привязываются к подписке навсегда.
func (s *subscriptionService) GenerateCoupons(ctx context.Context, params GenerateCouponsParams) ([]domain.Coupon, error) {
	if params.ValidityDays <= 0 {
		return nil, fmt.Errorf("%w: coupon validity must be positive", domain.ErrInvalid)
	}

	discountType := params.DiscountType
	if discountType == "" {
		discountType = domain.DiscountTypeFixed
	}
	if discountType == domain.DiscountTypePercentage && params.Config.MaxDiscount == nil {
		return nil, fmt.Errorf("%w: percentage coupons require max_discount", domain.ErrInvalid)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sub, err := s.subscriptionRepo.GetByID(opCtx, params.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive() {
		s.log.Warnw("Coupon generation rejected: subscription is not active",
			"subscriptionID", params.SubscriptionID, "status", sub.Status)
		return nil, fmt.Errorf("%w: subscription is not active", domain.ErrInvalid)
	}

	if validation := domain.ValidateCouponConfig(params.Config, domain.IssuableFaceValue(sub.CouponBudget)); !validation.Valid {
		s.log.Warnw("Coupon config rejected", "subscriptionID", params.SubscriptionID, "reason", validation.Error)
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalid, validation.Error)
	}

	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, params.ValidityDays)

	coupons := make([]domain.Coupon, 0, params.Config.CouponCount)
	for i := 0; i < params.Config.CouponCount; i++ {
		coupons = append(coupons, domain.Coupon{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			RestaurantID:   sub.RestaurantID,
			DiscountType:   discountType,
			DiscountValue:  params.Config.SingleCouponFaceValue,
			MinSpend:       params.Config.MinSpend,
			MaxDiscount:    params.Config.MaxDiscount,
			Status:         domain.CouponStatusAvailable,
			ExpiresAt:      expiresAt,
			CreatedAt:      now,
		})
	}

	if err := s.couponRepo.BulkCreate(opCtx, coupons); err != nil {
		s.log.Errorw("Failed to create coupon batch", "error", err, "subscriptionID", params.SubscriptionID)
		return nil, err
	}

	s.metrics.IncCouponsGenerated(len(coupons))

	s.log.Infow("Coupons generated",
		"subscriptionID", sub.ID,
		"count", len(coupons),
		"faceValue", params.Config.SingleCouponFaceValue.StringFixed(2),
		"discountType", discountType)
	return coupons, nil
}

// CouponStats возвращает агрегированную статистику купонов подписки
func (s *subscriptionService) CouponStats(ctx context.Context, subscriptionID uuid.UUID) (*domain.CouponStats, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.subscriptionRepo.GetByID(opCtx, subscriptionID); err != nil {
		return nil, err
	}

	coupons, err := s.couponRepo.ListBySubscriptionID(opCtx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return domain.BuildCouponStats(coupons), nil
}

// AnalyzeBudget считает разбивку бюджета и справочные планы выпуска
func (s *subscriptionService) AnalyzeBudget(planAmount, cashPaid decimal.Decimal) (*PlannerResult, error) {
	if planAmount.IsNegative() || cashPaid.IsNegative() || cashPaid.GreaterThan(planAmount) {
		return nil, fmt.Errorf("%w: cash paid must be between 0 and plan amount", domain.ErrInvalid)
	}

	analysis := domain.AnalyzeBudget(planAmount, cashPaid)
	return &PlannerResult{
		Analysis: analysis,
		Plans:    domain.ReferencePlans(analysis.CouponBudget),
	}, nil
}

// ValidateCouponConfig совещательная проверка конфигурации выпуска
func (s *subscriptionService) ValidateCouponConfig(cfg domain.CouponConfig, couponBudget decimal.Decimal) domain.ConfigValidation {
	return domain.ValidateCouponConfig(cfg, domain.IssuableFaceValue(couponBudget))
}

// publishSubscriptionEvent отправляет событие жизненного цикла подписки
// асинхронно, с экспоненциальными ретраями. Доставка события не влияет
// на результат операции: факт уже зафиксирован в хранилище.
func (s *subscriptionService) publishSubscriptionEvent(ctx context.Context, topic string, sub *domain.Subscription) {
	event := &domain.SubscriptionEvent{
		SubscriptionID: sub.ID,
		RestaurantID:   sub.RestaurantID,
		Status:         sub.Status,
		CouponBudget:   sub.CouponBudget,
		OccurredAt:     time.Now().UTC(),
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		operation := func() error {
			return s.producer.PublishSubscriptionEvent(pubCtx, topic, event)
		}
		if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), pubCtx)); err != nil {
			s.log.Errorw("Failed to publish subscription event after retries",
				"error", err, "topic", topic, "subscriptionID", sub.ID)
		}
	}()
}
