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

// RedeemParams параметры погашения купона.
type RedeemParams struct {
	CouponID uuid.UUID
	UserID   uuid.UUID
	// SpendAmount сумма чека, по которой считается размер скидки
	SpendAmount decimal.Decimal
}

// RedemptionResult результат успешного погашения.
type RedemptionResult struct {
	Coupon              *domain.Coupon  `json:"coupon"`
	RedeemedAmount      decimal.Decimal `json:"redeemed_amount"`
	TotalRedeemedAmount decimal.Decimal `json:"total_redeemed_amount"`
	RemainingBudget     decimal.Decimal `json:"remaining_budget"`
	BudgetUsagePercent  float64         `json:"budget_usage_percent"`
	TrafficMultiplier   decimal.Decimal `json:"traffic_multiplier"`
	MultiplierChanged   bool            `json:"multiplier_changed"`
}

// RedemptionService координатор погашений: единственная точка входа,
// через которую тратится купонный бюджет.
type RedemptionService interface {
	// Redeem выполняет погашение купона: считает сумму скидки, делает быструю
	// предварительную проверку и фиксирует погашение атомарно через хранилище.
	// Отказ возвращается как *domain.RedemptionError.
	Redeem(ctx context.Context, params RedeemParams) (*RedemptionResult, error)

	// CheckRedemption read-only проверка возможности погашения.
	// Ничего не резервирует: положительный ответ может устареть к моменту
	// фактического погашения.
	CheckRedemption(ctx context.Context, couponID uuid.UUID, spend decimal.Decimal) (*domain.RedemptionCheck, error)

	// ClaimCoupon закрепляет купон за пользователем (available -> claimed).
	ClaimCoupon(ctx context.Context, couponID, userID uuid.UUID) (*domain.Coupon, error)
}

type redemptionService struct {
	subscriptionRepo repository.SubscriptionRepository
	couponRepo       repository.CouponRepository
	producer         kafka.Producer
	metrics          metrics.RedemptionMetrics
	multiplierCfg    domain.MultiplierConfig
	log              *logger.Logger
}

// NewRedemptionService создает новый координатор погашений
func NewRedemptionService(
	subscriptionRepo repository.SubscriptionRepository,
	couponRepo repository.CouponRepository,
	producer kafka.Producer,
	redemptionMetrics metrics.RedemptionMetrics,
	multiplierCfg domain.MultiplierConfig,
	log *logger.Logger,
) RedemptionService {
	return &redemptionService{
		subscriptionRepo: subscriptionRepo,
		couponRepo:       couponRepo,
		producer:         producer,
		metrics:          redemptionMetrics,
		multiplierCfg:    multiplierCfg,
		log:              log,
	}
}

// Redeem выполняет погашение купона.
// Сбой инфраструктуры никогда не приводит к молчаливому успеху: любая
// неклассифицированная ошибка хранилища превращается в отказ invalid.
func (s *redemptionService) Redeem(ctx context.Context, params RedeemParams) (*RedemptionResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	coupon, err := s.couponRepo.GetByID(opCtx, params.CouponID)
	if err != nil {
		return nil, s.denyOnFailure(err, "failed to load coupon", params.CouponID)
	}

	amount, err := coupon.RedemptionAmount(params.SpendAmount)
	if err != nil {
		s.metrics.IncRedemption(string(domain.ReasonInvalid))
		s.log.Warnw("Redemption rejected: invalid spend", "error", err, "couponID", params.CouponID)
		return nil, err
	}

	// Быстрая предварительная проверка без блокировки. Отсекает заведомо
	// обреченные запросы; решающая проверка повторяется в хранилище под
	// блокировкой строки подписки.
	sub, err := s.subscriptionRepo.GetByID(opCtx, coupon.SubscriptionID)
	if err != nil {
		return nil, s.denyOnFailure(err, "failed to load subscription", params.CouponID)
	}
	if check := domain.CanRedeem(sub, coupon, amount, time.Now().UTC()); !check.CanRedeem {
		s.metrics.IncRedemption(string(check.Reason))
		s.log.Infow("Redemption denied by pre-check",
			"couponID", params.CouponID,
			"subscriptionID", sub.ID,
			"reason", check.Reason)
		return nil, domain.NewRedemptionError(check)
	}

	outcome, err := s.subscriptionRepo.CommitRedemption(opCtx, repository.CommitRedemptionParams{
		SubscriptionID: coupon.SubscriptionID,
		CouponID:       params.CouponID,
		UserID:         params.UserID,
		Amount:         amount,
		Now:            time.Now().UTC(),
		Multiplier:     s.multiplierCfg,
	})
	if err != nil {
		var redemptionErr *domain.RedemptionError
		if errors.As(err, &redemptionErr) {
			s.metrics.IncRedemption(string(redemptionErr.Reason))
			return nil, err
		}
		return nil, s.denyOnFailure(err, "failed to commit redemption", params.CouponID)
	}

	s.metrics.IncRedemption("redeemed")
	amountFloat, _ := amount.Float64()
	s.metrics.ObserveRedeemedAmount(amountFloat)
	s.metrics.SetBudgetUsage(outcome.Subscription.RestaurantID.String(), outcome.Subscription.BudgetUsagePercent())

	s.publishBudgetEvent(ctx, outcome, amount)

	s.log.Infow("Coupon redeemed",
		"couponID", params.CouponID,
		"subscriptionID", outcome.Subscription.ID,
		"amount", amount.StringFixed(2),
		"totalRedeemed", outcome.Subscription.TotalRedeemedAmount.StringFixed(2),
		"multiplier", outcome.Subscription.TrafficMultiplier.String())

	return &RedemptionResult{
		Coupon:              outcome.Coupon,
		RedeemedAmount:      amount,
		TotalRedeemedAmount: outcome.Subscription.TotalRedeemedAmount,
		RemainingBudget:     outcome.Subscription.RemainingBudget(),
		BudgetUsagePercent:  outcome.Subscription.BudgetUsagePercent(),
		TrafficMultiplier:   outcome.Subscription.TrafficMultiplier,
		MultiplierChanged:   outcome.MultiplierChanged,
	}, nil
}

// CheckRedemption read-only проверка возможности погашения
func (s *redemptionService) CheckRedemption(ctx context.Context, couponID uuid.UUID, spend decimal.Decimal) (*domain.RedemptionCheck, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	coupon, err := s.couponRepo.GetByID(opCtx, couponID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: coupon not found", domain.ErrInvalid)
		}
		return nil, err
	}

	amount, err := coupon.RedemptionAmount(spend)
	if err != nil {
		return nil, err
	}

	sub, err := s.subscriptionRepo.GetByID(opCtx, coupon.SubscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: subscription not found", domain.ErrInvalid)
		}
		return nil, err
	}

	check := domain.CanRedeem(sub, coupon, amount, time.Now().UTC())
	return &check, nil
}

// ClaimCoupon закрепляет купон за пользователем
func (s *redemptionService) ClaimCoupon(ctx context.Context, couponID, userID uuid.UUID) (*domain.Coupon, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	coupon, err := s.couponRepo.Claim(opCtx, couponID, userID, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			s.metrics.IncCouponClaimed("duplicate")
		case errors.Is(err, domain.ErrCouponExpired):
			s.metrics.IncCouponClaimed("expired")
		case errors.Is(err, domain.ErrCouponUsed):
			s.metrics.IncCouponClaimed("taken")
		case errors.Is(err, repository.ErrNotFound):
			s.metrics.IncCouponClaimed("not_found")
		default:
			s.metrics.IncCouponClaimed("error")
		}
		s.log.Infow("Coupon claim rejected", "couponID", couponID, "userID", userID, "error", err)
		return nil, err
	}

	s.metrics.IncCouponClaimed("claimed")
	s.log.Infow("Coupon claimed", "couponID", couponID, "userID", userID)
	return coupon, nil
}

// denyOnFailure превращает сбой инфраструктуры в отказ по умолчанию.
// Недоступное хранилище означает, что бюджет проверить нельзя, а значит
// погашать нельзя: отказ дешевле нарушенного инварианта.
func (s *redemptionService) denyOnFailure(err error, msg string, couponID uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.IncRedemption(string(domain.ReasonInvalid))
		return fmt.Errorf("%w: coupon or subscription not found", domain.ErrInvalid)
	}
	s.metrics.IncRedemption(string(domain.ReasonInvalid))
	s.log.Errorw(msg, "error", err, "couponID", couponID)
	return fmt.Errorf("%w: %s", domain.ErrInvalid, msg)
}

// publishBudgetEvent отправляет событие изменения бюджета асинхронно,
// с экспоненциальными ретраями поверх контекста без отмены: результат
// погашения уже зафиксирован и не должен зависеть от судьбы запроса.
func (s *redemptionService) publishBudgetEvent(ctx context.Context, outcome *repository.RedemptionOutcome, amount decimal.Decimal) {
	event := &domain.BudgetEvent{
		SubscriptionID:      outcome.Subscription.ID,
		RestaurantID:        outcome.Subscription.RestaurantID,
		CouponID:            outcome.Coupon.ID,
		RedeemedAmount:      amount,
		TotalRedeemedAmount: outcome.Subscription.TotalRedeemedAmount,
		RemainingBudget:     outcome.Subscription.RemainingBudget(),
		BudgetUsagePercent:  outcome.Subscription.BudgetUsagePercent(),
		TrafficMultiplier:   outcome.Subscription.TrafficMultiplier,
		OccurredAt:          time.Now().UTC(),
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		operation := func() error {
			return s.producer.PublishBudgetEvent(pubCtx, event)
		}
		if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), pubCtx)); err != nil {
			s.log.Errorw("Failed to publish budget event after retries",
				"error", err, "subscriptionID", event.SubscriptionID, "couponID", event.CouponID)
		}
	}()
}
