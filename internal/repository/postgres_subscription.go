package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

const subscriptionColumns = `
	id, restaurant_id, plan_amount, cash_paid, coupon_budget, coupon_ratio,
	total_redeemed_amount, traffic_multiplier, status, subscription_type,
	started_at, expires_at, cancelled_at, created_at, updated_at`

// postgresSubscriptionRepo реализует SubscriptionRepository для PostgreSQL.
type postgresSubscriptionRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый экземпляр репозитория для PostgreSQL.
func NewPostgresSubscriptionRepository(db *sqlx.DB, log *logger.Logger) SubscriptionRepository {
	return &postgresSubscriptionRepo{db: db, log: log}
}

// Create сохраняет новую подписку в базе данных.
// Частичный уникальный индекс по (restaurant_id) WHERE status = 'active'
// гарантирует не более одной активной подписки на ресторан.
func (r *postgresSubscriptionRepo) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
        INSERT INTO restaurant_ad_subscriptions (
            id, restaurant_id, plan_amount, cash_paid, coupon_budget, coupon_ratio,
            total_redeemed_amount, traffic_multiplier, status, subscription_type,
            started_at, expires_at, cancelled_at, created_at, updated_at
        ) VALUES (
            :id, :restaurant_id, :plan_amount, :cash_paid, :coupon_budget, :coupon_ratio,
            :total_redeemed_amount, :traffic_multiplier, :status, :subscription_type,
            :started_at, :expires_at, :cancelled_at, :created_at, :updated_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.log.Warnw("Active subscription already exists for restaurant", "restaurantID", sub.RestaurantID)
			return ErrDuplicate
		}
		r.log.Errorw("Failed to create subscription in DB", "error", err, "subscriptionID", sub.ID)
		return fmt.Errorf("repository: failed to create subscription: %w", err)
	}

	r.log.Debugw("Successfully created subscription in DB", "subscriptionID", sub.ID, "restaurantID", sub.RestaurantID)
	return nil
}

// GetByID возвращает подписку по ее ID.
func (r *postgresSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM restaurant_ad_subscriptions WHERE id = $1`

	err := r.db.GetContext(ctx, &sub, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get subscription by ID from DB", "error", err, "subscriptionID", id)
		return nil, fmt.Errorf("repository: failed to get subscription by ID: %w", err)
	}
	return &sub, nil
}

// GetActiveByRestaurantID возвращает активную подписку ресторана.
func (r *postgresSubscriptionRepo) GetActiveByRestaurantID(ctx context.Context, restaurantID uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT ` + subscriptionColumns + `
        FROM restaurant_ad_subscriptions
        WHERE restaurant_id = $1 AND status = 'active'`

	err := r.db.GetContext(ctx, &sub, query, restaurantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get active subscription from DB", "error", err, "restaurantID", restaurantID)
		return nil, fmt.Errorf("repository: failed to get active subscription: %w", err)
	}
	return &sub, nil
}

// Cancel переводит подписку в cancelled через ту же точку сериализации,
// что и погашения: блокировку строки подписки. Повторная отмена идемпотентна.
func (r *postgresSubscriptionRepo) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Subscription, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var sub domain.Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM restaurant_ad_subscriptions WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &sub, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock subscription: %w", err)
	}

	// Уже терминальный статус: возвращаем как есть
	if !sub.Status.CanTransitionTo(domain.SubscriptionStatusCancelled) {
		committed = true
		_ = tx.Rollback()
		return &sub, nil
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE restaurant_ad_subscriptions
        SET status = 'cancelled', cancelled_at = $1, updated_at = $1
        WHERE id = $2`, at, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to cancel subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("repository: failed to commit cancel: %w", err)
	}
	committed = true

	sub.Status = domain.SubscriptionStatusCancelled
	sub.CancelledAt = &at
	sub.UpdatedAt = at

	r.log.Infow("Subscription cancelled", "subscriptionID", id)
	return &sub, nil
}

// CommitRedemption атомарно фиксирует погашение купона.
// Строка подписки блокируется через SELECT ... FOR UPDATE, после чего валидатор
// перепроверяется по свежему состоянию: предварительная проверка вызывающего
// могла устареть (классическая гонка check-then-act). Инкремент бюджета и
// переход купона в redeemed коммитятся одной транзакцией.
func (r *postgresSubscriptionRepo) CommitRedemption(ctx context.Context, params CommitRedemptionParams) (*RedemptionOutcome, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Порядок блокировок фиксированный: сначала подписка, затем купон
	var sub domain.Subscription
	subQuery := `SELECT ` + subscriptionColumns + ` FROM restaurant_ad_subscriptions WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &sub, subQuery, params.SubscriptionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock subscription: %w", err)
	}

	var coupon domain.Coupon
	couponQuery := `SELECT ` + couponColumns + ` FROM restaurant_ad_coupons WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &coupon, couponQuery, params.CouponID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock coupon: %w", err)
	}

	if coupon.SubscriptionID != params.SubscriptionID {
		return nil, fmt.Errorf("%w: coupon does not belong to subscription", domain.ErrInvalid)
	}

	// Повторная проверка под блокировкой, по свежему состоянию
	check := domain.CanRedeem(&sub, &coupon, params.Amount, params.Now)
	if !check.CanRedeem {
		r.log.Infow("Redemption denied under lock",
			"subscriptionID", params.SubscriptionID,
			"couponID", params.CouponID,
			"reason", check.Reason)
		return nil, domain.NewRedemptionError(check)
	}

	// Переход статуса по таблице переходов до записи в леджер:
	// купон не помечается redeemed, если переход недопустим
	if err := coupon.TransitionTo(domain.CouponStatusRedeemed); err != nil {
		return nil, err
	}

	newTotal := sub.TotalRedeemedAmount.Add(params.Amount)
	newMultiplier := params.Multiplier.Multiplier(newTotal)
	multiplierChanged := !newMultiplier.Equal(sub.TrafficMultiplier)

	_, err = tx.ExecContext(ctx, `
        UPDATE restaurant_ad_subscriptions
        SET total_redeemed_amount = $1, traffic_multiplier = $2, updated_at = $3
        WHERE id = $4`,
		newTotal, newMultiplier, params.Now, params.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to increment redeemed amount: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE restaurant_ad_coupons
        SET status = $1, claimed_by = COALESCE(claimed_by, $2),
            redeemed_amount = $3, redeemed_at = $4
        WHERE id = $5`,
		coupon.Status, params.UserID, params.Amount, params.Now, params.CouponID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to mark coupon redeemed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO user_coupons (id, user_id, coupon_id, status, claimed_at, used_at)
        VALUES ($1, $2, $3, 'used', $4, $4)
        ON CONFLICT (user_id, coupon_id) DO UPDATE SET status = 'used', used_at = EXCLUDED.used_at`,
		uuid.New(), params.UserID, params.CouponID, params.Now)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to record coupon usage: %w", err)
	}

	if multiplierChanged {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO traffic_multiplier_history (
                id, subscription_id, previous_multiplier, new_multiplier,
                redeemed_amount_at_change, calculated_at
            ) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), params.SubscriptionID, sub.TrafficMultiplier, newMultiplier, newTotal, params.Now)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to record multiplier change: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("repository: failed to commit redemption: %w", err)
	}
	committed = true

	sub.TotalRedeemedAmount = newTotal
	sub.TrafficMultiplier = newMultiplier
	sub.UpdatedAt = params.Now

	amount := params.Amount
	now := params.Now
	userID := params.UserID
	if coupon.ClaimedBy == nil {
		coupon.ClaimedBy = &userID
	}
	coupon.RedeemedAmount = &amount
	coupon.RedeemedAt = &now

	r.log.Infow("Redemption committed",
		"subscriptionID", params.SubscriptionID,
		"couponID", params.CouponID,
		"amount", params.Amount.StringFixed(2),
		"totalRedeemed", newTotal.StringFixed(2),
		"multiplier", newMultiplier.String())

	return &RedemptionOutcome{
		Subscription:      &sub,
		Coupon:            &coupon,
		MultiplierChanged: multiplierChanged,
	}, nil
}
