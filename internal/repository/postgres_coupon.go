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

const couponColumns = `
	id, subscription_id, restaurant_id, discount_type, discount_value, min_spend,
	max_discount, status, claimed_by, claimed_at, redeemed_amount, redeemed_at,
	expires_at, created_at`

// postgresCouponRepo реализует CouponRepository для PostgreSQL.
type postgresCouponRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresCouponRepository создает новый экземпляр репозитория купонов для PostgreSQL.
func NewPostgresCouponRepository(db *sqlx.DB, log *logger.Logger) CouponRepository {
	return &postgresCouponRepo{db: db, log: log}
}

// BulkCreate сохраняет пакет купонов одной транзакцией.
func (r *postgresCouponRepo) BulkCreate(ctx context.Context, coupons []domain.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: failed to begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := `
        INSERT INTO restaurant_ad_coupons (
            id, subscription_id, restaurant_id, discount_type, discount_value, min_spend,
            max_discount, status, claimed_by, claimed_at, redeemed_amount, redeemed_at,
            expires_at, created_at
        ) VALUES (
            :id, :subscription_id, :restaurant_id, :discount_type, :discount_value, :min_spend,
            :max_discount, :status, :claimed_by, :claimed_at, :redeemed_amount, :redeemed_at,
            :expires_at, :created_at
        )`

	for i := range coupons {
		if _, err := tx.NamedExecContext(ctx, query, &coupons[i]); err != nil {
			r.log.Errorw("Failed to insert coupon in batch", "error", err, "couponID", coupons[i].ID)
			return fmt.Errorf("repository: failed to bulk create coupons: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: failed to commit coupon batch: %w", err)
	}
	committed = true

	r.log.Debugw("Successfully created coupon batch",
		"count", len(coupons), "subscriptionID", coupons[0].SubscriptionID)
	return nil
}

// GetByID возвращает купон по его ID.
func (r *postgresCouponRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	var coupon domain.Coupon
	query := `SELECT ` + couponColumns + ` FROM restaurant_ad_coupons WHERE id = $1`

	err := r.db.GetContext(ctx, &coupon, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get coupon by ID from DB", "error", err, "couponID", id)
		return nil, fmt.Errorf("repository: failed to get coupon by ID: %w", err)
	}
	return &coupon, nil
}

// ListBySubscriptionID возвращает все купоны подписки, новые первыми.
func (r *postgresCouponRepo) ListBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) ([]domain.Coupon, error) {
	coupons := []domain.Coupon{}
	query := `SELECT ` + couponColumns + `
        FROM restaurant_ad_coupons
        WHERE subscription_id = $1
        ORDER BY created_at DESC, id`

	err := r.db.SelectContext(ctx, &coupons, query, subscriptionID)
	if err != nil {
		r.log.Errorw("Failed to list coupons from DB", "error", err, "subscriptionID", subscriptionID)
		return nil, fmt.Errorf("repository: failed to list coupons: %w", err)
	}
	return coupons, nil
}

// Claim выполняет переход available -> claimed с семантикой одного победителя.
// Сначала вставляется запись user_coupons (уникальность по паре user/coupon
// отсекает повторное получение), затем статусно-защищенный UPDATE: условие
// status = 'available' гарантирует, что из конкурирующих транзакций выиграет
// ровно одна. Проигравший перечитывает купон, чтобы назвать причину отказа.
func (r *postgresCouponRepo) Claim(ctx context.Context, couponID, userID uuid.UUID, now time.Time) (*domain.Coupon, error) {
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

	_, err = tx.ExecContext(ctx, `
        INSERT INTO user_coupons (id, user_id, coupon_id, status, claimed_at)
        VALUES ($1, $2, $3, 'claimed', $4)`,
		uuid.New(), userID, couponID, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, ErrDuplicate
			case "23503":
				return nil, ErrNotFound
			}
		}
		return nil, fmt.Errorf("repository: failed to record coupon claim: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
        UPDATE restaurant_ad_coupons
        SET status = 'claimed', claimed_by = $1, claimed_at = $2
        WHERE id = $3 AND status = 'available' AND expires_at > $2`,
		userID, now, couponID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to claim coupon: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to read claim result: %w", err)
	}
	if rows == 0 {
		// Проиграли гонку или купон непригоден: выясняем причину
		var coupon domain.Coupon
		query := `SELECT ` + couponColumns + ` FROM restaurant_ad_coupons WHERE id = $1`
		if err := tx.GetContext(ctx, &coupon, query, couponID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("repository: failed to re-read coupon: %w", err)
		}
		if coupon.IsExpired(now) || coupon.Status == domain.CouponStatusExpired {
			return nil, domain.ErrCouponExpired
		}
		return nil, domain.ErrCouponUsed
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("repository: failed to commit claim: %w", err)
	}
	committed = true

	coupon, err := r.GetByID(ctx, couponID)
	if err != nil {
		return nil, err
	}

	r.log.Infow("Coupon claimed", "couponID", couponID, "userID", userID)
	return coupon, nil
}
