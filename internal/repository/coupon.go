package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
)

// CouponRepository определяет методы для работы с хранилищем купонов.
// Переходы статуса купона только вперед; физическое удаление не предусмотрено.
type CouponRepository interface {
	// BulkCreate сохраняет пакет новых купонов в статусе available.
	BulkCreate(ctx context.Context, coupons []domain.Coupon) error

	// GetByID возвращает купон по его ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)

	// ListBySubscriptionID возвращает все купоны подписки.
	ListBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) ([]domain.Coupon, error)

	// Claim выполняет переход available -> claimed с семантикой одного
	// победителя: при гонке двух пользователей за один купон второй получает
	// ошибку. Повторное получение тем же пользователем -> ErrDuplicate,
	// уже занятый купон -> domain.ErrCouponUsed, истекший -> domain.ErrCouponExpired.
	Claim(ctx context.Context, couponID, userID uuid.UUID, now time.Time) (*domain.Coupon, error)
}
