package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dhoini/AdCoupon-microservice/internal/api/rest/handlers"
	"github.com/Dhoini/AdCoupon-microservice/internal/api/rest/middleware"
	"github.com/Dhoini/AdCoupon-microservice/internal/config"
	"github.com/Dhoini/AdCoupon-microservice/internal/service"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(
	subscriptionSvc service.SubscriptionService,
	redemptionSvc service.RedemptionService,
	registry *prometheus.Registry,
	cfg *config.Config,
	log *logger.Logger,
) *gin.Engine {
	r := gin.New()

	// Подключение middleware
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(gin.Recovery())

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", handlers.HealthCheck)

	// Prometheus метрики
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Инициализация обработчиков
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionSvc, log)
	couponHandler := handlers.NewCouponHandler(redemptionSvc, log)
	redemptionHandler := handlers.NewRedemptionHandler(redemptionSvc, log)

	auth := middleware.NewJWTMiddleware(log, &middleware.DefaultTokenValidator{
		Secret: []byte(cfg.Auth.JWTSecret),
	})

	v1 := r.Group("/api/v1")
	v1.Use(auth.RequireAuth())
	{
		// Подписки: сторона владельца ресторана
		subscriptions := v1.Group("/subscriptions")
		{
			subscriptions.POST("", subscriptionHandler.CreateSubscription)
			subscriptions.GET("/:id", subscriptionHandler.GetSubscription)
			subscriptions.DELETE("/:id", subscriptionHandler.CancelSubscription)
			subscriptions.GET("/:id/budget", subscriptionHandler.GetBudgetUsage)
			subscriptions.POST("/:id/coupons", subscriptionHandler.GenerateCoupons)
			subscriptions.GET("/:id/coupons/stats", subscriptionHandler.GetCouponStats)
		}

		restaurants := v1.Group("/restaurants")
		{
			restaurants.GET("/:id/subscription", subscriptionHandler.GetActiveSubscription)
		}

		// Мастер настройки: советующие расчеты без записи в хранилище
		planner := v1.Group("/planner")
		{
			planner.POST("/analyze", subscriptionHandler.AnalyzeBudget)
			planner.POST("/validate", subscriptionHandler.ValidateCouponConfig)
		}

		// Купоны: пользовательская сторона
		coupons := v1.Group("/coupons")
		{
			coupons.POST("/:id/claim", couponHandler.ClaimCoupon)
		}

		// Погашения
		redemptions := v1.Group("/redemptions")
		{
			redemptions.POST("", redemptionHandler.Redeem)
			redemptions.POST("/check", redemptionHandler.Check)
		}
	}

	return r
}
