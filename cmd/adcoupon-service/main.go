package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/AdCoupon-microservice/internal/api/rest"
	"github.com/Dhoini/AdCoupon-microservice/internal/config"
	"github.com/Dhoini/AdCoupon-microservice/internal/db"
	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/internal/kafka"
	"github.com/Dhoini/AdCoupon-microservice/internal/metrics"
	"github.com/Dhoini/AdCoupon-microservice/internal/repository"
	"github.com/Dhoini/AdCoupon-microservice/internal/service"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Инициализация логгера
	log := logger.New(cfg.Logging.Level)
	defer log.Sync()

	multiplierCfg, err := multiplierConfigFromEnv(cfg)
	if err != nil {
		log.Fatalw("Invalid multiplier configuration", "error", err)
	}

	// Инициализация Prometheus
	promRegistry := prometheus.NewRegistry()
	redemptionMetrics := metrics.NewRedemptionMetrics(promRegistry, log)
	systemMetrics := metrics.NewSystemMetrics(promRegistry, log)

	// Запускаем сбор системных метрик
	systemMetrics.StartRecording(15 * time.Second)
	defer systemMetrics.Stop()

	// Подключение к базе данных
	dbClient, err := db.NewDBClient(cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer dbClient.Close()

	// Подключение к Redis
	cache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Fatalw("Failed to connect to Redis", "error", err)
	}
	defer cache.Close()

	// Инициализация Kafka
	if err := kafka.EnsureKafkaTopics(cfg.Kafka.Brokers, log); err != nil {
		log.Fatalw("Failed to ensure Kafka topics", "error", err)
	}

	producer, err := kafka.NewKafkaProducer(cfg.Kafka.Brokers, log)
	if err != nil {
		log.Fatalw("Failed to create Kafka producer", "error", err)
	}
	defer producer.Close()

	// Репозитории: PostgreSQL за read-through кешем
	subscriptionRepo := repository.NewCachedSubscriptionRepository(
		repository.NewPostgresSubscriptionRepository(dbClient.DB(), log),
		cache,
		log,
	)
	couponRepo := repository.NewPostgresCouponRepository(dbClient.DB(), log)

	// Сервисы
	subscriptionSvc := service.NewSubscriptionService(
		subscriptionRepo, couponRepo, producer, redemptionMetrics, multiplierCfg, log)
	redemptionSvc := service.NewRedemptionService(
		subscriptionRepo, couponRepo, producer, redemptionMetrics, multiplierCfg, log)

	// Установка режима Gin
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Настройка маршрутизатора и запуск HTTP сервера
	router := rest.SetupRouter(subscriptionSvc, redemptionSvc, promRegistry, cfg, log)
	server := rest.NewServer(router, cfg, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalw("Server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalw("Server forced to shutdown", "error", err)
	}

	log.Infow("Server stopped gracefully")
}

// multiplierConfigFromEnv собирает конфигурацию множителя из строковых
// значений конфига. Некорректное значение лучше уронить на старте,
// чем молча заменить дефолтом.
func multiplierConfigFromEnv(cfg *config.Config) (domain.MultiplierConfig, error) {
	base, err := decimal.NewFromString(cfg.Multiplier.Base)
	if err != nil {
		return domain.MultiplierConfig{}, err
	}
	ceiling, err := decimal.NewFromString(cfg.Multiplier.Ceiling)
	if err != nil {
		return domain.MultiplierConfig{}, err
	}
	stepAmount, err := decimal.NewFromString(cfg.Multiplier.StepAmount)
	if err != nil {
		return domain.MultiplierConfig{}, err
	}
	stepIncrease, err := decimal.NewFromString(cfg.Multiplier.StepIncrease)
	if err != nil {
		return domain.MultiplierConfig{}, err
	}

	return domain.MultiplierConfig{
		Base:         base,
		Ceiling:      ceiling,
		StepAmount:   stepAmount,
		StepIncrease: stepIncrease,
	}, nil
}
