package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Dhoini/AdCoupon-microservice/internal/domain"
	"github.com/Dhoini/AdCoupon-microservice/pkg/logger"
)

// Топики событий рекламных подписок
const (
	TopicBudgetUpdated         = "budget_updated"
	TopicSubscriptionCreated   = "subscription_created"
	TopicSubscriptionCancelled = "subscription_cancelled"
)

// Producer определяет интерфейс для публикации событий в Kafka.
// Публикация всегда происходит после коммита в хранилище: событие это
// уведомление о свершившемся факте, а не часть транзакции.
type Producer interface {
	// PublishBudgetEvent отправляет событие изменения бюджета после погашения.
	// Ключ сообщения — SubscriptionID: события одной подписки попадают
	// в одну партицию и сохраняют порядок.
	PublishBudgetEvent(ctx context.Context, event *domain.BudgetEvent) error

	// PublishSubscriptionEvent отправляет событие жизненного цикла подписки.
	PublishSubscriptionEvent(ctx context.Context, topic string, event *domain.SubscriptionEvent) error

	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)

	return &kafkaProducer{
		writer: writer,
		log:    log,
	}, nil
}

// PublishBudgetEvent преобразует событие бюджета в JSON и отправляет в топик budget_updated.
func (k *kafkaProducer) PublishBudgetEvent(ctx context.Context, event *domain.BudgetEvent) error {
	return k.publish(ctx, TopicBudgetUpdated, event.SubscriptionID.String(), event)
}

// PublishSubscriptionEvent преобразует событие подписки в JSON и отправляет в указанный топик.
func (k *kafkaProducer) PublishSubscriptionEvent(ctx context.Context, topic string, event *domain.SubscriptionEvent) error {
	return k.publish(ctx, topic, event.SubscriptionID.String(), event)
}

func (k *kafkaProducer) publish(ctx context.Context, topic, key string, payload any) error {
	messageValue, err := json.Marshal(payload)
	if err != nil {
		k.log.Errorw("Failed to marshal event data to JSON for Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: messageValue,
		Time:  time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "key", key)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Successfully published message to Kafka", "topic", topic, "key", key)
	return nil
}

// Close закрывает соединение Kafka Writer.
// Вызывается при завершении работы приложения (graceful shutdown).
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka producer writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	return nil
}

// NoOpProducer реализация Producer без внешних зависимостей.
// Используется в тестах и локальной разработке без Kafka.
type NoOpProducer struct{}

func (NoOpProducer) PublishBudgetEvent(context.Context, *domain.BudgetEvent) error { return nil }

func (NoOpProducer) PublishSubscriptionEvent(context.Context, string, *domain.SubscriptionEvent) error {
	return nil
}

func (NoOpProducer) Close() error { return nil }
