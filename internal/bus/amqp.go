// amqp.go — реализация шины сообщений поверх RabbitMQ (amqp091-go).
// Очереди объявляются durable при первом обращении. Публикация идёт
// через выделенный канал под мьютексом (каналы AMQP не потокобезопасны),
// каждая подписка получает собственный канал и goroutine-цикл.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBus — шина сообщений на RabbitMQ.
type AMQPBus struct {
	conn   *amqp.Connection
	logger *slog.Logger

	// pubMu защищает pubCh: публикации из конкурентных потоков
	// валидации сериализуются.
	pubMu sync.Mutex
	pubCh *amqp.Channel

	// declared — очереди, уже объявленные этим соединением
	declMu   sync.Mutex
	declared map[string]bool
}

// NewAMQPBus устанавливает соединение с RabbitMQ и открывает
// канал публикации.
func NewAMQPBus(url string, logger *slog.Logger) (*AMQPBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("подключение к RabbitMQ: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("открытие канала публикации: %w", err)
	}

	return &AMQPBus{
		conn:     conn,
		logger:   logger.With(slog.String("component", "amqp_bus")),
		pubCh:    pubCh,
		declared: make(map[string]bool),
	}, nil
}

// declareQueue объявляет durable-очередь, если она ещё не объявлялась
// этим соединением. Объявление идемпотентно на стороне брокера.
func (b *AMQPBus) declareQueue(ch *amqp.Channel, queue string) error {
	b.declMu.Lock()
	defer b.declMu.Unlock()

	if b.declared[queue] {
		return nil
	}

	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("объявление очереди %s: %w", queue, err)
	}
	b.declared[queue] = true
	return nil
}

// Publish отправляет сообщение в указанную очередь через default exchange.
func (b *AMQPBus) Publish(ctx context.Context, queue string, msg Message) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if err := b.declareQueue(b.pubCh, queue); err != nil {
		return err
	}

	err := b.pubCh.PublishWithContext(ctx,
		"",    // exchange (default — routing key = имя очереди)
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   msg.ContentType,
			CorrelationId: msg.CorrelationID,
			Type:          msg.Subject,
			Body:          msg.Body,
			DeliveryMode:  amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("публикация в очередь %s: %w", queue, err)
	}
	return nil
}

// Subscribe запускает цикл потребления очереди в отдельной goroutine.
// Сообщения подтверждаются (ack) после возврата onMessage.
// Возвращает ошибку только если подписку не удалось установить.
func (b *AMQPBus) Subscribe(ctx context.Context, queue string, onMessage Handler, onError func(error)) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("открытие канала подписки: %w", err)
	}

	if err := b.declareQueue(ch, queue); err != nil {
		ch.Close()
		return err
	}

	deliveries, err := ch.Consume(
		queue,
		"",    // consumer tag (автогенерация)
		false, // autoAck — подтверждаем вручную после обработки
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("подписка на очередь %s: %w", queue, err)
	}

	go func() {
		defer ch.Close()

		b.logger.Info("Подписка на очередь установлена", slog.String("queue", queue))

		for {
			select {
			case <-ctx.Done():
				b.logger.Info("Подписка остановлена", slog.String("queue", queue))
				return
			case d, ok := <-deliveries:
				if !ok {
					// Канал закрыт брокером или соединением
					if onError != nil {
						onError(fmt.Errorf("канал доставки очереди %s закрыт", queue))
					}
					return
				}

				onMessage(Message{
					Body:          d.Body,
					CorrelationID: d.CorrelationId,
					Subject:       d.Type,
					ContentType:   d.ContentType,
				})

				if ackErr := d.Ack(false); ackErr != nil && onError != nil {
					onError(fmt.Errorf("подтверждение сообщения очереди %s: %w", queue, ackErr))
				}
			}
		}
	}()

	return nil
}

// CheckReady сообщает состояние соединения с брокером.
// Используется readiness probe.
func (b *AMQPBus) CheckReady() (status string, message string) {
	if b.conn.IsClosed() {
		return "fail", "соединение с RabbitMQ закрыто"
	}
	return "ok", ""
}

// Close закрывает канал публикации и соединение.
func (b *AMQPBus) Close() error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if err := b.pubCh.Close(); err != nil {
		b.logger.Warn("Ошибка закрытия канала публикации", slog.String("error", err.Error()))
	}
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("закрытие соединения RabbitMQ: %w", err)
	}
	return nil
}
