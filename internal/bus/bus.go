// Пакет bus — транспорт сообщений Material Module.
//
// Паттерн использования — request/response поверх fire-and-forget
// очередей: запрос анализа публикуется с correlation id, вердикт
// возвращается отдельным сообщением в другую очередь с тем же id.
// Сопоставление ответа с запросом — обязанность вызывающего кода
// (correlation.Registry), не транспорта.
package bus

import "context"

// Message — единица обмена через шину.
type Message struct {
	// Body — сериализованное тело сообщения
	Body []byte
	// CorrelationID — токен связи запроса с ответом
	CorrelationID string
	// Subject — тип события (analysis, save и т.д.)
	Subject string
	// ContentType — MIME-тип тела
	ContentType string
}

// Handler — обработчик входящего сообщения.
type Handler func(msg Message)

// Publisher — публикация сообщений в очередь.
type Publisher interface {
	// Publish отправляет сообщение в указанную очередь.
	Publish(ctx context.Context, queue string, msg Message) error
}

// Subscriber — подписка на очередь.
type Subscriber interface {
	// Subscribe запускает долгоживущий цикл потребления очереди.
	// onMessage вызывается для каждого сообщения, onError — при ошибках
	// доставки. Цикл завершается при отмене ctx или закрытии соединения.
	Subscribe(ctx context.Context, queue string, onMessage Handler, onError func(error)) error
}

// Bus — полный интерфейс шины сообщений.
type Bus interface {
	Publisher
	Subscriber
	// Close закрывает соединение с шиной.
	Close() error
}
