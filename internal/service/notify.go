// notify.go — отправка уведомлений о новых материалах.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/edustore/material-module/internal/bus"
	"github.com/bigkaa/edustore/material-module/internal/domain/model"
)

// NotifyService — fire-and-forget уведомления в очередь рассылки.
// Отказ доставки не влияет на судьбу материала: только лог.
type NotifyService struct {
	pub    bus.Publisher
	queue  string
	logger *slog.Logger
}

// NewNotifyService создаёт сервис уведомлений.
func NewNotifyService(pub bus.Publisher, queue string, logger *slog.Logger) *NotifyService {
	return &NotifyService{
		pub:    pub,
		queue:  queue,
		logger: logger.With(slog.String("component", "notify_service")),
	}
}

// MaterialCommitted отправляет уведомление о зафиксированном материале.
// Выполняется в отдельной горутине, вызывающий поток не блокируется.
func (n *NotifyService) MaterialCommitted(m *model.Material, verdict *model.Verdict) {
	note := model.Notification{
		Role:      "student",
		Template:  "material.uploaded",
		Summary:   fmt.Sprintf("Доступен новый материал: %s", m.Title),
		Topic:     verdict.Topic,
		Subject:   m.Subject,
		SendEmail: true,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		body, err := json.Marshal(note)
		if err == nil {
			err = n.pub.Publish(ctx, n.queue, bus.Message{
				Body:          body,
				CorrelationID: m.ID,
				Subject:       "notify",
				ContentType:   "application/json",
			})
		}
		if err != nil {
			n.logger.Warn("Не удалось отправить уведомление",
				slog.String("material_id", m.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		n.logger.Debug("Уведомление отправлено", slog.String("material_id", m.ID))
	}()
}
