// listener.go — слушатель очереди вердиктов анализатора.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/edustore/material-module/internal/bus"
	"github.com/bigkaa/edustore/material-module/internal/correlation"
	"github.com/bigkaa/edustore/material-module/internal/domain/model"
)

// Метрики слушателя вердиктов.
var (
	verdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_verdicts_total",
		Help: "Общее количество полученных вердиктов по исходу доставки.",
	}, []string{"outcome"})
)

// VerdictListener — единственный потребитель очереди вердиктов.
// Каждый вердикт доставляется ожидающему слоту по correlation id.
// Вердикты без ожидающего запроса (опоздавшие после таймаута или
// с неизвестным id) отбрасываются с предупреждением.
type VerdictListener struct {
	sub      bus.Subscriber
	queue    string
	registry *correlation.Registry
	logger   *slog.Logger
}

// NewVerdictListener создаёт слушатель очереди вердиктов.
func NewVerdictListener(sub bus.Subscriber, queue string, registry *correlation.Registry, logger *slog.Logger) *VerdictListener {
	return &VerdictListener{
		sub:      sub,
		queue:    queue,
		registry: registry,
		logger:   logger.With(slog.String("component", "verdict_listener")),
	}
}

// Start запускает цикл потребления очереди вердиктов.
// Блокирует до отмены ctx или закрытия соединения с шиной.
func (l *VerdictListener) Start(ctx context.Context) error {
	l.logger.Info("Слушатель вердиктов запущен", slog.String("queue", l.queue))
	return l.sub.Subscribe(ctx, l.queue, l.handle, func(err error) {
		l.logger.Error("Ошибка потребления очереди вердиктов",
			slog.String("error", err.Error()))
	})
}

// handle обрабатывает одно сообщение очереди вердиктов.
func (l *VerdictListener) handle(msg bus.Message) {
	if msg.CorrelationID == "" {
		l.logger.Warn("Вердикт без correlation id — отброшен")
		verdictsTotal.WithLabelValues("malformed").Inc()
		return
	}

	var v model.Verdict
	if err := json.Unmarshal(msg.Body, &v); err != nil {
		l.logger.Warn("Некорректное тело вердикта — отброшено",
			slog.String("correlation_id", msg.CorrelationID),
			slog.String("error", err.Error()),
		)
		verdictsTotal.WithLabelValues("malformed").Inc()
		return
	}

	if !l.registry.Resolve(msg.CorrelationID, &v) {
		l.logger.Warn("Вердикт без ожидающего запроса — отброшен",
			slog.String("correlation_id", msg.CorrelationID))
		verdictsTotal.WithLabelValues("unmatched").Inc()
		return
	}

	verdictsTotal.WithLabelValues("delivered").Inc()
	l.logger.Debug("Вердикт доставлен",
		slog.String("correlation_id", msg.CorrelationID),
		slog.Bool("valid", v.Valid),
	)
}
