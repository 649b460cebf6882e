// analyzer-mock — заглушка внешнего анализатора для локальной разработки
// и интеграционных стендов. Потребляет очередь запросов анализа и отвечает
// положительным вердиктом с тем же correlation id. Сообщения типа "save"
// (подтверждения фиксации) пропускаются без ответа.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bigkaa/edustore/material-module/internal/bus"
	"github.com/bigkaa/edustore/material-module/internal/config"
	"github.com/bigkaa/edustore/material-module/internal/domain/model"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg).With(slog.String("component", "analyzer_mock"))
	logger.Info("Analyzer mock запускается",
		slog.String("analysis_queue", cfg.AnalysisQueue),
		slog.String("verdict_queue", cfg.VerdictQueue),
	)

	amqpBus, err := bus.NewAMQPBus(cfg.AMQPURL, logger)
	if err != nil {
		logger.Error("Ошибка подключения к RabbitMQ", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer amqpBus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = amqpBus.Subscribe(ctx, cfg.AnalysisQueue, func(msg bus.Message) {
		// Подтверждения фиксации не требуют ответа
		if msg.Subject == "save" {
			logger.Debug("Получено подтверждение фиксации",
				slog.String("correlation_id", msg.CorrelationID))
			return
		}

		var req model.AnalysisRequest
		if err := json.Unmarshal(msg.Body, &req); err != nil {
			logger.Warn("Некорректный запрос анализа",
				slog.String("correlation_id", msg.CorrelationID),
				slog.String("error", err.Error()),
			)
			return
		}

		verdict := model.Verdict{
			Valid:   true,
			Tags:    []string{"demo"},
			Topic:   "общая тема",
			Subject: "общий предмет",
		}
		body, _ := json.Marshal(verdict)

		pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pubCancel()

		pubErr := amqpBus.Publish(pubCtx, cfg.VerdictQueue, bus.Message{
			Body:          body,
			CorrelationID: msg.CorrelationID,
			ContentType:   "application/json",
		})
		if pubErr != nil {
			logger.Error("Ошибка публикации вердикта",
				slog.String("correlation_id", msg.CorrelationID),
				slog.String("error", pubErr.Error()),
			)
			return
		}

		logger.Info("Вердикт отправлен",
			slog.String("correlation_id", msg.CorrelationID),
			slog.String("file", req.Filename),
		)
	}, func(err error) {
		logger.Error("Ошибка потребления очереди анализа", slog.String("error", err.Error()))
	})
	if err != nil {
		logger.Error("Ошибка подписки на очередь анализа", slog.String("error", err.Error()))
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
}
