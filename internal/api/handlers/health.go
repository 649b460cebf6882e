// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bigkaa/edustore/material-module/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// ReadyChecker — проверка готовности одной зависимости.
// Возвращает статус ("ok"/"fail") и сообщение об ошибке.
type ReadyChecker interface {
	CheckReady() (status string, message string)
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// db — проверка подключения к PostgreSQL
	db ReadyChecker
	// broker — проверка соединения с RabbitMQ
	broker ReadyChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
// db и broker могут быть nil — тогда соответствующая проверка пропускается.
func NewHealthHandler(db, broker ReadyChecker) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		db:      db,
		broker:  broker,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "material-module",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет подключение к PostgreSQL и соединение с RabbitMQ.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	checks := map[string]any{}

	dbCheck := runCheck(h.db)
	checks["database"] = dbCheck
	if dbCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	brokerCheck := runCheck(h.broker)
	checks["message_bus"] = brokerCheck
	if brokerCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "material-module",
		"checks":    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// runCheck выполняет проверку зависимости. nil-checker считается "ok".
func runCheck(c ReadyChecker) map[string]any {
	if c == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	status, message := c.CheckReady()
	result := map[string]any{"status": status}
	if message != "" {
		result["message"] = message
	}
	return result
}
