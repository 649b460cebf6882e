// Пакет correlation — реестр ожидающих валидаций.
//
// Связывает асинхронную доставку вердиктов из шины сообщений
// с синхронно ожидающими потоками оркестратора. Каждый запрос
// валидации регистрирует слот по своему correlation id и ждёт
// вердикт через Await; единственный слушатель очереди вердиктов
// доставляет их через Resolve.
//
// Семантика take-first: для одного id учитывается ровно одно
// завершение — вердикт или таймаут, что раньше захватит слот
// под мьютексом. Поздний вердикт после таймаута отбрасывается
// (Resolve возвращает false, вызывающий код логирует).
package correlation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/edustore/material-module/internal/domain/model"
)

// ErrTimeout — вердикт не получен за отведённое время.
var ErrTimeout = errors.New("таймаут ожидания вердикта")

// pendingValidations — количество активных слотов (gauge).
var pendingValidations = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "mm_pending_validations",
	Help: "Текущее количество валидаций, ожидающих вердикт анализатора",
})

// Pending — слот одной ожидающей валидации.
type Pending struct {
	registry      *Registry
	correlationID string
	// ch — канал доставки вердикта (ёмкость 1: Resolve не блокируется)
	ch      chan *model.Verdict
	timeout time.Duration
	// createdAt — время регистрации слота
	createdAt time.Time
}

// CorrelationID возвращает correlation id слота.
func (p *Pending) CorrelationID() string {
	return p.correlationID
}

// Await блокирует вызывающий поток до получения вердикта или
// истечения таймаута. На таймауте слот снимается атомарно:
// если Resolve успел захватить слот первым, возвращается его вердикт.
func (p *Pending) Await() (*model.Verdict, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case v := <-p.ch:
		return v, nil
	case <-timer.C:
		// Снимаем слот под мьютексом. Если Resolve опередил таймер,
		// слота уже нет и вердикт лежит в канале — забираем его.
		if p.registry.remove(p.correlationID) {
			return nil, ErrTimeout
		}
		// Слот уже снят конкурентным Resolve — вердикт в канале
		// или будет записан сразу после разблокировки мьютекса.
		return <-p.ch, nil
	}
}

// Registry — потокобезопасный реестр ожидающих валидаций.
// Поддерживает произвольное количество одновременных слотов.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*Pending
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[string]*Pending),
	}
}

// Register выделяет слот для correlation id с указанным таймаутом.
// Повторная регистрация того же id — ошибка программиста.
func (r *Registry) Register(correlationID string, timeout time.Duration) (*Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[correlationID]; exists {
		return nil, fmt.Errorf("correlation id %q уже зарегистрирован", correlationID)
	}

	p := &Pending{
		registry:      r,
		correlationID: correlationID,
		ch:            make(chan *model.Verdict, 1),
		timeout:       timeout,
		createdAt:     time.Now().UTC(),
	}
	r.pending[correlationID] = p
	pendingValidations.Inc()

	return p, nil
}

// Resolve доставляет вердикт ожидающему слоту и снимает его.
// Возвращает false, если слот не найден (неизвестный id или вердикт
// пришёл после таймаута) — вердикт в этом случае отбрасывается.
func (r *Registry) Resolve(correlationID string, verdict *model.Verdict) bool {
	r.mu.Lock()
	p, ok := r.pending[correlationID]
	if ok {
		delete(r.pending, correlationID)
		pendingValidations.Dec()
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	// Ёмкость канала 1 и единственность доставки (слот уже снят)
	// гарантируют, что запись не блокируется.
	p.ch <- verdict
	return true
}

// Cancel снимает слот без доставки вердикта. Используется, когда
// запрос анализа не удалось опубликовать и ждать вердикт бессмысленно.
// Возвращает true, если слот ещё существовал.
func (r *Registry) Cancel(correlationID string) bool {
	return r.remove(correlationID)
}

// Len возвращает количество активных слотов.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// remove снимает слот при таймауте. Возвращает true, если слот
// ещё существовал (таймаут победил), false — если его уже снял Resolve.
func (r *Registry) remove(correlationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[correlationID]; !ok {
		return false
	}
	delete(r.pending, correlationID)
	pendingValidations.Dec()
	return true
}
