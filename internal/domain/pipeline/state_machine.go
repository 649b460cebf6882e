// Пакет pipeline — конечный автомат состояний запроса валидации.
//
// Линейный путь:
//   requested → deduped → staged → analysis_sent → committed
//
// Терминальные ветки отказа: rejected, timed_out, staging_failed,
// publish_failed, commit_failed. Каждый запрос валидации владеет
// собственным экземпляром автомата; недопустимый переход — ошибка
// программиста, а не среды.
//
// Потокобезопасен через sync.Mutex.
package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние запроса валидации.
type State string

const (
	// StateRequested — запрос принят, отпечаток ещё не проверен
	StateRequested State = "requested"
	// StateDeduped — дубликатов не найдено
	StateDeduped State = "deduped"
	// StateStaged — файл помещён в blob-хранилище
	StateStaged State = "staged"
	// StateAnalysisSent — запрос анализа опубликован, ожидание вердикта
	StateAnalysisSent State = "analysis_sent"
	// StateCommitted — материал зафиксирован в базе данных
	StateCommitted State = "committed"
	// StateRejected — анализатор отклонил материал
	StateRejected State = "rejected"
	// StateTimedOut — вердикт не получен за отведённое время
	StateTimedOut State = "timed_out"
	// StateStagingFailed — ошибка записи в blob-хранилище
	StateStagingFailed State = "staging_failed"
	// StatePublishFailed — ошибка публикации запроса анализа
	StatePublishFailed State = "publish_failed"
	// StateCommitFailed — ошибка фиксации после положительного вердикта
	StateCommitFailed State = "commit_failed"
)

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateRequested: {StateDeduped: true},
	StateDeduped:   {StateStaged: true, StateStagingFailed: true},
	StateStaged:    {StateAnalysisSent: true, StatePublishFailed: true},
	StateAnalysisSent: {
		StateCommitted:    true,
		StateRejected:     true,
		StateTimedOut:     true,
		StateCommitFailed: true,
	},
	// Терминальные состояния — переходов нет
	StateCommitted:     {},
	StateRejected:      {},
	StateTimedOut:      {},
	StateStagingFailed: {},
	StatePublishFailed: {},
	StateCommitFailed:  {},
}

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Machine — автомат состояний одного запроса валидации.
type Machine struct {
	mu      sync.Mutex
	current State
	history []TransitionRecord
}

// New создаёт автомат в состоянии requested.
func New() *Machine {
	return &Machine{
		current: StateRequested,
		history: make([]TransitionRecord, 0, 4),
	}
}

// Current возвращает текущее состояние.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance выполняет переход в указанное состояние.
// Недопустимый переход — ошибка (нарушение контракта оркестратора).
func (m *Machine) Advance(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	transitions, ok := validTransitions[m.current]
	if !ok || !transitions[target] {
		return fmt.Errorf("недопустимый переход %s → %s", m.current, target)
	}

	m.history = append(m.history, TransitionRecord{
		From:      m.current,
		To:        target,
		Timestamp: time.Now().UTC(),
	})
	m.current = target
	return nil
}

// Terminal сообщает, находится ли автомат в терминальном состоянии.
func (m *Machine) Terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(validTransitions[m.current]) == 0
}

// History возвращает копию истории переходов.
func (m *Machine) History() []TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]TransitionRecord, len(m.history))
	copy(result, m.history)
	return result
}
