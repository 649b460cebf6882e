package pipeline

import "testing"

// TestHappyPath проверяет полный успешный путь валидации.
func TestHappyPath(t *testing.T) {
	m := New()

	if m.Current() != StateRequested {
		t.Fatalf("начальное состояние = %q, ожидалось %q", m.Current(), StateRequested)
	}

	steps := []State{StateDeduped, StateStaged, StateAnalysisSent, StateCommitted}
	for _, s := range steps {
		if err := m.Advance(s); err != nil {
			t.Fatalf("Advance(%s): неожиданная ошибка: %v", s, err)
		}
	}

	if !m.Terminal() {
		t.Error("committed должно быть терминальным состоянием")
	}
	if got := len(m.History()); got != 4 {
		t.Errorf("длина истории = %d, ожидалось 4", got)
	}
}

// TestFailureBranches проверяет терминальные ветки отказа.
func TestFailureBranches(t *testing.T) {
	tests := []struct {
		name string
		path []State
	}{
		{"staging_failed", []State{StateDeduped, StateStagingFailed}},
		{"publish_failed", []State{StateDeduped, StateStaged, StatePublishFailed}},
		{"rejected", []State{StateDeduped, StateStaged, StateAnalysisSent, StateRejected}},
		{"timed_out", []State{StateDeduped, StateStaged, StateAnalysisSent, StateTimedOut}},
		{"commit_failed", []State{StateDeduped, StateStaged, StateAnalysisSent, StateCommitFailed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			for _, s := range tt.path {
				if err := m.Advance(s); err != nil {
					t.Fatalf("Advance(%s): неожиданная ошибка: %v", s, err)
				}
			}
			if !m.Terminal() {
				t.Errorf("%s должно быть терминальным состоянием", tt.path[len(tt.path)-1])
			}
		})
	}
}

// TestInvalidTransitions проверяет запрет недопустимых переходов.
func TestInvalidTransitions(t *testing.T) {
	// Перепрыгивание состояний запрещено
	m := New()
	if err := m.Advance(StateStaged); err == nil {
		t.Error("requested → staged должен вернуть ошибку")
	}
	if err := m.Advance(StateCommitted); err == nil {
		t.Error("requested → committed должен вернуть ошибку")
	}

	// Из терминального состояния переходов нет
	m = New()
	for _, s := range []State{StateDeduped, StateStagingFailed} {
		if err := m.Advance(s); err != nil {
			t.Fatalf("Advance(%s): неожиданная ошибка: %v", s, err)
		}
	}
	if err := m.Advance(StateStaged); err == nil {
		t.Error("переход из терминального состояния должен вернуть ошибку")
	}

	// Состояние не изменилось после неудачного перехода
	if m.Current() != StateStagingFailed {
		t.Errorf("состояние = %q, ожидалось %q", m.Current(), StateStagingFailed)
	}
}
