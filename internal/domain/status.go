package domain

// StepStatus описывает состояние одного шага внутри сессии.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//
// Шаг не возвращается в RUNNING: повторные попытки (если включены)
// выполняются внутри одного RUNNING.
type StepStatus string

const (
	// StepStatusPending означает, что шаг ещё не начинался.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusRunning означает, что шаг выполняется.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusSucceeded означает успешное завершение шага.
	StepStatusSucceeded StepStatus = "SUCCEEDED"

	// StepStatusFailed означает, что шаг завершился с ошибкой.
	StepStatusFailed StepStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSucceeded, StepStatusFailed:
		return true
	default:
		return false
	}
}

// RunStatus описывает состояние одного сегмента сессии (start или resume).
//
// Жизненный цикл:
//
//	RUNNING → PAUSED     (start дошёл до точки ожидания кода)
//	        → COMPLETED  (resume выполнил все шаги)
//	        → ABORTED    (упал критичный шаг или pre-flight проверка)
type RunStatus string

const (
	// RunStatusRunning означает, что сегмент выполняется.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusPaused означает остановку в ожидании кода подтверждения.
	RunStatusPaused RunStatus = "PAUSED"

	// RunStatusCompleted означает, что все шаги выполнены.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusAborted означает аварийное завершение.
	RunStatusAborted RunStatus = "ABORTED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusPaused, RunStatusCompleted, RunStatusAborted:
		return true
	default:
		return false
	}
}

// Phase определяет, какой сегмент сессии выполняется.
type Phase string

const (
	// PhaseStart выполняет шаги до точки паузы включительно.
	PhaseStart Phase = "start"

	// PhaseResume выполняет шаги после точки паузы.
	PhaseResume Phase = "resume"
)

// Variant определяет тип заявки (пассажирский или грузовой транспорт).
type Variant string

const (
	VariantPassenger Variant = "passenger"
	VariantFreight   Variant = "freight"
)

// ParseVariant парсит строку в Variant.
// Пустая строка трактуется как passenger.
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "", string(VariantPassenger):
		return VariantPassenger, true
	case string(VariantFreight):
		return VariantFreight, true
	default:
		return "", false
	}
}
