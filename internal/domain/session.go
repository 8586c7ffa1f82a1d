package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session описывает один сегмент попытки оформления (start или resume).
//
// Session создаётся когда:
// - Вызывающая сторона запускает оформление (PhaseStart)
// - Вызывающая сторона возвращает код подтверждения (PhaseResume)
//
// Оба сегмента одной попытки связаны через OrderID.
type Session struct {
	// ID задаёт уникальный идентификатор сегмента.
	ID uuid.UUID `json:"id"`

	// Variant задаёт тип заявки.
	Variant Variant `json:"variant"`

	// Phase задаёт сегмент: start или resume.
	Phase Phase `json:"phase"`

	// Status задаёт текущий статус сегмента.
	Status RunStatus `json:"status"`

	// OrderID заполняется, когда шаг создания заказа его вернул.
	OrderID string `json:"order_id,omitempty"`

	// IsSandbox: сегмент выполняется против sandbox-шлюза.
	IsSandbox bool `json:"is_sandbox,omitempty"`

	// StartedAt задаёт время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt задаёт время завершения (успешного, паузы или аварийного).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error содержит терминальное сообщение, если сегмент ABORTED.
	Error string `json:"error,omitempty"`

	// CreatedAt задаёт время создания сегмента.
	CreatedAt time.Time `json:"created_at"`
}

// NewSession создаёт сегмент в статусе RUNNING.
func NewSession(variant Variant, phase Phase, sandbox bool) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New(),
		Variant:   variant,
		Phase:     phase,
		Status:    RunStatusRunning,
		IsSandbox: sandbox,
		StartedAt: &now,
		CreatedAt: now,
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если сегмент ещё не завершён.
func (s *Session) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

// IsFinished возвращает true, если сегмент завершён (в любом статусе).
func (s *Session) IsFinished() bool {
	return s.Status.IsTerminal()
}

// MarkPaused переводит сегмент в статус PAUSED.
func (s *Session) MarkPaused() {
	s.finish(RunStatusPaused, "")
}

// MarkCompleted переводит сегмент в статус COMPLETED.
func (s *Session) MarkCompleted() {
	s.finish(RunStatusCompleted, "")
}

// MarkAborted переводит сегмент в статус ABORTED с ошибкой.
func (s *Session) MarkAborted(err string) {
	s.finish(RunStatusAborted, err)
}

func (s *Session) finish(status RunStatus, err string) {
	now := time.Now()
	s.Status = status
	s.FinishedAt = &now
	s.Error = err
}
