package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepRecord: запись журнала о выполнении шага внутри сегмента.
//
// Пишется после каждого шага, успешного или нет. Используется для
// разбора инцидентов: какие шаги прошли до паузы или аварии.
type StepRecord struct {
	// SessionID ссылается на сегмент.
	SessionID uuid.UUID `json:"session_id"`

	// Index и Name копируют StepDef.
	Index int    `json:"index"`
	Name  string `json:"name"`

	// Status задаёт финальный статус шага.
	Status StepStatus `json:"status"`

	// Attempts задаёт число выполненных попыток.
	Attempts int `json:"attempts"`

	// Error содержит причину отказа.
	Error string `json:"error,omitempty"`

	// Swallowed: отказ шага с continue_on_error, сага продолжилась.
	Swallowed bool `json:"swallowed,omitempty"`

	// StartedAt и FinishedAt задают границы выполнения.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewStepRecord собирает запись журнала из результата шага.
func NewStepRecord(sessionID uuid.UUID, res *StepResult, finishedAt time.Time) StepRecord {
	rec := StepRecord{
		SessionID:  sessionID,
		Index:      res.Step.Index,
		Name:       res.Step.Name,
		Status:     res.Status(),
		Attempts:   res.Attempts,
		Error:      res.ErrorMessage,
		StartedAt:  finishedAt.Add(-res.Duration),
		FinishedAt: finishedAt,
	}
	if !res.Succeeded && !res.Step.AbortsOnFailure() {
		rec.Swallowed = true
	}
	return rec
}

// Duration возвращает продолжительность шага.
func (r *StepRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
