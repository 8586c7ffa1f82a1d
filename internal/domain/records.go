package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordKind задаёт тип записи выдачи в общем хранилище.
type RecordKind string

const (
	// RecordKindCard: записи ETC-карт.
	RecordKindCard RecordKind = "card"

	// RecordKindOBU: записи бортовых устройств (OBU).
	RecordKindOBU RecordKind = "obu"
)

// Confidence задаёт уверенность совпадения с существующей записью.
type Confidence string

const (
	// ConfidenceHigh: совпали телефон и номер паспорта.
	ConfidenceHigh Confidence = "high"

	// ConfidenceMedium: совпали номер ТС и имя владельца.
	ConfidenceMedium Confidence = "medium"
)

// RecordMatch: снимок найденной записи, только для чтения.
type RecordMatch struct {
	Kind       RecordKind `json:"record_kind"`
	RecordID   string     `json:"record_id"`
	Status     string     `json:"status"`
	Confidence Confidence `json:"confidence"`
}

// Key возвращает ключ записи для дедупликации между tier'ами.
func (m RecordMatch) Key() string {
	return string(m.Kind) + ":" + m.RecordID
}

// UndoEntry запоминает исходный статус записи, изменённой Guard'ом.
//
// Создаётся один раз на каждую изменённую запись и потребляется Restorer'ом
// ровно один раз. После Restored=true повторно не применяется.
type UndoEntry struct {
	// ID задаёт идентификатор записи в журнале отката.
	ID uuid.UUID `json:"id"`

	// SessionID задаёт сессию, в которой запись была изменена.
	SessionID uuid.UUID `json:"session_id"`

	Kind           RecordKind `json:"record_kind"`
	RecordID       string     `json:"record_id"`
	OriginalStatus string     `json:"original_status"`

	// Restored: исходный статус записан обратно.
	Restored bool `json:"restored"`

	// FailedReason заполняется, если восстановление не удалось.
	// Такая запись больше не пытается восстанавливаться в этой сессии.
	FailedReason string `json:"failed_reason,omitempty"`

	// CreatedAt задаёт время изменения записи.
	CreatedAt time.Time `json:"created_at"`
}

// Attempted сообщает, была ли уже попытка восстановления.
func (e *UndoEntry) Attempted() bool {
	return e.Restored || e.FailedReason != ""
}

// MarkRestored помечает запись восстановленной.
func (e *UndoEntry) MarkRestored() {
	e.Restored = true
	e.FailedReason = ""
}

// MarkFailed помечает неудачную попытку восстановления.
func (e *UndoEntry) MarkFailed(reason string) {
	if reason == "" {
		reason = "unknown error"
	}
	e.FailedReason = reason
}
