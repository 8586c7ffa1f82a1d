package records

import (
	"context"

	"github.com/shaiso/Tollgate/internal/domain"
)

// Статусы записей выдачи.
const (
	// StatusActive: запись действующая, блокирует повторную заявку.
	StatusActive = "1"

	// StatusReapplyAllowed: запись временно разрешает повторную заявку.
	StatusReapplyAllowed = "2"

	// StatusCancelled, StatusBlacklisted и StatusWrittenOff считаются
	// заблокированными: такие записи никогда не меняются.
	StatusCancelled   = "4"
	StatusBlacklisted = "5"
	StatusWrittenOff  = "9"
)

// DefaultBlockedStatuses перечисляет статусы, исключаемые из поиска.
var DefaultBlockedStatuses = []string{StatusCancelled, StatusBlacklisted, StatusWrittenOff}

// MatchKey задаёт связку полей для поиска.
type MatchKey int

const (
	// ByPerson: телефон и номер удостоверения.
	ByPerson MatchKey = iota + 1

	// ByVehicle: номер ТС и имя владельца.
	ByVehicle
)

// String возвращает имя связки.
func (k MatchKey) String() string {
	switch k {
	case ByPerson:
		return "person"
	case ByVehicle:
		return "vehicle"
	default:
		return "unknown"
	}
}

// Kinds перечисляет типы записей, по которым идёт поиск.
var Kinds = []domain.RecordKind{domain.RecordKindCard, domain.RecordKindOBU}

// Store описывает хранилище записей выдачи.
type Store interface {
	// FindMatches ищет записи всех типов по связке key.
	// Записи в заблокированных статусах не возвращаются.
	// Confidence в результате не заполняется.
	FindMatches(ctx context.Context, key MatchKey, id domain.Identity) ([]domain.RecordMatch, error)

	// ReadStatus возвращает текущий статус записи.
	ReadStatus(ctx context.Context, kind domain.RecordKind, recordID string) (string, error)

	// WriteStatus записывает статус и аудит-заметку.
	WriteStatus(ctx context.Context, kind domain.RecordKind, recordID, status, note string) error
}
