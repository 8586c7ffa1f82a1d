package records

import "errors"

var (
	// ErrNotFound: запись не найдена.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownKind: тип записи не поддерживается.
	ErrUnknownKind = errors.New("unknown record kind")
)
