package domain

import (
	"errors"
	"fmt"
)

// Классы отказов саги.
var (
	// ErrValidation: параметры некорректны, удалённых вызовов не было.
	ErrValidation = errors.New("validation failure")

	// ErrRemoteCall: сетевой сбой, таймаут или отказ контрагента.
	ErrRemoteCall = errors.New("remote call failure")

	// ErrDuplicateGuard: ошибка поиска или изменения существующих записей.
	ErrDuplicateGuard = errors.New("duplicate guard failure")

	// ErrCompensation: ошибка восстановления статуса записи.
	// Только логируется, наружу не поднимается.
	ErrCompensation = errors.New("compensation failure")
)

// FailureKind задаёт класс отказа для FatalError.
type FailureKind string

const (
	FailureValidation     FailureKind = "validation"
	FailureRemoteCall     FailureKind = "remote_call"
	FailureDuplicateGuard FailureKind = "duplicate_guard"
	FailureCompensation   FailureKind = "compensation"
)

// sentinel возвращает базовую ошибку для класса.
func (k FailureKind) sentinel() error {
	switch k {
	case FailureValidation:
		return ErrValidation
	case FailureRemoteCall:
		return ErrRemoteCall
	case FailureDuplicateGuard:
		return ErrDuplicateGuard
	case FailureCompensation:
		return ErrCompensation
	default:
		return nil
	}
}

// FatalError: единственное терминальное сообщение об ошибке для вызывающей стороны.
//
// Для отказа шага содержит индекс и имя шага; для pre-flight отказов
// (валидация, Guard) Index равен 0.
type FatalError struct {
	Kind   FailureKind
	Index  int
	Name   string
	Reason string
	Err    error
}

// Error реализует интерфейс error.
func (e *FatalError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%d. %s failed: %s", e.Index, e.Name, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap позволяет errors.Is сравнивать с классом и исходной ошибкой.
func (e *FatalError) Unwrap() []error {
	var errs []error
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewValidationError создаёт FatalError класса validation.
func NewValidationError(reason string) *FatalError {
	return &FatalError{Kind: FailureValidation, Reason: reason}
}

// NewGuardError создаёт FatalError класса duplicate_guard.
func NewGuardError(reason string, err error) *FatalError {
	return &FatalError{Kind: FailureDuplicateGuard, Reason: reason, Err: err}
}

// NewStepError создаёт FatalError для упавшего критичного шага.
func NewStepError(step StepDef, reason string, err error) *FatalError {
	name := step.Title
	if name == "" {
		name = step.Name
	}
	return &FatalError{
		Kind:   FailureRemoteCall,
		Index:  step.Index,
		Name:   name,
		Reason: reason,
		Err:    err,
	}
}

// AsFatal извлекает FatalError из цепочки ошибок.
func AsFatal(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
