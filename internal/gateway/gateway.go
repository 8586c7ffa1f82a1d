package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Ошибки шлюза.
var (
	// ErrTransport: ответ не получен или не разобран.
	ErrTransport = errors.New("gateway transport error")

	// ErrRejected: контрагент отклонил операцию.
	ErrRejected = errors.New("gateway rejected operation")
)

// Gateway выполняет одну удалённую операцию.
type Gateway interface {
	Call(ctx context.Context, operation string, payload map[string]any) (*Response, error)
}

// Response содержит разобранный ответ шлюза.
type Response struct {
	// Code задаёт значение дискриминанта.
	Code string `json:"code"`

	// Message содержит текст ответа контрагента.
	Message string `json:"message,omitempty"`

	// Data содержит поля ответа. Вложенный объект "data" поднимается
	// на верхний уровень.
	Data map[string]any `json:"data,omitempty"`
}

// RejectedError описывает отказ контрагента.
type RejectedError struct {
	Operation string
	Code      string
	Message   string
}

// Error реализует интерфейс error.
func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected with code %s", e.Operation, e.Code)
	}
	return fmt.Sprintf("%s rejected with code %s: %s", e.Operation, e.Code, e.Message)
}

// Is позволяет errors.Is(err, ErrRejected).
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// IsRetryable сообщает, имеет ли смысл повторять вызов.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
