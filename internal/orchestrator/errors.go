package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrInvalidTransition: шаг не может перейти в указанный статус.
	ErrInvalidTransition = errors.New("invalid step transition")

	// ErrStepOrder: шаг запущен не по порядку индексов.
	ErrStepOrder = errors.New("step executed out of order")

	// ErrStepNotInSegment: шаг не принадлежит текущему сегменту.
	ErrStepNotInSegment = errors.New("step does not belong to segment")

	// ErrPauseIdentifiers: точка паузы не вернула идентификаторы подписания.
	ErrPauseIdentifiers = errors.New("pause point produced no sign identifiers")

	// ErrResumeIdentifiers: resume вызван без кода или идентификаторов.
	ErrResumeIdentifiers = errors.New("resume requires code, order_id, sign_order_id and verify_code_no")

	// ErrUnknownVariant: тип заявки не поддерживается.
	ErrUnknownVariant = errors.New("unknown application variant")
)
