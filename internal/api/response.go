package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/engine"
	"github.com/shaiso/Tollgate/internal/lock"
	"github.com/shaiso/Tollgate/internal/repo"
)

// ErrorCode: код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeValidation     ErrorCode = "VALIDATION_FAILED"
	ErrCodeDuplicateGuard ErrorCode = "DUPLICATE_GUARD_FAILED"
	ErrCodeRemoteCall     ErrorCode = "REMOTE_CALL_FAILED"
	ErrCodeUnavailable    ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse: структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail: детали ошибки.
// StepIndex и StepName заполняются, если сессию прервал шаг.
type ErrorDetail struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	StepIndex int       `json:"step_index,omitempty"`
	StepName  string    `json:"step_name,omitempty"`
}

// DataResponse: структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет ответ о создании ресурса.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// Unavailable отправляет ошибку 503.
func Unavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// HandleSagaError преобразует ошибку оркестратора в HTTP ответ.
//
// validation → 400, duplicate_guard → 409, remote_call → 502.
// Занятая блокировка resume → 409.
func HandleSagaError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	if fe, ok := domain.AsFatal(err); ok {
		status, code := http.StatusBadGateway, ErrCodeRemoteCall
		switch fe.Kind {
		case domain.FailureValidation:
			status, code = http.StatusBadRequest, ErrCodeValidation
		case domain.FailureDuplicateGuard:
			status, code = http.StatusConflict, ErrCodeDuplicateGuard
		}
		JSON(w, status, ErrorResponse{
			Error: ErrorDetail{
				Code:      code,
				Message:   fe.Error(),
				StepIndex: fe.Index,
				StepName:  fe.Name,
			},
		})
		return true
	}

	if errors.Is(err, lock.ErrHeld) {
		Error(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return true
	}

	if errors.Is(err, engine.ErrPlanNotFound) {
		NotFound(w, err.Error())
		return true
	}

	InternalError(w, logger, err)
	return true
}

// HandleRepoError преобразует ошибку репозитория в HTTP ответ.
func HandleRepoError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, repo.ErrNotFound) {
		NotFound(w, notFoundMsg)
		return true
	}

	InternalError(w, logger, err)
	return true
}
