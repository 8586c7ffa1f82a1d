package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/engine"
	"github.com/shaiso/Tollgate/internal/orchestrator"
)

// Applications: операции саги, которые обслуживает API.
type Applications interface {
	Plan(variant domain.Variant) (*engine.Plan, error)
	Start(ctx context.Context, req orchestrator.StartRequest) (*orchestrator.StartResult, error)
	Resume(ctx context.Context, req orchestrator.ResumeRequest) (*orchestrator.FinalResult, error)
}

// Sessions: чтение журнала сессий.
type Sessions interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	ListSteps(ctx context.Context, sessionID uuid.UUID) ([]domain.StepRecord, error)
}

// ProgressStream отдаёт события прогресса по websocket.
type ProgressStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) error
}

// Handler: главный обработчик API с зависимостями.
type Handler struct {
	apps     Applications
	sessions Sessions
	stream   ProgressStream
	logger   *slog.Logger
}

// Config: конфигурация для создания Handler.
//
// Sessions и Stream необязательны: без них соответствующие
// маршруты отвечают 503.
type Config struct {
	Applications Applications
	Sessions     Sessions
	Stream       ProgressStream
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		apps:     cfg.Applications,
		sessions: cfg.Sessions,
		stream:   cfg.Stream,
		logger:   logger,
	}
}
