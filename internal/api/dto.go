package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/engine"
)

// Application DTOs

// StartApplicationRequest: запрос на запуск оформления.
type StartApplicationRequest struct {
	Variant   string            `json:"variant"`
	Params    map[string]string `json:"params"`
	IsSandbox bool              `json:"is_sandbox,omitempty"`
}

// ResumeApplicationRequest: код подтверждения и идентификаторы точки паузы.
type ResumeApplicationRequest struct {
	Variant      string            `json:"variant"`
	Code         string            `json:"code"`
	OrderID      string            `json:"order_id"`
	SignOrderID  string            `json:"sign_order_id"`
	VerifyCodeNo string            `json:"verify_code_no"`
	Params       map[string]string `json:"params"`
	IsSandbox    bool              `json:"is_sandbox,omitempty"`
}

// Plan DTOs

// PlanStepResponse: шаг плана с процентом прогресса.
type PlanStepResponse struct {
	Index           int    `json:"index"`
	Name            string `json:"name"`
	Title           string `json:"title,omitempty"`
	Operation       string `json:"operation"`
	Critical        bool   `json:"critical"`
	ContinueOnError bool   `json:"continue_on_error"`
	RetryCount      int    `json:"retry_count,omitempty"`
	PauseAfter      bool   `json:"pause_after,omitempty"`
	Percent         int    `json:"percent"`
}

// PlanResponse: таблица шагов варианта.
type PlanResponse struct {
	Variant    domain.Variant     `json:"variant"`
	PauseIndex int                `json:"pause_index"`
	Steps      []PlanStepResponse `json:"steps"`
}

// PlanFromEngine конвертирует engine.Plan в PlanResponse.
func PlanFromEngine(p *engine.Plan) PlanResponse {
	resp := PlanResponse{
		Variant:    p.Variant,
		PauseIndex: p.PauseIndex(),
		Steps:      make([]PlanStepResponse, len(p.Steps)),
	}
	for i, s := range p.Steps {
		resp.Steps[i] = PlanStepResponse{
			Index:           s.Index,
			Name:            s.Name,
			Title:           s.Title,
			Operation:       s.OperationName(),
			Critical:        s.Critical,
			ContinueOnError: s.ContinueOnError,
			RetryCount:      s.RetryCount,
			PauseAfter:      s.PauseAfter,
			Percent:         p.Percent(s.Index),
		}
	}
	return resp
}

// Session DTOs

// SessionResponse: сегмент сессии с журналом шагов.
type SessionResponse struct {
	ID         uuid.UUID      `json:"id"`
	Variant    domain.Variant `json:"variant"`
	Phase      domain.Phase   `json:"phase"`
	Status     string         `json:"status"`
	OrderID    string         `json:"order_id,omitempty"`
	IsSandbox  bool           `json:"is_sandbox"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Steps      []StepResponse `json:"steps"`
}

// StepResponse: запись журнала шага.
type StepResponse struct {
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	Swallowed  bool      `json:"swallowed,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SessionFromDomain конвертирует domain.Session и журнал шагов в SessionResponse.
func SessionFromDomain(s domain.Session, steps []domain.StepRecord) SessionResponse {
	resp := SessionResponse{
		ID:         s.ID,
		Variant:    s.Variant,
		Phase:      s.Phase,
		Status:     string(s.Status),
		OrderID:    s.OrderID,
		IsSandbox:  s.IsSandbox,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Error:      s.Error,
		CreatedAt:  s.CreatedAt,
		Steps:      make([]StepResponse, len(steps)),
	}
	for i, rec := range steps {
		resp.Steps[i] = StepResponse{
			Index:      rec.Index,
			Name:       rec.Name,
			Status:     string(rec.Status),
			Attempts:   rec.Attempts,
			Error:      rec.Error,
			Swallowed:  rec.Swallowed,
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
		}
	}
	return resp
}
