package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/orchestrator"
)

// StartApplication выполняет шаги до точки паузы.
// POST /api/v1/applications
func (h *Handler) StartApplication(w http.ResponseWriter, r *http.Request) {
	var req StartApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	result, err := h.apps.Start(r.Context(), orchestrator.StartRequest{
		Variant: domain.Variant(req.Variant),
		Params:  domain.Parameters(req.Params),
		Sandbox: req.IsSandbox,
	})
	if HandleSagaError(w, h.logger, err) {
		return
	}

	Created(w, result)
}

// ResumeApplication выполняет шаги после точки паузы.
// POST /api/v1/applications/resume
func (h *Handler) ResumeApplication(w http.ResponseWriter, r *http.Request) {
	var req ResumeApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	result, err := h.apps.Resume(r.Context(), orchestrator.ResumeRequest{
		Variant:      domain.Variant(req.Variant),
		Code:         req.Code,
		OrderID:      req.OrderID,
		SignOrderID:  req.SignOrderID,
		VerifyCodeNo: req.VerifyCodeNo,
		Params:       domain.Parameters(req.Params),
		Sandbox:      req.IsSandbox,
	})
	if HandleSagaError(w, h.logger, err) {
		return
	}

	Success(w, result)
}

// GetPlan возвращает таблицу шагов варианта.
// GET /api/v1/plans/{variant}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	variant, ok := domain.ParseVariant(r.PathValue("variant"))
	if !ok {
		NotFound(w, "unknown variant")
		return
	}

	plan, err := h.apps.Plan(variant)
	if HandleSagaError(w, h.logger, err) {
		return
	}

	Success(w, PlanFromEngine(plan))
}
