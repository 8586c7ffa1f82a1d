package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/engine"
	"github.com/shaiso/Tollgate/internal/gateway"
	"github.com/shaiso/Tollgate/internal/lock"
	"github.com/shaiso/Tollgate/internal/orchestrator"
	"github.com/shaiso/Tollgate/internal/repo"
	"github.com/shaiso/Tollgate/internal/steps"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validParams() map[string]string {
	return map[string]string{
		domain.ParamOwnerName:   "Zhang San",
		domain.ParamIDNumber:    "11010519491231002X",
		domain.ParamPhone:       "13800138000",
		domain.ParamBankCard:    "6222020200112233445",
		domain.ParamBankName:    "ICBC",
		domain.ParamPlateNo:     "JING A12345",
		domain.ParamPlateColor:  "blue",
		domain.ParamVehicleType: "1",
		domain.ParamImageIDs:    "img-1,img-2",
	}
}

// fakeApps возвращает заранее заданные ошибки.
type fakeApps struct {
	err error
}

func (f *fakeApps) Plan(domain.Variant) (*engine.Plan, error) {
	return nil, f.err
}

func (f *fakeApps) Start(context.Context, orchestrator.StartRequest) (*orchestrator.StartResult, error) {
	return nil, f.err
}

func (f *fakeApps) Resume(context.Context, orchestrator.ResumeRequest) (*orchestrator.FinalResult, error) {
	return nil, f.err
}

// fakeSessions отдаёт одну сессию.
type fakeSessions struct {
	session *domain.Session
	steps   []domain.StepRecord
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, repo.ErrNotFound
	}
	return f.session, nil
}

func (f *fakeSessions) ListSteps(context.Context, uuid.UUID) ([]domain.StepRecord, error) {
	return f.steps, nil
}

func newServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func sandboxOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()

	registry := steps.DefaultRegistry()
	catalog, err := engine.LoadCatalog("", registry.Has)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	return orchestrator.New(orchestrator.Config{
		Catalog:  catalog,
		Registry: registry,
		Gateway:  gateway.NewSandbox(),
		Logger:   testLogger(),
	})
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestStartAndResume_Sandbox(t *testing.T) {
	srv := newServer(t, Config{Applications: sandboxOrchestrator(t)})

	resp := postJSON(t, srv.URL+"/api/v1/applications", StartApplicationRequest{
		Variant: "passenger",
		Params:  validParams(),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	started := decode[struct {
		Data orchestrator.StartResult `json:"data"`
	}](t, resp).Data
	if started.OrderID == "" || started.SignOrderID == "" || started.VerifyCodeNo == "" {
		t.Fatalf("start returned incomplete identifiers: %+v", started)
	}

	resp = postJSON(t, srv.URL+"/api/v1/applications/resume", ResumeApplicationRequest{
		Variant:      "passenger",
		Code:         "123456",
		OrderID:      started.OrderID,
		SignOrderID:  started.SignOrderID,
		VerifyCodeNo: started.VerifyCodeNo,
		Params:       validParams(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}

	final := decode[struct {
		Data orchestrator.FinalResult `json:"data"`
	}](t, resp).Data
	if final.Status != domain.RunStatusCompleted {
		t.Errorf("final status = %s", final.Status)
	}
	if final.OrderID != started.OrderID {
		t.Errorf("order id = %q, want %q", final.OrderID, started.OrderID)
	}
}

func TestStart_ValidationFailure(t *testing.T) {
	srv := newServer(t, Config{Applications: sandboxOrchestrator(t)})

	params := validParams()
	delete(params, domain.ParamIDNumber)

	resp := postJSON(t, srv.URL+"/api/v1/applications", StartApplicationRequest{Params: params})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	body := decode[ErrorResponse](t, resp)
	if body.Error.Code != ErrCodeValidation {
		t.Errorf("code = %s", body.Error.Code)
	}
}

func TestStart_InvalidBody(t *testing.T) {
	srv := newServer(t, Config{Applications: &fakeApps{}})

	resp, err := http.Post(srv.URL+"/api/v1/applications", "application/json", bytes.NewBufferString("{"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleSagaError(t *testing.T) {
	step := domain.StepDef{Index: 5, Name: "sign_contract"}

	tests := []struct {
		name      string
		err       error
		status    int
		code      ErrorCode
		stepIndex int
	}{
		{"validation", domain.NewValidationError("id_number is required"), http.StatusBadRequest, ErrCodeValidation, 0},
		{"duplicate guard", domain.NewGuardError("lookup failed", errors.New("db down")), http.StatusConflict, ErrCodeDuplicateGuard, 0},
		{"remote call", domain.NewStepError(step, "rejected", gateway.ErrRejected), http.StatusBadGateway, ErrCodeRemoteCall, 5},
		{"wrapped remote call", fmt.Errorf("start: %w", domain.NewStepError(step, "timeout", gateway.ErrTransport)), http.StatusBadGateway, ErrCodeRemoteCall, 5},
		{"lock held", fmt.Errorf("acquire: %w", lock.ErrHeld), http.StatusConflict, ErrCodeConflict, 0},
		{"plan missing", engine.ErrPlanNotFound, http.StatusNotFound, ErrCodeNotFound, 0},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if !HandleSagaError(rec, testLogger(), tt.err) {
				t.Fatal("expected error to be handled")
			}
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}

			var body ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tt.code {
				t.Errorf("code = %s, want %s", body.Error.Code, tt.code)
			}
			if body.Error.StepIndex != tt.stepIndex {
				t.Errorf("step_index = %d, want %d", body.Error.StepIndex, tt.stepIndex)
			}
		})
	}

	if HandleSagaError(httptest.NewRecorder(), testLogger(), nil) {
		t.Error("nil error must not be handled")
	}
}

func TestResume_LockHeld(t *testing.T) {
	srv := newServer(t, Config{Applications: &fakeApps{err: lock.ErrHeld}})

	resp := postJSON(t, srv.URL+"/api/v1/applications/resume", ResumeApplicationRequest{Code: "1"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestGetPlan(t *testing.T) {
	srv := newServer(t, Config{Applications: sandboxOrchestrator(t)})

	resp, err := http.Get(srv.URL + "/api/v1/plans/freight")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	plan := decode[struct {
		Data PlanResponse `json:"data"`
	}](t, resp).Data
	if plan.Variant != domain.VariantFreight {
		t.Errorf("variant = %s", plan.Variant)
	}
	if len(plan.Steps) == 0 || plan.PauseIndex == 0 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	last := plan.Steps[len(plan.Steps)-1]
	if last.Percent != 100 {
		t.Errorf("last step percent = %d, want 100", last.Percent)
	}

	resp, err = http.Get(srv.URL + "/api/v1/plans/bicycle")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown variant status = %d, want 404", resp.StatusCode)
	}
}

func TestGetSession(t *testing.T) {
	session := domain.NewSession(domain.VariantPassenger, domain.PhaseStart, false)
	session.MarkPaused()
	now := time.Now()
	sessions := &fakeSessions{
		session: session,
		steps: []domain.StepRecord{
			{SessionID: session.ID, Index: 1, Name: "check_vehicle", Status: domain.StepStatusSucceeded, Attempts: 1, StartedAt: now, FinishedAt: now},
		},
	}
	srv := newServer(t, Config{Applications: &fakeApps{}, Sessions: sessions})

	resp, err := http.Get(srv.URL + "/api/v1/sessions/" + session.ID.String())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	got := decode[struct {
		Data SessionResponse `json:"data"`
	}](t, resp).Data
	if got.ID != session.ID || len(got.Steps) != 1 || got.Steps[0].Name != "check_vehicle" {
		t.Errorf("unexpected session: %+v", got)
	}

	resp, err = http.Get(srv.URL + "/api/v1/sessions/" + uuid.NewString())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", resp.StatusCode)
	}
}

func TestOptionalRoutesUnavailable(t *testing.T) {
	srv := newServer(t, Config{Applications: &fakeApps{}})

	for _, path := range []string{
		"/api/v1/sessions/" + uuid.NewString(),
		"/api/v1/progress",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
