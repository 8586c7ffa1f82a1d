package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/engine"
	"github.com/shaiso/Tollgate/internal/gateway"
	"github.com/shaiso/Tollgate/internal/guard"
	"github.com/shaiso/Tollgate/internal/progress"
	"github.com/shaiso/Tollgate/internal/records"
	"github.com/shaiso/Tollgate/internal/steps"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validParams() domain.Parameters {
	return domain.Parameters{
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

func resumeRequest() ResumeRequest {
	return ResumeRequest{
		Variant:      domain.VariantPassenger,
		Code:         "123456",
		OrderID:      "ORD-1",
		SignOrderID:  "SIGN-1",
		VerifyCodeNo: "VC-1",
		Params:       validParams(),
	}
}

type harness struct {
	orch     *Orchestrator
	gw       *gateway.Sandbox
	recorder *progress.Recorder
	sessions *fakeSessionLog
	plan     *engine.Plan
}

func newHarness(t *testing.T, mutate func(cfg *Config)) *harness {
	t.Helper()

	registry := steps.DefaultRegistry()
	catalog, err := engine.LoadCatalog("", registry.Has)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	plan, _ := catalog.Get(domain.VariantPassenger)

	h := &harness{
		gw:       gateway.NewSandbox(),
		recorder: &progress.Recorder{},
		sessions: &fakeSessionLog{},
		plan:     plan,
	}

	cfg := Config{
		Catalog:  catalog,
		Registry: registry,
		Gateway:  h.gw,
		Sessions: h.sessions,
		Progress: h.recorder,
		Logger:   testLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.orch = New(cfg)
	h.orch.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

// fakeSessionLog запоминает записи журнала.
type fakeSessionLog struct {
	mu       sync.Mutex
	created  []*domain.Session
	updated  []domain.Session
	steps    []domain.StepRecord
	failWith error
}

func (f *fakeSessionLog) Create(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, s)
	return f.failWith
}

func (f *fakeSessionLog) Update(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, *s)
	return f.failWith
}

func (f *fakeSessionLog) AppendStep(_ context.Context, rec domain.StepRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, rec)
	return f.failWith
}

// fakeLock имитирует занятую или свободную блокировку resume.
type fakeLock struct {
	held     map[string]string
	released []string
}

func (l *fakeLock) Acquire(_ context.Context, key string) (string, error) {
	if _, ok := l.held[key]; ok {
		return "", errors.New("resume already in progress")
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, nil
}

func (l *fakeLock) Release(_ context.Context, key, token string) error {
	if l.held[key] != token {
		return errors.New("not owner")
	}
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

// probeGateway вызывает probe перед каждым вызовом шлюза.
type probeGateway struct {
	gateway.Gateway
	probe func(operation string)
}

func (p *probeGateway) Call(ctx context.Context, operation string, payload map[string]any) (*gateway.Response, error) {
	p.probe(operation)
	return p.Gateway.Call(ctx, operation, payload)
}

func transportErr(msg string) error {
	return fmt.Errorf("%w: %s", gateway.ErrTransport, msg)
}

// --- Start ---

func TestStart_PausesAfterIdentityStep(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.orch.Start(context.Background(), StartRequest{
		Variant: domain.VariantPassenger,
		Params:  validParams(),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if res.OrderID == "" || res.SignOrderID == "" || res.VerifyCodeNo == "" {
		t.Errorf("expected pause identifiers, got %+v", res)
	}

	wantOps := h.plan.Names()[:5]
	if got := h.gw.Operations(); !slices.Equal(got, wantOps) {
		t.Errorf("operations = %v, want %v", got, wantOps)
	}

	last, _ := h.recorder.Last()
	if last.Status != progress.StatusPaused {
		t.Errorf("last event status = %q, want paused", last.Status)
	}

	if len(h.sessions.updated) != 1 || h.sessions.updated[0].Status != domain.RunStatusPaused {
		t.Errorf("expected one PAUSED session update, got %+v", h.sessions.updated)
	}
	if len(h.sessions.steps) != 5 {
		t.Errorf("expected 5 step records, got %d", len(h.sessions.steps))
	}
}

func TestStart_ProgressIndicesMonotonic(t *testing.T) {
	h := newHarness(t, nil)
	h.gw.Reject("query_blacklist", "E100", "service unavailable")

	if _, err := h.orch.Start(context.Background(), StartRequest{
		Variant: domain.VariantPassenger,
		Params:  validParams(),
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	events := h.recorder.StepEvents()
	prev := 0
	for _, ev := range events {
		if ev.StepIndex != prev && ev.StepIndex != prev+1 {
			t.Fatalf("step index jumped from %d to %d", prev, ev.StepIndex)
		}
		prev = ev.StepIndex
	}
	if prev != 5 {
		t.Errorf("last step index = %d, want 5", prev)
	}

	failed := events[1]
	if failed.StepIndex != 2 || failed.Status != progress.StatusFailed {
		t.Errorf("expected swallowed failure event for step 2, got %+v", failed)
	}
	if want := "2. Проверка чёрного списка failed: "; len(failed.Message) < len(want) || failed.Message[:len(want)] != want {
		t.Errorf("failure message = %q", failed.Message)
	}
}

func TestStart_ScenarioC_CriticalFailureAtPauseStep(t *testing.T) {
	h := newHarness(t, nil)
	h.gw.Reject("submit_identity", "E501", "bank card does not match owner")

	_, err := h.orch.Start(context.Background(), StartRequest{
		Variant: domain.VariantPassenger,
		Params:  validParams(),
	})
	if err == nil {
		t.Fatal("expected fatal error")
	}

	fe, ok := domain.AsFatal(err)
	if !ok {
		t.Fatalf("expected *domain.FatalError, got %T", err)
	}
	if fe.Index != 5 || fe.Kind != domain.FailureRemoteCall {
		t.Errorf("fatal error = %+v, want step 5 remote_call", fe)
	}
	if !errors.Is(err, domain.ErrRemoteCall) || !errors.Is(err, gateway.ErrRejected) {
		t.Errorf("error chain missing sentinels: %v", err)
	}

	if ops := h.gw.Operations(); len(ops) != 5 {
		t.Errorf("expected 5 calls, got %v", ops)
	}

	last, _ := h.recorder.Last()
	if want := 5 * 100 / h.plan.Len(); last.Percent != want {
		t.Errorf("last percent = %d, want %d", last.Percent, want)
	}
	if last.Status != progress.StatusAborted {
		t.Errorf("last status = %q, want aborted", last.Status)
	}
}

func TestStart_ValidationFailureMakesNoCalls(t *testing.T) {
	store := records.NewMemoryStore(records.Record{
		Kind: domain.RecordKindCard, ID: "C1",
		Phone: "13800138000", IDNumber: "11010519491231002X",
		Status: records.StatusActive,
	})
	h := newHarness(t, func(cfg *Config) {
		cfg.Guard = guard.New(guard.Config{Store: store, Logger: testLogger()})
	})

	params := validParams()
	params[domain.ParamPhone] = "123"

	_, err := h.orch.Start(context.Background(), StartRequest{Variant: domain.VariantPassenger, Params: params})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.gw.Calls()) != 0 {
		t.Errorf("expected no remote calls")
	}
	if len(store.Writes()) != 0 {
		t.Errorf("guard must not run after validation failure")
	}
}

func TestStart_UnknownVariant(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.Start(context.Background(), StartRequest{Variant: "bus", Params: validParams()})
	if !errors.Is(err, ErrUnknownVariant) || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown variant validation error, got %v", err)
	}
}

func TestStart_ScenarioB_GuardMutatesDuringSegment(t *testing.T) {
	store := records.NewMemoryStore(records.Record{
		Kind: domain.RecordKindCard, ID: "C1",
		Phone: "13800138000", IDNumber: "11010519491231002X",
		Status: records.StatusActive,
	})

	var during []string
	h := newHarness(t, func(cfg *Config) {
		cfg.Guard = guard.New(guard.Config{Store: store, Logger: testLogger()})
		cfg.Gateway = &probeGateway{
			Gateway: cfg.Gateway,
			probe: func(string) {
				during = append(during, store.Status(domain.RecordKindCard, "C1"))
			},
		}
	})

	if _, err := h.orch.Start(context.Background(), StartRequest{
		Variant: domain.VariantPassenger,
		Params:  validParams(),
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i, status := range during {
		if status == records.StatusActive {
			t.Fatalf("call %d saw active status, record must be unblocked during the saga", i)
		}
	}
	if got := store.Status(domain.RecordKindCard, "C1"); got != records.StatusActive {
		t.Errorf("status after segment = %q, want restored %q", got, records.StatusActive)
	}
}

func TestStart_GuardRestoresAfterCriticalFailure(t *testing.T) {
	store := records.NewMemoryStore(records.Record{
		Kind: domain.RecordKindOBU, ID: "O1",
		Phone: "13800138000", IDNumber: "11010519491231002X",
		Status: records.StatusActive,
	})
	h := newHarness(t, func(cfg *Config) {
		cfg.Guard = guard.New(guard.Config{Store: store, Logger: testLogger()})
	})
	h.gw.Reject("create_order", "E300", "order limit reached")

	_, err := h.orch.Start(context.Background(), StartRequest{Variant: domain.VariantPassenger, Params: validParams()})
	if fe, ok := domain.AsFatal(err); !ok || fe.Index != 3 {
		t.Fatalf("expected step 3 fatal error, got %v", err)
	}
	if got := store.Status(domain.RecordKindOBU, "O1"); got != records.StatusActive {
		t.Errorf("status = %q, want restored %q", got, records.StatusActive)
	}
}

func TestStart_GuardNothingMutatedAborts(t *testing.T) {
	store := records.NewMemoryStore(records.Record{
		Kind: domain.RecordKindCard, ID: "C1",
		Phone: "13800138000", IDNumber: "11010519491231002X",
		Status: records.StatusActive,
	})
	store.FailWrites(domain.RecordKindCard, "C1", errors.New("lock wait timeout"))

	h := newHarness(t, func(cfg *Config) {
		cfg.Guard = guard.New(guard.Config{Store: store, Logger: testLogger()})
	})

	_, err := h.orch.Start(context.Background(), StartRequest{Variant: domain.VariantPassenger, Params: validParams()})
	if !errors.Is(err, domain.ErrDuplicateGuard) {
		t.Fatalf("expected duplicate guard error, got %v", err)
	}
	if len(h.gw.Calls()) != 0 {
		t.Errorf("expected no remote calls, got %v", h.gw.Operations())
	}
}

func TestStart_SessionLogFailureIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.sessions.failWith = errors.New("db down")

	if _, err := h.orch.Start(context.Background(), StartRequest{
		Variant: domain.VariantPassenger,
		Params:  validParams(),
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestStart_Sandbox(t *testing.T) {
	var sandboxes int
	h := newHarness(t, func(cfg *Config) {
		cfg.Sandbox = func() gateway.Gateway {
			sandboxes++
			return gateway.NewSandbox()
		}
	})

	if _, err := h.orch.Start(context.Background(), StartRequest{
		Variant: domain.VariantPassenger,
		Params:  validParams(),
		Sandbox: true,
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sandboxes != 1 {
		t.Errorf("expected sandbox gateway per session, got %d", sandboxes)
	}
	if len(h.gw.Calls()) != 0 {
		t.Errorf("production gateway must not be called for sandbox sessions")
	}
}

func TestStart_SandboxLeavesRecordsUntouched(t *testing.T) {
	store := records.NewMemoryStore(records.Record{
		Kind: domain.RecordKindCard, ID: "C1",
		Phone: "13800138000", IDNumber: "11010519491231002X",
		Status: records.StatusActive,
	})
	h := newHarness(t, func(cfg *Config) {
		cfg.Guard = guard.New(guard.Config{Store: store, Logger: testLogger()})
	})

	if _, err := h.orch.Start(context.Background(), StartRequest{
		Variant: domain.VariantPassenger,
		Params:  validParams(),
		Sandbox: true,
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if writes := store.Writes(); len(writes) != 0 {
		t.Errorf("sandbox session wrote %d records: %+v", len(writes), writes)
	}
	if got := store.Status(domain.RecordKindCard, "C1"); got != records.StatusActive {
		t.Errorf("record status = %q, want %q", got, records.StatusActive)
	}
}

// --- Resume ---

func TestResume_Completes(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.orch.Resume(context.Background(), resumeRequest())
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	if res.Status != domain.RunStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", res.Status)
	}
	if res.OrderID != "ORD-1" {
		t.Errorf("order id = %q, want ORD-1", res.OrderID)
	}
	if len(res.DeviceIDs) != 2 {
		t.Errorf("expected card and OBU ids, got %v", res.DeviceIDs)
	}

	wantOps := h.plan.Names()[5:]
	if got := h.gw.Operations(); !slices.Equal(got, wantOps) {
		t.Errorf("operations = %v, want %v", got, wantOps)
	}

	first := h.gw.Calls()[0]
	if first.Payload["verify_code"] != "123456" {
		t.Errorf("confirm_sign payload = %v", first.Payload)
	}
}

func TestResume_ScenarioD_SwallowedFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.gw.Reject("sync_vehicle_attributes", "E900", "attribute service timeout")

	res, err := h.orch.Resume(context.Background(), resumeRequest())
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	if len(res.Swallowed) != 1 || res.Swallowed[0].Index != 9 {
		t.Errorf("swallowed = %+v, want step 9", res.Swallowed)
	}

	ops := h.gw.Operations()
	if ops[len(ops)-1] != steps.NotifyCompletion {
		t.Errorf("expected saga to reach final step, got %v", ops)
	}

	var sawFailure bool
	for _, ev := range h.recorder.StepEvents() {
		if ev.StepIndex == 9 && ev.Status == progress.StatusFailed {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("swallowed failure must appear in progress stream")
	}
}

func TestResume_CriticalFailureStopsLaterSteps(t *testing.T) {
	h := newHarness(t, nil)
	h.gw.Fail("issue_card", transportErr("connection reset"))

	_, err := h.orch.Resume(context.Background(), resumeRequest())
	fe, ok := domain.AsFatal(err)
	if !ok || fe.Index != 10 {
		t.Fatalf("expected step 10 fatal error, got %v", err)
	}

	for _, op := range h.gw.Operations() {
		if op == steps.IssueOBU || op == steps.ActivateDevices || op == steps.NotifyCompletion {
			t.Errorf("step %s executed after critical failure", op)
		}
	}

	for _, ev := range h.recorder.StepEvents() {
		if ev.StepIndex > 10 {
			t.Errorf("progress event for step %d after critical failure", ev.StepIndex)
		}
	}
}

func TestResume_MissingIdentifiers(t *testing.T) {
	h := newHarness(t, nil)

	req := resumeRequest()
	req.SignOrderID = ""

	_, err := h.orch.Resume(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) || !errors.Is(err, ErrResumeIdentifiers) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.gw.Calls()) != 0 {
		t.Error("expected no remote calls")
	}
}

func TestResume_LockHeld(t *testing.T) {
	lock := &fakeLock{held: map[string]string{"SIGN-1": "other"}}
	h := newHarness(t, func(cfg *Config) { cfg.Lock = lock })

	if _, err := h.orch.Resume(context.Background(), resumeRequest()); err == nil {
		t.Fatal("expected lock error")
	}
	if len(h.gw.Calls()) != 0 {
		t.Error("expected no remote calls while lock is held")
	}
}

func TestResume_LockReleased(t *testing.T) {
	lock := &fakeLock{held: map[string]string{}}
	h := newHarness(t, func(cfg *Config) { cfg.Lock = lock })
	h.gw.Reject("confirm_sign", "E401", "wrong code")

	if _, err := h.orch.Resume(context.Background(), resumeRequest()); err == nil {
		t.Fatal("expected fatal error")
	}
	if len(lock.held) != 0 || len(lock.released) != 1 {
		t.Errorf("lock must be released after resume, held=%v", lock.held)
	}
}

// --- Retry ---

func TestExecutor_RetriesTransportErrors(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Retry = RetryConfig{Enabled: true, BaseDelay: time.Millisecond}
	})
	h.gw.Fail("check_vehicle", transportErr("timeout")).Fail("check_vehicle", transportErr("timeout"))

	if _, err := h.orch.Start(context.Background(), StartRequest{
		Variant: domain.VariantPassenger,
		Params:  validParams(),
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if h.sessions.steps[0].Attempts != 3 {
		t.Errorf("attempts = %d, want 3", h.sessions.steps[0].Attempts)
	}

	var retries int
	for _, ev := range h.recorder.StepEvents() {
		if ev.Status == progress.StatusRetrying {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("expected 2 retry events, got %d", retries)
	}
}

func TestExecutor_DoesNotRetryRejections(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Retry = RetryConfig{Enabled: true}
	})
	h.gw.Reject("check_vehicle", "E200", "vehicle not eligible")

	_, err := h.orch.Start(context.Background(), StartRequest{Variant: domain.VariantPassenger, Params: validParams()})
	if fe, ok := domain.AsFatal(err); !ok || fe.Index != 1 {
		t.Fatalf("expected step 1 fatal error, got %v", err)
	}
	if got := len(h.gw.Calls()); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestExecutor_RetryDisabledByDefault(t *testing.T) {
	h := newHarness(t, nil)
	h.gw.Fail("check_vehicle", transportErr("timeout"))

	if _, err := h.orch.Start(context.Background(), StartRequest{Variant: domain.VariantPassenger, Params: validParams()}); err == nil {
		t.Fatal("expected fatal error")
	}
	if got := len(h.gw.Calls()); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		base    time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{1, 100 * time.Millisecond, time.Second, 100 * time.Millisecond},
		{2, 100 * time.Millisecond, time.Second, 200 * time.Millisecond},
		{3, 100 * time.Millisecond, time.Second, 400 * time.Millisecond},
		{5, 100 * time.Millisecond, time.Second, time.Second},
		{1, 0, 0, time.Second},
	}

	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, tt.base, tt.max); got != tt.want {
			t.Errorf("calculateBackoff(%d, %v, %v) = %v, want %v", tt.attempt, tt.base, tt.max, got, tt.want)
		}
	}
}

// --- RunState ---

func TestRunState_Transitions(t *testing.T) {
	h := newHarness(t, nil)
	session := domain.NewSession(domain.VariantPassenger, domain.PhaseResume, false)
	st := NewRunState(session, h.plan, validParams(), domain.NewSessionContext())

	segment := st.Steps()
	if segment[0].Index != 6 {
		t.Fatalf("resume segment starts at %d, want 6", segment[0].Index)
	}

	if err := st.Begin(segment[1]); !errors.Is(err, ErrStepOrder) {
		t.Errorf("expected ErrStepOrder, got %v", err)
	}
	first, _ := h.plan.Step(1)
	if err := st.Begin(first); !errors.Is(err, ErrStepNotInSegment) {
		t.Errorf("expected ErrStepNotInSegment, got %v", err)
	}

	if err := st.Begin(segment[0]); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if st.StepStatus(6) != domain.StepStatusRunning {
		t.Errorf("status = %s, want RUNNING", st.StepStatus(6))
	}

	res := &domain.StepResult{Step: segment[0], Succeeded: true}
	if err := st.Finish(res); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := st.Finish(res); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := st.Begin(segment[0]); !errors.Is(err, ErrStepOrder) {
		t.Errorf("re-entering RUNNING must fail, got %v", err)
	}

	stats := st.Stats()
	if stats.Succeeded != 1 || stats.Pending != len(segment)-1 {
		t.Errorf("stats = %+v", stats)
	}
}
