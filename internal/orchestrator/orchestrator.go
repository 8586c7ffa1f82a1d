package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/engine"
	"github.com/shaiso/Tollgate/internal/gateway"
	"github.com/shaiso/Tollgate/internal/guard"
	"github.com/shaiso/Tollgate/internal/progress"
	"github.com/shaiso/Tollgate/internal/steps"
	"github.com/shaiso/Tollgate/internal/telemetry"
)

// SessionLog хранит журнал сегментов и шагов. Реализуется repo.SessionRepo.
type SessionLog interface {
	Create(ctx context.Context, s *domain.Session) error
	Update(ctx context.Context, s *domain.Session) error
	AppendStep(ctx context.Context, rec domain.StepRecord) error
}

// ResumeLock не даёт выполнить два resume одной заявки одновременно.
// Реализуется lock.ResumeLock.
type ResumeLock interface {
	Acquire(ctx context.Context, signOrderID string) (token string, err error)
	Release(ctx context.Context, signOrderID, token string) error
}

// Config: конфигурация Orchestrator.
type Config struct {
	// Catalog содержит планы вариантов. Обязателен.
	Catalog *engine.Catalog

	// Registry содержит сборщики payload. По умолчанию steps.DefaultRegistry().
	Registry *steps.Registry

	// Gateway выполняет удалённые операции. Обязателен.
	Gateway gateway.Gateway

	// Sandbox создаёт шлюз для sandbox-сессий. По умолчанию gateway.NewSandbox.
	Sandbox func() gateway.Gateway

	// Guard проверяет дубли. nil отключает проверку.
	Guard *guard.Guard

	// Sessions пишет журнал сегментов. Может быть nil.
	Sessions SessionLog

	// Lock защищает resume от повторного запуска. Может быть nil.
	Lock ResumeLock

	// Progress получает события прогресса. Может быть nil.
	Progress progress.Sink

	Retry RetryConfig

	Logger *slog.Logger
}

// Orchestrator выполняет сегменты саги.
//
// Orchestrator не хранит состояние между вызовами: всё, что нужно для
// Resume, вызывающая сторона получает из Start и передаёт обратно.
type Orchestrator struct {
	catalog  *engine.Catalog
	registry *steps.Registry
	gateway  gateway.Gateway
	sandbox  func() gateway.Gateway
	guard    *guard.Guard
	sessions SessionLog
	lock     ResumeLock
	sink     progress.Sink
	retry    RetryConfig
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Registry == nil {
		cfg.Registry = steps.DefaultRegistry()
	}
	if cfg.Sandbox == nil {
		cfg.Sandbox = func() gateway.Gateway { return gateway.NewSandbox() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		catalog:  cfg.Catalog,
		registry: cfg.Registry,
		gateway:  cfg.Gateway,
		sandbox:  cfg.Sandbox,
		guard:    cfg.Guard,
		sessions: cfg.Sessions,
		lock:     cfg.Lock,
		sink:     cfg.Progress,
		retry:    cfg.Retry,
		logger:   cfg.Logger,
		sleep:    sleepContext,
	}
}

// StartRequest: параметры первого сегмента.
type StartRequest struct {
	Variant domain.Variant
	Params  domain.Parameters
	Sandbox bool
}

// StartResult: идентификаторы точки паузы.
type StartResult struct {
	SessionID    uuid.UUID `json:"session_id"`
	OrderID      string    `json:"order_id"`
	SignOrderID  string    `json:"sign_order_id"`
	VerifyCodeNo string    `json:"verify_code_no"`
}

// ResumeRequest: код подтверждения и идентификаторы из StartResult.
type ResumeRequest struct {
	Variant      domain.Variant
	Code         string
	OrderID      string
	SignOrderID  string
	VerifyCodeNo string
	Params       domain.Parameters
	Sandbox      bool
}

// StepFailure описывает проглоченный отказ шага.
type StepFailure struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// FinalResult: итог успешного resume.
type FinalResult struct {
	SessionID uuid.UUID         `json:"session_id"`
	OrderID   string            `json:"order_id"`
	Status    domain.RunStatus  `json:"status"`
	Context   map[string]string `json:"context"`
	DeviceIDs []string          `json:"device_ids,omitempty"`
	Swallowed []StepFailure     `json:"swallowed,omitempty"`
}

// Plan возвращает план варианта.
func (o *Orchestrator) Plan(variant domain.Variant) (*engine.Plan, error) {
	return o.catalog.Get(variant)
}

// Start выполняет шаги до точки паузы включительно.
//
// Возвращает *domain.FatalError при отказе валидации, Guard
// или критичного шага.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	params := req.Params.Clone()
	sc := domain.NewSessionContext()

	st, err := o.run(ctx, req.Variant, domain.PhaseStart, req.Sandbox, params, sc)
	if err != nil {
		return nil, err
	}

	return &StartResult{
		SessionID:    st.SessionID(),
		OrderID:      sc.OrderID(),
		SignOrderID:  sc.SignOrderID(),
		VerifyCodeNo: sc.VerifyCodeNo(),
	}, nil
}

// Resume выполняет шаги после точки паузы.
//
// Контекст восстанавливается из идентификаторов запроса, код
// подтверждения кладётся в поле verify_code.
func (o *Orchestrator) Resume(ctx context.Context, req ResumeRequest) (*FinalResult, error) {
	if req.Code == "" || req.OrderID == "" || req.SignOrderID == "" || req.VerifyCodeNo == "" {
		return nil, &domain.FatalError{
			Kind:   domain.FailureValidation,
			Reason: ErrResumeIdentifiers.Error(),
			Err:    ErrResumeIdentifiers,
		}
	}

	if o.lock != nil {
		token, err := o.lock.Acquire(ctx, req.SignOrderID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := o.lock.Release(context.WithoutCancel(ctx), req.SignOrderID, token); err != nil {
				o.logger.Warn("failed to release resume lock", "sign_order_id", req.SignOrderID, "error", err)
			}
		}()
	}

	params := req.Params.Clone()
	sc := domain.RehydrateContext(req.OrderID, req.SignOrderID, req.VerifyCodeNo)
	sc.Set(domain.FieldVerifyCode, req.Code)

	st, err := o.run(ctx, req.Variant, domain.PhaseResume, req.Sandbox, params, sc)
	if err != nil {
		return nil, err
	}

	result := &FinalResult{
		SessionID: st.SessionID(),
		OrderID:   sc.OrderID(),
		Status:    st.Session.Status,
		Context:   sc.Snapshot(),
		DeviceIDs: sc.DeviceIDs(),
	}
	for _, res := range st.Swallowed() {
		result.Swallowed = append(result.Swallowed, StepFailure{
			Index:  res.Step.Index,
			Name:   res.Step.Name,
			Reason: res.ErrorMessage,
		})
	}
	return result, nil
}

// run выполняет один сегмент: валидация, Guard, шаги.
func (o *Orchestrator) run(ctx context.Context, requested domain.Variant, phase domain.Phase, sandbox bool, params domain.Parameters, sc *domain.SessionContext) (*RunState, error) {
	variant, ok := domain.ParseVariant(string(requested))
	if !ok {
		return nil, &domain.FatalError{
			Kind:   domain.FailureValidation,
			Reason: fmt.Sprintf("%s: %q", ErrUnknownVariant, requested),
			Err:    ErrUnknownVariant,
		}
	}

	plan, err := o.catalog.Get(variant)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	table, err := o.registry.Bind(plan)
	if err != nil {
		return nil, fmt.Errorf("bind plan: %w", err)
	}

	session := domain.NewSession(variant, phase, sandbox)
	session.OrderID = sc.OrderID()
	st := NewRunState(session, plan, params, sc)

	logger := telemetry.WithSessionID(o.logger, session.ID.String()).With(
		"variant", variant,
		"phase", phase,
	)
	if session.OrderID != "" {
		logger = telemetry.WithOrderID(logger, session.OrderID)
	}
	ctx = telemetry.WithLogger(ctx, logger)

	reporter := progress.NewReporter(ctx, o.sink, session.ID, variant, phase, logger)

	o.createSession(ctx, session, logger)
	logger.Info("session segment started", "steps", len(st.Steps()), "sandbox", sandbox)

	err = o.guarded(ctx, st, func(ctx context.Context) error {
		return o.execute(ctx, st, o.executor(sandbox, table, reporter, logger), logger)
	})

	switch {
	case err != nil:
		session.OrderID = sc.OrderID()
		session.MarkAborted(err.Error())
		reporter.Session(progress.StatusAborted, err.Error())
		telemetry.SessionsTotal.WithLabelValues(string(variant), string(phase), telemetry.OutcomeAborted).Inc()
		logger.Warn("session segment aborted", "error", err)
	case phase == domain.PhaseStart:
		session.OrderID = sc.OrderID()
		session.MarkPaused()
		reporter.Session(progress.StatusPaused, "waiting for verification code")
		telemetry.SessionsTotal.WithLabelValues(string(variant), string(phase), telemetry.OutcomePaused).Inc()
		logger.Info("session segment paused", "sign_order_id", sc.SignOrderID())
	default:
		session.MarkCompleted()
		reporter.Session(progress.StatusCompleted, "application completed")
		telemetry.SessionsTotal.WithLabelValues(string(variant), string(phase), telemetry.OutcomeCompleted).Inc()
		logger.Info("session segment completed", "duration", session.Duration())
	}

	o.updateSession(ctx, session, logger)
	return st, err
}

// guarded проверяет параметры и выполняет fn в области Guard.
// Отказ валидации не доходит до Guard. Sandbox-сессии не трогают
// общее хранилище записей.
func (o *Orchestrator) guarded(ctx context.Context, st *RunState, fn func(ctx context.Context) error) error {
	if err := steps.ValidateParameters(st.Session.Variant, st.Params); err != nil {
		return err
	}
	if o.guard == nil {
		return fn(ctx)
	}
	if st.Session.IsSandbox {
		telemetry.FromContext(ctx).Debug("guard skipped for sandbox session")
		return fn(ctx)
	}

	scope, err := o.guard.Protect(ctx, st.SessionID(), st.Params.Identity(), fn)
	if scope != nil && len(scope.Entries) > 0 {
		telemetry.FromContext(ctx).Info("guard scope released",
			"matches", len(scope.Matches),
			"mutated", len(scope.Entries),
		)
	}
	return err
}

func (o *Orchestrator) executor(sandbox bool, table steps.Table, reporter *progress.Reporter, logger *slog.Logger) *Executor {
	gw := o.gateway
	if sandbox {
		gw = o.sandbox()
	}
	return &Executor{
		gateway:  gw,
		table:    table,
		reporter: reporter,
		retry:    o.retry,
		logger:   logger,
		sleep:    o.sleep,
	}
}

// execute выполняет шаги сегмента по порядку.
// Первый отказ критичного шага прерывает сегмент.
func (o *Orchestrator) execute(ctx context.Context, st *RunState, exec *Executor, logger *slog.Logger) error {
	for _, step := range st.Steps() {
		res := exec.Execute(ctx, st, step)
		o.appendStep(ctx, st.SessionID(), res, logger)

		if errors.Is(res.Err, ErrStepOrder) || errors.Is(res.Err, ErrInvalidTransition) {
			return res.Err
		}
		if !res.Succeeded && step.AbortsOnFailure() {
			return domain.NewStepError(step, res.ErrorMessage, res.Err)
		}
	}

	if st.Session.Phase == domain.PhaseStart {
		if !st.Context.Has(domain.FieldSignOrderID) || !st.Context.Has(domain.FieldVerifyCodeNo) {
			pause, _ := st.Plan.Step(st.Plan.PauseIndex())
			return domain.NewStepError(pause, ErrPauseIdentifiers.Error(), ErrPauseIdentifiers)
		}
	}
	return nil
}

func (o *Orchestrator) createSession(ctx context.Context, s *domain.Session, logger *slog.Logger) {
	if o.sessions == nil {
		return
	}
	if err := o.sessions.Create(ctx, s); err != nil {
		logger.Warn("failed to record session", "error", err)
	}
}

func (o *Orchestrator) updateSession(ctx context.Context, s *domain.Session, logger *slog.Logger) {
	if o.sessions == nil {
		return
	}
	if err := o.sessions.Update(context.WithoutCancel(ctx), s); err != nil {
		logger.Warn("failed to update session", "error", err)
	}
}

func (o *Orchestrator) appendStep(ctx context.Context, sessionID uuid.UUID, res *domain.StepResult, logger *slog.Logger) {
	if o.sessions == nil {
		return
	}
	rec := domain.NewStepRecord(sessionID, res, time.Now())
	if err := o.sessions.AppendStep(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("failed to record step", "step_index", res.Step.Index, "error", err)
	}
}
