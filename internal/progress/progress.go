package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
)

// Статусы событий.
const (
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusRetrying  = "retrying"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// Event: одно уведомление о прогрессе.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	Variant   domain.Variant `json:"variant"`
	Phase     domain.Phase   `json:"phase"`

	// Percent задаёт прогресс 0..100.
	Percent int `json:"percent"`

	// StepIndex и StepName заполняются для событий шага.
	StepIndex int    `json:"step_index,omitempty"`
	StepName  string `json:"step_name,omitempty"`

	Status  string    `json:"status,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Sink принимает события.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Reporter отдаёт события одного сегмента в Sink.
// Потокобезопасен.
type Reporter struct {
	ctx    context.Context
	sink   Sink
	logger *slog.Logger
	base   Event

	mu   sync.Mutex
	last int
}

// NewReporter создаёт Reporter сегмента. sink может быть nil.
func NewReporter(ctx context.Context, sink Sink, sessionID uuid.UUID, variant domain.Variant, phase domain.Phase, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		ctx:    context.WithoutCancel(ctx),
		sink:   sink,
		logger: logger,
		base: Event{
			SessionID: sessionID,
			Variant:   variant,
			Phase:     phase,
		},
	}
}

// Notify отправляет событие без привязки к шагу.
func (r *Reporter) Notify(percent int, message string) {
	r.emit(Event{Percent: percent, Message: message})
}

// Step отправляет событие шага.
func (r *Reporter) Step(step domain.StepDef, percent int, status, message string) {
	r.emit(Event{
		Percent:   percent,
		StepIndex: step.Index,
		StepName:  step.Name,
		Status:    status,
		Message:   message,
	})
}

// Session отправляет событие о завершении сегмента.
func (r *Reporter) Session(status, message string) {
	r.mu.Lock()
	pct := r.last
	r.mu.Unlock()
	r.emit(Event{Percent: pct, Status: status, Message: message})
}

func (r *Reporter) emit(ev Event) {
	ev.ID = uuid.New()
	ev.SessionID = r.base.SessionID
	ev.Variant = r.base.Variant
	ev.Phase = r.base.Phase
	ev.Time = time.Now()

	switch {
	case ev.Percent < 0:
		ev.Percent = 0
	case ev.Percent > 100:
		ev.Percent = 100
	}

	r.mu.Lock()
	r.last = ev.Percent
	r.mu.Unlock()

	if r.sink == nil {
		return
	}
	if err := r.sink.Publish(r.ctx, ev); err != nil {
		r.logger.Warn("progress sink failed",
			"session_id", ev.SessionID,
			"percent", ev.Percent,
			"error", err,
		)
	}
}

// LogSink пишет события в slog.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink создаёт LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "progress")}
}

// Publish реализует Sink.
func (s *LogSink) Publish(ctx context.Context, ev Event) error {
	attrs := []any{
		"session_id", ev.SessionID,
		"variant", ev.Variant,
		"phase", ev.Phase,
		"percent", ev.Percent,
	}
	if ev.StepIndex > 0 {
		attrs = append(attrs, "step_index", ev.StepIndex, "step_name", ev.StepName)
	}
	if ev.Status != "" {
		attrs = append(attrs, "status", ev.Status)
	}

	level := slog.LevelInfo
	if ev.Status == StatusFailed || ev.Status == StatusAborted {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, ev.Message, attrs...)
	return nil
}

// Fanout раздаёт событие всем Sink по порядку.
// Ошибка одного Sink не мешает остальным.
type Fanout []Sink

// Publish реализует Sink.
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder запоминает события. Потокобезопасен.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish реализует Sink.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events возвращает копию записанных событий.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last возвращает последнее событие.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// StepEvents возвращает только события шагов.
func (r *Recorder) StepEvents() []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.StepIndex > 0 {
			out = append(out, ev)
		}
	}
	return out
}
