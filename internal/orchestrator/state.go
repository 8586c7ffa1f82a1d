package orchestrator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/engine"
)

// RunState: состояние одного сегмента в памяти.
//
// Создаётся в начале Start или Resume и живёт до их возврата.
// Следит за тем, чтобы шаги сегмента выполнялись строго по порядку
// и каждый проходил PENDING → RUNNING → SUCCEEDED/FAILED ровно один раз.
type RunState struct {
	// Session: запись сегмента.
	Session *domain.Session

	// Plan: таблица шагов варианта.
	Plan *engine.Plan

	// Params: параметры заявителя. Шаги могут дописывать поля.
	Params domain.Parameters

	// Context: идентификаторы, полученные шагами.
	Context *domain.SessionContext

	segment []domain.StepDef

	mu       sync.RWMutex
	statuses map[int]domain.StepStatus
	next     int
	results  []*domain.StepResult
}

// NewRunState создаёт состояние сегмента. Все шаги сегмента PENDING.
func NewRunState(session *domain.Session, plan *engine.Plan, params domain.Parameters, sc *domain.SessionContext) *RunState {
	segment := plan.Segment(session.Phase)

	statuses := make(map[int]domain.StepStatus, len(segment))
	for _, step := range segment {
		statuses[step.Index] = domain.StepStatusPending
	}

	return &RunState{
		Session:  session,
		Plan:     plan,
		Params:   params,
		Context:  sc,
		segment:  segment,
		statuses: statuses,
	}
}

// Steps возвращает шаги сегмента по порядку.
func (s *RunState) Steps() []domain.StepDef {
	return s.segment
}

// Begin переводит шаг в RUNNING.
// Шаг должен быть следующим по порядку и находиться в PENDING.
func (s *RunState) Begin(step domain.StepDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[step.Index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrStepNotInSegment, step.Index)
	}
	if s.next >= len(s.segment) || s.segment[s.next].Index != step.Index {
		return fmt.Errorf("%w: got %d", ErrStepOrder, step.Index)
	}
	if status != domain.StepStatusPending {
		return fmt.Errorf("%w: %d %s -> %s", ErrInvalidTransition, step.Index, status, domain.StepStatusRunning)
	}

	s.statuses[step.Index] = domain.StepStatusRunning
	return nil
}

// Finish переводит шаг из RUNNING в финальный статус по результату.
func (s *RunState) Finish(res *domain.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := res.Step.Index
	if s.statuses[index] != domain.StepStatusRunning {
		return fmt.Errorf("%w: %d %s -> %s", ErrInvalidTransition, index, s.statuses[index], res.Status())
	}

	s.statuses[index] = res.Status()
	s.results = append(s.results, res)
	s.next++
	return nil
}

// StepStatus возвращает статус шага.
func (s *RunState) StepStatus(index int) domain.StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses[index]
}

// Results возвращает результаты выполненных шагов по порядку.
func (s *RunState) Results() []*domain.StepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.StepResult, len(s.results))
	copy(out, s.results)
	return out
}

// Swallowed возвращает упавшие шаги с continue_on_error.
func (s *RunState) Swallowed() []*domain.StepResult {
	var out []*domain.StepResult
	for _, res := range s.Results() {
		if !res.Succeeded && !res.Step.AbortsOnFailure() {
			out = append(out, res)
		}
	}
	return out
}

// SessionID возвращает ID сегмента.
func (s *RunState) SessionID() uuid.UUID {
	return s.Session.ID
}

// RunStats: сводка по шагам сегмента.
type RunStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Swallowed int `json:"swallowed"`
}

// Stats возвращает сводку по шагам.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{Total: len(s.segment)}
	for _, step := range s.segment {
		switch s.statuses[step.Index] {
		case domain.StepStatusPending:
			stats.Pending++
		case domain.StepStatusRunning:
			stats.Running++
		case domain.StepStatusSucceeded:
			stats.Succeeded++
		case domain.StepStatusFailed:
			stats.Failed++
			if !step.AbortsOnFailure() {
				stats.Swallowed++
			}
		}
	}
	return stats
}
