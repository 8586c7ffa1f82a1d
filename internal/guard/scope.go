package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
)

// Scope хранит изменения одной области Guard до их отката.
//
// Release можно вызывать сколько угодно раз: откат выполняется один раз.
type Scope struct {
	SessionID uuid.UUID

	// Matches содержит все найденные записи.
	Matches []domain.RecordMatch

	// Skipped содержит записи, оставленные без изменений.
	Skipped []domain.RecordMatch

	// Entries содержит записи отката для изменённых записей.
	Entries []*domain.UndoEntry

	restorer *Restorer
	once     sync.Once
	report   RestoreReport
}

// Release откатывает изменения области.
// Отмена ctx не прерывает откат.
func (s *Scope) Release(ctx context.Context) RestoreReport {
	s.once.Do(func() {
		if len(s.Entries) == 0 {
			return
		}
		s.report = s.restorer.Restore(context.WithoutCancel(ctx), s.Entries)
	})
	return s.report
}

// Acquire выполняет check, filter и mutate.
//
// Ошибка поиска или ситуация, когда нужно было разблокировать записи,
// но не удалось ни одну, возвращается как *domain.FatalError класса
// duplicate_guard. Частичный успех ошибкой не считается.
func (g *Guard) Acquire(ctx context.Context, sessionID uuid.UUID, id domain.Identity) (*Scope, error) {
	scope := &Scope{SessionID: sessionID, restorer: g.restorer}

	matches, err := g.Check(ctx, id)
	if err != nil {
		return scope, domain.NewGuardError("existing record scan failed", err)
	}
	scope.Matches = matches

	toMutate, toSkip := g.FilterNeedsMutation(matches)
	scope.Skipped = toSkip

	g.logger.Info("duplicate check finished",
		"session_id", sessionID,
		"matches", len(matches),
		"to_mutate", len(toMutate),
		"to_skip", len(toSkip),
	)

	if len(toMutate) == 0 {
		return scope, nil
	}

	entries, err := g.ApplyTemporaryMutation(ctx, sessionID, toMutate)
	scope.Entries = entries

	if err != nil {
		if len(entries) == 0 {
			return scope, domain.NewGuardError(
				fmt.Sprintf("expected to unblock %d records, unblocked 0", len(toMutate)),
				errors.Join(ErrNothingMutated, err),
			)
		}
		g.logger.Warn("partial record mutation",
			"session_id", sessionID,
			"mutated", len(entries),
			"expected", len(toMutate),
			"error", err,
		)
	}

	return scope, nil
}

// Protect выполняет fn внутри области Guard.
//
// Откат выполняется на любом выходе из fn: успех, ошибка, panic.
// Если Acquire вернул ошибку, fn не вызывается.
func (g *Guard) Protect(ctx context.Context, sessionID uuid.UUID, id domain.Identity, fn func(ctx context.Context) error) (scope *Scope, err error) {
	scope, err = g.Acquire(ctx, sessionID, id)
	if err != nil {
		scope.Release(ctx)
		return scope, err
	}

	defer func() {
		rec := recover()
		report := scope.Release(ctx)
		if report.Err != nil {
			g.logger.Warn("compensation incomplete",
				"session_id", sessionID,
				"restored", report.Restored,
				"failed", report.Failed,
				"error", report.Err,
			)
		}
		if rec != nil {
			panic(rec)
		}
	}()

	return scope, fn(ctx)
}
