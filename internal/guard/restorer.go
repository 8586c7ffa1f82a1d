package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/records"
	"github.com/shaiso/Tollgate/internal/telemetry"
)

// RestoreReport содержит итог прохода Restorer.
type RestoreReport struct {
	Restored int
	Failed   int

	// Skipped: записи, для которых попытка уже была.
	Skipped int

	// Err объединяет ошибки восстановления. Только для логов.
	Err error
}

// Restorer возвращает записям исходные статусы.
type Restorer struct {
	store   records.Store
	journal Journal
	logger  *slog.Logger
}

// NewRestorer создаёт Restorer. journal может быть nil.
func NewRestorer(store records.Store, journal Journal, logger *slog.Logger) *Restorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Restorer{
		store:   store,
		journal: journal,
		logger:  logger.With("component", "restorer"),
	}
}

// Restore восстанавливает каждую запись, по которой ещё не было попытки.
//
// Успех помечает запись Restored, отказ помечает FailedReason; в обоих
// случаях повторный вызов запись не трогает. Отказы не прерывают проход.
func (r *Restorer) Restore(ctx context.Context, entries []*domain.UndoEntry) RestoreReport {
	var (
		report RestoreReport
		errs   []error
	)

	for _, e := range entries {
		if e == nil {
			continue
		}
		if e.Attempted() {
			report.Skipped++
			continue
		}

		if err := r.restoreOne(ctx, e); err != nil {
			report.Failed++
			errs = append(errs, err)
			continue
		}
		report.Restored++
	}

	report.Err = errors.Join(errs...)
	return report
}

func (r *Restorer) restoreOne(ctx context.Context, e *domain.UndoEntry) error {
	note := fmt.Sprintf("tollgate session %s: status restored to %s", e.SessionID, e.OriginalStatus)

	if err := r.store.WriteStatus(ctx, e.Kind, e.RecordID, e.OriginalStatus, note); err != nil {
		e.MarkFailed(err.Error())
		telemetry.Restorations.WithLabelValues(telemetry.ResultFailed).Inc()

		r.logger.Error("record restoration failed",
			"session_id", e.SessionID,
			"record_kind", e.Kind,
			"record_id", e.RecordID,
			"original_status", e.OriginalStatus,
			"error", err,
		)

		if r.journal != nil {
			if jerr := r.journal.MarkFailed(ctx, e.ID, e.FailedReason); jerr != nil {
				r.logger.Warn("failed to mark undo entry failed", "entry_id", e.ID, "error", jerr)
			}
		}
		return fmt.Errorf("%w: %s:%s: %v", domain.ErrCompensation, e.Kind, e.RecordID, err)
	}

	e.MarkRestored()
	telemetry.Restorations.WithLabelValues(telemetry.ResultOK).Inc()

	r.logger.Info("record status restored",
		"session_id", e.SessionID,
		"record_kind", e.Kind,
		"record_id", e.RecordID,
		"status", e.OriginalStatus,
	)

	if r.journal != nil {
		if jerr := r.journal.MarkRestored(ctx, e.ID); jerr != nil {
			r.logger.Warn("failed to mark undo entry restored", "entry_id", e.ID, "error", jerr)
		}
	}
	return nil
}
