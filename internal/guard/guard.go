package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/records"
	"github.com/shaiso/Tollgate/internal/telemetry"
)

// Journal хранит записи отката вне процесса.
// nil Journal допустим: тогда восстановление после падения невозможно.
type Journal interface {
	// Append пишет запись в статусе pending до изменения статуса.
	Append(ctx context.Context, entry *domain.UndoEntry) error

	// Discard удаляет запись, если изменение статуса не удалось.
	Discard(ctx context.Context, id uuid.UUID) error

	// MarkRestored и MarkFailed фиксируют итог восстановления.
	MarkRestored(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Config: конфигурация Guard.
type Config struct {
	Store   records.Store
	Journal Journal

	// ActiveStatus задаёт статус, который блокирует повторную заявку.
	ActiveStatus string

	// ReapplyStatus задаёт временный статус, разрешающий повторную заявку.
	ReapplyStatus string

	// MutateAll отключает фильтр по статусу: меняется каждая найденная запись.
	// Отладочный режим, по умолчанию выключен.
	MutateAll bool

	Logger *slog.Logger
}

// Guard ищет и временно разблокирует существующие записи выдачи.
type Guard struct {
	store    records.Store
	journal  Journal
	restorer *Restorer
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New создаёт Guard.
func New(cfg Config) *Guard {
	if cfg.ActiveStatus == "" {
		cfg.ActiveStatus = records.StatusActive
	}
	if cfg.ReapplyStatus == "" {
		cfg.ReapplyStatus = records.StatusReapplyAllowed
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	logger := cfg.Logger.With("component", "guard")
	if cfg.MutateAll {
		logger.Warn("status filter disabled, every match will be mutated")
	}

	return &Guard{
		store:    cfg.Store,
		journal:  cfg.Journal,
		restorer: NewRestorer(cfg.Store, cfg.Journal, cfg.Logger),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Check ищет существующие записи заявителя в два прохода.
//
// tier 1 (high): телефон и номер удостоверения.
// tier 2 (medium): номер ТС и имя владельца, без записей из tier 1.
// Проход пропускается, если в identity нет нужной пары полей.
func (g *Guard) Check(ctx context.Context, id domain.Identity) ([]domain.RecordMatch, error) {
	var matches []domain.RecordMatch
	seen := make(map[string]bool)

	tiers := []struct {
		key        records.MatchKey
		confidence domain.Confidence
		usable     bool
	}{
		{records.ByPerson, domain.ConfidenceHigh, id.HasPersonKey()},
		{records.ByVehicle, domain.ConfidenceMedium, id.HasVehicleKey()},
	}

	for _, tier := range tiers {
		if !tier.usable {
			continue
		}

		found, err := g.store.FindMatches(ctx, tier.key, id)
		if err != nil {
			return nil, fmt.Errorf("%w: by %s: %v", ErrScan, tier.key, err)
		}

		for _, m := range found {
			if seen[m.Key()] {
				continue
			}
			seen[m.Key()] = true
			m.Confidence = tier.confidence
			matches = append(matches, m)
			telemetry.GuardMatches.WithLabelValues(string(tier.confidence)).Inc()
		}
	}

	return matches, nil
}

// FilterNeedsMutation делит совпадения на те, что нужно разблокировать,
// и те, что остаются как есть.
func (g *Guard) FilterNeedsMutation(matches []domain.RecordMatch) (toMutate, toSkip []domain.RecordMatch) {
	for _, m := range matches {
		if g.cfg.MutateAll || m.Status == g.cfg.ActiveStatus {
			toMutate = append(toMutate, m)
		} else {
			toSkip = append(toSkip, m)
		}
	}
	return toMutate, toSkip
}

// ApplyTemporaryMutation переводит записи в статус повторной заявки.
//
// Исходный статус перечитывается из хранилища перед записью. Возвращает
// записи отката для успешно изменённых записей, даже если часть записей
// изменить не удалось; ошибки по отдельным записям объединяются в err.
func (g *Guard) ApplyTemporaryMutation(ctx context.Context, sessionID uuid.UUID, toMutate []domain.RecordMatch) ([]*domain.UndoEntry, error) {
	var (
		entries []*domain.UndoEntry
		errs    []error
	)

	for _, m := range toMutate {
		entry, err := g.mutate(ctx, sessionID, m)
		switch {
		case err != nil:
			telemetry.GuardMutations.WithLabelValues(telemetry.ResultFailed).Inc()
			g.logger.Error("record mutation failed",
				"session_id", sessionID,
				"record_kind", m.Kind,
				"record_id", m.RecordID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", m.Key(), err))
		case entry == nil:
			telemetry.GuardMutations.WithLabelValues(telemetry.ResultSkipped).Inc()
		default:
			telemetry.GuardMutations.WithLabelValues(telemetry.ResultOK).Inc()
			entries = append(entries, entry)
		}
	}

	return entries, errors.Join(errs...)
}

// mutate меняет одну запись. Возвращает nil, nil, если запись
// перестала быть действующей после поиска.
func (g *Guard) mutate(ctx context.Context, sessionID uuid.UUID, m domain.RecordMatch) (*domain.UndoEntry, error) {
	original, err := g.store.ReadStatus(ctx, m.Kind, m.RecordID)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}

	if original == g.cfg.ReapplyStatus {
		return nil, nil
	}
	if !g.cfg.MutateAll && original != g.cfg.ActiveStatus {
		g.logger.Info("record no longer active, skipping",
			"record_kind", m.Kind, "record_id", m.RecordID, "status", original)
		return nil, nil
	}

	entry := &domain.UndoEntry{
		ID:             uuid.New(),
		SessionID:      sessionID,
		Kind:           m.Kind,
		RecordID:       m.RecordID,
		OriginalStatus: original,
		CreatedAt:      g.now(),
	}

	if g.journal != nil {
		if err := g.journal.Append(ctx, entry); err != nil {
			return nil, fmt.Errorf("journal undo entry: %w", err)
		}
	}

	note := fmt.Sprintf("tollgate session %s: reapplication allowed, was %s", sessionID, original)
	if err := g.store.WriteStatus(ctx, m.Kind, m.RecordID, g.cfg.ReapplyStatus, note); err != nil {
		if g.journal != nil {
			if derr := g.journal.Discard(context.WithoutCancel(ctx), entry.ID); derr != nil {
				g.logger.Warn("failed to discard undo entry", "entry_id", entry.ID, "error", derr)
			}
		}
		return nil, fmt.Errorf("write status: %w", err)
	}

	g.logger.Info("record unblocked for reapplication",
		"session_id", sessionID,
		"record_kind", m.Kind,
		"record_id", m.RecordID,
		"confidence", m.Confidence,
		"original_status", original,
	)
	return entry, nil
}
