package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/guard"
)

// PendingJournal отдаёт записи отката без итога. Реализуется repo.UndoJournalRepo.
type PendingJournal interface {
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.UndoEntry, error)
}

// Leader решает, какой экземпляр sweeper'а выполняет тик.
// Реализуется repo.AdvisoryLeader.
type Leader interface {
	TryLead(ctx context.Context) (bool, error)
}

// Config: конфигурация Sweeper.
type Config struct {
	Journal  PendingJournal
	Restorer *guard.Restorer

	// Leader: nil означает единственный экземпляр.
	Leader Leader

	// Schedule задаёт расписание (cron или @every). По умолчанию "@every 1m".
	Schedule string

	// Grace: записи моложе этого возраста считаются принадлежащими
	// живой сессии. По умолчанию 10m.
	Grace time.Duration

	// BatchSize ограничивает число записей за один тик. По умолчанию 100.
	BatchSize int

	Logger *slog.Logger
}

// Sweeper восстанавливает брошенные записи отката.
type Sweeper struct {
	journal  PendingJournal
	restorer *guard.Restorer
	leader   Leader
	schedule string
	grace    time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time
}

// New создаёт Sweeper.
func New(cfg Config) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Sweeper{
		journal:  cfg.Journal,
		restorer: cfg.Restorer,
		leader:   cfg.Leader,
		schedule: cfg.Schedule,
		grace:    cfg.Grace,
		batch:    cfg.BatchSize,
		logger:   cfg.Logger.With("component", "sweeper"),
		now:      time.Now,
	}
}

// Tick выполняет один проход. Не-лидер пропускает тик.
//
// Ошибка восстановления одной записи не останавливает проход:
// Restorer помечает её failed, и следующий тик её уже не видит.
func (s *Sweeper) Tick(ctx context.Context) (guard.RestoreReport, error) {
	if s.leader != nil {
		lead, err := s.leader.TryLead(ctx)
		if err != nil {
			return guard.RestoreReport{}, fmt.Errorf("leader election: %w", err)
		}
		if !lead {
			s.logger.Debug("not a leader, skipping sweep")
			return guard.RestoreReport{}, nil
		}
	}

	cutoff := s.now().Add(-s.grace)

	entries, err := s.journal.ListPending(ctx, cutoff, s.batch)
	if err != nil {
		return guard.RestoreReport{}, fmt.Errorf("list pending undo entries: %w", err)
	}
	if len(entries) == 0 {
		return guard.RestoreReport{}, nil
	}

	s.logger.Warn("found abandoned undo entries",
		"count", len(entries),
		"older_than", cutoff,
	)

	report := s.restorer.Restore(ctx, entries)

	s.logger.Info("sweep completed",
		"restored", report.Restored,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	if report.Err != nil {
		s.logger.Error("some records were not restored", "error", report.Err)
	}
	return report, nil
}

// Run выполняет Tick по расписанию до отмены ctx.
// Пересекающиеся запуски пропускаются.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}

	if next, err := NextRun(s.schedule, s.now()); err == nil {
		s.logger.Info("sweeper started", "schedule", s.schedule, "grace", s.grace, "next_run", next)
	}

	c.Start()
	<-ctx.Done()

	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
	return nil
}
