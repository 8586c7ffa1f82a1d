package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Tollgate/internal/domain"
)

// Состояния записи журнала отката.
const (
	UndoStatePending  = "pending"
	UndoStateRestored = "restored"
	UndoStateFailed   = "failed"
)

// UndoJournalRepo хранит записи отката Guard.
//
// Запись появляется в состоянии pending до изменения статуса в общем
// хранилище, затем переходит в restored или failed. Если изменить статус
// не удалось, запись удаляется.
type UndoJournalRepo struct {
	pool *pgxpool.Pool
}

// NewUndoJournalRepo создаёт новый UndoJournalRepo.
func NewUndoJournalRepo(pool *pgxpool.Pool) *UndoJournalRepo {
	return &UndoJournalRepo{pool: pool}
}

// Append пишет запись в состоянии pending.
func (r *UndoJournalRepo) Append(ctx context.Context, e *domain.UndoEntry) error {
	query := `
		INSERT INTO undo_entries (id, session_id, record_kind, record_id, original_status, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.SessionID,
		e.Kind,
		e.RecordID,
		e.OriginalStatus,
		UndoStatePending,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert undo entry: %w", err)
	}
	return nil
}

// Discard удаляет запись в состоянии pending.
func (r *UndoJournalRepo) Discard(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM undo_entries WHERE id = $1 AND state = $2`,
		id, UndoStatePending,
	)
	if err != nil {
		return fmt.Errorf("delete undo entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRestored переводит pending запись в restored.
func (r *UndoJournalRepo) MarkRestored(ctx context.Context, id uuid.UUID) error {
	return r.finish(ctx, id, UndoStateRestored, "")
}

// MarkFailed переводит pending запись в failed с причиной.
func (r *UndoJournalRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.finish(ctx, id, UndoStateFailed, reason)
}

func (r *UndoJournalRepo) finish(ctx context.Context, id uuid.UUID, state, reason string) error {
	query := `
		UPDATE undo_entries
		SET state = $2, failed_reason = $3, finished_at = NOW()
		WHERE id = $1 AND state = $4
	`
	result, err := r.pool.Exec(ctx, query, id, state, nullString(reason), UndoStatePending)
	if err != nil {
		return fmt.Errorf("update undo entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListPending возвращает pending записи, созданные раньше olderThan.
func (r *UndoJournalRepo) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.UndoEntry, error) {
	query := `
		SELECT id, session_id, record_kind, record_id, original_status, state, failed_reason, created_at
		FROM undo_entries
		WHERE state = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	return r.list(ctx, query, UndoStatePending, olderThan, limit)
}

// ListBySession возвращает все записи сегмента.
func (r *UndoJournalRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.UndoEntry, error) {
	query := `
		SELECT id, session_id, record_kind, record_id, original_status, state, failed_reason, created_at
		FROM undo_entries
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, sessionID)
}

func (r *UndoJournalRepo) list(ctx context.Context, query string, args ...any) ([]*domain.UndoEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list undo entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.UndoEntry
	for rows.Next() {
		e, err := scanUndoEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanUndoEntry(row pgx.Row) (*domain.UndoEntry, error) {
	var e domain.UndoEntry
	var state string
	var reason *string

	if err := row.Scan(
		&e.ID,
		&e.SessionID,
		&e.Kind,
		&e.RecordID,
		&e.OriginalStatus,
		&state,
		&reason,
		&e.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan undo entry: %w", err)
	}

	switch state {
	case UndoStateRestored:
		e.MarkRestored()
	case UndoStateFailed:
		e.MarkFailed(fromNull(reason))
	}
	return &e, nil
}
