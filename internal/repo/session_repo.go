package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Tollgate/internal/domain"
)

// SessionRepo хранит журнал сегментов и шагов.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo создаёт новый SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// Create создаёт запись сегмента.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (id, variant, phase, status, order_id, is_sandbox, started_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Variant,
		s.Phase,
		s.Status,
		nullString(s.OrderID),
		s.IsSandbox,
		s.StartedAt,
		s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Update обновляет статус, order_id, время завершения и ошибку.
func (r *SessionRepo) Update(ctx context.Context, s *domain.Session) error {
	query := `
		UPDATE sessions
		SET status = $2, order_id = $3, finished_at = $4, error = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Status,
		nullString(s.OrderID),
		s.FinishedAt,
		nullString(s.Error),
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает сегмент по ID.
func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, variant, phase, status, order_id, is_sandbox,
		       started_at, finished_at, error, created_at
		FROM sessions
		WHERE id = $1
	`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// ListByOrderID возвращает сегменты одной попытки оформления.
func (r *SessionRepo) ListByOrderID(ctx context.Context, orderID string) ([]domain.Session, error) {
	query := `
		SELECT id, variant, phase, status, order_id, is_sandbox,
		       started_at, finished_at, error, created_at
		FROM sessions
		WHERE order_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// AppendStep пишет итог шага.
func (r *SessionRepo) AppendStep(ctx context.Context, rec domain.StepRecord) error {
	query := `
		INSERT INTO session_steps (session_id, step_index, step_name, status, attempts,
		                           error, swallowed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.SessionID,
		rec.Index,
		rec.Name,
		rec.Status,
		rec.Attempts,
		nullString(rec.Error),
		rec.Swallowed,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session step: %w", err)
	}
	return nil
}

// ListSteps возвращает шаги сегмента по порядку.
func (r *SessionRepo) ListSteps(ctx context.Context, sessionID uuid.UUID) ([]domain.StepRecord, error) {
	query := `
		SELECT session_id, step_index, step_name, status, attempts,
		       error, swallowed, started_at, finished_at
		FROM session_steps
		WHERE session_id = $1
		ORDER BY step_index ASC
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.StepRecord
	for rows.Next() {
		var rec domain.StepRecord
		var stepErr *string
		if err := rows.Scan(
			&rec.SessionID,
			&rec.Index,
			&rec.Name,
			&rec.Status,
			&rec.Attempts,
			&stepErr,
			&rec.Swallowed,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session step: %w", err)
		}
		rec.Error = fromNull(stepErr)
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}

// scanSession сканирует одну строку в Session.
func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var orderID, sessErr *string

	err := row.Scan(
		&s.ID,
		&s.Variant,
		&s.Phase,
		&s.Status,
		&orderID,
		&s.IsSandbox,
		&s.StartedAt,
		&s.FinishedAt,
		&sessErr,
		&s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	s.OrderID = fromNull(orderID)
	s.Error = fromNull(sessErr)
	return &s, nil
}
