package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/shaiso/Tollgate/internal/domain"
)

// tables связывает тип записи с таблицей.
var tables = map[domain.RecordKind]string{
	domain.RecordKindCard: "etc_card_records",
	domain.RecordKindOBU:  "etc_obu_records",
}

// MySQLStore реализует Store поверх MySQL.
type MySQLStore struct {
	db      *sql.DB
	blocked []string
}

type config struct {
	driver  string
	dsn     string
	db      *sql.DB
	blocked []string
}

// Option настраивает MySQLStore.
type Option func(*config)

// WithDSN задаёт DSN MySQL.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver задаёт имя драйвера. Игнорируется, если задан WithDB.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB задаёт готовый *sql.DB.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithBlockedStatuses переопределяет статусы, исключаемые из поиска.
func WithBlockedStatuses(statuses ...string) Option {
	return func(c *config) {
		c.blocked = statuses
	}
}

// NewMySQLStore открывает соединение и проверяет его.
func NewMySQLStore(ctx context.Context, opts ...Option) (*MySQLStore, error) {
	cfg := &config{driver: "mysql", blocked: DefaultBlockedStatuses}
	for _, opt := range opts {
		opt(cfg)
	}

	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, fmt.Errorf("open records db: %w", err)
		}
	}
	if err = cfg.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping records db: %w", err)
	}

	return &MySQLStore{db: cfg.db, blocked: cfg.blocked}, nil
}

// Close закрывает соединение.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// FindMatches ищет записи по связке key в таблицах карт и OBU.
func (s *MySQLStore) FindMatches(ctx context.Context, key MatchKey, id domain.Identity) ([]domain.RecordMatch, error) {
	where, args, err := matchClause(key, id)
	if err != nil {
		return nil, err
	}

	if len(s.blocked) > 0 {
		where += " AND status NOT IN (" + placeholders(len(s.blocked)) + ")"
		for _, st := range s.blocked {
			args = append(args, st)
		}
	}

	var matches []domain.RecordMatch
	for _, kind := range Kinds {
		query := fmt.Sprintf("SELECT record_id, status FROM %s WHERE %s ORDER BY record_id", tables[kind], where)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("find %s matches by %s: %w", kind, key, err)
		}

		for rows.Next() {
			m := domain.RecordMatch{Kind: kind}
			if err := rows.Scan(&m.RecordID, &m.Status); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s match: %w", kind, err)
			}
			matches = append(matches, m)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate %s matches: %w", kind, err)
		}
	}

	return matches, nil
}

// ReadStatus возвращает текущий статус записи.
func (s *MySQLStore) ReadStatus(ctx context.Context, kind domain.RecordKind, recordID string) (string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}

	var status string
	err = s.db.QueryRowContext(ctx,
		"SELECT status FROM "+table+" WHERE record_id = ?", recordID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s %s", ErrNotFound, kind, recordID)
	}
	if err != nil {
		return "", fmt.Errorf("read %s status: %w", kind, err)
	}
	return status, nil
}

// WriteStatus записывает статус и аудит-заметку.
func (s *MySQLStore) WriteStatus(ctx context.Context, kind domain.RecordKind, recordID, status, note string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET status = ?, audit_note = ?, updated_at = CURRENT_TIMESTAMP WHERE record_id = ?",
		status, sqlNullString(note), recordID,
	)
	if err != nil {
		return fmt.Errorf("write %s status: %w", kind, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write %s status: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, recordID)
	}
	return nil
}

// matchClause строит условие поиска для связки.
func matchClause(key MatchKey, id domain.Identity) (string, []any, error) {
	switch key {
	case ByPerson:
		return "phone = ? AND UPPER(id_number) = ?", []any{id.Phone, id.IDNumber}, nil
	case ByVehicle:
		return "UPPER(plate_no) = ? AND owner_name = ?", []any{id.PlateNo, id.OwnerName}, nil
	default:
		return "", nil, fmt.Errorf("unknown match key %d", key)
	}
}

func tableFor(kind domain.RecordKind) (string, error) {
	table, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return table, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// sqlNullString выставляет Valid, если строка не пустая.
func sqlNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
