package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Ошибки блокировки.
var (
	// ErrHeld: блокировку держит другой запрос.
	ErrHeld = errors.New("resume already in progress")

	// ErrNotOwner: блокировка истекла или принадлежит другому владельцу.
	ErrNotOwner = errors.New("lock not owned")
)

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "tollgate:resume:"
)

// releaseScript удаляет ключ, только если значение совпадает с токеном.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Config: конфигурация ResumeLock.
type Config struct {
	// TTL ограничивает время жизни блокировки на случай падения процесса.
	// По умолчанию 5m.
	TTL time.Duration

	// Prefix задаёт префикс ключей. По умолчанию "tollgate:resume:".
	Prefix string
}

// ResumeLock: блокировка resume по sign_order_id.
type ResumeLock struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewResumeLock создаёт ResumeLock.
func NewResumeLock(client redis.UniversalClient, cfg Config) *ResumeLock {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	return &ResumeLock{client: client, ttl: cfg.TTL, prefix: cfg.Prefix}
}

// Acquire захватывает блокировку и возвращает токен владельца.
func (l *ResumeLock) Acquire(ctx context.Context, signOrderID string) (string, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.prefix+signOrderID, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire resume lock: %w", err)
	}
	if !ok {
		return "", ErrHeld
	}
	return token, nil
}

// Release снимает блокировку, если она ещё принадлежит token.
func (l *ResumeLock) Release(ctx context.Context, signOrderID, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.prefix + signOrderID}, token).Int()
	if err != nil {
		return fmt.Errorf("release resume lock: %w", err)
	}
	if n == 0 {
		return ErrNotOwner
	}
	return nil
}

// NewClient создаёт клиента Redis и проверяет соединение.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
