package repo

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InstanceLock — advisory lock Postgres, гарантирующий один экземпляр
// mocapd на work root. Lock живёт, пока удерживается соединение.
type InstanceLock struct {
	conn *pgxpool.Conn
	key  int64
}

// LockKey вычисляет ключ advisory lock для work root.
func LockKey(workRoot string) int64 {
	h := fnv.New64a()
	h.Write([]byte("mocapd:" + workRoot))
	return int64(h.Sum64())
}

// AcquireInstanceLock берёт lock без ожидания. Возвращает ErrLocked,
// если lock держит другой процесс.
func AcquireInstanceLock(ctx context.Context, pool *pgxpool.Pool, key int64) (*InstanceLock, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, fmt.Errorf("%w: key %d", ErrLocked, key)
	}

	return &InstanceLock{conn: conn, key: key}, nil
}

// Release освобождает lock и возвращает соединение в пул.
func (l *InstanceLock) Release(ctx context.Context) error {
	defer l.conn.Release()

	if _, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
