package queue

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Ошибки очереди.
var (
	// ErrQueueFull — очередь достигла ёмкости.
	ErrQueueFull = errors.New("admission queue is full")

	// ErrDuplicate — task уже в очереди.
	ErrDuplicate = errors.New("task already queued")
)

const defaultCapacity = 10

// Queue — ограниченная FIFO-очередь ожидающих tasks.
//
// Порядок вставки — единственный ключ порядка: Peek отдаёт
// tasks ровно в том порядке, в котором они прошли Push.
type Queue struct {
	items    []uuid.UUID
	capacity int
	mu       sync.Mutex
}

// New создаёт очередь. capacity <= 0 заменяется значением по умолчанию (10).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Queue{
		items:    make([]uuid.UUID, 0, capacity),
		capacity: capacity,
	}
}

// Push добавляет task в хвост, если длина меньше ёмкости.
func (q *Queue) Push(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if slices.Contains(q.items, id) {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	if len(q.items) >= q.capacity {
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, q.capacity)
	}
	q.items = append(q.items, id)
	return nil
}

// Peek возвращает голову очереди без извлечения.
func (q *Queue) Peek() (uuid.UUID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return uuid.Nil, false
	}
	return q.items[0], true
}

// Remove удаляет task из очереди. Возвращает false, если его там нет.
func (q *Queue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := slices.Index(q.items, id)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

// Position возвращает позицию task в очереди (1 — голова), 0 — если его нет.
func (q *Queue) Position(id uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return slices.Index(q.items, id) + 1
}

// Len возвращает текущую длину очереди.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Capacity возвращает ёмкость очереди.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Snapshot возвращает копию содержимого в порядке извлечения.
func (q *Queue) Snapshot() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()

	return slices.Clone(q.items)
}
