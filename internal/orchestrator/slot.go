package orchestrator

import (
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/mocapd/internal/telemetry"
)

// Slot — эксклюзивный GPU-ресурс. Держит не более одного task.
//
// Занимать и освобождать слот может только цикл Orchestrator;
// Reset вызывается при восстановлении после рестарта.
type Slot struct {
	holder uuid.UUID
	held   bool
	mu     sync.Mutex
}

// NewSlot создаёт свободный слот.
func NewSlot() *Slot {
	return &Slot{}
}

// TryAcquire занимает слот для task. Возвращает false, если слот занят.
func (s *Slot) TryAcquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		return false
	}
	s.holder, s.held = id, true
	telemetry.SlotBusy.Set(1)
	return true
}

// Release освобождает слот, если его держит id.
func (s *Slot) Release(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.held || s.holder != id {
		return false
	}
	s.holder, s.held = uuid.Nil, false
	telemetry.SlotBusy.Set(0)
	return true
}

// Reset безусловно освобождает слот и возвращает прежнего держателя.
func (s *Slot) Reset() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, held := s.holder, s.held
	s.holder, s.held = uuid.Nil, false
	telemetry.SlotBusy.Set(0)
	return prev, held
}

// Holder возвращает текущего держателя слота.
func (s *Slot) Holder() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.holder, s.held
}
