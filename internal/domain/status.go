package domain

// TaskState — состояние task.
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → COMPLETED
//	                 ↘ FAILED
//
// Других переходов нет. Терминальные состояния не меняются.
type TaskState string

const (
	// TaskStateQueued — task в очереди допуска, ожидает GPU слот.
	TaskStateQueued TaskState = "QUEUED"

	// TaskStateRunning — task удерживает GPU слот, pipeline выполняется.
	TaskStateRunning TaskState = "RUNNING"

	// TaskStateCompleted — pipeline успешно завершён.
	TaskStateCompleted TaskState = "COMPLETED"

	// TaskStateFailed — pipeline завершился с ошибкой.
	TaskStateFailed TaskState = "FAILED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed:
		return true
	default:
		return false
	}
}

// Valid проверяет, что значение — одно из известных состояний.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateQueued, TaskStateRunning, TaskStateCompleted, TaskStateFailed:
		return true
	default:
		return false
	}
}

// StepState — состояние отдельного шага pipeline.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	                  ↘ SKIPPED
//	(или)   → SKIPPED (шаг отключён в опциях)
type StepState string

const (
	// StepStatePending — шаг ещё не запускался.
	StepStatePending StepState = "PENDING"

	// StepStateRunning — шаг выполняется.
	StepStateRunning StepState = "RUNNING"

	// StepStateCompleted — шаг успешно завершён.
	StepStateCompleted StepState = "COMPLETED"

	// StepStateFailed — шаг завершился фатальной ошибкой.
	StepStateFailed StepState = "FAILED"

	// StepStateSkipped — шаг пропущен (отключён или мягкая ошибка).
	StepStateSkipped StepState = "SKIPPED"
)

// IsSettled возвращает true, если шаг больше не изменится.
func (s StepState) IsSettled() bool {
	switch s {
	case StepStateCompleted, StepStateFailed, StepStateSkipped:
		return true
	default:
		return false
	}
}

// rank — порядок состояний шага; переход допустим только вперёд.
func (s StepState) rank() int {
	switch s {
	case StepStatePending:
		return 0
	case StepStateRunning:
		return 1
	default:
		return 2
	}
}

// CanAdvanceTo проверяет, допустим ли переход шага из s в next.
// Settled состояние не меняется, RUNNING не возвращается в PENDING.
func (s StepState) CanAdvanceTo(next StepState) bool {
	if s.IsSettled() {
		return false
	}
	return next.rank() > s.rank()
}
