package store

import "errors"

// Ошибки Task Store.
var (
	// ErrNotFound — task не найден.
	ErrNotFound = errors.New("task not found")

	// ErrAlreadyExists — task с таким ID уже существует.
	ErrAlreadyExists = errors.New("task already exists")

	// ErrInvalidTransition — недопустимый переход состояния task.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrProgressRegression — прогресс шага не может двигаться назад или вне порядка шагов.
	ErrProgressRegression = errors.New("progress regression")

	// ErrUnknownStep — шаг не входит в pipeline.
	ErrUnknownStep = errors.New("unknown step")

	// ErrArtifactMissing — записываемый артефакт не существует на диске.
	ErrArtifactMissing = errors.New("artifact missing on disk")

	// ErrTaskRunning — операция невозможна, пока task выполняется.
	ErrTaskRunning = errors.New("task is running")
)
