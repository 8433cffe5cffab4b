package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrOrchestratorStopped — оркестратор остановлен и не принимает заявки.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")

	// ErrInvalidRequest — заявка не прошла проверку.
	ErrInvalidRequest = errors.New("invalid submission")
)
