package executor

import "errors"

// Ошибки запуска процессов.
var (
	// ErrStart — процесс не удалось запустить (нет бинарника, нет прав).
	ErrStart = errors.New("start process")

	// ErrKillUnconfirmed — процесс не завершился даже после SIGKILL.
	ErrKillUnconfirmed = errors.New("process termination not confirmed")
)
