package repo

import "errors"

var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrLocked — другой экземпляр mocapd уже владеет work root.
	ErrLocked = errors.New("instance lock held by another process")
)
