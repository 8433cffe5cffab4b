package mq

import "errors"

var (
	// ErrNoChannel — канал брокера недоступен (соединение разорвано).
	ErrNoChannel = errors.New("no broker channel available")

	// ErrConnectionClosed — Connection закрыт вызовом Close.
	ErrConnectionClosed = errors.New("broker connection closed")
)
