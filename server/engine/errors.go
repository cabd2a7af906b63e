package engine

import "errors"

// connection level errors, none of them leaves the connection
var (
	ErrPeerClosed  = errors.New("peer closed connection")
	ErrReadRetries = errors.New("too many read errors")
	ErrTimeout     = errors.New("i/o timeout")
	ErrShortWrite  = errors.New("short write")
	ErrShutdown    = errors.New("engine is stopping")
)
