package protocol

import "errors"

// errors for parsing
var (
	ErrHeaderTooLarge = errors.New("request header too large")

	// target extraction, the request still gets a response
	ErrUnknownRequest = errors.New("unknown request")
	ErrNoTarget       = errors.New("no target found")
	ErrBrokenRequest  = errors.New("broken request")
)
