package signaling

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a frame is sent or a close is requested
// while no open socket exists.
var ErrNotConnected = errors.New("websocket is not connected")

// TransportError reports a failure of the underlying WebSocket: dial, read,
// write or close. It is delivered through Listener.OnFailure and, for
// sends, also returned to the caller.
type TransportError struct {
	Op  string // "dial", "read", "send", "disconnect"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("websocket %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
