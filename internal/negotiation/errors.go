package negotiation

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyCapturing is returned by a second StartCaptureLocalVideo.
	ErrAlreadyCapturing = errors.New("local capture already started")

	// ErrNoLocalMedia is returned by StartCaptureLocalVideo when the
	// coordinator was built without local media.
	ErrNoLocalMedia = errors.New("no local media")

	// ErrDisposed is returned by operations attempted after Dispose.
	ErrDisposed = errors.New("coordinator disposed")
)

// NegotiationError reports a failed offer/answer creation or a description
// the media engine rejected. The peer connection is left as it was before
// the failed step.
type NegotiationError struct {
	Op  string // e.g. "create offer", "set local answer", "set remote offer"
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation: %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// CandidateError reports a remote ICE candidate the media engine did not
// accept, for example one applied before any remote description.
type CandidateError struct {
	Mid       string
	LineIndex int
	Err       error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("add ICE candidate (mid=%s, index=%d): %v", e.Mid, e.LineIndex, e.Err)
}

func (e *CandidateError) Unwrap() error { return e.Err }
