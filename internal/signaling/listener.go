package signaling

import "net/http"

// Listener receives Channel events. Callbacks run on the channel's own
// goroutines (dial / read loop) and must not block for long.
type Listener interface {
	OnOpen(resp *http.Response)
	OnText(text string)
	OnBinary(data []byte)
	OnClosing(code int, reason string)
	OnClosed(code int, reason string)
	OnFailure(err error, resp *http.Response)
}

// NopListener implements Listener with no-ops. Embed it to override only
// the callbacks you need.
type NopListener struct{}

func (NopListener) OnOpen(*http.Response)           {}
func (NopListener) OnText(string)                   {}
func (NopListener) OnBinary([]byte)                 {}
func (NopListener) OnClosing(int, string)           {}
func (NopListener) OnClosed(int, string)            {}
func (NopListener) OnFailure(error, *http.Response) {}
