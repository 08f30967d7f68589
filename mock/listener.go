// Package mock provides a ListenThread test double, adapted from the
// teacher's mock.Context (mock/context.go): a struct of counters
// instead of a full interface fake, since this module's ListenThread
// surface is a single method.
package mock

import (
	"sync"

	"github.com/sophon-stream/graphrt/xerr"
)

// Listener records every reported status code, for assertions in tests
// that build a Graph/Engine and want to observe init/start outcomes
// without wiring real logging.
type Listener struct {
	mu    sync.Mutex
	Codes []xerr.Code
}

// ReportStatus implements graphrt.ListenThread.
func (l *Listener) ReportStatus(code xerr.Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Codes = append(l.Codes, code)
}

// Last returns the most recently reported code, or xerr.Success if
// none have been reported yet.
func (l *Listener) Last() xerr.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.Codes) == 0 {
		return xerr.Success
	}
	return l.Codes[len(l.Codes)-1]
}

// Count returns how many times code was reported.
func (l *Listener) Count(code xerr.Code) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.Codes {
		if c == code {
			n++
		}
	}
	return n
}
