package znp

import (
	"sync/atomic"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/types"
	"github.com/rs/zerolog"
)

type listenerKind uint8

const (
	kindOneShot listenerKind = iota
	kindCallback
)

// listener is a set of BoundPatterns paired with either a one-shot result
// channel or a persistent callback function.
type listener struct {
	kind     listenerKind
	patterns []BoundPattern

	result   chan commands.Command // kindOneShot only, buffered 1
	resolved atomic.Bool           // kindOneShot only: guards double-send

	callback func(commands.Command) // kindCallback only
	log      zerolog.Logger
}

func (l *listener) matchingHeaders() []types.CommandHeader {
	seen := make(map[types.CommandHeader]bool, len(l.patterns))
	headers := make([]types.CommandHeader, 0, len(l.patterns))
	for _, p := range l.patterns {
		if !seen[p.Header] {
			seen[p.Header] = true
			headers = append(headers, p.Header)
		}
	}
	return headers
}

// resolve implements §4.4 step 2: "OneShot: if cmd matches any of the
// listener's patterns and the future is not done, set result; return True.
// Callback: fire fn(cmd) for every match; always return False (callback
// listeners are not consumed)."
func (l *listener) resolve(cmd commands.Command) bool {
	matched := false
	for _, p := range l.patterns {
		if p.matches(cmd) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	switch l.kind {
	case kindOneShot:
		if !l.resolved.CompareAndSwap(false, true) {
			// Two matching frames arrived in the same UART read before
			// this listener was torn down; the first one wins (§4.4).
			return false
		}
		l.result <- cmd
		return true
	case kindCallback:
		l.invokeCallback(cmd)
		return false
	default:
		return false
	}
}

// invokeCallback traps panics so one bad subscriber cannot stop dispatch
// for the rest of the listener table (§9 Design Notes: "Callback
// dispatch").
func (l *listener) invokeCallback(cmd commands.Command) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("callback listener panicked")
		}
	}()
	l.callback(cmd)
}

// cancel marks a one-shot listener done without a result, for the removal
// path driven by context cancellation. Callback listeners are not
// cancelable (§4.4, mirroring CallbackResponseListener.cancel() == False).
func (l *listener) cancel() {
	if l.kind == kindOneShot {
		l.resolved.CompareAndSwap(false, true)
	}
}
