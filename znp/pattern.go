package znp

import (
	"reflect"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/types"
)

// Pattern is implemented by every generated <Cmd>Pattern type in package
// commands (e.g. commands.PingRspPattern implements Pattern[commands.PingRsp]):
// a struct of types.Maybe[Field] values plus a Matches method (§9 Design
// Notes: "a Pattern<Cmd> with Option<Field> for each field").
type Pattern[T commands.Command] interface {
	Matches(T) bool
}

// BoundPattern type-erases a Pattern[T] so listeners can hold a
// heterogeneous slice of patterns across different command types, keyed by
// the header T decodes to.
type BoundPattern struct {
	Header types.CommandHeader
	key    any
	match  func(commands.Command) bool
}

// Match builds a BoundPattern from a concrete Pattern[T]. T's header is
// read off its zero value: every generated command's Header() method
// returns a fixed package-level header regardless of field values, so this
// never touches p's fields.
func Match[T commands.Command](p Pattern[T]) BoundPattern {
	var zero T
	return BoundPattern{
		Header: zero.Header(),
		key:    p,
		match: func(cmd commands.Command) bool {
			t, ok := cmd.(T)
			if !ok {
				return false
			}
			return p.Matches(t)
		},
	}
}

func (b BoundPattern) matches(cmd commands.Command) bool {
	return b.Header == cmd.Header() && b.match(cmd)
}

type anyPattern[T commands.Command] struct{}

func (anyPattern[T]) Matches(T) bool { return true }

// Any builds a BoundPattern matching every instance of T, for commands
// whose SRSP carries nothing worth filtering on (most simple status/value
// replies used by nvram.Store and the startup sequence). Any must not be
// used with commands.StatusRsp: unlike every generated per-command type,
// StatusRsp's Header() depends on which SRSP decoded it rather than being
// fixed for the Go type, so its zero value carries no usable header. Use
// MatchStatusRsp instead.
func Any[T commands.Command]() BoundPattern {
	return Match[T](anyPattern[T]{})
}

// MatchStatusRsp builds a BoundPattern for the generic commands.StatusRsp
// shape, bound to the specific SRSP header it is expected to answer (the
// SREQ's header, via types.CommandHeader.SRSPHeader). commands.StatusRsp is
// shared by many unrelated subsystems and carries its header as instance
// state rather than fixed per Go type, so it cannot go through Match/Any.
func MatchStatusRsp(header types.CommandHeader) BoundPattern {
	return BoundPattern{
		Header: header,
		key:    header,
		match: func(cmd commands.Command) bool {
			r, ok := cmd.(commands.StatusRsp)
			return ok && r.Header() == header
		},
	}
}

// dedupePatterns drops exact-duplicate patterns (same header, equal
// pattern value) from a set passed to a single WaitForResponses/
// CallbackForResponses call (§4.4: "deduplicate patterns"). Full arbitrary
// partial-order subsumption — as the Python original computes via its
// generic matches()-on-partials relation — would require reflecting into
// each pattern's bound fields; Go's per-command Pattern structs don't
// expose that generically, so this only removes literal duplicates. See
// DESIGN.md.
func dedupePatterns(patterns []BoundPattern) []BoundPattern {
	out := make([]BoundPattern, 0, len(patterns))
	for _, p := range patterns {
		dup := false
		for _, o := range out {
			if o.Header == p.Header && reflect.DeepEqual(o.key, p.key) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
