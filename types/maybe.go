package types

import "encoding/json"

// Maybe represents a value that may be absent — used both for a command's
// trailing-optional request/response parameters (§4.2: a trailing optional
// parameter may be omitted entirely, "end of buffer ⇒ absent") and for the
// bound/unbound fields of a Pattern used to match partial commands (§3).
type Maybe[T any] struct {
	value T
	set   bool
}

// Some wraps a present value.
func Some[T any](v T) Maybe[T] { return Maybe[T]{value: v, set: true} }

// None represents an absent/unbound value.
func None[T any]() Maybe[T] { return Maybe[T]{} }

// Get returns the wrapped value and whether it was present.
func (m Maybe[T]) Get() (T, bool) { return m.value, m.set }

// IsSet reports whether the value is present/bound.
func (m Maybe[T]) IsSet() bool { return m.set }

// MatchesEq reports whether m is unbound (wildcard) or equal to other,
// per §3's partial-match rule: "∀ bound param p in a: a.p == b.p".
func MatchesEq[T comparable](m Maybe[T], other T) bool {
	v, ok := m.Get()
	if !ok {
		return true
	}
	return v == other
}

// MarshalJSON renders an absent value as null, matching the optional
// fields of the network-backup DTO (§4.9).
func (m Maybe[T]) MarshalJSON() ([]byte, error) {
	if !m.set {
		return []byte("null"), nil
	}
	return json.Marshal(m.value)
}

// UnmarshalJSON treats a JSON null as absent.
func (m *Maybe[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Maybe[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Maybe[T]{value: v, set: true}
	return nil
}
