package souper

import (
	"errors"
)

// errInvalidInput is reported by passes that require a valid rule to start
// from. The caller diagnoses it and moves on to the next rule.
var errInvalidInput = errors.New("input rule is invalid")

// ErrInvalidInput reports whether err means the pass rejected its input rule
// rather than failing internally.
func ErrInvalidInput(err error) bool {
	return errors.Is(err, errInvalidInput)
}
