package progress

import (
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-academy/internal/catalog"
)

// ErrGate is matched by every access-control failure, so callers can tell
// "not yet allowed" apart from "does not exist".
var ErrGate = errors.New("access denied")

var (
	ErrUnauthenticated  = gate("authentication required")
	ErrEmailNotVerified = gate("email not verified")
	ErrLocked           = gate("this item is locked until the previous one is completed")
	ErrForbidden        = gate("administrator access required")

	ErrAlreadyObtained = &conflictError{msg: "certificate already obtained"}
)

type gateError struct{ msg string }

func gate(msg string) error { return &gateError{msg: msg} }

func (e *gateError) Error() string { return e.msg }

func (e *gateError) Is(target error) bool { return target == ErrGate }

type conflictError struct{ msg string }

func (e *conflictError) Error() string { return e.msg }

func (e *conflictError) Is(target error) bool { return target == catalog.ErrConflict }

// ContentNotFinishedError blocks a quiz until the chapter content is watched.
type ContentNotFinishedError struct {
	Remaining int
}

func (e *ContentNotFinishedError) Error() string {
	return fmt.Sprintf("finish the chapter content before taking the quiz (%d remaining)", e.Remaining)
}

func (e *ContentNotFinishedError) Is(target error) bool { return target == ErrGate }

// NotEnoughModulesError is returned when a certificate tier's threshold is not met.
type NotEnoughModulesError struct {
	Tier      Tier
	Required  int
	Completed int
}

func (e *NotEnoughModulesError) Error() string {
	return fmt.Sprintf("%s certificate requires %d completed modules, you have %d", e.Tier, e.Required, e.Completed)
}

func (e *NotEnoughModulesError) Is(target error) bool { return target == catalog.ErrConflict }
