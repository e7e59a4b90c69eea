package control

import (
	"errors"
	"fmt"

	"mpc-drive-core/curve"
	"mpc-drive-core/nlp"
)

// Kind classifies a pipeline failure so the session layer can pick a
// policy without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindInputValidation
	KindDegenerateFit
	KindNoConvergence
	KindInfeasible
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "input_validation"
	case KindDegenerateFit:
		return "degenerate_fit"
	case KindNoConvergence:
		return "no_convergence"
	case KindInfeasible:
		return "infeasible"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, msg: fmt.Sprintf(format, args...)}
}

func wrapError(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, msg: msg, err: err}
}

// KindOf resolves the failure kind of any error produced by the
// pipeline, including raw curve/nlp sentinels.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, curve.ErrDegenerateFit):
		return KindDegenerateFit
	case errors.Is(err, nlp.ErrNoConvergence):
		return KindNoConvergence
	case errors.Is(err, nlp.ErrInfeasible):
		return KindInfeasible
	}
	return KindUnknown
}
