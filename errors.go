package vtab

import (
	"errors"
	"fmt"
)

// Distinguished protocol outcomes. ErrConstraint is not a failure as such:
// returned from BestIndex it rejects one candidate plan, and returned from a
// mutation it maps to the host's constraint-failure handling instead of a
// statement abort.
var (
	ErrConstraint  = errors.New("constraint violation")
	ErrUnsupported = errors.New("unsupported by host version")
	ErrStaleHandle = errors.New("stale handle")
	ErrNoModule    = errors.New("no such module")
	ErrNoValue     = errors.New("value not known at planning time")
)

// ProtocolError reports malformed host input or a host call that violates
// the protocol's sequencing rules. It always means a bug on one side of the
// boundary, not a user table failure.
type ProtocolError struct {
	Op  string
	Msg string
	Err error
}

func protocolf(op string, format string, args ...any) error {
	return &ProtocolError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

func staleHandle(op string) error {
	return &ProtocolError{Op: op, Msg: "handle is gone", Err: ErrStaleHandle}
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vtab: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("vtab: %s: %s", e.Op, e.Msg)
}

// Status is the host's numeric result convention. Every adapter operation
// translates its outcome into one of these at the call boundary; errors
// never propagate past it in any other form.
type Status int

const (
	StatusOK         Status = 0
	StatusError      Status = 1
	StatusNotFound   Status = 12
	StatusConstraint Status = 19
	StatusMisuse     Status = 21
)

// StatusOf maps an error returned by a Conn operation to the host's status
// code and message. A nil error is StatusOK with an empty message; the
// message side of the channel is owned by the host once returned.
func StatusOf(err error) (Status, string) {
	switch {
	case err == nil:
		return StatusOK, ""
	case errors.Is(err, ErrConstraint):
		return StatusConstraint, err.Error()
	case errors.Is(err, ErrUnsupported):
		return StatusNotFound, err.Error()
	default:
		var pe *ProtocolError
		if errors.As(err, &pe) {
			return StatusMisuse, err.Error()
		}
		return StatusError, err.Error()
	}
}
