package action

import (
	"fmt"
	"sort"
	"strings"

	"parkcraft.ai/internal/protocol"
	"parkcraft.ai/internal/sim/park"
)

// Status is the outcome class of a Result. The set is closed.
type Status uint8

const (
	StatusOK Status = iota
	StatusAuthorizationDenied
	StatusPreconditionFailed
	StatusInsufficientResources
	StatusProtocolViolation
	StatusInternalInvariantViolation
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusAuthorizationDenied:
		return "authorization_denied"
	case StatusPreconditionFailed:
		return "precondition_failed"
	case StatusInsufficientResources:
		return "insufficient_resources"
	case StatusProtocolViolation:
		return "protocol_violation"
	default:
		return "internal_invariant_violation"
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, bool) {
	for s := StatusOK; s <= StatusInternalInvariantViolation; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return StatusInternalInvariantViolation, false
}

// Code maps the status onto the wire error codes.
func (s Status) Code() string {
	switch s {
	case StatusOK:
		return ""
	case StatusAuthorizationDenied:
		return protocol.ErrNoPermission
	case StatusPreconditionFailed:
		return protocol.ErrPrecondition
	case StatusInsufficientResources:
		return protocol.ErrNoResource
	case StatusProtocolViolation:
		return protocol.ErrProtocol
	default:
		return protocol.ErrInternal
	}
}

// Result is what every query and execute reports, whatever the variant.
type Result struct {
	Status      Status
	Title       MessageID
	Message     MessageID
	Args        map[string]string
	Cost        park.Money
	Expenditure park.Expenditure
	Position    park.CoordsXYZ
	// Payload is set only on success, and only by variants that define one.
	Payload any
}

func OK() Result { return Result{Status: StatusOK} }

// Fail builds a failure Result. Unknown message ids are replaced by
// MsgInternalError so a presentation layer never sees an id it cannot render.
func Fail(status Status, title, msg MessageID) Result {
	if status == StatusOK {
		status = StatusInternalInvariantViolation
	}
	return Result{Status: status, Title: Normalize(title), Message: Normalize(msg)}
}

func (r Result) OK() bool { return r.Status == StatusOK }

// With returns a copy of r carrying one more interpolation argument.
func (r Result) With(key string, value any) Result {
	args := make(map[string]string, len(r.Args)+1)
	for k, v := range r.Args {
		args[k] = v
	}
	args[key] = fmt.Sprint(value)
	r.Args = args
	return r
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("OK cost=%s", r.Cost)
	}
	var sb strings.Builder
	sb.WriteString("Failed ")
	sb.WriteString(r.Status.String())
	sb.WriteString(": ")
	sb.WriteString(string(r.Message))
	if len(r.Args) > 0 {
		keys := make([]string, 0, len(r.Args))
		for k := range r.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%s", k, r.Args[k])
		}
	}
	return sb.String()
}

// PayloadAs returns the payload as T when the result succeeded and carries one.
func PayloadAs[T any](r Result) (T, bool) {
	var zero T
	if !r.OK() || r.Payload == nil {
		return zero, false
	}
	v, ok := r.Payload.(T)
	return v, ok
}
