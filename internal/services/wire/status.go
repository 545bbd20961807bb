package wire

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/niczy/zombies/internal/gameerr"
	"github.com/niczy/zombies/internal/session"
)

// ToStatus converts an operation error into a gRPC status error. Program
// errors keep their name at the front of the message.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	msg := err.Error()
	var pe *gameerr.ProgramError
	if errors.As(err, &pe) {
		msg = pe.Error()
	}
	return status.Error(codeOf(err), msg)
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, ErrMalformed):
		return codes.InvalidArgument
	case errors.Is(err, ErrBadSignature), errors.Is(err, ErrStale), errors.Is(err, ErrReplayed):
		return codes.Unauthenticated
	case errors.Is(err, session.ErrGrantNotFound):
		return codes.NotFound
	}

	var pe *gameerr.ProgramError
	if !errors.As(err, &pe) {
		return codes.Internal
	}
	switch {
	case errors.Is(pe, gameerr.ErrUnauthorized),
		errors.Is(pe, gameerr.ErrInvalidToken),
		errors.Is(pe, gameerr.ErrConstraintViolation):
		return codes.PermissionDenied
	case errors.Is(pe, gameerr.ErrZombieNotReady):
		return codes.FailedPrecondition
	case errors.Is(pe, gameerr.ErrDuplicateBattle),
		errors.Is(pe, gameerr.ErrAlreadyInitialized):
		return codes.AlreadyExists
	case errors.Is(pe, gameerr.ErrIndexOutOfRange),
		errors.Is(pe, gameerr.ErrInvalidSelection),
		errors.Is(pe, gameerr.ErrInvalidZombieID):
		return codes.InvalidArgument
	case errors.Is(pe, gameerr.ErrNoEmptySlot):
		return codes.ResourceExhausted
	case errors.Is(pe, gameerr.ErrArmyNotFound),
		errors.Is(pe, gameerr.ErrBattleNotFound):
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// RemoteError is a failed call as seen by a client.
type RemoteError struct {
	Code    codes.Code
	Message string
	Program *gameerr.ProgramError
}

func (e *RemoteError) Error() string {
	return e.Code.String() + ": " + e.Message
}

// Unwrap exposes the program error so callers can match it with errors.Is.
func (e *RemoteError) Unwrap() error {
	if e.Program == nil {
		return nil
	}
	return e.Program
}

// FromStatus turns a gRPC status error back into a RemoteError. Program errors
// are recognized by the name their message starts with.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	out := &RemoteError{Code: st.Code(), Message: st.Message()}
	if name, _, found := strings.Cut(st.Message(), ":"); found {
		if pe, ok := gameerr.ByName(name); ok {
			out.Program = pe
		}
	}
	return out
}
