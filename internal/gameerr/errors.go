// Package gameerr defines the error codes the zombies program reports to callers.
package gameerr

import "fmt"

// Code is the stable numeric identifier of a program error.
type Code uint32

// ProgramError is a terminal failure of one program operation. Errors with the
// same code match under errors.Is regardless of the attached detail.
type ProgramError struct {
	Code   Code
	Name   string
	Msg    string
	Detail string
}

func (e *ProgramError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Name, e.Msg, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

// Is matches any ProgramError carrying the same code.
func (e *ProgramError) Is(target error) bool {
	t, ok := target.(*ProgramError)
	return ok && t.Code == e.Code
}

// With returns a copy of e carrying detail.
func (e *ProgramError) With(format string, args ...any) *ProgramError {
	cp := *e
	cp.Detail = fmt.Sprintf(format, args...)
	return &cp
}

func newError(code Code, name, msg string) *ProgramError {
	return &ProgramError{Code: code, Name: name, Msg: msg}
}

var (
	ErrInvalidZombieID     = newError(6000, "InvalidZombieId", "Invalid zombie ID")
	ErrZombieNotReady      = newError(6001, "ZombieNotReady", "Zombie is not ready to fight")
	ErrInvalidSelection    = newError(6003, "InvalidSelection", "Invalid selection")
	ErrUnauthorized        = newError(6008, "Unauthorized", "Unauthorized access")
	ErrArithmeticOverflow  = newError(6009, "ArithmeticOverflow", "Arithmetic overflow")
	ErrNoEmptySlot         = newError(6010, "NoEmptySlot", "You have reach your army limit")
	ErrInvalidToken        = newError(6011, "InvalidToken", "Session token is invalid")
	ErrIndexOutOfRange     = newError(6012, "IndexOutOfRange", "Zombie index out of range")
	ErrAlreadyInitialized  = newError(6013, "AlreadyInitialized", "Army already initialized")
	ErrDuplicateBattle     = newError(6014, "DuplicateBattle", "Battle already recorded")
	ErrArmyNotFound        = newError(6015, "ArmyNotFound", "Army account not found")
	ErrBattleNotFound      = newError(6016, "BattleNotFound", "Battle account not found")
	ErrConstraintViolation = newError(2001, "ConstraintHasOne", "A has one constraint was violated")
)

var all = []*ProgramError{
	ErrInvalidZombieID,
	ErrZombieNotReady,
	ErrInvalidSelection,
	ErrUnauthorized,
	ErrArithmeticOverflow,
	ErrNoEmptySlot,
	ErrInvalidToken,
	ErrIndexOutOfRange,
	ErrAlreadyInitialized,
	ErrDuplicateBattle,
	ErrArmyNotFound,
	ErrBattleNotFound,
	ErrConstraintViolation,
}

// ByName returns the program error with the given name.
func ByName(name string) (*ProgramError, bool) {
	for _, e := range all {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}
