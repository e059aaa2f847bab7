package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the custody error taxonomy. The typed errors below
// match them through errors.Is.
var (
	ErrDuplicateLot          = errors.New("duplicate lot")
	ErrMisconfiguredRegistry = errors.New("misconfigured stage registry")
	ErrLotNotFound           = errors.New("lot not found")
	ErrUnauthorizedActor     = errors.New("unauthorized actor")
	ErrAlreadyInitialized    = errors.New("already initialized")
	ErrInvalidArgument       = errors.New("invalid argument")
)

// DuplicateLotError is returned when minting an id that already exists.
type DuplicateLotError struct {
	LotID string
}

func (e DuplicateLotError) Error() string {
	return fmt.Sprintf("lot %q already exists", e.LotID)
}

// Is reports ErrDuplicateLot equality.
func (e DuplicateLotError) Is(target error) bool { return target == ErrDuplicateLot }

// LotNotFoundError is returned when an operation targets an unknown lot.
type LotNotFoundError struct {
	LotID string
}

func (e LotNotFoundError) Error() string {
	return fmt.Sprintf("lot %q not found", e.LotID)
}

// Is reports ErrLotNotFound equality.
func (e LotNotFoundError) Is(target error) bool { return target == ErrLotNotFound }

// MisconfiguredRegistryError is returned when the harvest stage is absent or
// terminal in the registry.
type MisconfiguredRegistryError struct {
	Stage  string
	Reason string
}

func (e MisconfiguredRegistryError) Error() string {
	return fmt.Sprintf("stage %q %s", e.Stage, e.Reason)
}

// Is reports ErrMisconfiguredRegistry equality.
func (e MisconfiguredRegistryError) Is(target error) bool { return target == ErrMisconfiguredRegistry }

// UnauthorizedActorError is returned when the caller is not the lot's
// expected next actor. Expected is nil for lots in a terminal stage.
type UnauthorizedActorError struct {
	LotID    string
	Caller   string
	Expected *string
}

func (e UnauthorizedActorError) Error() string {
	if e.Expected == nil {
		return fmt.Sprintf("lot %q is in a terminal stage; %q cannot confirm it", e.LotID, e.Caller)
	}
	return fmt.Sprintf("%q is not allowed to confirm lot %q; expected actor is %q", e.Caller, e.LotID, *e.Expected)
}

// Is reports ErrUnauthorizedActor equality.
func (e UnauthorizedActorError) Is(target error) bool { return target == ErrUnauthorizedActor }

// AlreadyInitializedError is returned by a second initialize call.
type AlreadyInitializedError struct{}

func (AlreadyInitializedError) Error() string {
	return "stage registry already initialized"
}

// Is reports ErrAlreadyInitialized equality.
func (AlreadyInitializedError) Is(target error) bool { return target == ErrAlreadyInitialized }

// InvalidArgumentError is returned when a required request field is blank.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Is reports ErrInvalidArgument equality.
func (e InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// ErrorKind classifies err into the taxonomy name used by transports.
// Unknown errors classify as "internal".
func ErrorKind(err error) string {
	var rv RuleViolationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateLot):
		return "DuplicateLot"
	case errors.Is(err, ErrMisconfiguredRegistry):
		return "MisconfiguredRegistry"
	case errors.Is(err, ErrLotNotFound):
		return "LotNotFound"
	case errors.Is(err, ErrUnauthorizedActor):
		return "UnauthorizedActor"
	case errors.Is(err, ErrAlreadyInitialized):
		return "AlreadyInitialized"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.As(err, &rv):
		return "RuleViolation"
	default:
		return "internal"
	}
}
