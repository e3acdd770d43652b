package types

import "errors"

// Sentinel errors returned by core primitives. The syscall dispatcher maps
// each of these (via errors.Is) onto the matching SyscallError code; an
// unrecognized error becomes INTERNAL_ERROR.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrResourceBusy     = errors.New("resource busy")
	ErrResourceUnavail  = errors.New("resource unavailable")
	ErrInsufficientRes  = errors.New("insufficient resources")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotImplemented   = errors.New("not implemented")
	ErrTimeout          = errors.New("timed out")
	ErrInterrupted      = errors.New("interrupted")
	ErrLimitExceeded    = errors.New("limit exceeded")
	ErrNotSupported     = errors.New("not supported")
)
