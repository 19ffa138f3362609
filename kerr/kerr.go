// Package kerr defines the kernel's error kinds. Errors are small,
// non-allocating values so they can be constructed on the hot paths of
// the PMM, mapper and object registry without touching the heap.
package kerr

// Kind enumerates the closed set of error conditions a kernel operation
// can report. The numeric value doubles as the high-32-bit status word
// of a syscall return (see Kind.Status).
type Kind uint32

const (
	// OK is the zero value and never appears on a returned *Error.
	OK Kind = iota

	InvalidArgument
	NotMapped
	AlreadyMapped
	SpaceAlreadyOccupied
	OutOfMemory
	InvalidHandle
	StaleHandle
	InsufficientRights
	ObjectDoesNotExist
	NotAValidID
	AccessDenied
	NoMessage
	PeerClosed
	NoEvent
	NoInterrupt
	UnknownSyscall
	AllocationFailed
	InvalidHugePage
	Unaligned
	Cancelled
)

var kindNames = [...]string{
	OK:                    "ok",
	InvalidArgument:       "invalid argument",
	NotMapped:             "not mapped",
	AlreadyMapped:         "already mapped",
	SpaceAlreadyOccupied:  "space already occupied",
	OutOfMemory:           "out of memory",
	InvalidHandle:         "invalid handle",
	StaleHandle:           "stale handle",
	InsufficientRights:    "insufficient rights",
	ObjectDoesNotExist:    "object does not exist",
	NotAValidID:           "not a valid id",
	AccessDenied:          "access denied",
	NoMessage:             "no message",
	PeerClosed:            "peer closed",
	NoEvent:               "no event",
	NoInterrupt:           "no interrupt",
	UnknownSyscall:        "unknown syscall",
	AllocationFailed:      "allocation failed",
	InvalidHugePage:       "invalid huge page",
	Unaligned:             "unaligned",
	Cancelled:             "cancelled",
}

// String renders the kind's canonical name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown error kind"
}

// Status encodes the kind as the high-32-bit status word of a syscall
// return value (§6: low 32 bits = payload, high 32 bits = status, 0 =
// success).
func (k Kind) Status() uint32 {
	return uint32(k)
}

// Error is a kernel error: a kind plus the module that raised it and an
// optional human-readable message. Errors are returned by value behind a
// pointer, as package-level sentinels or freshly constructed, and never
// via panic/recover -- see Error.
type Error struct {
	Kind    Kind
	Module  string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Module + ": " + e.Message
	}
	return e.Module + ": " + e.Kind.String()
}

// New constructs an *Error for module with the given kind and message.
func New(module string, kind Kind, message string) *Error {
	return &Error{Kind: kind, Module: module, Message: message}
}

// Is reports whether err is a *kerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	ke, ok := err.(*Error)
	return ok && ke.Kind == kind
}
