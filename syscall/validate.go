package syscall

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"nucleus/addr"
	"nucleus/kerr"
	"nucleus/task"
)

// ValidatePointer checks that [va, va+length) is entirely mapped into
// space with read access, and write access too if needWrite (§6).
func ValidatePointer(space *task.AddressSpace, va addr.VirtualAddress, length uintptr, needWrite bool, pageSize uintptr) *kerr.Error {
	return space.ValidateRange(va, length, needWrite, pageSize)
}

// ValidateUserString checks that a string copied in from userspace is
// well-formed UTF-8 and already in Unicode Normalization Form C, which
// the kernel requires of every string-typed syscall argument (task
// names, service names, early-log messages) so two kernel components never disagree
// about whether two strings compare equal (§6, enriching the
// distillation's unspecified string encoding with a concrete rule).
func ValidateUserString(b []byte) *kerr.Error {
	if !utf8.Valid(b) {
		return kerr.New("syscall", kerr.InvalidArgument, "string is not valid UTF-8")
	}
	if !norm.NFC.IsNormal(b) {
		return kerr.New("syscall", kerr.InvalidArgument, "string is not in Unicode Normalization Form C")
	}
	return nil
}
