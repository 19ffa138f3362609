// Package syscall implements the kernel's system call ABI and dispatch
// table (C7, §6): six scalar argument registers, a single packed 64-bit
// return value (high 32 bits status, low 32 bits payload), and
// validated access to userspace pointers and strings. Grounded on
// biscuit's syscall dispatch (biscuit/src/kernel/syscall.go Syscall)
// generalized from biscuit's per-call ad hoc argument checks into one
// shared validation path, per original_source's
// kernel/src/syscall/mod.rs ABI description.
package syscall

import "nucleus/kerr"

// Number identifies a system call. Values 0-16 are §6's mandatory set,
// in the exact order and numbering it specifies; values from 17 on are
// additional, non-mandatory calls this kernel also implements (§6 only
// fixes the mandatory numbers, not an upper bound on the table).
type Number uint32

const (
	Yield Number = iota
	EarlyLog
	CreateMemoryObject
	MapMemoryObject
	CreateChannel
	SendMessage
	GetMessage
	CreateAddressSpace
	CreateTask
	WaitForEvent
	PollInterest
	WaitForInterrupt
	AckInterrupt
	RegisterService
	SubscribeToService
	PCIGetInfo
	GetFramebuffer

	TaskExit
	UnmapMemoryObject
	CloseChannel
	MailboxCreate
	MailboxSend
	MailboxReceive
	EventCreate
	EventSignal
)

var names = [...]string{
	Yield:               "yield",
	EarlyLog:            "early_log",
	CreateMemoryObject:  "create_memory_object",
	MapMemoryObject:     "map_memory_object",
	CreateChannel:       "create_channel",
	SendMessage:         "send_message",
	GetMessage:          "get_message",
	CreateAddressSpace:  "create_address_space",
	CreateTask:          "create_task",
	WaitForEvent:        "wait_for_event",
	PollInterest:        "poll_interest",
	WaitForInterrupt:    "wait_for_interrupt",
	AckInterrupt:        "ack_interrupt",
	RegisterService:     "register_service",
	SubscribeToService:  "subscribe_to_service",
	PCIGetInfo:          "pci_get_info",
	GetFramebuffer:      "get_framebuffer",

	TaskExit:          "task_exit",
	UnmapMemoryObject: "unmap_memory_object",
	CloseChannel:      "close_channel",
	MailboxCreate:     "mailbox_create",
	MailboxSend:       "mailbox_send",
	MailboxReceive:    "mailbox_receive",
	EventCreate:       "event_create",
	EventSignal:       "event_signal",
}

func (n Number) String() string {
	if int(n) < len(names) {
		return names[n]
	}
	return "unknown"
}

// Args is the six scalar parameters a system call receives, matching
// the calling convention's fixed register set (§6).
type Args struct {
	A0, A1, A2, A3, A4, A5 uint64
}

// Result is a packed syscall return value: bits 63:32 are the status
// word (0 = success, otherwise a kerr.Kind), bits 31:0 are the payload.
type Result uint64

// Pack combines a status and payload into a Result.
func Pack(status uint32, payload uint32) Result {
	return Result(uint64(status)<<32 | uint64(payload))
}

// Ok packs a successful result carrying payload.
func Ok(payload uint32) Result { return Pack(0, payload) }

// FromError packs err's kind as the status word with a zero payload, or
// Ok(0) if err is nil.
func FromError(err *kerr.Error) Result {
	if err == nil {
		return Ok(0)
	}
	return Pack(err.Kind.Status(), 0)
}

// Status returns the high 32 bits.
func (r Result) Status() uint32 { return uint32(r >> 32) }

// Payload returns the low 32 bits.
func (r Result) Payload() uint32 { return uint32(r) }

// Kind decodes Status back into a kerr.Kind.
func (r Result) Kind() kerr.Kind { return kerr.Kind(r.Status()) }
