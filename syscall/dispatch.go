package syscall

import (
	"encoding/binary"

	"nucleus/addr"
	"nucleus/bootinfo"
	"nucleus/kerr"
	"nucleus/klog"
	"nucleus/kobj"
	"nucleus/task"
	"nucleus/vmm"
)

// Context bundles everything a handler needs to act on behalf of the
// calling task: its own Task (for exit/state), the kernel-wide object
// registry, a way to copy to/from its validated userspace, and the
// resources (frame allocator, framebuffer, logger, service directory)
// the boot environment handed the kernel. NewTask/NewAddressSpace/Log/
// Services are supplied by whatever assembles the running kernel; each
// is nil in contexts that only exercise the syscalls that don't need it,
// in which case the corresponding handler reports UnknownSyscall rather
// than dereferencing a nil field.
type Context struct {
	Task        *task.Task
	Registry    *kobj.Registry
	Memory      UserMemory
	Frames      vmm.FrameAllocator
	PageSize    uintptr
	Framebuffer *bootinfo.FramebufferInfo
	Log         *klog.Logger
	Services    *ServiceRegistry

	NewTask         func(name string) (*task.Task, *kerr.Error)
	NewAddressSpace func() (*task.AddressSpace, *kerr.Error)
}

// Handler implements one system call.
type Handler func(ctx *Context, args Args) Result

// Table is the dispatch table indexed by Number.
type Table map[Number]Handler

// NewTable returns the complete dispatch table for every syscall named
// in §6, plus this kernel's additional, non-mandatory syscalls.
func NewTable() Table {
	return Table{
		Yield:               handleYield,
		EarlyLog:            handleEarlyLog,
		CreateMemoryObject:  handleMemoryObjectCreate,
		MapMemoryObject:     handleMapMemoryObject,
		CreateChannel:       handleCreateChannel,
		SendMessage:         handleSendMessage,
		GetMessage:          handleGetMessage,
		CreateAddressSpace:  handleCreateAddressSpace,
		CreateTask:          handleTaskCreate,
		WaitForEvent:        handleWaitForEvent,
		PollInterest:        handlePollInterest,
		WaitForInterrupt:    handleInterruptWait,
		AckInterrupt:        handleAckInterrupt,
		RegisterService:     handleRegisterService,
		SubscribeToService:  handleSubscribeToService,
		PCIGetInfo:          handlePCIGetInfo,
		GetFramebuffer:      handleGetFramebuffer,

		TaskExit:          handleTaskExit,
		UnmapMemoryObject: handleUnmapMemoryObject,
		CloseChannel:      handleCloseChannel,
		MailboxCreate:     handleMailboxCreate,
		MailboxSend:       handleMailboxSend,
		MailboxReceive:    handleMailboxReceive,
		EventCreate:       handleEventCreate,
		EventSignal:       handleEventSignal,
	}
}

// Dispatch looks up num in t and runs it, returning UnknownSyscall as a
// packed Result (never an error return) if num is not in the table
// (§7: syscall dispatch never panics on bad input from userspace).
func (t Table) Dispatch(ctx *Context, num Number, args Args) Result {
	h, ok := t[num]
	if !ok {
		return FromError(kerr.New("syscall", kerr.UnknownSyscall, num.String()))
	}
	return h(ctx, args)
}

func insertHandle(ctx *Context, obj kobj.Object, rights kobj.Rights) Result {
	id := ctx.Registry.Alloc(obj)
	h, err := ctx.Task.Handles.Insert(id, rights)
	if err != nil {
		ctx.Registry.Drop(id)
		return FromError(err)
	}
	return Ok(uint32(h))
}

func resolve[T kobj.Object](ctx *Context, h kobj.Handle, want kobj.Rights) (T, *kerr.Error) {
	var zero T
	obj, err := ctx.Task.Handles.Resolve(h, want)
	if err != nil {
		return zero, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, kerr.New("syscall", kerr.InvalidHandle, "handle does not name the expected object kind")
	}
	return v, nil
}

// readValidatedUserString copies lengthLow bytes from the userspace
// pointer vaLow, validating the range is mapped and its contents are
// well-formed, NFC-normalized UTF-8 (§6 "Strings are validated both for
// mapping and UTF-8 well-formedness"). Shared by every syscall that
// takes a name or message tag as a string argument.
func readValidatedUserString(ctx *Context, vaLow, lengthLow uint64) (string, *kerr.Error) {
	va, ok := addr.VA(uintptr(vaLow))
	if !ok {
		return "", kerr.New("syscall", kerr.InvalidArgument, "non-canonical string pointer")
	}
	length := uintptr(lengthLow)
	if err := ValidatePointer(ctx.Task.Space, va, length, false, ctx.PageSize); err != nil {
		return "", err
	}
	raw, err := ctx.Memory.Read(va, length)
	if err != nil {
		return "", err
	}
	if err := ValidateUserString(raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func handleYield(ctx *Context, args Args) Result {
	return Ok(0)
}

func handleEarlyLog(ctx *Context, args Args) Result {
	if ctx.Log == nil {
		return FromError(kerr.New("syscall", kerr.UnknownSyscall, "early_log not wired by this kernel"))
	}
	msg, err := readValidatedUserString(ctx, args.A0, args.A1)
	if err != nil {
		return FromError(err)
	}
	ctx.Log.Info("%s", msg)
	return Ok(0)
}

func handleTaskExit(ctx *Context, args Args) Result {
	return FromError(ctx.Task.Exit(int32(args.A0)))
}

func handleTaskCreate(ctx *Context, args Args) Result {
	if ctx.NewTask == nil {
		return FromError(kerr.New("syscall", kerr.UnknownSyscall, "create_task not wired by this kernel"))
	}
	name, err := readValidatedUserString(ctx, args.A0, args.A1)
	if err != nil {
		return FromError(err)
	}
	newTask, err := ctx.NewTask(name)
	if err != nil {
		return FromError(err)
	}
	return insertHandle(ctx, newTask, kobj.RightModify|kobj.RightDuplicate|kobj.RightTransfer)
}

func handleCreateAddressSpace(ctx *Context, args Args) Result {
	if ctx.NewAddressSpace == nil {
		return FromError(kerr.New("syscall", kerr.UnknownSyscall, "create_address_space not wired by this kernel"))
	}
	space, err := ctx.NewAddressSpace()
	if err != nil {
		return FromError(err)
	}
	return insertHandle(ctx, space, kobj.RightModify|kobj.RightDuplicate|kobj.RightTransfer)
}

func handleMemoryObjectCreate(ctx *Context, args Args) Result {
	pages := args.A0
	if ctx.Frames == nil {
		return FromError(kerr.New("syscall", kerr.UnknownSyscall, "create_memory_object not wired by this kernel"))
	}
	base, err := ctx.Frames.Alloc(pages)
	if err != nil {
		return FromError(err)
	}
	mo := kobj.NewMemoryObject(base, uintptr(pages))
	return insertHandle(ctx, mo, kobj.RightMap|kobj.RightDuplicate|kobj.RightTransfer)
}

func handleMapMemoryObject(ctx *Context, args Args) Result {
	mo, err := resolve[*kobj.MemoryObject](ctx, kobj.Handle(args.A0), kobj.RightMap)
	if err != nil {
		return FromError(err)
	}
	va, ok := addr.VA(uintptr(args.A1))
	if !ok {
		return FromError(kerr.New("syscall", kerr.InvalidArgument, "non-canonical map address"))
	}
	flags := decodeFlags(args.A2)
	return FromError(ctx.Task.Space.MapMemoryObject(va, mo, ctx.PageSize, flags))
}

func handleUnmapMemoryObject(ctx *Context, args Args) Result {
	va, ok := addr.VA(uintptr(args.A0))
	if !ok {
		return FromError(kerr.New("syscall", kerr.InvalidArgument, "non-canonical unmap address"))
	}
	return FromError(ctx.Task.Space.Unmap(va, ctx.PageSize))
}

// handleCreateChannel allocates both endpoints of a new Channel (§3
// "bidirectional message queue with both endpoints as separate
// handles") and writes both handles, packed little-endian, into the
// caller-supplied output buffer: Result's payload has room for only one
// 32-bit value, the same reason GetMessage/GetFramebuffer use
// writeOutBuffer instead.
func handleCreateChannel(ctx *Context, args Args) Result {
	a, b := kobj.NewChannelPair()
	rights := kobj.RightSend | kobj.RightReceive | kobj.RightDuplicate | kobj.RightTransfer

	idA := ctx.Registry.Alloc(a)
	hA, err := ctx.Task.Handles.Insert(idA, rights)
	if err != nil {
		ctx.Registry.Drop(idA)
		return FromError(err)
	}
	idB := ctx.Registry.Alloc(b)
	hB, err := ctx.Task.Handles.Insert(idB, rights)
	if err != nil {
		ctx.Task.Handles.Drop(hA)
		ctx.Registry.Drop(idB)
		return FromError(err)
	}

	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(hA))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(hB))
	return writeOutBuffer(ctx, addr.VA, args.A0, args.A1, buf[:])
}

func handleSendMessage(ctx *Context, args Args) Result {
	ch, err := resolve[*kobj.ChannelEndpoint](ctx, kobj.Handle(args.A0), kobj.RightSend)
	if err != nil {
		return FromError(err)
	}
	va, ok := addr.VA(uintptr(args.A1))
	if !ok {
		return FromError(kerr.New("syscall", kerr.InvalidArgument, "non-canonical send pointer"))
	}
	length := uintptr(args.A2)
	if err := ValidatePointer(ctx.Task.Space, va, length, false, ctx.PageSize); err != nil {
		return FromError(err)
	}
	data, err := ctx.Memory.Read(va, length)
	if err != nil {
		return FromError(err)
	}
	return FromError(ch.Send(data))
}

func handleGetMessage(ctx *Context, args Args) Result {
	ch, err := resolve[*kobj.ChannelEndpoint](ctx, kobj.Handle(args.A0), kobj.RightReceive)
	if err != nil {
		return FromError(err)
	}
	msg, err := ch.Receive()
	if err != nil {
		return FromError(err)
	}
	return writeOutBuffer(ctx, addr.VA, args.A1, args.A2, msg)
}

func handleCloseChannel(ctx *Context, args Args) Result {
	ch, err := resolve[*kobj.ChannelEndpoint](ctx, kobj.Handle(args.A0), 0)
	if err != nil {
		return FromError(err)
	}
	ch.Close()
	return Ok(0)
}

func handleMailboxCreate(ctx *Context, args Args) Result {
	return insertHandle(ctx, kobj.NewMailbox(), kobj.RightSend|kobj.RightReceive|kobj.RightDuplicate|kobj.RightTransfer)
}

func handleMailboxSend(ctx *Context, args Args) Result {
	mb, err := resolve[*kobj.Mailbox](ctx, kobj.Handle(args.A0), kobj.RightSend)
	if err != nil {
		return FromError(err)
	}
	va, ok := addr.VA(uintptr(args.A1))
	if !ok {
		return FromError(kerr.New("syscall", kerr.InvalidArgument, "non-canonical send pointer"))
	}
	length := uintptr(args.A2)
	if err := ValidatePointer(ctx.Task.Space, va, length, false, ctx.PageSize); err != nil {
		return FromError(err)
	}
	data, err := ctx.Memory.Read(va, length)
	if err != nil {
		return FromError(err)
	}
	return FromError(mb.Send(data))
}

func handleMailboxReceive(ctx *Context, args Args) Result {
	mb, err := resolve[*kobj.Mailbox](ctx, kobj.Handle(args.A0), kobj.RightReceive)
	if err != nil {
		return FromError(err)
	}
	msg, err := mb.Receive()
	if err != nil {
		return FromError(err)
	}
	return writeOutBuffer(ctx, addr.VA, args.A1, args.A2, msg)
}

func handleEventCreate(ctx *Context, args Args) Result {
	return insertHandle(ctx, kobj.NewEvent(), kobj.RightModify|kobj.RightReceive|kobj.RightDuplicate|kobj.RightTransfer)
}

func handleEventSignal(ctx *Context, args Args) Result {
	ev, err := resolve[*kobj.Event](ctx, kobj.Handle(args.A0), kobj.RightModify)
	if err != nil {
		return FromError(err)
	}
	ev.Signal()
	return Ok(0)
}

// handleWaitForEvent is the blocking variant of an event check: when the
// event is not signaled and the calling task is actually Running (the
// only state Block accepts from), it transitions the task to
// Blocked(BlockReasonEventWait) before reporting NoEvent, so a scheduler
// driving this dispatch table can tell the task is waiting rather than
// free to be redispatched immediately. PollInterest is the same check
// without ever touching task state.
func handleWaitForEvent(ctx *Context, args Args) Result {
	ev, err := resolve[*kobj.Event](ctx, kobj.Handle(args.A0), kobj.RightReceive)
	if err != nil {
		return FromError(err)
	}
	if pollErr := ev.Poll(); pollErr != nil {
		if ctx.Task.State() == task.StateRunning {
			ctx.Task.Block(task.BlockReasonEventWait)
		}
		return FromError(pollErr)
	}
	return Ok(0)
}

func handlePollInterest(ctx *Context, args Args) Result {
	ev, err := resolve[*kobj.Event](ctx, kobj.Handle(args.A0), kobj.RightReceive)
	if err != nil {
		return FromError(err)
	}
	return FromError(ev.Poll())
}

func handleInterruptWait(ctx *Context, args Args) Result {
	intr, err := resolve[*kobj.Interrupt](ctx, kobj.Handle(args.A0), kobj.RightReceive)
	if err != nil {
		return FromError(err)
	}
	return FromError(intr.Wait())
}

func handleAckInterrupt(ctx *Context, args Args) Result {
	intr, err := resolve[*kobj.Interrupt](ctx, kobj.Handle(args.A0), kobj.RightReceive)
	if err != nil {
		return FromError(err)
	}
	intr.Ack()
	return Ok(0)
}

// handleRegisterService binds the name read from (args.A1, args.A2) to
// the channel endpoint named by the handle in args.A0 (glossary
// "Service / subscribe"). The endpoint is kept alive by the registry's
// own reference count on its Id, independent of whether the registering
// task later drops its own handle to it.
func handleRegisterService(ctx *Context, args Args) Result {
	if ctx.Services == nil {
		return FromError(kerr.New("syscall", kerr.UnknownSyscall, "register_service not wired by this kernel"))
	}
	id, obj, err := ctx.Task.Handles.ResolveID(kobj.Handle(args.A0), 0)
	if err != nil {
		return FromError(err)
	}
	if _, ok := obj.(*kobj.ChannelEndpoint); !ok {
		return FromError(kerr.New("syscall", kerr.InvalidHandle, "register_service requires a channel endpoint"))
	}
	name, err := readValidatedUserString(ctx, args.A1, args.A2)
	if err != nil {
		return FromError(err)
	}
	if err := ctx.Registry.Ref(id); err != nil {
		return FromError(err)
	}
	if err := ctx.Services.Register(name, id); err != nil {
		ctx.Registry.Drop(id)
		return FromError(err)
	}
	return Ok(0)
}

// handleSubscribeToService looks up the named service and hands the
// caller a fresh handle onto the same registered endpoint, with Send
// rights only: the registrant kept the endpoint's own peer to itself,
// so a subscriber connects by sending into the registered endpoint, not
// by receiving from it alongside every other subscriber.
func handleSubscribeToService(ctx *Context, args Args) Result {
	if ctx.Services == nil {
		return FromError(kerr.New("syscall", kerr.UnknownSyscall, "subscribe_to_service not wired by this kernel"))
	}
	name, err := readValidatedUserString(ctx, args.A0, args.A1)
	if err != nil {
		return FromError(err)
	}
	id, err := ctx.Services.Lookup(name)
	if err != nil {
		return FromError(err)
	}
	return insertHandleForId(ctx, id, kobj.RightSend)
}

// insertHandleForId inserts a handle naming an Id that already has a
// live reference in the registry (ctx.Registry.Ref was already called
// when the Id was registered as a service), unlike insertHandle which
// allocates the object and takes its first reference itself.
func insertHandleForId(ctx *Context, id kobj.Id, rights kobj.Rights) Result {
	h, err := ctx.Task.Handles.Insert(id, rights)
	if err != nil {
		return FromError(err)
	}
	return Ok(uint32(h))
}

func handlePCIGetInfo(ctx *Context, args Args) Result {
	return FromError(kerr.New("syscall", kerr.UnknownSyscall, "pci_get_info not wired by this kernel: no PCI device model in this build"))
}

func handleGetFramebuffer(ctx *Context, args Args) Result {
	if ctx.Framebuffer == nil {
		return FromError(kerr.New("syscall", kerr.ObjectDoesNotExist, "no framebuffer handed off at boot"))
	}
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(ctx.Framebuffer.Base.Uintptr()))
	binary.LittleEndian.PutUint32(buf[8:12], ctx.Framebuffer.Width)
	binary.LittleEndian.PutUint32(buf[12:16], ctx.Framebuffer.Height)
	binary.LittleEndian.PutUint32(buf[16:20], ctx.Framebuffer.Stride)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(ctx.Framebuffer.PixelFormat))
	return writeOutBuffer(ctx, addr.VA, args.A0, args.A1, buf[:])
}

// writeOutBuffer validates and writes data into the caller-supplied
// (vaLow, lengthLow) output buffer, shared by every syscall that returns
// a variable-length result through an out-parameter instead of the
// packed Result payload.
func writeOutBuffer(ctx *Context, vaCtor func(uintptr) (addr.VirtualAddress, bool), vaLow, lengthLow uint64, data []byte) Result {
	va, ok := vaCtor(uintptr(vaLow))
	if !ok {
		return FromError(kerr.New("syscall", kerr.InvalidArgument, "non-canonical output pointer"))
	}
	if uintptr(lengthLow) < uintptr(len(data)) {
		return FromError(kerr.New("syscall", kerr.InvalidArgument, "output buffer too small"))
	}
	if err := ValidatePointer(ctx.Task.Space, va, uintptr(len(data)), true, ctx.PageSize); err != nil {
		return FromError(err)
	}
	if err := ctx.Memory.Write(va, data); err != nil {
		return FromError(err)
	}
	return Ok(uint32(len(data)))
}

func decodeFlags(raw uint64) bootinfo.Flags {
	return bootinfo.Flags{
		Readable:       raw&1 != 0,
		Writable:       raw&2 != 0,
		Executable:     raw&4 != 0,
		UserAccessible: raw&8 != 0,
		Cached:         raw&16 != 0,
		Global:         raw&32 != 0,
	}
}
