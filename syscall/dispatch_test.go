package syscall

import (
	"bytes"
	"encoding/binary"
	"testing"

	"nucleus/addr"
	"nucleus/bootinfo"
	"nucleus/kerr"
	"nucleus/klog"
	"nucleus/kobj"
	"nucleus/pmm"
	"nucleus/slab"
	"nucleus/task"
	"nucleus/vmm"
	"nucleus/vmm/amd64"
)

type fakeTableMemory struct {
	tables map[uintptr]*vmm.Table
}

func newFakeTableMemory() *fakeTableMemory {
	return &fakeTableMemory{tables: make(map[uintptr]*vmm.Table)}
}

func (f *fakeTableMemory) Table(pa addr.PhysicalAddress) *vmm.Table {
	t, ok := f.tables[pa.Uintptr()]
	if !ok {
		t = &vmm.Table{}
		f.tables[pa.Uintptr()] = t
	}
	return t
}

// fakeUserMemory simulates the contents of userspace pages independent
// of the mapper's (fake, content-free) page tables, keyed by virtual
// address.
type fakeUserMemory struct {
	data map[uintptr][]byte
}

func newFakeUserMemory() *fakeUserMemory {
	return &fakeUserMemory{data: make(map[uintptr][]byte)}
}

func (f *fakeUserMemory) Read(va addr.VirtualAddress, length uintptr) ([]byte, *kerr.Error) {
	b := f.data[va.Uintptr()]
	out := make([]byte, length)
	copy(out, b)
	return out, nil
}

func (f *fakeUserMemory) Write(va addr.VirtualAddress, data []byte) *kerr.Error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.data[va.Uintptr()] = cp
	return nil
}

const testPageSize = 4096

// newTestContext builds a Context whose task has one mapped, readable
// and writable user buffer at bufferVA, backed by fakeUserMemory for
// content.
func newTestContext(t *testing.T) (*Context, addr.VirtualAddress) {
	t.Helper()
	frames := pmm.New()
	frames.FreeRange(addr.PA(0x10_0000), addr.PA(0x10_0000+4096*4096))
	root, err := frames.Alloc(1)
	if err != nil {
		t.Fatalf("root alloc: %v", err)
	}
	mapper := vmm.New(root, amd64.Codec{}, newFakeTableMemory(), nil)
	space := task.NewAddressSpace(mapper, frames)

	bufferVA, ok := addr.VA(0x5000_0000_0000)
	if !ok {
		t.Fatal("buffer address not canonical")
	}
	bufferFrames, err := frames.Alloc(1)
	if err != nil {
		t.Fatalf("buffer frame alloc: %v", err)
	}
	mo := kobj.NewMemoryObject(bufferFrames, 1)
	flags := bootinfo.Flags{Readable: true, Writable: true, UserAccessible: true, Cached: true}
	if err := space.MapMemoryObject(bufferVA, mo, testPageSize, flags); err != nil {
		t.Fatalf("map buffer: %v", err)
	}

	reg := kobj.NewRegistry()
	tk := task.New(1, space, slab.Slot{}, kobj.NewHandleTable(reg))
	ctx := &Context{
		Task:     tk,
		Registry: reg,
		Memory:   newFakeUserMemory(),
		Frames:   frames,
		PageSize: testPageSize,
	}
	return ctx, bufferVA
}

func TestDispatchUnknownSyscall(t *testing.T) {
	ctx, _ := newTestContext(t)
	table := NewTable()
	r := table.Dispatch(ctx, Number(999), Args{})
	if r.Kind() != kerr.UnknownSyscall {
		t.Fatalf("expected UnknownSyscall, got %v", r.Kind())
	}
}

func TestYieldAndTaskExit(t *testing.T) {
	ctx, _ := newTestContext(t)
	table := NewTable()

	r := table.Dispatch(ctx, Yield, Args{})
	if r.Kind() != 0 {
		t.Fatalf("yield should succeed, got status %v", r.Kind())
	}

	ctx.Task.Run()
	r = table.Dispatch(ctx, TaskExit, Args{A0: 7})
	if r.Kind() != 0 {
		t.Fatalf("task_exit should succeed, got status %v", r.Kind())
	}
	if ctx.Task.ExitCode() != 7 {
		t.Fatalf("exit code = %d, want 7", ctx.Task.ExitCode())
	}
}

func TestEventSignalWaitRoundTrip(t *testing.T) {
	ctx, _ := newTestContext(t)
	table := NewTable()

	r := table.Dispatch(ctx, EventCreate, Args{})
	if r.Kind() != 0 {
		t.Fatalf("event_create failed: %v", r.Kind())
	}
	h := r.Payload()

	r = table.Dispatch(ctx, WaitForEvent, Args{A0: uint64(h)})
	if r.Kind() != kerr.NoEvent {
		t.Fatalf("expected NoEvent before signal, got %v", r.Kind())
	}

	r = table.Dispatch(ctx, EventSignal, Args{A0: uint64(h)})
	if r.Kind() != 0 {
		t.Fatalf("event_signal failed: %v", r.Kind())
	}
	r = table.Dispatch(ctx, WaitForEvent, Args{A0: uint64(h)})
	if r.Kind() != 0 {
		t.Fatalf("expected signaled event to wait clean, got %v", r.Kind())
	}
}

func TestWaitForEventBlocksRunningTaskWhileNotSignaled(t *testing.T) {
	ctx, _ := newTestContext(t)
	table := NewTable()

	r := table.Dispatch(ctx, EventCreate, Args{})
	h := r.Payload()

	ctx.Task.Run()
	r = table.Dispatch(ctx, WaitForEvent, Args{A0: uint64(h)})
	if r.Kind() != kerr.NoEvent {
		t.Fatalf("expected NoEvent, got %v", r.Kind())
	}
	if ctx.Task.State() != task.StateBlocked {
		t.Fatalf("task state = %v, want Blocked", ctx.Task.State())
	}
	if ctx.Task.BlockReason() != task.BlockReasonEventWait {
		t.Fatalf("block reason = %v, want BlockReasonEventWait", ctx.Task.BlockReason())
	}
}

func TestPollInterestNeverBlocksTask(t *testing.T) {
	ctx, _ := newTestContext(t)
	table := NewTable()

	r := table.Dispatch(ctx, EventCreate, Args{})
	h := r.Payload()

	ctx.Task.Run()
	r = table.Dispatch(ctx, PollInterest, Args{A0: uint64(h)})
	if r.Kind() != kerr.NoEvent {
		t.Fatalf("expected NoEvent, got %v", r.Kind())
	}
	if ctx.Task.State() != task.StateRunning {
		t.Fatalf("poll_interest must never block the task, state = %v", ctx.Task.State())
	}
}

func TestInterruptWaitAndAck(t *testing.T) {
	ctx, _ := newTestContext(t)
	table := NewTable()

	intr := kobj.NewInterrupt(7)
	id := ctx.Registry.Alloc(intr)
	h, err := ctx.Task.Handles.Insert(id, kobj.RightReceive)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	r := table.Dispatch(ctx, WaitForInterrupt, Args{A0: uint64(h)})
	if r.Kind() != kerr.NoInterrupt {
		t.Fatalf("expected NoInterrupt before fire, got %v", r.Kind())
	}

	intr.Fire()
	r = table.Dispatch(ctx, WaitForInterrupt, Args{A0: uint64(h)})
	if r.Kind() != 0 {
		t.Fatalf("expected pending interrupt to wait clean, got %v", r.Kind())
	}

	r = table.Dispatch(ctx, AckInterrupt, Args{A0: uint64(h)})
	if r.Kind() != 0 {
		t.Fatalf("ack_interrupt failed: %v", r.Kind())
	}
	r = table.Dispatch(ctx, WaitForInterrupt, Args{A0: uint64(h)})
	if r.Kind() != kerr.NoInterrupt {
		t.Fatalf("expected NoInterrupt after ack, got %v", r.Kind())
	}
}

// createChannelPair dispatches CreateChannel and decodes the two handles
// CREATE_CHANNEL writes into the caller's output buffer.
func createChannelPair(t *testing.T, ctx *Context, table Table, outVA addr.VirtualAddress) (hA, hB uint32) {
	t.Helper()
	r := table.Dispatch(ctx, CreateChannel, Args{A0: uint64(outVA.Uintptr()), A1: 8})
	if r.Kind() != 0 {
		t.Fatalf("create_channel failed: %v", r.Kind())
	}
	buf, err := ctx.Memory.Read(outVA, 8)
	if err != nil {
		t.Fatalf("reading channel handles: %v", err)
	}
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8])
}

func TestChannelSendReceiveThroughSyscalls(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	table := NewTable()

	hA, hB := createChannelPair(t, ctx, table, bufferVA)
	if hA == hB {
		t.Fatalf("create_channel must return two distinct handles")
	}

	msgVA, _ := bufferVA.Add(8)
	msg := []byte("hello")
	ctx.Memory.Write(msgVA, msg)
	r := table.Dispatch(ctx, SendMessage, Args{A0: uint64(hA), A1: uint64(msgVA.Uintptr()), A2: uint64(len(msg))})
	if r.Kind() != 0 {
		t.Fatalf("send_message failed: %v", r.Kind())
	}

	outVA, _ := bufferVA.Add(256)
	r = table.Dispatch(ctx, GetMessage, Args{A0: uint64(hB), A1: uint64(outVA.Uintptr()), A2: uint64(testPageSize - 256)})
	if r.Kind() != 0 {
		t.Fatalf("get_message failed: %v", r.Kind())
	}
	if r.Payload() != uint32(len(msg)) {
		t.Fatalf("get_message payload = %d, want %d", r.Payload(), len(msg))
	}
	got, _ := ctx.Memory.Read(outVA, uintptr(len(msg)))
	if string(got) != "hello" {
		t.Fatalf("received message = %q, want hello", got)
	}

	if r := table.Dispatch(ctx, GetMessage, Args{A0: uint64(hB), A1: uint64(outVA.Uintptr()), A2: uint64(testPageSize - 256)}); r.Kind() != kerr.NoMessage {
		t.Fatalf("expected NoMessage once drained, got %v", r.Kind())
	}
}

func TestCloseChannelSurfacesPeerClosed(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	table := NewTable()

	hA, hB := createChannelPair(t, ctx, table, bufferVA)

	r := table.Dispatch(ctx, CloseChannel, Args{A0: uint64(hA)})
	if r.Kind() != 0 {
		t.Fatalf("close_channel failed: %v", r.Kind())
	}

	msgVA, _ := bufferVA.Add(8)
	r = table.Dispatch(ctx, SendMessage, Args{A0: uint64(hB), A1: uint64(msgVA.Uintptr()), A2: 1})
	if r.Kind() != kerr.PeerClosed {
		t.Fatalf("expected PeerClosed sending to a closed peer, got %v", r.Kind())
	}
}

func TestSendMessageRejectsMissingRight(t *testing.T) {
	ctx, bufferVA := newTestContext(t)

	// Insert the channel handle manually with only RightReceive so Send
	// must be rejected for insufficient rights (§8 scenario 3).
	a, _ := kobj.NewChannelPair()
	id := ctx.Registry.Alloc(a)
	h, err := ctx.Task.Handles.Insert(id, kobj.RightReceive)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	table := NewTable()
	r := table.Dispatch(ctx, SendMessage, Args{A0: uint64(h), A1: uint64(bufferVA.Uintptr()), A2: 4})
	if r.Kind() != kerr.InsufficientRights {
		t.Fatalf("expected InsufficientRights, got %v", r.Kind())
	}
}

func TestRegisterAndSubscribeToService(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	ctx.Services = NewServiceRegistry()
	table := NewTable()

	hA, _ := createChannelPair(t, ctx, table, bufferVA)

	nameVA, _ := bufferVA.Add(8)
	name := []byte("disk0")
	ctx.Memory.Write(nameVA, name)

	r := table.Dispatch(ctx, RegisterService, Args{A0: uint64(hA), A1: uint64(nameVA.Uintptr()), A2: uint64(len(name))})
	if r.Kind() != 0 {
		t.Fatalf("register_service failed: %v", r.Kind())
	}

	r = table.Dispatch(ctx, SubscribeToService, Args{A0: uint64(nameVA.Uintptr()), A1: uint64(len(name))})
	if r.Kind() != 0 {
		t.Fatalf("subscribe_to_service failed: %v", r.Kind())
	}
	subH := r.Payload()
	if kobj.Handle(subH) == kobj.Handle(hA) {
		t.Fatalf("subscriber should get its own handle, not the registrant's")
	}

	r = table.Dispatch(ctx, SubscribeToService, Args{A0: uint64(0xdead_beef), A1: uint64(len(name))})
	if r.Kind() != kerr.NotMapped {
		t.Fatalf("subscribing with a bogus pointer should fail validation, got %v", r.Kind())
	}
}

func TestSubscribeToUnknownServiceFails(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	ctx.Services = NewServiceRegistry()
	table := NewTable()

	name := []byte("nope")
	ctx.Memory.Write(bufferVA, name)
	r := table.Dispatch(ctx, SubscribeToService, Args{A0: uint64(bufferVA.Uintptr()), A1: uint64(len(name))})
	if r.Kind() != kerr.ObjectDoesNotExist {
		t.Fatalf("expected ObjectDoesNotExist, got %v", r.Kind())
	}
}

func TestServiceSyscallsNotWiredWithoutRegistry(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	table := NewTable()

	r := table.Dispatch(ctx, RegisterService, Args{A0: 1, A1: uint64(bufferVA.Uintptr()), A2: 1})
	if r.Kind() != kerr.UnknownSyscall {
		t.Fatalf("expected UnknownSyscall without ctx.Services, got %v", r.Kind())
	}
}

func TestEarlyLogWritesThroughLogger(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	var sink bytes.Buffer
	ctx.Log = klog.NewLogger(&byteSink{&sink}, "test")
	table := NewTable()

	msg := []byte("booting")
	ctx.Memory.Write(bufferVA, msg)
	r := table.Dispatch(ctx, EarlyLog, Args{A0: uint64(bufferVA.Uintptr()), A1: uint64(len(msg))})
	if r.Kind() != 0 {
		t.Fatalf("early_log failed: %v", r.Kind())
	}
	if !bytes.Contains(sink.Bytes(), msg) {
		t.Fatalf("logger output %q does not contain %q", sink.String(), msg)
	}
}

func TestEarlyLogNotWiredWithoutLogger(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	table := NewTable()
	r := table.Dispatch(ctx, EarlyLog, Args{A0: uint64(bufferVA.Uintptr()), A1: 1})
	if r.Kind() != kerr.UnknownSyscall {
		t.Fatalf("expected UnknownSyscall without ctx.Log, got %v", r.Kind())
	}
}

func TestCreateAddressSpaceNotWiredByDefault(t *testing.T) {
	ctx, _ := newTestContext(t)
	table := NewTable()
	r := table.Dispatch(ctx, CreateAddressSpace, Args{})
	if r.Kind() != kerr.UnknownSyscall {
		t.Fatalf("expected UnknownSyscall without ctx.NewAddressSpace, got %v", r.Kind())
	}
}

func TestPCIGetInfoAlwaysUnwired(t *testing.T) {
	ctx, _ := newTestContext(t)
	table := NewTable()
	r := table.Dispatch(ctx, PCIGetInfo, Args{})
	if r.Kind() != kerr.UnknownSyscall {
		t.Fatalf("expected UnknownSyscall, got %v", r.Kind())
	}
}

// byteSink adapts a bytes.Buffer to klog.Sink for tests.
type byteSink struct{ buf *bytes.Buffer }

func (s *byteSink) WriteByte(b byte) error { return s.buf.WriteByte(b) }
func (s *byteSink) Write(p []byte) (int, error) { return s.buf.Write(p) }

func TestMailboxSendReceiveThroughSyscalls(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	table := NewTable()

	r := table.Dispatch(ctx, MailboxCreate, Args{})
	if r.Kind() != 0 {
		t.Fatalf("mailbox_create failed: %v", r.Kind())
	}
	h := r.Payload()

	ctx.Memory.Write(bufferVA, []byte("x"))
	r = table.Dispatch(ctx, MailboxSend, Args{A0: uint64(h), A1: uint64(bufferVA.Uintptr()), A2: 1})
	if r.Kind() != 0 {
		t.Fatalf("first mailbox_send failed: %v", r.Kind())
	}
	r = table.Dispatch(ctx, MailboxSend, Args{A0: uint64(h), A1: uint64(bufferVA.Uintptr()), A2: 1})
	if r.Kind() != 0 {
		t.Fatalf("second mailbox_send failed: %v", r.Kind())
	}

	outVA, _ := bufferVA.Add(256)
	r = table.Dispatch(ctx, MailboxReceive, Args{A0: uint64(h), A1: uint64(outVA.Uintptr()), A2: uint64(testPageSize - 256)})
	if r.Kind() != 0 {
		t.Fatalf("mailbox_receive failed: %v", r.Kind())
	}
	if r.Payload() != 1 {
		t.Fatalf("mailbox_receive payload = %d, want 1", r.Payload())
	}
}

func TestGetFramebufferRejectsWhenAbsent(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	table := NewTable()
	r := table.Dispatch(ctx, GetFramebuffer, Args{A0: uint64(bufferVA.Uintptr()), A1: 64})
	if r.Kind() != kerr.ObjectDoesNotExist {
		t.Fatalf("expected ObjectDoesNotExist, got %v", r.Kind())
	}
}

func TestGetFramebufferWritesDescriptor(t *testing.T) {
	ctx, bufferVA := newTestContext(t)
	ctx.Framebuffer = &bootinfo.FramebufferInfo{
		Base:   addr.PA(0x1000_0000),
		Width:  1920,
		Height: 1080,
		Stride: 1920,
	}
	table := NewTable()
	r := table.Dispatch(ctx, GetFramebuffer, Args{A0: uint64(bufferVA.Uintptr()), A1: 64})
	if r.Kind() != 0 {
		t.Fatalf("get_framebuffer failed: %v", r.Kind())
	}
	if r.Payload() != 24 {
		t.Fatalf("payload = %d, want 24 bytes written", r.Payload())
	}
}
