// Package panichandler renders kernel panic diagnostics: a disassembly
// of the faulting instruction and a demangled symbol for the faulting
// address, plus a specialized report for stack-overflow faults into a
// slab guard page (§4.3, §8 scenario 5). Grounded on gopher-os's panic
// trace printer (kernel/kernel/panic.go) generalized from a raw hex
// dump into symbolized, disassembled output using the instruction
// decoder and demangler the wider example pack reaches for
// (golang.org/x/arch/x86/x86asm, github.com/ianlancetaylor/demangle via
// google/pprof's profile symbolizer).
package panichandler

import (
	"fmt"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"golang.org/x/arch/x86/x86asm"

	"nucleus/addr"
	"nucleus/klog"
)

// SymbolResolver maps a faulting address to the nearest preceding symbol
// and its offset, as the kernel's own symbol table (built from the
// kernel image at boot) would.
type SymbolResolver interface {
	Resolve(va addr.VirtualAddress) (name string, offset uintptr, ok bool)
}

// Report is a fully-rendered panic diagnostic.
type Report struct {
	Message      string
	FaultAddress addr.VirtualAddress
	Symbol       string
	Instruction  string
	StackGuard   bool
}

// Disassemble decodes the single instruction at the start of code
// (assumed little-endian x86-64 machine code read from the fault site),
// returning its GNU-syntax rendering.
func Disassemble(code []byte) (string, *int, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "", nil, err
	}
	text := x86asm.GNUSyntax(inst, uint64(0), nil)
	length := inst.Len
	return text, &length, nil
}

// demangleSymbol renders a possibly-mangled Itanium C++ symbol name in
// human-readable form, falling back to the raw name if it does not
// parse as a mangled symbol (most Go and Rust symbols in this kernel
// already are plain names).
func demangleSymbol(raw string) string {
	if !strings.HasPrefix(raw, "_Z") {
		return raw
	}
	out, err := demangle.ToString(raw)
	if err != nil {
		return raw
	}
	return out
}

// Build assembles a Report for a fault at va, given the raw bytes at the
// fault site (if available) and a symbol resolver.
func Build(message string, va addr.VirtualAddress, faultBytes []byte, resolver SymbolResolver) Report {
	r := Report{Message: message, FaultAddress: va}

	if resolver != nil {
		if name, offset, ok := resolver.Resolve(va); ok {
			r.Symbol = fmt.Sprintf("%s+%#x", demangleSymbol(name), offset)
		}
	}
	if len(faultBytes) > 0 {
		if text, _, err := Disassemble(faultBytes); err == nil {
			r.Instruction = text
		}
	}
	return r
}

// BuildStackOverflow builds the specialized report for a fault whose
// address falls inside a kernel stack slot's guard page: the message
// names the overflow explicitly instead of reporting a generic fault,
// since the guard page's entire purpose is to make this case
// diagnosable rather than a silent adjacent-stack corruption (§4.3).
func BuildStackOverflow(va addr.VirtualAddress, resolver SymbolResolver) Report {
	r := Build("kernel stack overflow: fault in guard page", va, nil, resolver)
	r.StackGuard = true
	return r
}

// Emit writes r to sink in the kernel's early-logging format, safe to
// call from a context where the heap may not be usable.
func Emit(sink klog.Sink, r Report) {
	klog.Printf(sink, "panic: %s\n", r.Message)
	klog.Printf(sink, "  fault address: %x\n", r.FaultAddress.Uintptr())
	if r.Symbol != "" {
		klog.Printf(sink, "  symbol: %s\n", r.Symbol)
	}
	if r.Instruction != "" {
		klog.Printf(sink, "  instruction: %s\n", r.Instruction)
	}
	if r.StackGuard {
		klog.Printf(sink, "  cause: guard page hit, stack overflow\n")
	}
}
