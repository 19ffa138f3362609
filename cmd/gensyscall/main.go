// Command gensyscall loads the syscall package's ABI declarations with
// golang.org/x/tools/go/packages and emits a SYS_* constant table for
// userspace callers, keeping the generated numbers contiguous with
// syscall.Number (§6) without hand-duplicating them at every call site.
package main

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

// syscallEntry is one constant from syscall.Number's iota block.
type syscallEntry struct {
	name  string
	value int
}

func main() { run(os.Stdout) }

func run(out *os.File) {
	entries, err := loadNumbers("nucleus/syscall")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "gensyscall: no syscall.Number constants found")
		os.Exit(1)
	}
	writeHeader(out, entries)
}

// loadNumbers parses pkgPath looking for the const block that defines
// syscall.Number, returning each identifier with its iota-assigned
// value in declaration order.
func loadNumbers(pkgPath string) ([]syscallEntry, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
	}
	pkgs, err := packages.Load(cfg, pkgPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", pkgPath, err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, fmt.Errorf("package %s had errors", pkgPath)
	}

	var entries []syscallEntry
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				decl, ok := n.(*ast.GenDecl)
				if !ok || decl.Tok != token.CONST {
					return true
				}
				entries = append(entries, extractNumberConsts(pkg, decl)...)
				return true
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].value < entries[j].value })
	return entries, nil
}

// extractNumberConsts returns every constant in decl whose type is
// syscall.Number, resolved to its integer value via the type checker
// (handles the implicit iota repetition across ValueSpecs).
func extractNumberConsts(pkg *packages.Package, decl *ast.GenDecl) []syscallEntry {
	var out []syscallEntry
	for _, spec := range decl.Specs {
		vspec, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, name := range vspec.Names {
			obj := pkg.TypesInfo.ObjectOf(name)
			constObj, ok := obj.(*types.Const)
			if !ok || !strings.HasSuffix(constObj.Type().String(), "syscall.Number") {
				continue
			}
			value, ok := constant.Int64Val(constObj.Val())
			if !ok {
				continue
			}
			out = append(out, syscallEntry{name: name.Name, value: int(value)})
		}
	}
	return out
}

func writeHeader(out *os.File, entries []syscallEntry) {
	fmt.Fprintln(out, "// Code generated by gensyscall. DO NOT EDIT.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "#ifndef NUCLEUS_SYSCALL_GEN_H")
	fmt.Fprintln(out, "#define NUCLEUS_SYSCALL_GEN_H")
	fmt.Fprintln(out)
	for _, e := range entries {
		fmt.Fprintf(out, "#define SYS_%s %d\n", strings.ToUpper(toSnake(e.name)), e.value)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "#endif")
}

// toSnake converts an exported Go identifier like TaskCreate into
// task_create for the generated macro name.
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
