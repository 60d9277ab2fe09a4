// Package vm - interactive debugger support.
//
// The debugger hooks into exec ahead of each instruction: if it is
// enabled and either in step mode or sitting on a breakpoint for the
// current frame's function, it prints the next instruction, then
// blocks on stdin for a command. It never
// substitutes for the Breakpoint opcode itself, which remains
// unimplemented - this is host-driven stepping, keyed off byte offset
// rather than a script-emitted instruction.
package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oxvm/oxvm/pkg/pool"
)

// Debugger provides interactive stepping and breakpoints over a VM's
// execution, keyed by function name and byte offset within it.
type Debugger struct {
	vm          *VM
	breakpoints map[string]map[uint16]bool
	stepMode    bool
	enabled     bool
	out         *bufio.Writer
	in          *bufio.Scanner
}

// NewDebugger returns a Debugger over vm, reading commands from stdin
// and writing to stdout.
func NewDebugger(vm *VM) *Debugger {
	return &Debugger{
		vm:          vm,
		breakpoints: make(map[string]map[uint16]bool),
		out:         bufio.NewWriter(os.Stdout),
		in:          bufio.NewScanner(os.Stdin),
	}
}

// Enable activates the debugger; Disable turns it back off.
func (d *Debugger) Enable()  { d.enabled = true }
func (d *Debugger) Disable() { d.enabled = false }

// SetStepMode toggles pausing before every instruction rather than
// only at breakpoints.
func (d *Debugger) SetStepMode(on bool) { d.stepMode = on }

// AddBreakpoint pauses execution the next time funcName reaches
// byte offset.
func (d *Debugger) AddBreakpoint(funcName string, offset uint16) {
	if d.breakpoints[funcName] == nil {
		d.breakpoints[funcName] = make(map[uint16]bool)
	}
	d.breakpoints[funcName][offset] = true
}

// RemoveBreakpoint undoes AddBreakpoint.
func (d *Debugger) RemoveBreakpoint(funcName string, offset uint16) {
	delete(d.breakpoints[funcName], offset)
}

// ClearBreakpoints removes every breakpoint in every function.
func (d *Debugger) ClearBreakpoints() {
	d.breakpoints = make(map[string]map[uint16]bool)
}

// shouldPause reports whether execution should stop before running
// the instruction at entry within frame.
func (d *Debugger) shouldPause(frame *Frame, entry pool.CodeEntry) bool {
	if !d.enabled {
		return false
	}
	if d.stepMode {
		return true
	}
	name := frame.FuncName
	return d.breakpoints[name] != nil && d.breakpoints[name][entry.Offset]
}

func (d *Debugger) showInstruction(frame *Frame, entry pool.CodeEntry) {
	fmt.Fprintf(d.out, "  %4d: %s", entry.Offset, entry.Instr.Op)
	if entry.Instr.Index != 0 {
		fmt.Fprintf(d.out, " index=%d", entry.Instr.Index)
	}
	fmt.Fprintln(d.out)
	d.out.Flush()
}

func (d *Debugger) showSlots(frame *Frame) {
	fmt.Fprintln(d.out, "Slots (parameters then locals):")
	if len(frame.Slots) == 0 {
		fmt.Fprintln(d.out, "  (none)")
	}
	for i, s := range frame.Slots {
		fmt.Fprintf(d.out, "  [%d] kind=%d\n", i, s.Unpinned().Kind)
	}
	d.out.Flush()
}

func (d *Debugger) showSelf(frame *Frame) {
	fmt.Fprintf(d.out, "Self: kind=%d\n", frame.Self.Unpinned().Kind)
	d.out.Flush()
}

func (d *Debugger) listCode(frame *Frame) {
	fmt.Fprintln(d.out, "Code:")
	for i, e := range frame.Code {
		marker := "  "
		if i == frame.ip {
			marker = "->"
		} else if d.breakpoints[frame.FuncName] != nil && d.breakpoints[frame.FuncName][e.Offset] {
			marker = "* "
		}
		fmt.Fprintf(d.out, "%s %4d: %s\n", marker, e.Offset, e.Instr.Op)
	}
	d.out.Flush()
}

// interactivePrompt blocks on stdin until the user resumes execution
// (continue, step, or next), or aborts it (quit).
func (d *Debugger) interactivePrompt(frame *Frame, entry pool.CodeEntry) (resume bool) {
	fmt.Fprintln(d.out, "\n=== paused ===")
	d.showInstruction(frame, entry)

	for {
		fmt.Fprint(d.out, "debug> ")
		d.out.Flush()
		if !d.in.Scan() {
			return false
		}
		line := strings.TrimSpace(d.in.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "help", "h", "?":
			d.printHelp()
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true
		case "slots", "locals", "l":
			d.showSlots(frame)
		case "self":
			d.showSelf(frame)
		case "instruction", "i":
			d.showInstruction(frame, entry)
		case "list", "ls":
			d.listCode(frame)
		case "break", "b":
			if len(parts) < 2 {
				fmt.Fprintln(d.out, "usage: break <offset>")
				continue
			}
			off, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintln(d.out, "invalid offset")
				continue
			}
			d.AddBreakpoint(frame.FuncName, uint16(off))
			fmt.Fprintf(d.out, "breakpoint set at %d\n", off)
		case "delete", "d":
			if len(parts) < 2 {
				fmt.Fprintln(d.out, "usage: delete <offset>")
				continue
			}
			off, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintln(d.out, "invalid offset")
				continue
			}
			d.RemoveBreakpoint(frame.FuncName, uint16(off))
		case "quit", "q":
			return false
		default:
			fmt.Fprintf(d.out, "unknown command: %s (type 'help')\n", parts[0])
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Fprintln(d.out, "Debugger commands:")
	fmt.Fprintln(d.out, "  help, h, ?      show this help")
	fmt.Fprintln(d.out, "  continue, c     resume execution")
	fmt.Fprintln(d.out, "  step, s, next   resume, pausing again before the next instruction")
	fmt.Fprintln(d.out, "  slots, l        show parameter/local slots")
	fmt.Fprintln(d.out, "  self            show the receiver")
	fmt.Fprintln(d.out, "  instruction, i  show the current instruction")
	fmt.Fprintln(d.out, "  list, ls        list this function's code")
	fmt.Fprintln(d.out, "  break <n>, b    set a breakpoint at byte offset n")
	fmt.Fprintln(d.out, "  delete <n>, d   remove a breakpoint at byte offset n")
	fmt.Fprintln(d.out, "  quit, q         abort execution")
}
