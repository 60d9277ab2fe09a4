// Package vm implements the bytecode interpreter: the final stage
// that takes a pool.ConstantPool plus the Metadata derived from it and
// actually runs function bodies.
//
//	ConstantPool -> Metadata -> VM -> Execution
//
// Unlike a flat stack machine, this interpreter has no separate value
// stack: bytecode.Instr is tree-structured, so exec is recursive - an
// opcode that needs an operand's value calls exec again to evaluate
// the next sub-expression in the code stream, and the Go call stack
// plays the role the original's explicit operand stack would. A
// Frame's Code is walked with a single forward cursor; Jump and its
// relatives reposition that cursor by seeking to an absolute byte
// offset computed from the jumping instruction's own position plus
// its relative Offset.
package vm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/oxvm/oxvm/pkg/arena"
	"github.com/oxvm/oxvm/pkg/bytecode"
	"github.com/oxvm/oxvm/pkg/interop"
	"github.com/oxvm/oxvm/pkg/metadata"
	"github.com/oxvm/oxvm/pkg/pool"
	"github.com/oxvm/oxvm/pkg/value"
)

// Action reports how exec left the frame: Continue to keep walking
// the current statement list, Return to unwind the call with a value.
type Action int

const (
	ActionContinue Action = iota
	ActionReturn
)

// Frame is one call's execution state.
type Frame struct {
	Fun      *pool.Function
	FuncName string // best-effort, for the Debugger; empty if unresolved
	Code     pool.Code
	Slots    []value.Value // parameters, then locals, in declaration order
	Self     value.Value

	ip             int
	switchSubjects []value.Value
	contextStack   []value.Value
}

func (f *Frame) hasMore() bool { return f.ip < len(f.Code) }

func (f *Frame) next() (pool.CodeEntry, bool) {
	if f.ip >= len(f.Code) {
		return pool.CodeEntry{}, false
	}
	e := f.Code[f.ip]
	f.ip++
	return e, true
}

func (f *Frame) peekEntry() (pool.CodeEntry, bool) {
	if f.ip >= len(f.Code) {
		return pool.CodeEntry{}, false
	}
	return f.Code[f.ip], true
}

func (f *Frame) peekOp() (bytecode.Op, bool) {
	if f.ip >= len(f.Code) {
		return 0, false
	}
	return f.Code[f.ip].Instr.Op, true
}

// seek repositions the cursor at the instruction starting at the
// given absolute byte offset - the landing spot for Jump,
// JumpIfFalse, Skip, Conditional and SwitchLabel targets.
func (f *Frame) seek(target uint16) error {
	lo, hi := 0, len(f.Code)
	for lo < hi {
		mid := (lo + hi) / 2
		if f.Code[mid].Offset < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(f.Code) || f.Code[lo].Offset != target {
		return fmt.Errorf("vm: no instruction at offset %d", target)
	}
	f.ip = lo
	return nil
}

func (f *Frame) localSlot(rawIdx uint32) (int, bool) {
	for i, l := range f.Fun.Locals {
		if l.Value() == rawIdx {
			return len(f.Fun.Parameters) + i, true
		}
	}
	return 0, false
}

func (f *Frame) paramSlot(rawIdx uint32) (int, bool) {
	for i, p := range f.Fun.Parameters {
		if p.Value() == rawIdx {
			return i, true
		}
	}
	return 0, false
}

// VM interprets functions resolved through a single Metadata view.
// It is not safe for concurrent use, and neither is its Metadata:
// GetVTable fills its vtable cache lazily, so a Metadata is not
// read-only once execution starts.
type VM struct {
	Meta  *metadata.Metadata
	Arena *arena.Arena

	// Debugger, if set, is consulted before every instruction - see
	// NewDebugger.
	Debugger *Debugger

	log *zap.Logger
}

// New returns a VM over m, logging GC steps through log (a nil logger
// is replaced with zap's no-op logger).
func New(m *metadata.Metadata, log *zap.Logger) *VM {
	if log == nil {
		log = zap.NewNop()
	}
	return &VM{Meta: m, Arena: arena.New(log), log: log}
}

// RegisterNative forwards to Meta.RegisterNative - a convenience so
// hosts can hold onto just the VM.
func (vm *VM) RegisterNative(idx pool.PoolIndex[pool.Function], fn interop.Function) {
	vm.Meta.RegisterNative(idx, fn)
}

// Call looks up a root function by its compiler-emitted name and runs
// it with args, returning its result (value.Null() if void).
func (vm *VM) Call(name string, args ...value.Value) (value.Value, error) {
	idx, ok := vm.Meta.Symbols.Functions[name]
	if !ok {
		return value.Value{}, fmt.Errorf("vm: no such function %q", name)
	}
	fun, err := vm.Meta.Pool.Function(idx)
	if err != nil {
		return value.Value{}, err
	}
	return vm.invoke(idx, fun, value.Null(), args)
}

// CallVoid calls name for its side effects, discarding any result.
func (vm *VM) CallVoid(name string, args ...value.Value) error {
	_, err := vm.Call(name, args...)
	return err
}

// CallWithCallback calls name and, on success, passes its result to
// callback - the shape a host embedding the VM in an event loop wants
// rather than blocking on the return value directly.
func (vm *VM) CallWithCallback(name string, args []value.Value, callback func(value.Value)) error {
	result, err := vm.Call(name, args...)
	if err != nil {
		return err
	}
	if callback != nil {
		callback(result)
	}
	return nil
}

// CallTyped calls name and extracts its result as a Go value via
// from, the generic convenience a host reaches for when it already
// knows the expected return type. Go methods cannot carry their own
// type parameters, so this is a package-level function rather than a
// method on VM.
func CallTyped[R any](vm *VM, name string, from interop.FromVM[R], args ...value.Value) (R, error) {
	var zero R
	result, err := vm.Call(name, args...)
	if err != nil {
		return zero, err
	}
	return from(result, vm.Meta.Pool)
}

func (vm *VM) newFrame(funIdx pool.PoolIndex[pool.Function], fun *pool.Function, args []value.Value, self value.Value) (*Frame, error) {
	name, _ := vm.Meta.Pool.DefName(pool.Cast[pool.Function, pool.Definition](funIdx))
	slots := make([]value.Value, len(fun.Parameters)+len(fun.Locals))
	for i, pIdx := range fun.Parameters {
		param, err := vm.Meta.Pool.Parameter(pIdx)
		if err != nil {
			return nil, err
		}
		switch {
		case i >= len(args):
			t, err := vm.Meta.GetTypeId(param.Type)
			if err != nil {
				return nil, err
			}
			slots[i] = t.DefaultValue()
		case param.Flags.IsOut():
			// Out-parameters alias the caller's l-value: keep the Pin
			// so writes inside this call are observed by the caller.
			slots[i] = args[i]
		default:
			slots[i] = args[i].Unpinned().Copied()
		}
	}
	for i, lIdx := range fun.Locals {
		local, err := vm.Meta.Pool.Local(lIdx)
		if err != nil {
			return nil, err
		}
		t, err := vm.Meta.GetTypeId(local.Type)
		if err != nil {
			return nil, err
		}
		slots[len(fun.Parameters)+i] = t.DefaultValue()
	}
	return &Frame{Fun: fun, FuncName: name, Code: fun.Code, Slots: slots, Self: self}, nil
}

func (vm *VM) run(frame *Frame) (value.Value, error) {
	for frame.hasMore() {
		val, action, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, err
		}
		if action == ActionReturn {
			return val, nil
		}
	}
	return value.Null(), nil
}

// invoke runs fun, dispatching to its registered native implementation
// if it is IsNative, or to a fresh Frame otherwise.
func (vm *VM) invoke(funIdx pool.PoolIndex[pool.Function], fun *pool.Function, self value.Value, args []value.Value) (value.Value, error) {
	if fun.Flags.IsNative() {
		native, ok := vm.Meta.GetNative(funIdx)
		if !ok {
			return value.Value{}, ErrUndefinedNative
		}
		result, err := native(args, vm.Meta.Pool)
		if err != nil {
			return value.Value{}, fmt.Errorf("%w: %v", ErrInvalidInteropParameters, err)
		}
		return result, nil
	}
	frame, err := vm.newFrame(funIdx, fun, args, self)
	if err != nil {
		return value.Value{}, err
	}
	return vm.run(frame)
}

// collectArgs evaluates sub-expressions until it reaches a ParamEnd
// marker, which it consumes - the arity-free way InvokeStatic and
// InvokeVirtual read their argument list off the code stream without
// the instruction itself carrying a count.
func (vm *VM) collectArgs(frame *Frame) ([]value.Value, error) {
	var args []value.Value
	for {
		op, ok := frame.peekOp()
		if !ok {
			return nil, fmt.Errorf("vm: ran out of code while collecting call arguments")
		}
		if op == bytecode.OpParamEnd {
			frame.ip++
			return args, nil
		}
		v, _, err := vm.exec(frame)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
}

func (vm *VM) collectFieldDefaults(class *pool.Class) ([]uint32, []value.Value, error) {
	idxs := make([]uint32, len(class.Fields))
	defaults := make([]value.Value, len(class.Fields))
	for i, fIdx := range class.Fields {
		field, err := vm.Meta.Pool.Field(fIdx)
		if err != nil {
			return nil, nil, err
		}
		t, err := vm.Meta.GetTypeId(field.Type)
		if err != nil {
			return nil, nil, err
		}
		idxs[i] = fIdx.Value()
		defaults[i] = t.DefaultValue()
	}
	return idxs, defaults, nil
}

func (vm *VM) evalArray(frame *Frame) (*value.Array, error) {
	v, _, err := vm.exec(frame)
	if err != nil {
		return nil, err
	}
	u := v.Unpinned()
	if u.Kind != value.KindArray {
		return nil, fmt.Errorf("vm: expected Array, got value kind %d", u.Kind)
	}
	return u.Arr, nil
}

// exec executes exactly one instruction, recursively consuming
// whatever sub-expressions its Op requires, and reports how control
// should proceed.
func (vm *VM) exec(frame *Frame) (value.Value, Action, error) {
	entry, ok := frame.peekEntry()
	if !ok {
		return value.Null(), ActionContinue, nil
	}
	if vm.Debugger != nil && vm.Debugger.shouldPause(frame, entry) {
		if !vm.Debugger.interactivePrompt(frame, entry) {
			return value.Value{}, ActionReturn, fmt.Errorf("vm: execution aborted from debugger")
		}
	}
	entry, ok = frame.next()
	if !ok {
		return value.Null(), ActionContinue, nil
	}
	instr := entry.Instr

	switch instr.Op {
	case bytecode.OpNop, bytecode.OpNull:
		return value.Null(), ActionContinue, nil
	case bytecode.OpI32One:
		return value.Int32(1), ActionContinue, nil
	case bytecode.OpI32Zero:
		return value.Int32(0), ActionContinue, nil
	case bytecode.OpI8Const:
		return value.Int8(instr.I8), ActionContinue, nil
	case bytecode.OpI16Const:
		return value.Int16(instr.I16), ActionContinue, nil
	case bytecode.OpI32Const:
		return value.Int32(instr.I32), ActionContinue, nil
	case bytecode.OpI64Const:
		return value.Int64(instr.I64), ActionContinue, nil
	case bytecode.OpU8Const:
		return value.Uint8(instr.U8), ActionContinue, nil
	case bytecode.OpU16Const:
		return value.Uint16(instr.U16), ActionContinue, nil
	case bytecode.OpU32Const:
		return value.Uint32(instr.U32), ActionContinue, nil
	case bytecode.OpU64Const:
		return value.Uint64(instr.U64), ActionContinue, nil
	case bytecode.OpF32Const:
		return value.Float32(instr.F32), ActionContinue, nil
	case bytecode.OpF64Const:
		return value.Float64(instr.F64), ActionContinue, nil
	case bytecode.OpTrueConst:
		return value.Bool(true), ActionContinue, nil
	case bytecode.OpFalseConst:
		return value.Bool(false), ActionContinue, nil

	case bytecode.OpEnumConst:
		memberIdx := pool.NewIndex[pool.EnumMember](instr.Index)
		raw, err := vm.Meta.Pool.EnumValue(memberIdx)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		memberDef, err := vm.Meta.Pool.Definition(pool.Cast[pool.EnumMember, pool.Definition](memberIdx))
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		enumIdx := pool.Cast[pool.Definition, pool.Enum](memberDef.Parent)
		return value.Enum(value.EnumVal{Enum: enumIdx, Value: raw}), ActionContinue, nil

	case bytecode.OpStringConst:
		return value.Intern(value.InternStr{Table: value.TableString, Index: instr.Index}), ActionContinue, nil
	case bytecode.OpNameConst:
		return value.Intern(value.InternStr{Table: value.TableName, Index: instr.Index}), ActionContinue, nil
	case bytecode.OpTweakDbIdConst:
		return value.Intern(value.InternStr{Table: value.TableTweakDbId, Index: instr.Index}), ActionContinue, nil
	case bytecode.OpResourceConst:
		return value.Intern(value.InternStr{Table: value.TableResource, Index: instr.Index}), ActionContinue, nil

	case bytecode.OpBreakpoint:
		return value.Value{}, ActionContinue, todo(instr.Op)

	case bytecode.OpAssign:
		target, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		newVal, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		if !target.IsPinned() {
			return value.Value{}, ActionContinue, opErr(instr.Op, ErrUnsupportedAssignmentOperand)
		}
		result := newVal.Unpinned().Copied()
		vm.Arena.Mutate(func() { *target.Pin = result })
		return result, ActionContinue, nil

	case bytecode.OpTarget:
		return value.Value{}, ActionContinue, todo(instr.Op)

	case bytecode.OpLocal:
		slot, ok := frame.localSlot(instr.Index)
		if !ok {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("unknown local index %d", instr.Index))
		}
		return value.Pin(&frame.Slots[slot]), ActionContinue, nil

	case bytecode.OpParam:
		slot, ok := frame.paramSlot(instr.Index)
		if !ok {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("unknown parameter index %d", instr.Index))
		}
		return value.Pin(&frame.Slots[slot]), ActionContinue, nil

	case bytecode.OpObjectField:
		recv, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := recv.Unpinned()
		if u.Kind != value.KindObj {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("field access on non-object value kind %d", u.Kind))
		}
		if u.Obj.IsNull() {
			return value.Value{}, ActionContinue, opErr(instr.Op, ErrNullPointer)
		}
		cell, ok := u.Obj.Instance.Fields[instr.Index]
		if !ok {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("unknown field index %d", instr.Index))
		}
		return value.Pin(cell), ActionContinue, nil

	case bytecode.OpStructField, bytecode.OpExternalVar:
		return value.Value{}, ActionContinue, todo(instr.Op)

	case bytecode.OpSwitch:
		subject, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		frame.switchSubjects = append(frame.switchSubjects, subject.Unpinned().Copied())
		return value.Null(), ActionContinue, nil

	case bytecode.OpSwitchLabel:
		if len(frame.switchSubjects) == 0 {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("switch label outside a switch"))
		}
		subject := frame.switchSubjects[len(frame.switchSubjects)-1]
		caseVal, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		if subject.Equals(caseVal) {
			if err := frame.seek(uint16(int(entry.Offset) + int(instr.OffsetB))); err != nil {
				return value.Value{}, ActionContinue, opErr(instr.Op, err)
			}
		} else {
			if err := frame.seek(uint16(int(entry.Offset) + int(instr.Offset))); err != nil {
				return value.Value{}, ActionContinue, opErr(instr.Op, err)
			}
		}
		return value.Null(), ActionContinue, nil

	case bytecode.OpSwitchDefault:
		if len(frame.switchSubjects) > 0 {
			frame.switchSubjects = frame.switchSubjects[:len(frame.switchSubjects)-1]
		}
		return value.Null(), ActionContinue, nil

	case bytecode.OpJump:
		if err := frame.seek(uint16(int(entry.Offset) + int(instr.Offset))); err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		return value.Null(), ActionContinue, nil

	case bytecode.OpJumpIfFalse:
		cond, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := cond.Unpinned()
		if u.Kind != value.KindBool {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("condition is not Bool (kind %d)", u.Kind))
		}
		if !u.B {
			if err := frame.seek(uint16(int(entry.Offset) + int(instr.Offset))); err != nil {
				return value.Value{}, ActionContinue, opErr(instr.Op, err)
			}
		}
		return value.Null(), ActionContinue, nil

	case bytecode.OpSkip:
		if err := frame.seek(uint16(int(entry.Offset) + int(instr.Offset))); err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		return value.Null(), ActionContinue, nil

	case bytecode.OpConditional:
		cond, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := cond.Unpinned()
		if u.Kind != value.KindBool {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("condition is not Bool (kind %d)", u.Kind))
		}
		if u.B {
			trueVal, _, err := vm.exec(frame)
			if err != nil {
				return value.Value{}, ActionContinue, err
			}
			if err := frame.seek(uint16(int(entry.Offset) + int(instr.OffsetB))); err != nil {
				return value.Value{}, ActionContinue, opErr(instr.Op, err)
			}
			return trueVal, ActionContinue, nil
		}
		if err := frame.seek(uint16(int(entry.Offset) + int(instr.Offset))); err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		falseVal, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		return falseVal, ActionContinue, nil

	case bytecode.OpNew:
		classIdx := pool.NewIndex[pool.Class](instr.Index)
		class, err := vm.Meta.Pool.Class(classIdx)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		vt, err := vm.Meta.GetVTable(classIdx)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		idxs, defaults, err := vm.collectFieldDefaults(class)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		inst := value.NewInstance(classIdx, vt, idxs, defaults)
		vm.Arena.Alloc(64 * uint64(len(idxs)+1))
		return value.FromInstance(inst), ActionContinue, nil

	case bytecode.OpConstruct:
		classIdx := pool.NewIndex[pool.Class](instr.Index)
		class, err := vm.Meta.Pool.Class(classIdx)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		fieldVals := make([]value.Value, instr.FieldCount)
		for i := range fieldVals {
			v, _, err := vm.exec(frame)
			if err != nil {
				return value.Value{}, ActionContinue, err
			}
			fieldVals[i] = v.Unpinned().Copied()
		}
		if class.Flags.IsStruct() {
			if len(fieldVals) <= 4 {
				var packed value.PackedStruct
				packed.Class = classIdx
				packed.Len = len(fieldVals)
				copy(packed.Fields[:], fieldVals)
				return value.FromPacked(packed), ActionContinue, nil
			}
			fields := make(map[uint32]value.Value, len(class.Fields))
			for i, fIdx := range class.Fields {
				if i < len(fieldVals) {
					fields[fIdx.Value()] = fieldVals[i]
				}
			}
			return value.FromBoxedStruct(&value.BoxedStruct{Class: classIdx, Fields: fields}), ActionContinue, nil
		}
		vt, err := vm.Meta.GetVTable(classIdx)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		idxs, defaults, err := vm.collectFieldDefaults(class)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		inst := value.NewInstance(classIdx, vt, idxs, defaults)
		for i, fIdx := range class.Fields {
			if i < len(fieldVals) {
				*inst.Fields[fIdx.Value()] = fieldVals[i]
			}
		}
		vm.Arena.Alloc(64 * uint64(len(idxs)+1))
		return value.FromInstance(inst), ActionContinue, nil

	case bytecode.OpInvokeStatic:
		funIdx := pool.NewIndex[pool.Function](instr.Index)
		fun, err := vm.Meta.Pool.Function(funIdx)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		args, err := vm.collectArgs(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		result, err := vm.invoke(funIdx, fun, value.Null(), args)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		return result, ActionContinue, nil

	case bytecode.OpInvokeVirtual:
		recv, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		args, err := vm.collectArgs(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		u := recv.Unpinned()
		if u.Kind != value.KindObj {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("virtual call on non-object value kind %d", u.Kind))
		}
		if u.Obj.IsNull() {
			return value.Value{}, ActionContinue, opErr(instr.Op, ErrNullPointer)
		}
		funIdx, ok := u.Obj.Instance.Vtable.Get(instr.Index)
		if !ok {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("no method for name index %d", instr.Index))
		}
		fun, err := vm.Meta.Pool.Function(funIdx)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		result, err := vm.invoke(funIdx, fun, u, args)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		return result, ActionContinue, nil

	case bytecode.OpParamEnd:
		// Reached only if collectArgs was bypassed; a bare ParamEnd is
		// a no-op terminator.
		return value.Null(), ActionContinue, nil

	case bytecode.OpReturn:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		return v.Unpinned(), ActionReturn, nil

	case bytecode.OpContext:
		recv, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		frame.contextStack = append(frame.contextStack, recv.Unpinned())
		inner, _, err := vm.exec(frame)
		frame.contextStack = frame.contextStack[:len(frame.contextStack)-1]
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		return inner, ActionContinue, nil

	case bytecode.OpThis:
		if n := len(frame.contextStack); n > 0 {
			return frame.contextStack[n-1], ActionContinue, nil
		}
		return frame.Self, ActionContinue, nil

	case bytecode.OpEquals:
		a, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		b, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		return value.Bool(a.Equals(b)), ActionContinue, nil

	case bytecode.OpNotEquals:
		a, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		b, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		return value.Bool(!a.Equals(b)), ActionContinue, nil

	case bytecode.OpDelete:
		return value.Value{}, ActionContinue, todo(instr.Op)

	case bytecode.OpStartProfiling:
		return value.Null(), ActionContinue, nil

	case bytecode.OpArrayClear:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		vm.Arena.Mutate(func() { arr.Elems = nil })
		return value.Null(), ActionContinue, nil

	case bytecode.OpArraySize:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		return value.Int32(int32(len(arr.Elems))), ActionContinue, nil

	case bytecode.OpArrayResize, bytecode.OpArrayGrow:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		sizeV, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		n := int(sizeV.Unpinned().I32)
		vm.Arena.Mutate(func() {
			if n <= len(arr.Elems) {
				arr.Elems = arr.Elems[:n]
				return
			}
			grown := make([]value.Value, n)
			copy(grown, arr.Elems)
			for i := len(arr.Elems); i < n; i++ {
				grown[i] = value.NullObj()
			}
			arr.Elems = grown
		})
		return value.Null(), ActionContinue, nil

	case bytecode.OpArrayFindFirst:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		needle, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		for _, e := range arr.Elems {
			if e.Equals(needle) {
				return e, ActionContinue, nil
			}
		}
		return value.NullObj(), ActionContinue, nil

	case bytecode.OpArrayFindLast:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		needle, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		for i := len(arr.Elems) - 1; i >= 0; i-- {
			if arr.Elems[i].Equals(needle) {
				return arr.Elems[i], ActionContinue, nil
			}
		}
		return value.NullObj(), ActionContinue, nil

	case bytecode.OpArrayContains:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		needle, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		for _, e := range arr.Elems {
			if e.Equals(needle) {
				return value.Bool(true), ActionContinue, nil
			}
		}
		return value.Bool(false), ActionContinue, nil

	case bytecode.OpArrayCount:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		needle, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		count := int32(0)
		for _, e := range arr.Elems {
			if e.Equals(needle) {
				count++
			}
		}
		return value.Int32(count), ActionContinue, nil

	case bytecode.OpArrayPush:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		vm.Arena.Mutate(func() { arr.Elems = append(arr.Elems, v.Unpinned().Copied()) })
		vm.Arena.Alloc(32)
		return value.Null(), ActionContinue, nil

	case bytecode.OpArrayPop:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		if len(arr.Elems) == 0 {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("pop from empty array"))
		}
		last := arr.Elems[len(arr.Elems)-1]
		vm.Arena.Mutate(func() { arr.Elems = arr.Elems[:len(arr.Elems)-1] })
		return last, ActionContinue, nil

	case bytecode.OpArrayInsert:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		idxV, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		i := int(idxV.Unpinned().I32)
		if i < 0 || i > len(arr.Elems) {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("array index %d out of range (len %d)", i, len(arr.Elems)))
		}
		vm.Arena.Mutate(func() {
			arr.Elems = append(arr.Elems, value.Value{})
			copy(arr.Elems[i+1:], arr.Elems[i:])
			arr.Elems[i] = v.Unpinned().Copied()
		})
		return value.Null(), ActionContinue, nil

	case bytecode.OpArrayRemove:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		needle, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		removed := false
		vm.Arena.Mutate(func() {
			for i, e := range arr.Elems {
				if e.Equals(needle) {
					arr.Elems = append(arr.Elems[:i], arr.Elems[i+1:]...)
					removed = true
					return
				}
			}
		})
		return value.Bool(removed), ActionContinue, nil

	case bytecode.OpArrayErase:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		idxV, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		i := int(idxV.Unpinned().I32)
		if i < 0 || i >= len(arr.Elems) {
			return value.Bool(false), ActionContinue, nil
		}
		vm.Arena.Mutate(func() { arr.Elems = append(arr.Elems[:i], arr.Elems[i+1:]...) })
		return value.Bool(true), ActionContinue, nil

	case bytecode.OpArrayLast:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		if len(arr.Elems) == 0 {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("array is empty"))
		}
		return value.Pin(&arr.Elems[len(arr.Elems)-1]), ActionContinue, nil

	case bytecode.OpArrayElement:
		arr, err := vm.evalArray(frame)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		idxV, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		i := int(idxV.Unpinned().I32)
		if i < 0 || i >= len(arr.Elems) {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("array index %d out of range (len %d)", i, len(arr.Elems)))
		}
		return value.Pin(&arr.Elems[i]), ActionContinue, nil

	case bytecode.OpStaticArraySize, bytecode.OpStaticArrayFindFirst, bytecode.OpStaticArrayFindLast,
		bytecode.OpStaticArrayContains, bytecode.OpStaticArrayCount, bytecode.OpStaticArrayLast,
		bytecode.OpStaticArrayElement:
		return value.Value{}, ActionContinue, todo(instr.Op)

	case bytecode.OpRefToBool, bytecode.OpWeakRefToBool:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := v.Unpinned()
		if u.Kind != value.KindObj {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("expected object reference, got value kind %d", u.Kind))
		}
		return value.Bool(!u.Obj.IsNull()), ActionContinue, nil

	case bytecode.OpEnumToI32:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := v.Unpinned()
		if u.Kind != value.KindEnum {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("expected Enum, got value kind %d", u.Kind))
		}
		return value.Int32(int32(u.Enum.Value)), ActionContinue, nil

	case bytecode.OpI32ToEnum:
		// No enum class travels with this instruction (Instr carries no
		// Index payload for it), so the produced EnumVal is tagged with
		// an undefined enum - callers only ever read its backing Value.
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := v.Unpinned()
		if u.Kind != value.KindInt32 {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("expected Int32, got value kind %d", u.Kind))
		}
		return value.Enum(value.EnumVal{Enum: pool.Undefined[pool.Enum](), Value: int64(u.I32)}), ActionContinue, nil

	case bytecode.OpDynamicCast:
		classIdx := pool.NewIndex[pool.Class](instr.Index)
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := v.Unpinned()
		if u.Kind != value.KindObj {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("expected object reference, got value kind %d", u.Kind))
		}
		if u.Obj.IsNull() {
			return value.Value{}, ActionContinue, opErr(instr.Op, ErrNullPointer)
		}
		if vm.Meta.IsInstanceOf(u.Obj.Instance.Class, classIdx) {
			return u, ActionContinue, nil
		}
		return value.NullObj(), ActionContinue, nil

	case bytecode.OpToString:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		s, err := v.ToString(vm.Meta.Pool)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		return value.Str(s), ActionContinue, nil

	case bytecode.OpToVariant:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		boxed := v.Unpinned().Copied()
		return value.NewVariant(&boxed), ActionContinue, nil

	case bytecode.OpFromVariant:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := v.Unpinned()
		if u.Kind != value.KindVariant {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("expected Variant, got value kind %d", u.Kind))
		}
		if u.Var.Inner == nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, ErrNullPointer)
		}
		return *u.Var.Inner, ActionContinue, nil

	case bytecode.OpVariantIsValid:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := v.Unpinned()
		if u.Kind != value.KindVariant {
			return value.Value{}, ActionContinue, opErr(instr.Op, fmt.Errorf("expected Variant, got value kind %d", u.Kind))
		}
		return value.Bool(u.Var.Inner != nil), ActionContinue, nil

	case bytecode.OpVariantIsRef:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := v.Unpinned()
		is := u.Kind == value.KindVariant && u.Var.Inner != nil && u.Var.Inner.Unpinned().Kind == value.KindObj
		return value.Bool(is), ActionContinue, nil

	case bytecode.OpVariantIsArray:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := v.Unpinned()
		is := u.Kind == value.KindVariant && u.Var.Inner != nil && u.Var.Inner.Unpinned().Kind == value.KindArray
		return value.Bool(is), ActionContinue, nil

	case bytecode.OpVariantToCName, bytecode.OpVariantToString:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		u := v.Unpinned()
		if u.Kind != value.KindVariant || u.Var.Inner == nil {
			return value.Str(""), ActionContinue, nil
		}
		s, err := u.Var.Inner.ToString(vm.Meta.Pool)
		if err != nil {
			return value.Value{}, ActionContinue, opErr(instr.Op, err)
		}
		return value.Str(s), ActionContinue, nil

	case bytecode.OpWeakRefToRef, bytecode.OpRefToWeakRef:
		v, _, err := vm.exec(frame)
		if err != nil {
			return value.Value{}, ActionContinue, err
		}
		return v.Unpinned(), ActionContinue, nil

	case bytecode.OpWeakRefNull:
		return value.NullObj(), ActionContinue, nil

	case bytecode.OpAsRef, bytecode.OpDeref:
		return value.Value{}, ActionContinue, todo(instr.Op)

	default:
		return value.Value{}, ActionContinue, todo(instr.Op)
	}
}
