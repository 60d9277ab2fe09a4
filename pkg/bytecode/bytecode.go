// Package bytecode defines the closed instruction set executed by the
// virtual machine.
//
// Unlike a flat bytecode where every opcode pops pre-pushed operands
// off a stack, this instruction set is tree-structured: most opcodes
// implicitly consume the next whole sub-expression rather than
// operating on values already sitting on the stack. Jump, Context,
// ArrayPush, assignments and comparisons all work this way - the
// interpreter in pkg/vm evaluates them with a recursive exec, not a
// flat dispatch loop.
//
// Every instruction that targets another point in the same function's
// code (Jump, JumpIfFalse, Conditional, SwitchLabel) encodes its
// target as an Offset relative to the instruction's own byte position,
// not as an absolute address.
//
// Instr carries raw pool offsets (plain uint32) rather than typed
// pool.PoolIndex values, so this package does not need to import
// pkg/pool: pkg/pool's Code/CodeEntry types already import Instr, and
// pkg/vm re-tags the raw offsets with pool.NewIndex at the point of use.
package bytecode

// Op identifies the operation an Instr performs. The set is closed: an
// Op the interpreter's switch does not recognize is a defined gap, not
// an extension point - see pkg/vm's Todo error.
type Op int

const (
	OpNop Op = iota
	OpNull
	OpI32One
	OpI32Zero
	OpI8Const
	OpI16Const
	OpI32Const
	OpI64Const
	OpU8Const
	OpU16Const
	OpU32Const
	OpU64Const
	OpF32Const
	OpF64Const
	OpNameConst
	OpEnumConst
	OpStringConst
	OpTweakDbIdConst
	OpResourceConst
	OpTrueConst
	OpFalseConst
	OpBreakpoint
	OpAssign
	OpTarget
	OpLocal
	OpParam
	OpObjectField
	OpStructField
	OpExternalVar
	OpSwitch
	OpSwitchLabel
	OpSwitchDefault
	OpJump
	OpJumpIfFalse
	OpSkip
	OpConditional
	OpConstruct
	OpInvokeStatic
	OpInvokeVirtual
	OpParamEnd
	OpReturn
	OpContext
	OpEquals
	OpNotEquals
	OpNew
	OpDelete
	OpThis
	OpStartProfiling
	OpArrayClear
	OpArraySize
	OpArrayResize
	OpArrayFindFirst
	OpArrayFindLast
	OpArrayContains
	OpArrayCount
	OpArrayPush
	OpArrayPop
	OpArrayInsert
	OpArrayRemove
	OpArrayGrow
	OpArrayErase
	OpArrayLast
	OpArrayElement
	OpStaticArraySize
	OpStaticArrayFindFirst
	OpStaticArrayFindLast
	OpStaticArrayContains
	OpStaticArrayCount
	OpStaticArrayLast
	OpStaticArrayElement
	OpRefToBool
	OpWeakRefToBool
	OpEnumToI32
	OpI32ToEnum
	OpDynamicCast
	OpToString
	OpToVariant
	OpFromVariant
	OpVariantIsValid
	OpVariantIsRef
	OpVariantIsArray
	OpVariantToCName
	OpVariantToString
	OpWeakRefToRef
	OpRefToWeakRef
	OpWeakRefNull
	OpAsRef
	OpDeref

	opCount
)

// opNames backs Op.String - a table rather than a long switch so a
// new opcode only needs one line.
var opNames = [opCount]string{
	OpNop: "Nop", OpNull: "Null", OpI32One: "I32One", OpI32Zero: "I32Zero",
	OpI8Const: "I8Const", OpI16Const: "I16Const", OpI32Const: "I32Const", OpI64Const: "I64Const",
	OpU8Const: "U8Const", OpU16Const: "U16Const", OpU32Const: "U32Const", OpU64Const: "U64Const",
	OpF32Const: "F32Const", OpF64Const: "F64Const", OpNameConst: "NameConst",
	OpEnumConst: "EnumConst", OpStringConst: "StringConst", OpTweakDbIdConst: "TweakDbIdConst",
	OpResourceConst: "ResourceConst", OpTrueConst: "TrueConst", OpFalseConst: "FalseConst",
	OpBreakpoint: "Breakpoint", OpAssign: "Assign", OpTarget: "Target",
	OpLocal: "Local", OpParam: "Param", OpObjectField: "ObjectField", OpStructField: "StructField",
	OpExternalVar: "ExternalVar", OpSwitch: "Switch", OpSwitchLabel: "SwitchLabel",
	OpSwitchDefault: "SwitchDefault", OpJump: "Jump", OpJumpIfFalse: "JumpIfFalse", OpSkip: "Skip",
	OpConditional: "Conditional", OpConstruct: "Construct", OpInvokeStatic: "InvokeStatic",
	OpInvokeVirtual: "InvokeVirtual", OpParamEnd: "ParamEnd", OpReturn: "Return", OpContext: "Context",
	OpEquals: "Equals", OpNotEquals: "NotEquals", OpNew: "New", OpDelete: "Delete", OpThis: "This",
	OpStartProfiling: "StartProfiling", OpArrayClear: "ArrayClear", OpArraySize: "ArraySize",
	OpArrayResize: "ArrayResize", OpArrayFindFirst: "ArrayFindFirst", OpArrayFindLast: "ArrayFindLast",
	OpArrayContains: "ArrayContains", OpArrayCount: "ArrayCount", OpArrayPush: "ArrayPush",
	OpArrayPop: "ArrayPop", OpArrayInsert: "ArrayInsert", OpArrayRemove: "ArrayRemove",
	OpArrayGrow: "ArrayGrow", OpArrayErase: "ArrayErase", OpArrayLast: "ArrayLast",
	OpArrayElement: "ArrayElement", OpStaticArraySize: "StaticArraySize",
	OpStaticArrayFindFirst: "StaticArrayFindFirst", OpStaticArrayFindLast: "StaticArrayFindLast",
	OpStaticArrayContains: "StaticArrayContains", OpStaticArrayCount: "StaticArrayCount",
	OpStaticArrayLast: "StaticArrayLast", OpStaticArrayElement: "StaticArrayElement",
	OpRefToBool: "RefToBool", OpWeakRefToBool: "WeakRefToBool", OpEnumToI32: "EnumToI32",
	OpI32ToEnum: "I32ToEnum", OpDynamicCast: "DynamicCast", OpToString: "ToString",
	OpToVariant: "ToVariant", OpFromVariant: "FromVariant", OpVariantIsValid: "VariantIsValid",
	OpVariantIsRef: "VariantIsRef", OpVariantIsArray: "VariantIsArray", OpVariantToCName: "VariantToCName",
	OpVariantToString: "VariantToString", OpWeakRefToRef: "WeakRefToRef", OpRefToWeakRef: "RefToWeakRef",
	OpWeakRefNull: "WeakRefNull", OpAsRef: "AsRef", OpDeref: "Deref",
}

// String renders an Op as its instruction mnemonic, for disassembly
// and error messages.
func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "Unknown"
}

// Instr is one bytecode instruction. Only the fields relevant to Op
// are populated; the rest sit at their zero value.
type Instr struct {
	Op Op

	I8  int8
	I16 int16
	I32 int32
	I64 int64
	U8  uint8
	U16 uint16
	U32 uint32
	U64 uint64
	F32 float32
	F64 float64

	// Index is the generic raw pool-index payload: a string, name,
	// enum-member, local, parameter, field, class or function index,
	// depending on Op. The interpreter wraps it with the right
	// pool.PoolIndex[K] before dereferencing it.
	Index uint32
	// FieldCount is Construct's field-initializer count: the number
	// of values on the stack, evaluated in field-declaration order,
	// to assign into the freshly built struct or instance.
	FieldCount uint8

	// Offset is relative to this instruction's own byte position; it
	// is the jump target for Jump/JumpIfFalse/Skip, and the "next
	// label" target for SwitchLabel.
	Offset int32
	// OffsetB is Conditional's "when true" exit target, and
	// SwitchLabel's "body" target; unused otherwise.
	OffsetB int32
}

// Size reports how many bytes this instruction occupies in a packed
// code stream, used to derive each instruction's absolute byte offset
// (see pkg/pool's Code and pkg/metadata's offset cache).
func (i Instr) Size() uint16 {
	const header = 1 // opcode tag
	switch i.Op {
	case OpI8Const, OpU8Const:
		return header + 1
	case OpI16Const, OpU16Const:
		return header + 2
	case OpI32Const, OpU32Const, OpF32Const, OpLocal, OpParam, OpObjectField, OpStructField,
		OpEnumConst, OpStringConst, OpNameConst, OpTweakDbIdConst, OpResourceConst,
		OpInvokeStatic, OpInvokeVirtual, OpNew, OpDynamicCast,
		OpJump, OpJumpIfFalse, OpSkip:
		return header + 4
	case OpI64Const, OpU64Const, OpF64Const:
		return header + 8
	case OpConditional, OpSwitchLabel:
		return header + 8
	case OpConstruct:
		return header + 1 + 4
	default:
		return header
	}
}
