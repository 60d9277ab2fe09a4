// Package bytecode also provides binary encode/decode for individual
// instructions, used by pkg/bundle to serialize a Function's Code
// alongside the rest of a ConstantPool.
//
// Instruction Binary Layout:
//
//	Opcode (1 byte)
//	Payload (variable, depends on Op):
//	  I8Const/U8Const             -> 1 byte
//	  I16Const/U16Const           -> 2 bytes
//	  I32Const/U32Const/F32Const  -> 4 bytes
//	  I64Const/U64Const/F64Const  -> 8 bytes
//	  Local/Param/ObjectField/
//	  StructField/EnumConst/
//	  StringConst/NameConst/
//	  TweakDbIdConst/ResourceConst/
//	  InvokeStatic/InvokeVirtual/
//	  New/DynamicCast               -> Index, 4 bytes
//	  Jump/JumpIfFalse/Skip         -> Offset, 4 bytes (signed)
//	  Conditional/SwitchLabel       -> Offset + OffsetB, 4 bytes each
//	  Construct                    -> FieldCount (1 byte) + Index (4 bytes)
//	  everything else               -> no payload
//
// This mirrors the length-prefixed, fixed-field binary style the rest
// of the pack's bytecode formats use: a one-byte tag selects the shape
// of what follows, so a reader never needs to backtrack.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeInstr writes a single instruction to w in its binary layout.
func EncodeInstr(w io.Writer, instr Instr) error {
	if err := binary.Write(w, binary.LittleEndian, uint8(instr.Op)); err != nil {
		return fmt.Errorf("bytecode: write opcode: %w", err)
	}

	switch instr.Op {
	case OpI8Const:
		return binary.Write(w, binary.LittleEndian, instr.I8)
	case OpU8Const:
		return binary.Write(w, binary.LittleEndian, instr.U8)
	case OpI16Const:
		return binary.Write(w, binary.LittleEndian, instr.I16)
	case OpU16Const:
		return binary.Write(w, binary.LittleEndian, instr.U16)
	case OpI32Const:
		return binary.Write(w, binary.LittleEndian, instr.I32)
	case OpU32Const:
		return binary.Write(w, binary.LittleEndian, instr.U32)
	case OpF32Const:
		return binary.Write(w, binary.LittleEndian, instr.F32)
	case OpI64Const:
		return binary.Write(w, binary.LittleEndian, instr.I64)
	case OpU64Const:
		return binary.Write(w, binary.LittleEndian, instr.U64)
	case OpF64Const:
		return binary.Write(w, binary.LittleEndian, instr.F64)
	case OpLocal, OpParam, OpObjectField, OpStructField, OpEnumConst, OpStringConst,
		OpNameConst, OpTweakDbIdConst, OpResourceConst, OpInvokeStatic, OpInvokeVirtual,
		OpNew, OpDynamicCast:
		return binary.Write(w, binary.LittleEndian, instr.Index)
	case OpJump, OpJumpIfFalse, OpSkip:
		return binary.Write(w, binary.LittleEndian, instr.Offset)
	case OpConditional, OpSwitchLabel:
		if err := binary.Write(w, binary.LittleEndian, instr.Offset); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, instr.OffsetB)
	case OpConstruct:
		if err := binary.Write(w, binary.LittleEndian, instr.FieldCount); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, instr.Index)
	default:
		return nil
	}
}

// DecodeInstr reads a single instruction from r in the layout written
// by EncodeInstr.
func DecodeInstr(r io.Reader) (Instr, error) {
	var opTag uint8
	if err := binary.Read(r, binary.LittleEndian, &opTag); err != nil {
		return Instr{}, fmt.Errorf("bytecode: read opcode: %w", err)
	}
	instr := Instr{Op: Op(opTag)}

	switch instr.Op {
	case OpI8Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.I8)
	case OpU8Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.U8)
	case OpI16Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.I16)
	case OpU16Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.U16)
	case OpI32Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.I32)
	case OpU32Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.U32)
	case OpF32Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.F32)
	case OpI64Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.I64)
	case OpU64Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.U64)
	case OpF64Const:
		return instr, binary.Read(r, binary.LittleEndian, &instr.F64)
	case OpLocal, OpParam, OpObjectField, OpStructField, OpEnumConst, OpStringConst,
		OpNameConst, OpTweakDbIdConst, OpResourceConst, OpInvokeStatic, OpInvokeVirtual,
		OpNew, OpDynamicCast:
		return instr, binary.Read(r, binary.LittleEndian, &instr.Index)
	case OpJump, OpJumpIfFalse, OpSkip:
		return instr, binary.Read(r, binary.LittleEndian, &instr.Offset)
	case OpConditional, OpSwitchLabel:
		if err := binary.Read(r, binary.LittleEndian, &instr.Offset); err != nil {
			return instr, err
		}
		return instr, binary.Read(r, binary.LittleEndian, &instr.OffsetB)
	case OpConstruct:
		if err := binary.Read(r, binary.LittleEndian, &instr.FieldCount); err != nil {
			return instr, err
		}
		return instr, binary.Read(r, binary.LittleEndian, &instr.Index)
	default:
		return instr, nil
	}
}
