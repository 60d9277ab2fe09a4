package bytecode

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeInstrRoundTrip(t *testing.T) {
	cases := []Instr{
		{Op: OpNop},
		{Op: OpTrueConst},
		{Op: OpI32Const, I32: -7},
		{Op: OpU64Const, U64: 1 << 40},
		{Op: OpF64Const, F64: 3.5},
		{Op: OpLocal, Index: 2},
		{Op: OpInvokeVirtual, Index: 9},
		{Op: OpJumpIfFalse, Offset: -12},
		{Op: OpConditional, Offset: 4, OffsetB: 20},
		{Op: OpSwitchLabel, Offset: 8, OffsetB: 16},
		{Op: OpConstruct, FieldCount: 3, Index: 5},
	}

	for _, original := range cases {
		var buf bytes.Buffer
		if err := EncodeInstr(&buf, original); err != nil {
			t.Fatalf("EncodeInstr(%v) failed: %v", original.Op, err)
		}

		decoded, err := DecodeInstr(&buf)
		if err != nil {
			t.Fatalf("DecodeInstr(%v) failed: %v", original.Op, err)
		}

		if decoded != original {
			t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
		}
	}
}

func TestOpString(t *testing.T) {
	if got := OpReturn.String(); got != "Return" {
		t.Fatalf("OpReturn.String() = %q, want Return", got)
	}
	if got := Op(9999).String(); got != "Unknown" {
		t.Fatalf("out-of-range Op.String() = %q, want Unknown", got)
	}
}

func TestInstrSize(t *testing.T) {
	cases := []struct {
		instr Instr
		want  uint16
	}{
		{Instr{Op: OpNop}, 1},
		{Instr{Op: OpI8Const}, 2},
		{Instr{Op: OpI32Const}, 5},
		{Instr{Op: OpF64Const}, 9},
		{Instr{Op: OpConditional}, 9},
		{Instr{Op: OpConstruct}, 6},
	}
	for _, c := range cases {
		if got := c.instr.Size(); got != c.want {
			t.Fatalf("%v.Size() = %d, want %d", c.instr.Op, got, c.want)
		}
	}
}
