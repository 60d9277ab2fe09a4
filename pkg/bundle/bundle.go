// Package bundle encodes and decodes a pool.ConstantPool to a single
// binary file - the ".redc" format a built script would be shipped
// and loaded as, the compiled counterpart to the pool a compiler
// front end (out of scope for this module) would otherwise hand the
// VM in memory.
//
// The layout is the same length-prefixed, fixed-field style
// pkg/bytecode's own EncodeInstr/DecodeInstr use: a tag byte selects
// the shape of what follows, so Decode never needs to backtrack or
// buffer the whole stream.
package bundle

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/oxvm/oxvm/pkg/bytecode"
	"github.com/oxvm/oxvm/pkg/pool"
)

// Magic identifies a bundle file; Version guards against a future,
// incompatible layout change.
const (
	Magic   = "REDC"
	Version = uint8(1)
)

// definition kind tags, written ahead of each definition's payload.
const (
	tagClass = iota
	tagFunction
	tagField
	tagLocal
	tagParameter
	tagEnum
	tagEnumMember
	tagType
)

// Encode writes p to w in the bundle binary format.
func Encode(w io.Writer, p *pool.ConstantPool) error {
	if _, err := io.WriteString(w, Magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, Version); err != nil {
		return err
	}

	for _, table := range [][]string{p.Strings, p.Names, p.TweakDbIds, p.Resources} {
		if err := writeStringTable(w, table); err != nil {
			return err
		}
	}

	entries := p.Definitions()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := writeRaw(w, entry.Def.Name.Value()); err != nil {
			return err
		}
		if err := writeRaw(w, entry.Def.Parent.Value()); err != nil {
			return err
		}
		if err := encodeDefValue(w, entry.Def.Value); err != nil {
			return fmt.Errorf("bundle: encode definition %s: %w", entry.Index, err)
		}
	}
	return nil
}

// Decode reads a bundle written by Encode and reconstructs the pool.
// Definitions are appended in the exact order they were written, so
// the PoolIndex values recorded inside them (e.g. a Class's Fields)
// resolve to the same slots they did in the original pool.
func Decode(r io.Reader) (*pool.ConstantPool, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("bundle: read magic: %w", err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("bundle: bad magic %q", magic)
	}
	var version uint8
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("bundle: read version: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("bundle: unsupported version %d", version)
	}

	p := pool.New()
	for _, table := range []*[]string{&p.Strings, &p.Names, &p.TweakDbIds, &p.Resources} {
		strs, err := readStringTable(r)
		if err != nil {
			return nil, err
		}
		*table = strs
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("bundle: read definition count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		var rawName, rawParent uint32
		if err := binary.Read(r, binary.LittleEndian, &rawName); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &rawParent); err != nil {
			return nil, err
		}
		val, err := decodeDefValue(r)
		if err != nil {
			return nil, fmt.Errorf("bundle: decode definition %d: %w", i, err)
		}
		p.AddDefinition(pool.AnyDefinition{
			Name:   pool.NewIndex[pool.Name](rawName),
			Parent: pool.NewIndex[pool.Definition](rawParent),
			Value:  val,
		})
	}
	return p, nil
}

func writeStringTable(w io.Writer, table []string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(table))); err != nil {
		return err
	}
	for _, s := range table {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStringTable(r io.Reader) ([]string, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	out := make([]string, count)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeRaw(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readRaw(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeIndexSlice[K any](w io.Writer, idxs []pool.PoolIndex[K]) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(idxs))); err != nil {
		return err
	}
	for _, idx := range idxs {
		if err := writeRaw(w, idx.Value()); err != nil {
			return err
		}
	}
	return nil
}

func readIndexSlice[K any](r io.Reader) ([]pool.PoolIndex[K], error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]pool.PoolIndex[K], count)
	for i := range out {
		raw, err := readRaw(r)
		if err != nil {
			return nil, err
		}
		out[i] = pool.NewIndex[K](raw)
	}
	return out, nil
}

func encodeDefValue(w io.Writer, value any) error {
	switch v := value.(type) {
	case *pool.Class:
		if err := binary.Write(w, binary.LittleEndian, uint8(tagClass)); err != nil {
			return err
		}
		if err := writeRaw(w, v.Base.Value()); err != nil {
			return err
		}
		if err := writeIndexSlice(w, v.Fields); err != nil {
			return err
		}
		if err := writeIndexSlice(w, v.Functions); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, boolByte(v.Flags.Struct))

	case *pool.Function:
		if err := binary.Write(w, binary.LittleEndian, uint8(tagFunction)); err != nil {
			return err
		}
		if err := writeIndexSlice(w, v.Parameters); err != nil {
			return err
		}
		if err := writeIndexSlice(w, v.Locals); err != nil {
			return err
		}
		flags := boolByte(v.Flags.Native)<<2 | boolByte(v.Flags.Final)<<1 | boolByte(v.Flags.Static)
		if err := binary.Write(w, binary.LittleEndian, flags); err != nil {
			return err
		}
		if err := writeRaw(w, v.ReturnType.Value()); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(v.Visibility)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(v.Code))); err != nil {
			return err
		}
		for _, entry := range v.Code {
			if err := binary.Write(w, binary.LittleEndian, entry.Offset); err != nil {
				return err
			}
			if err := bytecode.EncodeInstr(w, entry.Instr); err != nil {
				return err
			}
		}
		return nil

	case *pool.Field:
		if err := binary.Write(w, binary.LittleEndian, uint8(tagField)); err != nil {
			return err
		}
		return writeRaw(w, v.Type.Value())

	case *pool.Local:
		if err := binary.Write(w, binary.LittleEndian, uint8(tagLocal)); err != nil {
			return err
		}
		return writeRaw(w, v.Type.Value())

	case *pool.Parameter:
		if err := binary.Write(w, binary.LittleEndian, uint8(tagParameter)); err != nil {
			return err
		}
		if err := writeRaw(w, v.Type.Value()); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, boolByte(v.Flags.Out))

	case *pool.Enum:
		if err := binary.Write(w, binary.LittleEndian, uint8(tagEnum)); err != nil {
			return err
		}
		return writeIndexSlice(w, v.Members)

	case *pool.EnumMember:
		if err := binary.Write(w, binary.LittleEndian, uint8(tagEnumMember)); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.Value)

	case *pool.Type:
		if err := binary.Write(w, binary.LittleEndian, uint8(tagType)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(v.Kind)); err != nil {
			return err
		}
		if err := writeRaw(w, v.Inner.Value()); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.Size)

	default:
		return fmt.Errorf("bundle: unknown definition value type %T", value)
	}
}

func decodeDefValue(r io.Reader) (any, error) {
	var tag uint8
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return nil, err
	}
	switch tag {
	case tagClass:
		base, err := readRaw(r)
		if err != nil {
			return nil, err
		}
		fields, err := readIndexSlice[pool.Field](r)
		if err != nil {
			return nil, err
		}
		funcs, err := readIndexSlice[pool.Function](r)
		if err != nil {
			return nil, err
		}
		var structByte uint8
		if err := binary.Read(r, binary.LittleEndian, &structByte); err != nil {
			return nil, err
		}
		return &pool.Class{
			Base:      pool.NewIndex[pool.Class](base),
			Fields:    fields,
			Functions: funcs,
			Flags:     pool.ClassFlags{Struct: structByte != 0},
		}, nil

	case tagFunction:
		params, err := readIndexSlice[pool.Parameter](r)
		if err != nil {
			return nil, err
		}
		locals, err := readIndexSlice[pool.Local](r)
		if err != nil {
			return nil, err
		}
		var flagByte uint8
		if err := binary.Read(r, binary.LittleEndian, &flagByte); err != nil {
			return nil, err
		}
		retType, err := readRaw(r)
		if err != nil {
			return nil, err
		}
		var vis uint8
		if err := binary.Read(r, binary.LittleEndian, &vis); err != nil {
			return nil, err
		}
		var codeLen uint32
		if err := binary.Read(r, binary.LittleEndian, &codeLen); err != nil {
			return nil, err
		}
		code := make(pool.Code, codeLen)
		for i := range code {
			var offset uint16
			if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
				return nil, err
			}
			instr, err := bytecode.DecodeInstr(r)
			if err != nil {
				return nil, err
			}
			code[i] = pool.CodeEntry{Offset: offset, Instr: instr}
		}
		return &pool.Function{
			Parameters: params,
			Locals:     locals,
			Code:       code,
			Flags:      pool.FunctionFlags{Native: flagByte&0b100 != 0, Final: flagByte&0b010 != 0, Static: flagByte&0b001 != 0},
			ReturnType: pool.NewIndex[pool.Type](retType),
			Visibility: pool.Visibility(vis),
		}, nil

	case tagField:
		typ, err := readRaw(r)
		if err != nil {
			return nil, err
		}
		return &pool.Field{Type: pool.NewIndex[pool.Type](typ)}, nil

	case tagLocal:
		typ, err := readRaw(r)
		if err != nil {
			return nil, err
		}
		return &pool.Local{Type: pool.NewIndex[pool.Type](typ)}, nil

	case tagParameter:
		typ, err := readRaw(r)
		if err != nil {
			return nil, err
		}
		var outByte uint8
		if err := binary.Read(r, binary.LittleEndian, &outByte); err != nil {
			return nil, err
		}
		return &pool.Parameter{Type: pool.NewIndex[pool.Type](typ), Flags: pool.ParameterFlags{Out: outByte != 0}}, nil

	case tagEnum:
		members, err := readIndexSlice[pool.EnumMember](r)
		if err != nil {
			return nil, err
		}
		return &pool.Enum{Members: members}, nil

	case tagEnumMember:
		var v int64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		return &pool.EnumMember{Value: v}, nil

	case tagType:
		var kind uint8
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return nil, err
		}
		inner, err := readRaw(r)
		if err != nil {
			return nil, err
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		return &pool.Type{Kind: pool.TypeKind(kind), Inner: pool.NewIndex[pool.Type](inner), Size: size}, nil

	default:
		return nil, fmt.Errorf("bundle: unknown definition tag %d", tag)
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
