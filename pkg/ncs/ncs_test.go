package ncs

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemble(t *testing.T, build func(a *Assembler)) *Program {
	t.Helper()
	a := NewAssembler()
	build(a)
	p, err := a.Assemble()
	require.NoError(t, err)
	return p
}

func TestEncodeDecode(t *testing.T) {
	p := assemble(t, func(a *Assembler) {
		a.Emit(Instruction{Op: OpRSAdd, Type: QualInt})
		a.Emit(Instruction{Op: OpConst, Type: QualInt, Int: -7})
		a.Emit(Instruction{Op: OpConst, Type: QualFloat, Float: 2.5})
		a.Emit(Instruction{Op: OpConst, Type: QualString, Str: "hello"})
		a.Emit(Instruction{Op: OpConst, Type: QualObject, Int: 1})
		a.Emit(Instruction{Op: OpCPDownSP, Type: QualStack, Int: -8, Size: 4})
		a.Emit(Instruction{Op: OpCPTopSP, Type: QualStack, Int: -4, Size: 4})
		a.Emit(Instruction{Op: OpAction, Int: 1, Size: 1})
		a.Emit(Instruction{Op: OpEqual, Type: QualStructStruct, Size: 12})
		a.Emit(Instruction{Op: OpAdd, Type: QualIntInt})
		a.Emit(Instruction{Op: OpDestruct, Type: QualStack, Size: 12, Int: 4, Keep: 4})
		a.Emit(Instruction{Op: OpStoreState, Type: QualEffect, Int: 8, Size: 16})
		a.Jump(OpJZ, "end")
		a.Emit(Instruction{Op: OpMovSP, Int: -4})
		require.NoError(t, a.Bind("end"))
		a.Emit(Instruction{Op: OpRetn})
	})

	data, err := p.Encode()
	require.NoError(t, err)
	assert.Equal(t, Signature, string(data[:8]))
	assert.Equal(t, byte(0x42), data[8])
	assert.Equal(t, uint32(len(data)), binary.BigEndian.Uint32(data[9:13]))

	got, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, got.Code, len(p.Code))
	for i, ins := range p.Code {
		want := ins
		want.Label = ""
		assert.Equal(t, want, got.Code[i], "instruction %d", i)
	}

	t.Run("BigEndianOperands", func(t *testing.T) {
		// CONSTI -7 is the second instruction, after the two byte RSADDI.
		assert.Equal(t, []byte{0x04, 0x03, 0xFF, 0xFF, 0xFF, 0xF9}, data[15:21])
	})
}

func TestAssembleBackpatch(t *testing.T) {
	p := assemble(t, func(a *Assembler) {
		require.NoError(t, a.Bind("top"))
		a.Emit(Instruction{Op: OpConst, Type: QualInt, Int: 1})
		a.Jump(OpJZ, "out")
		a.Jump(OpJmp, "top")
		require.NoError(t, a.Bind("out"))
	})
	require.Len(t, p.Code, 3)
	jz, jmp := p.Code[1], p.Code[2]
	assert.Equal(t, p.End(), jz.Target())
	assert.Equal(t, HeaderSize, jmp.Target())
	assert.Equal(t, int32(-12), jmp.Int)

	t.Run("Undefined", func(t *testing.T) {
		a := NewAssembler()
		a.Jump(OpJmp, "nowhere")
		_, err := a.Assemble()
		assert.ErrorContains(t, err, "undefined label nowhere")
	})

	t.Run("DoubleBind", func(t *testing.T) {
		a := NewAssembler()
		require.NoError(t, a.Bind("x"))
		assert.Error(t, a.Bind("x"))
	})

	t.Run("NewLabelUnique", func(t *testing.T) {
		a := NewAssembler()
		assert.NotEqual(t, a.NewLabel("L"), a.NewLabel("L"))
	})
}

func TestDecodeErrors(t *testing.T) {
	valid, err := (&Program{Code: []Instruction{
		{Op: OpConst, Type: QualInt, Int: 3},
		{Op: OpRetn},
	}}).Encode()
	require.NoError(t, err)

	t.Run("BadSignature", func(t *testing.T) {
		_, err := Decode([]byte("NCS V2.0\x42\x00\x00\x00\x0d"))
		assert.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("SizeBeyondFile", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		binary.BigEndian.PutUint32(data[9:], uint32(len(data)+1))
		_, err := Decode(data)
		assert.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("TruncatedOperand", func(t *testing.T) {
		data := append([]byte(nil), valid[:HeaderSize+4]...)
		binary.BigEndian.PutUint32(data[9:], uint32(len(data)))
		p, err := Decode(data)
		assert.True(t, errors.Is(err, ErrCorrupt))
		assert.Empty(t, p.Code)
	})

	t.Run("UnknownOpcodeKeepsPrefix", func(t *testing.T) {
		data := append([]byte(nil), valid[:HeaderSize+6]...)
		data = append(data, 0xEE, 0x00)
		data = append(data, valid[HeaderSize+6:]...)
		binary.BigEndian.PutUint32(data[9:], uint32(len(data)))

		p, err := Decode(data)
		assert.True(t, errors.Is(err, ErrUnknownOpcode))
		assert.ErrorContains(t, err, "offset 19")
		require.Len(t, p.Code, 1)
		assert.Equal(t, int32(3), p.Code[0].Int)
	})

	t.Run("UnknownConstQualifier", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[HeaderSize+1] = byte(QualEffect)
		_, err := Decode(data)
		assert.True(t, errors.Is(err, ErrUnknownOpcode))
	})
}

func TestListing(t *testing.T) {
	p := assemble(t, func(a *Assembler) {
		a.Emit(Instruction{Op: OpConst, Type: QualString, Str: "hi"})
		a.Emit(Instruction{Op: OpAction, Int: 1, Size: 1})
		a.Jump(OpJmp, "end")
		require.NoError(t, a.Bind("end"))
		a.Emit(Instruction{Op: OpRetn})
	})
	var sb strings.Builder
	require.NoError(t, p.WriteListing(&sb, WithRoutineNames(nss.DefaultActions())))
	out := sb.String()

	assert.Contains(t, out, "CONSTS")
	assert.Contains(t, out, `"hi"`)
	assert.Contains(t, out, "; PrintString")
	assert.Contains(t, out, "JMP")
	assert.Contains(t, out, "loc_0000001E:\n")
}

func TestMnemonic(t *testing.T) {
	assert.Equal(t, "ADDII", Instruction{Op: OpAdd, Type: QualIntInt}.Mnemonic())
	assert.Equal(t, "RSADDO", Instruction{Op: OpRSAdd, Type: QualObject}.Mnemonic())
	assert.Equal(t, "EQUALTT", Instruction{Op: OpEqual, Type: QualStructStruct}.Mnemonic())
	assert.Equal(t, "MOVSP", Instruction{Op: OpMovSP}.Mnemonic())
	assert.Equal(t, "OP_EE", Opcode(0xEE).String())

	q, ok := QualLocation.Pair()
	assert.True(t, ok)
	assert.Equal(t, QualLocationLocation, q)
}
