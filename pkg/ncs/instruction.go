package ncs

import (
	"fmt"
	"strconv"

	"github.com/NickHugi/PyKotor-sub008/pkg/binio"
	"github.com/pkg/errors"
)

// Instruction is one decoded instruction. Operand fields are used according
// to the opcode:
//
//	CPDOWNSP, CPTOPSP, CPDOWNBP, CPTOPBP  Int = stack offset, Size = bytes
//	CONST                                 Int, Float or String by qualifier
//	ACTION                                Int = routine, Size = argument count
//	MOVSP, DECISP, INCISP, DECIBP, INCIBP Int
//	JMP, JSR, JZ, JNZ                     Int = displacement from Offset
//	DESTRUCT                              Size, Int = offset, Keep
//	STORESTATE                            Int = BP bytes, Size = SP bytes
//	EQUAL, NEQUAL with QualStructStruct   Size
type Instruction struct {
	Offset int // position in the file; set by Decode and Assemble
	Op     Opcode
	Type   Qualifier
	Int    int32
	Size   int32
	Keep   int32
	Float  float32
	Str    string

	// Label names the jump target for the assembler, which resolves it
	// into Int.
	Label string
}

// Len returns the encoded size of the instruction in bytes.
func (ins Instruction) Len() int {
	switch opTable[ins.Op].layout {
	case layoutStackCopy:
		return 8
	case layoutConst:
		if ins.Type == QualString {
			return 4 + len(ins.Str)
		}
		return 6
	case layoutAction:
		return 5
	case layoutInt, layoutJump:
		return 6
	case layoutDestruct:
		return 8
	case layoutStoreState:
		return 10
	case layoutCompare:
		if ins.Type == QualStructStruct {
			return 4
		}
	}
	return 2
}

// Target returns the absolute offset a jump lands on.
func (ins Instruction) Target() int { return ins.Offset + int(ins.Int) }

// Mnemonic returns the assembler name, with the type suffix for typed
// instructions (ADDII, CONSTS, RSADDO).
func (ins Instruction) Mnemonic() string {
	info, ok := opTable[ins.Op]
	if !ok {
		return ins.Op.String()
	}
	if info.typed {
		return info.name + qualSuffix[ins.Type]
	}
	return info.name
}

// Operands formats the operands for a listing. Jumps show their absolute
// target.
func (ins Instruction) Operands() string {
	switch opTable[ins.Op].layout {
	case layoutStackCopy:
		return fmt.Sprintf("%d, %d", ins.Int, ins.Size)
	case layoutConst:
		switch ins.Type {
		case QualFloat:
			return strconv.FormatFloat(float64(ins.Float), 'g', -1, 32)
		case QualString:
			return strconv.Quote(ins.Str)
		}
		return strconv.Itoa(int(ins.Int))
	case layoutAction:
		return fmt.Sprintf("%d, %d", ins.Int, ins.Size)
	case layoutInt:
		return strconv.Itoa(int(ins.Int))
	case layoutJump:
		if ins.Label != "" {
			return ins.Label
		}
		return fmt.Sprintf("%08X", ins.Target())
	case layoutDestruct:
		return fmt.Sprintf("%d, %d, %d", ins.Size, ins.Int, ins.Keep)
	case layoutStoreState:
		return fmt.Sprintf("%d, %d", ins.Int, ins.Size)
	case layoutCompare:
		if ins.Type == QualStructStruct {
			return strconv.Itoa(int(ins.Size))
		}
	}
	return ""
}

func (ins Instruction) String() string {
	if ops := ins.Operands(); ops != "" {
		return ins.Mnemonic() + " " + ops
	}
	return ins.Mnemonic()
}

func (ins Instruction) encode(w *binio.Writer) error {
	info, ok := opTable[ins.Op]
	if !ok {
		return errors.Wrapf(ErrUnknownOpcode, "encode opcode 0x%02X", byte(ins.Op))
	}
	w.WriteUint8(byte(ins.Op))
	w.WriteUint8(byte(ins.Type))
	switch info.layout {
	case layoutStackCopy:
		w.WriteInt32(ins.Int, binio.BE)
		w.WriteUint16(uint16(ins.Size), binio.BE)
	case layoutConst:
		switch ins.Type {
		case QualInt, QualObject:
			w.WriteInt32(ins.Int, binio.BE)
		case QualFloat:
			w.WriteFloat32(ins.Float, binio.BE)
		case QualString:
			if len(ins.Str) > 0xFFFF {
				return errors.Errorf("string constant of %d bytes at offset %d", len(ins.Str), ins.Offset)
			}
			w.WriteUint16(uint16(len(ins.Str)), binio.BE)
			w.WriteString(ins.Str)
		default:
			return errors.Errorf("CONST with qualifier %s at offset %d", ins.Type, ins.Offset)
		}
	case layoutAction:
		w.WriteUint16(uint16(ins.Int), binio.BE)
		w.WriteUint8(uint8(ins.Size))
	case layoutInt, layoutJump:
		w.WriteInt32(ins.Int, binio.BE)
	case layoutDestruct:
		w.WriteUint16(uint16(ins.Size), binio.BE)
		w.WriteInt16(int16(ins.Int), binio.BE)
		w.WriteUint16(uint16(ins.Keep), binio.BE)
	case layoutStoreState:
		w.WriteUint32(uint32(ins.Int), binio.BE)
		w.WriteUint32(uint32(ins.Size), binio.BE)
	case layoutCompare:
		if ins.Type == QualStructStruct {
			w.WriteUint16(uint16(ins.Size), binio.BE)
		}
	}
	return nil
}

// decodeInstruction reads one instruction at the reader position.
func decodeInstruction(r *binio.Reader) (Instruction, error) {
	ins := Instruction{Offset: r.Pos()}
	op, err := r.Uint8()
	if err != nil {
		return ins, err
	}
	ins.Op = Opcode(op)
	info, ok := opTable[ins.Op]
	if !ok {
		return ins, errors.Wrapf(ErrUnknownOpcode, "opcode 0x%02X at offset %d", op, ins.Offset)
	}
	q, err := r.Uint8()
	if err != nil {
		return ins, err
	}
	ins.Type = Qualifier(q)

	switch info.layout {
	case layoutStackCopy:
		if ins.Int, err = r.Int32(binio.BE); err != nil {
			return ins, err
		}
		size, err := r.Uint16(binio.BE)
		ins.Size = int32(size)
		return ins, err

	case layoutConst:
		switch ins.Type {
		case QualInt, QualObject:
			ins.Int, err = r.Int32(binio.BE)
		case QualFloat:
			ins.Float, err = r.Float32(binio.BE)
		case QualString:
			ins.Str, err = r.PrefixedString(2, binio.BE)
		default:
			return ins, errors.Wrapf(ErrUnknownOpcode, "CONST with qualifier %s at offset %d", ins.Type, ins.Offset)
		}
		return ins, err

	case layoutAction:
		routine, err := r.Uint16(binio.BE)
		if err != nil {
			return ins, err
		}
		argc, err := r.Uint8()
		ins.Int, ins.Size = int32(routine), int32(argc)
		return ins, err

	case layoutInt, layoutJump:
		ins.Int, err = r.Int32(binio.BE)
		return ins, err

	case layoutDestruct:
		size, err := r.Uint16(binio.BE)
		if err != nil {
			return ins, err
		}
		off, err := r.Int16(binio.BE)
		if err != nil {
			return ins, err
		}
		keep, err := r.Uint16(binio.BE)
		ins.Size, ins.Int, ins.Keep = int32(size), int32(off), int32(keep)
		return ins, err

	case layoutStoreState:
		bp, err := r.Uint32(binio.BE)
		if err != nil {
			return ins, err
		}
		sp, err := r.Uint32(binio.BE)
		ins.Int, ins.Size = int32(bp), int32(sp)
		return ins, err

	case layoutCompare:
		if ins.Type == QualStructStruct {
			size, err := r.Uint16(binio.BE)
			ins.Size = int32(size)
			return ins, err
		}
	}
	return ins, nil
}
