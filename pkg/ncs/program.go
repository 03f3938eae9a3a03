package ncs

import (
	"sort"

	"github.com/NickHugi/PyKotor-sub008/pkg/binio"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownOpcode is returned when an opcode or CONST qualifier is not
	// in the instruction table. Decoding stops there, since the operand
	// width of the unknown instruction cannot be known.
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrCorrupt       = errors.New("corrupt bytecode")
)

const (
	Signature  = "NCS V1.0"
	HeaderSize = 13

	// programMarker precedes the file size in the header.
	programMarker = 0x42
)

// Program is a decoded instruction stream.
type Program struct {
	Code []Instruction
}

// Index returns the position in Code of the instruction at offset.
func (p *Program) Index(offset int) (int, bool) {
	i := sort.Search(len(p.Code), func(i int) bool { return p.Code[i].Offset >= offset })
	if i < len(p.Code) && p.Code[i].Offset == offset {
		return i, true
	}
	return 0, false
}

// End returns the offset just past the last instruction.
func (p *Program) End() int {
	if len(p.Code) == 0 {
		return HeaderSize
	}
	last := p.Code[len(p.Code)-1]
	return last.Offset + last.Len()
}

// Layout assigns Offset to every instruction from their encoded sizes.
func (p *Program) Layout() {
	off := HeaderSize
	for i := range p.Code {
		p.Code[i].Offset = off
		off += p.Code[i].Len()
	}
}

// Decode disassembles an NCS file. When decoding stops early, on an unknown
// opcode or a truncated operand, the instructions read so far are returned
// together with the error.
func Decode(data []byte) (*Program, error) {
	r := binio.NewReader(data)
	sig, err := r.FixedString(len(Signature))
	if err != nil || sig != Signature {
		return nil, errors.Wrap(ErrCorrupt, "bad signature")
	}
	marker, err := r.Uint8()
	if err != nil || marker != programMarker {
		return nil, errors.Wrap(ErrCorrupt, "missing program marker")
	}
	size, err := r.Uint32(binio.BE)
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, "truncated header")
	}
	if size < HeaderSize || int(size) > len(data) {
		return nil, errors.Wrapf(ErrCorrupt, "program size %d, file is %d bytes", size, len(data))
	}

	code := binio.NewReader(data[:size])
	if err := code.Seek(HeaderSize); err != nil {
		return nil, err
	}
	p := &Program{}
	for code.Remaining() > 0 {
		ins, err := decodeInstruction(code)
		if err != nil {
			if errors.Is(err, binio.ErrTruncatedData) {
				err = errors.Wrapf(ErrCorrupt, "instruction at offset %d: %v", ins.Offset, err)
			}
			return p, err
		}
		p.Code = append(p.Code, ins)
	}
	return p, nil
}

// Encode assembles p into an NCS file. Offsets are recomputed; jump
// displacements are written as they are.
func (p *Program) Encode() ([]byte, error) {
	p.Layout()
	w := binio.NewWriter(p.End())
	w.WriteString(Signature)
	w.WriteUint8(programMarker)
	w.WriteUint32(0, binio.BE)
	for _, ins := range p.Code {
		if err := ins.encode(w); err != nil {
			return nil, err
		}
	}
	w.PutUint32At(len(Signature)+1, uint32(w.Len()), binio.BE)
	return w.Bytes(), nil
}
