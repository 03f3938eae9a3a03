package ncs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Assembler collects instructions whose jump targets may be symbolic labels
// bound later, then resolves every label in one backpatch pass.
type Assembler struct {
	code    []Instruction
	labels  map[string]int // label -> index of the instruction it precedes
	offsets map[string]int
	serial  int
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

// Emit appends ins and returns its index.
func (a *Assembler) Emit(ins Instruction) int {
	a.code = append(a.code, ins)
	return len(a.code) - 1
}

// Jump appends a jump-class instruction aimed at label.
func (a *Assembler) Jump(op Opcode, label string) int {
	return a.Emit(Instruction{Op: op, Label: label})
}

// NewLabel returns a label name not used before in this assembler.
func (a *Assembler) NewLabel(prefix string) string {
	a.serial++
	return fmt.Sprintf("%s_%d", prefix, a.serial)
}

// Bind attaches label to the next instruction emitted.
func (a *Assembler) Bind(label string) error {
	if _, dup := a.labels[label]; dup {
		return errors.Errorf("label %s bound twice", label)
	}
	a.labels[label] = len(a.code)
	return nil
}

// Len returns the number of instructions emitted.
func (a *Assembler) Len() int { return len(a.code) }

// Last returns a pointer to the most recent instruction, or nil.
func (a *Assembler) Last() *Instruction {
	if len(a.code) == 0 {
		return nil
	}
	return &a.code[len(a.code)-1]
}

// Assemble lays out the code and rewrites every labelled jump with the
// displacement to its target. Labels stay on the instructions for listings.
func (a *Assembler) Assemble() (*Program, error) {
	p := &Program{Code: a.code}
	p.Layout()

	a.offsets = make(map[string]int, len(a.labels))
	for name, idx := range a.labels {
		if idx == len(p.Code) {
			a.offsets[name] = p.End()
		} else {
			a.offsets[name] = p.Code[idx].Offset
		}
	}
	for i := range p.Code {
		ins := &p.Code[i]
		if ins.Label == "" {
			continue
		}
		if !ins.Op.IsJump() {
			return nil, errors.Errorf("%s at offset %d cannot take label %s", ins.Op, ins.Offset, ins.Label)
		}
		target, ok := a.offsets[ins.Label]
		if !ok {
			return nil, errors.Errorf("undefined label %s at offset %d", ins.Label, ins.Offset)
		}
		ins.Int = int32(target - ins.Offset)
	}
	return p, nil
}

// Offset returns where label landed. It is valid after Assemble.
func (a *Assembler) Offset(label string) (int, bool) {
	off, ok := a.offsets[label]
	return off, ok
}
