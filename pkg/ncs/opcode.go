// Package ncs encodes and decodes compiled script bytecode (NCS V1.0).
//
// A program is a flat instruction stream after a 13 byte header. Every
// instruction is an opcode byte, a type qualifier byte and zero or more
// big-endian operands whose layout depends on the opcode. Jump operands are
// relative to the start of the jumping instruction.
package ncs

import "fmt"

// Opcode is the first byte of an instruction.
type Opcode byte

const (
	OpCPDownSP      Opcode = 0x01
	OpRSAdd         Opcode = 0x02
	OpCPTopSP       Opcode = 0x03
	OpConst         Opcode = 0x04
	OpAction        Opcode = 0x05
	OpLogAnd        Opcode = 0x06
	OpLogOr         Opcode = 0x07
	OpIncOr         Opcode = 0x08
	OpExcOr         Opcode = 0x09
	OpBoolAnd       Opcode = 0x0A
	OpEqual         Opcode = 0x0B
	OpNEqual        Opcode = 0x0C
	OpGEq           Opcode = 0x0D
	OpGT            Opcode = 0x0E
	OpLT            Opcode = 0x0F
	OpLEq           Opcode = 0x10
	OpShLeft        Opcode = 0x11
	OpShRight       Opcode = 0x12
	OpUShRight      Opcode = 0x13
	OpAdd           Opcode = 0x14
	OpSub           Opcode = 0x15
	OpMul           Opcode = 0x16
	OpDiv           Opcode = 0x17
	OpMod           Opcode = 0x18
	OpNeg           Opcode = 0x19
	OpComp          Opcode = 0x1A
	OpMovSP         Opcode = 0x1B
	OpStoreStateAll Opcode = 0x1C
	OpJmp           Opcode = 0x1D
	OpJSR           Opcode = 0x1E
	OpJZ            Opcode = 0x1F
	OpRetn          Opcode = 0x20
	OpDestruct      Opcode = 0x21
	OpNot           Opcode = 0x22
	OpDecISP        Opcode = 0x23
	OpIncISP        Opcode = 0x24
	OpJNZ           Opcode = 0x25
	OpCPDownBP      Opcode = 0x26
	OpCPTopBP       Opcode = 0x27
	OpDecIBP        Opcode = 0x28
	OpIncIBP        Opcode = 0x29
	OpSaveBP        Opcode = 0x2A
	OpRestoreBP     Opcode = 0x2B
	OpStoreState    Opcode = 0x2C
	OpNop           Opcode = 0x2D
)

// Qualifier is the second byte of an instruction: the operand types of
// typed instructions, or a fixed marker for the rest.
type Qualifier byte

const (
	QualNone  Qualifier = 0x00
	QualStack Qualifier = 0x01

	QualInt    Qualifier = 0x03
	QualFloat  Qualifier = 0x04
	QualString Qualifier = 0x05
	QualObject Qualifier = 0x06

	QualEffect   Qualifier = 0x10
	QualEvent    Qualifier = 0x11
	QualLocation Qualifier = 0x12
	QualTalent   Qualifier = 0x13

	QualIntInt       Qualifier = 0x20
	QualFloatFloat   Qualifier = 0x21
	QualObjectObject Qualifier = 0x22
	QualStringString Qualifier = 0x23
	QualStructStruct Qualifier = 0x24
	QualIntFloat     Qualifier = 0x25
	QualFloatInt     Qualifier = 0x26

	QualEffectEffect     Qualifier = 0x30
	QualEventEvent       Qualifier = 0x31
	QualLocationLocation Qualifier = 0x32
	QualTalentTalent     Qualifier = 0x33

	QualVectorVector Qualifier = 0x3A
	QualVectorFloat  Qualifier = 0x3B
	QualFloatVector  Qualifier = 0x3C
)

var qualSuffix = map[Qualifier]string{
	QualInt: "I", QualFloat: "F", QualString: "S", QualObject: "O",
	QualEffect: "EFF", QualEvent: "EVT", QualLocation: "LOC", QualTalent: "TAL",
	QualIntInt: "II", QualFloatFloat: "FF", QualObjectObject: "OO", QualStringString: "SS",
	QualStructStruct: "TT", QualIntFloat: "IF", QualFloatInt: "FI",
	QualEffectEffect: "EFFEFF", QualEventEvent: "EVTEVT", QualLocationLocation: "LOCLOC", QualTalentTalent: "TALTAL",
	QualVectorVector: "VV", QualVectorFloat: "VF", QualFloatVector: "FV",
}

// Engine structure qualifiers are the unary engine qualifier plus this
// offset, so QualEffect+binaryEngine == QualEffectEffect.
const binaryEngine = QualEffectEffect - QualEffect

// Pair returns the binary qualifier for two operands of the same type, or
// false when no such qualifier exists.
func (q Qualifier) Pair() (Qualifier, bool) {
	switch q {
	case QualInt:
		return QualIntInt, true
	case QualFloat:
		return QualFloatFloat, true
	case QualString:
		return QualStringString, true
	case QualObject:
		return QualObjectObject, true
	case QualEffect, QualEvent, QualLocation, QualTalent:
		return q + binaryEngine, true
	}
	return 0, false
}

func (q Qualifier) String() string {
	if s, ok := qualSuffix[q]; ok {
		return s
	}
	return fmt.Sprintf("0x%02X", byte(q))
}

// layout is the operand encoding that follows the opcode and qualifier.
type layout int

const (
	layoutNone       layout = iota
	layoutStackCopy         // int32 offset, uint16 size
	layoutConst             // value typed by the qualifier
	layoutAction            // uint16 routine, uint8 argument count
	layoutInt               // int32
	layoutJump              // int32 displacement
	layoutDestruct          // uint16 size, int16 offset, uint16 size kept
	layoutStoreState        // uint32 BP bytes, uint32 SP bytes
	layoutCompare           // uint16 size, only for QualStructStruct
)

type opInfo struct {
	name   string
	layout layout
	typed  bool // the mnemonic carries the qualifier suffix
}

var opTable = map[Opcode]opInfo{
	OpCPDownSP:      {"CPDOWNSP", layoutStackCopy, false},
	OpRSAdd:         {"RSADD", layoutNone, true},
	OpCPTopSP:       {"CPTOPSP", layoutStackCopy, false},
	OpConst:         {"CONST", layoutConst, true},
	OpAction:        {"ACTION", layoutAction, false},
	OpLogAnd:        {"LOGAND", layoutNone, true},
	OpLogOr:         {"LOGOR", layoutNone, true},
	OpIncOr:         {"INCOR", layoutNone, true},
	OpExcOr:         {"EXCOR", layoutNone, true},
	OpBoolAnd:       {"BOOLAND", layoutNone, true},
	OpEqual:         {"EQUAL", layoutCompare, true},
	OpNEqual:        {"NEQUAL", layoutCompare, true},
	OpGEq:           {"GEQ", layoutNone, true},
	OpGT:            {"GT", layoutNone, true},
	OpLT:            {"LT", layoutNone, true},
	OpLEq:           {"LEQ", layoutNone, true},
	OpShLeft:        {"SHLEFT", layoutNone, true},
	OpShRight:       {"SHRIGHT", layoutNone, true},
	OpUShRight:      {"USHRIGHT", layoutNone, true},
	OpAdd:           {"ADD", layoutNone, true},
	OpSub:           {"SUB", layoutNone, true},
	OpMul:           {"MUL", layoutNone, true},
	OpDiv:           {"DIV", layoutNone, true},
	OpMod:           {"MOD", layoutNone, true},
	OpNeg:           {"NEG", layoutNone, true},
	OpComp:          {"COMP", layoutNone, true},
	OpMovSP:         {"MOVSP", layoutInt, false},
	OpStoreStateAll: {"STORESTATEALL", layoutNone, false},
	OpJmp:           {"JMP", layoutJump, false},
	OpJSR:           {"JSR", layoutJump, false},
	OpJZ:            {"JZ", layoutJump, false},
	OpRetn:          {"RETN", layoutNone, false},
	OpDestruct:      {"DESTRUCT", layoutDestruct, false},
	OpNot:           {"NOT", layoutNone, true},
	OpDecISP:        {"DECISP", layoutInt, false},
	OpIncISP:        {"INCISP", layoutInt, false},
	OpJNZ:           {"JNZ", layoutJump, false},
	OpCPDownBP:      {"CPDOWNBP", layoutStackCopy, false},
	OpCPTopBP:       {"CPTOPBP", layoutStackCopy, false},
	OpDecIBP:        {"DECIBP", layoutInt, false},
	OpIncIBP:        {"INCIBP", layoutInt, false},
	OpSaveBP:        {"SAVEBP", layoutNone, false},
	OpRestoreBP:     {"RESTOREBP", layoutNone, false},
	OpStoreState:    {"STORESTATE", layoutStoreState, false},
	OpNop:           {"NOP", layoutNone, false},
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opTable[op]
	return ok
}

func (op Opcode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("OP_%02X", byte(op))
}

// IsJump reports whether op carries a relative code displacement.
func (op Opcode) IsJump() bool { return opTable[op].layout == layoutJump }
