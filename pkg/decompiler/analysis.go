package decompiler

import (
	"sort"

	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
)

// sub is a subroutine: the instructions between its JSR target and the
// next subroutine start.
type sub struct {
	start, end int // instruction indexes, end exclusive
	name       string
	params     int
	paramTypes []nss.Type
	returns    bool
	result     nss.Type
	resultSet  bool
	// epilogue is the index of the instruction that pops the arguments, or
	// of the final RETN. The body is [start, epilogue).
	epilogue int
	complete bool // ends with RETN
}

func (s *sub) setParamType(i int, t nss.Type) {
	for len(s.paramTypes) < s.params {
		s.paramTypes = append(s.paramTypes, typeUnknown)
	}
	if i < len(s.paramTypes) && s.paramTypes[i] == typeUnknown && t != typeUnknown {
		s.paramTypes[i] = t
	}
}

func (s *sub) paramType(i int) nss.Type {
	if i < len(s.paramTypes) && s.paramTypes[i] != typeUnknown {
		return s.paramTypes[i]
	}
	return nss.TypeInt
}

func (s *sub) setResult(t nss.Type) {
	if !s.resultSet && t != typeUnknown {
		s.result, s.resultSet = t, true
	}
}

type analysis struct {
	prog    *ncs.Program
	code    []ncs.Instruction
	actions *nss.Actions
	subs    map[int]*sub // by start offset
}

// index maps an offset to an instruction index. The end of the program is
// a valid target and maps to len(code).
func (a *analysis) index(offset int) (int, bool) {
	if offset == a.prog.End() {
		return len(a.code), true
	}
	return a.prog.Index(offset)
}

// splitSubs partitions code at every JSR target. The stub at index 0 is not
// a subroutine itself.
func (a *analysis) splitSubs() []*sub {
	starts := map[int]bool{}
	for _, ins := range a.code {
		if ins.Op == ncs.OpJSR {
			if i, ok := a.prog.Index(ins.Target()); ok && i > 0 {
				starts[i] = true
			}
		}
	}
	idx := make([]int, 0, len(starts))
	for i := range starts {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	a.subs = make(map[int]*sub, len(idx))
	out := make([]*sub, len(idx))
	for n, i := range idx {
		end := len(a.code)
		if n+1 < len(idx) {
			end = idx[n+1]
		}
		s := &sub{start: i, end: end, epilogue: end, result: nss.TypeVoid}
		s.complete = end > i && a.code[end-1].Op == ncs.OpRetn
		if s.complete {
			s.epilogue = end - 1
		}
		a.subs[a.code[i].Offset] = s
		out[n] = s
	}
	return out
}

// effect is the change in stack slots caused by ins.
func (a *analysis) effect(ins ncs.Instruction) int {
	switch ins.Op {
	case ncs.OpRSAdd, ncs.OpConst, ncs.OpSaveBP:
		return 1
	case ncs.OpCPTopSP, ncs.OpCPTopBP:
		return int(ins.Size) / 4
	case ncs.OpAction:
		n := -int(ins.Size)
		if r, ok := a.actions.ByID(int(ins.Int)); ok && r.Return != nss.TypeVoid {
			n++
		}
		return n
	case ncs.OpLogAnd, ncs.OpLogOr, ncs.OpIncOr, ncs.OpExcOr, ncs.OpBoolAnd,
		ncs.OpGEq, ncs.OpGT, ncs.OpLT, ncs.OpLEq,
		ncs.OpShLeft, ncs.OpShRight, ncs.OpUShRight,
		ncs.OpAdd, ncs.OpSub, ncs.OpMul, ncs.OpDiv, ncs.OpMod:
		return -1
	case ncs.OpEqual, ncs.OpNEqual:
		if ins.Type == ncs.QualStructStruct {
			return 1 - 2*int(ins.Size)/4
		}
		return -1
	case ncs.OpMovSP:
		return int(ins.Int) / 4
	case ncs.OpJSR:
		if s, ok := a.subs[ins.Target()]; ok {
			return -s.params
		}
	case ncs.OpJZ, ncs.OpJNZ, ncs.OpRestoreBP:
		return -1
	case ncs.OpDestruct:
		return -int(ins.Size-ins.Keep) / 4
	}
	return 0
}

// walk visits the reachable instructions of s with the stack depth on
// arrival, relative to the depth at entry. Depth after an unconditional
// jump is taken from a forward branch to the next instruction; code no
// branch reaches is skipped.
func (a *analysis) walk(s *sub, visit func(i, depth int)) {
	depthAt := map[int]int{}
	d, live := 0, true
	for i := s.start; i < s.end; i++ {
		if rd, ok := depthAt[i]; ok && !live {
			d, live = rd, true
		}
		if !live {
			continue
		}
		visit(i, d)
		ins := a.code[i]
		switch ins.Op {
		case ncs.OpJmp:
			if t, ok := a.index(ins.Target()); ok && t > i {
				depthAt[t] = d
			}
			live = false
		case ncs.OpJZ, ncs.OpJNZ:
			d--
			if t, ok := a.index(ins.Target()); ok && t > i {
				depthAt[t] = d
			}
		case ncs.OpRetn:
			live = false
		default:
			d += a.effect(ins)
		}
	}
}

// maxParams bounds an inferred argument count. A larger final MOVSP is
// taken to pop locals.
const maxParams = 1024

// inferParams decides whether the MOVSP before the final RETN pops
// arguments or locals: arguments lie below the entry depth, so a MOVSP
// reached at depth 0 pops arguments.
func (a *analysis) inferParams(s *sub) int {
	if !s.complete || s.end-s.start < 2 {
		return 0
	}
	last := a.code[s.end-2]
	if last.Op != ncs.OpMovSP || last.Int >= 0 {
		return 0
	}
	m := int(-last.Int) / 4
	if m > maxParams {
		return 0
	}
	arrive, seen := 0, false
	a.walk(s, func(i, depth int) {
		if i == s.end-2 {
			arrive, seen = depth, true
		}
	})
	if seen && arrive == m {
		return 0
	}
	return m
}

// analyze infers parameter counts to a fixpoint, since each depth walk
// depends on the arity of the subroutines it calls, then finds which
// subroutines write a result below their arguments.
func (a *analysis) analyze(subs []*sub) {
	for _, s := range subs {
		s.params = a.inferParams(s)
	}
	for iter := 0; iter < 8; iter++ {
		changed := false
		for _, s := range subs {
			if k := a.inferParams(s); k != s.params {
				s.params, changed = k, true
			}
		}
		if !changed {
			break
		}
	}
	for _, s := range subs {
		if s.complete && s.params > 0 {
			s.epilogue = s.end - 2
		}
		a.walk(s, func(i, depth int) {
			ins := a.code[i]
			if ins.Op == ncs.OpCPDownSP && depth+int(ins.Int)/4 == -(s.params+1) {
				s.returns = true
			}
		})
	}
}
