package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(p *ncs.Program) []string {
	out := make([]string, len(p.Code))
	for i, ins := range p.Code {
		out[i] = ins.String()
	}
	return out
}

func mustCompile(t *testing.T, src string, opts ...Option) *Result {
	t.Helper()
	res, err := Compile(src, opts...)
	require.NoError(t, err)
	return res
}

func TestCompileFunctions(t *testing.T) {
	res := mustCompile(t, `
int Double(int n)
{
    return n * 2;
}

void main()
{
    int r = Double(21);
    PrintInteger(r);
}
`)
	assert.Equal(t, []string{
		"JSR @main",
		"RETN",
		// Double: result slot, n
		"CPTOPSP -4, 4",
		"CONSTI 2",
		"MULII",
		"CPDOWNSP -12, 4",
		"MOVSP -4",
		"JMP ret_1",
		"MOVSP -4",
		"RETN",
		// main
		"RSADDI",
		"RSADDI",
		"CONSTI 21",
		"JSR @Double",
		"CPDOWNSP -8, 4",
		"MOVSP -4",
		"CPTOPSP -4, 4",
		"ACTION 4, 1",
		"MOVSP -4",
		"RETN",
	}, lines(res.Program))

	fn, ok := res.Function("Double")
	require.True(t, ok)
	assert.Equal(t, res.Program.Code[2].Offset, fn.Offset)
	assert.Equal(t, 1, fn.Params)
	assert.Equal(t, nss.TypeInt, fn.Result)
	assert.Equal(t, EntryMain, res.Entry)

	jsr := res.Program.Code[13]
	assert.Equal(t, fn.Offset, jsr.Target())

	data, err := res.Bytes()
	require.NoError(t, err)
	decoded, err := ncs.Decode(data)
	require.NoError(t, err)
	assert.Len(t, decoded.Code, len(res.Program.Code))
}

func TestWhileBackpatch(t *testing.T) {
	for _, n := range []int{0, 1, 5, 40} {
		t.Run(fmt.Sprintf("Body%d", n), func(t *testing.T) {
			src := "void main()\n{\n    int x = 0;\n    while (x < 10)\n    {\n" +
				strings.Repeat("        x = x + 1;\n", n) + "    }\n}\n"
			res := mustCompile(t, src)
			code := res.Program.Code

			jz, back := -1, -1
			for i, ins := range code {
				if ins.Op == ncs.OpJZ && jz < 0 {
					jz = i
				}
				if ins.Op == ncs.OpJmp && ins.Int < 0 {
					back = i
				}
			}
			require.GreaterOrEqual(t, jz, 0)
			require.Greater(t, back, jz)

			after := code[back].Offset + code[back].Len()
			assert.Equal(t, after, code[jz].Target(), "condition exits past the back edge")
			assert.Equal(t, code[jz-3].Offset, code[back].Target(), "back edge re-evaluates the condition")
			assert.Equal(t, "CPTOPSP -4, 4", code[jz-3].String())
		})
	}
}

func TestGlobalsAndConditional(t *testing.T) {
	res := mustCompile(t, `
int g = 5;

int StartingConditional()
{
    g++;
    return g > 5;
}
`)
	assert.Equal(t, EntryConditional, res.Entry)
	assert.Equal(t, []string{
		"RSADDI",
		"JSR @globals",
		"RETN",
		"RSADDI",
		"CONSTI 5",
		"CPDOWNSP -8, 4",
		"MOVSP -4",
		"SAVEBP",
		"RSADDI",
		"JSR @StartingConditional",
		"CPDOWNSP -16, 4",
		"MOVSP -4",
		"RESTOREBP",
		"MOVSP -4",
		"RETN",
		"INCIBP -4",
		"CPTOPBP -4, 4",
		"CONSTI 5",
		"GTII",
		"CPDOWNSP -8, 4",
		"MOVSP -4",
		"JMP ret_1",
		"RETN",
	}, lines(res.Program))
}

func TestShortCircuit(t *testing.T) {
	res := mustCompile(t, "void main() { int a = 1 && 0; int b = a || 1; }")
	code := res.Program.Code
	for _, pair := range []struct {
		branch ncs.Opcode
		logic  string
	}{{ncs.OpJZ, "LOGANDII"}, {ncs.OpJNZ, "LOGORII"}} {
		i := 0
		for code[i].Op != pair.branch {
			i++
		}
		assert.Equal(t, "CPTOPSP -4, 4", code[i-1].String())
		assert.Equal(t, pair.logic, code[i+2].String())
		assert.Equal(t, code[i+3].Offset, code[i].Target())
	}
}

func TestScopes(t *testing.T) {
	res := mustCompile(t, `
void main()
{
    int x = 1;
    {
        int x = 2;
        int y = 3;
        PrintInteger(x);
    }
    PrintInteger(x);
}
`)
	var reads []string
	code := res.Program.Code
	for i, ins := range code {
		if ins.Op == ncs.OpAction {
			reads = append(reads, code[i-1].String())
		}
	}
	assert.Equal(t, []string{"CPTOPSP -8, 4", "CPTOPSP -4, 4"}, reads)
}

func TestLoopsUnwindLocals(t *testing.T) {
	res := mustCompile(t, `
void main()
{
    int i;
    for (i = 0; i < 3; i++)
    {
        int t = i;
        if (t == 1) continue;
        if (t == 2) break;
    }
    do { i--; } while (i > 0);
}
`)
	code := res.Program.Code
	var jumps []ncs.Instruction
	for i, ins := range code {
		if ins.Op == ncs.OpJmp && i > 0 && code[i-1].Op == ncs.OpMovSP {
			jumps = append(jumps, ins)
		}
	}
	require.Len(t, jumps, 2, "continue and break pop the body local first")

	cont, brk := jumps[0], jumps[1]
	ci, ok := res.Program.Index(cont.Target())
	require.True(t, ok)
	assert.Equal(t, ncs.OpIncISP, code[ci].Op, "continue runs the post statement")
	bi, ok := res.Program.Index(brk.Target())
	require.True(t, ok)
	assert.Equal(t, ncs.OpDecISP, code[bi].Op, "break lands after the loop")

	var last ncs.Instruction
	for _, ins := range code {
		if ins.Op == ncs.OpJNZ {
			last = ins
		}
	}
	li, ok := res.Program.Index(last.Target())
	require.True(t, ok)
	assert.Equal(t, ncs.OpDecISP, code[li].Op, "do-while jumps back to its body")
}

func TestDefaultsAndActions(t *testing.T) {
	res := mustCompile(t, `
void Greet(string who, int times = 2) { }
void main()
{
    object o = GetObjectByTag("door");
    Greet("you");
    o = OBJECT_SELF;
}
`)
	l := strings.Join(lines(res.Program), "\n")
	assert.Contains(t, l, "CONSTI 0\nCONSTS \"door\"\nACTION 200, 2")
	assert.Contains(t, l, "CONSTI 2\nCONSTS \"you\"\nJSR @Greet")
	assert.Contains(t, l, "CONSTO 0")
	assert.Contains(t, l, "MOVSP -8\nRETN", "Greet pops both arguments")
}

func TestCustomActions(t *testing.T) {
	tbl, err := nss.LoadActions([]byte(`
[[action]]
id = 900
name = "Beep"
returns = "void"
`))
	require.NoError(t, err)

	res := mustCompile(t, "void main() { Beep(); }", WithActions(tbl))
	assert.Contains(t, lines(res.Program), "ACTION 900, 0")

	_, err = Compile("void main() { PrintString(\"x\"); }", WithActions(tbl))
	assert.True(t, errors.Is(err, ErrUndefinedSymbol))
}

func TestCompileErrors(t *testing.T) {
	t.Run("UndefinedSymbolSpan", func(t *testing.T) {
		_, err := Compile("void main() { int x = y + 1; }")
		require.True(t, errors.Is(err, ErrUndefinedSymbol))
		var diags nss.Diagnostics
		require.True(t, errors.As(err, &diags))
		require.Len(t, diags, 1)
		assert.Contains(t, diags[0].Msg, "y")
		assert.Equal(t, nss.Pos{Offset: 22, Line: 1, Col: 23}, diags[0].Pos)
		assert.Equal(t, 24, diags[0].End.Col)
	})

	t.Run("Accumulates", func(t *testing.T) {
		_, err := Compile(`
void main()
{
    string s = 1;
    break;
    Nope();
    PrintString("a", "b");
    s++;
}
`)
		var diags nss.Diagnostics
		require.True(t, errors.As(err, &diags))
		require.Len(t, diags, 5)
		assert.True(t, errors.Is(diags[0], ErrTypeMismatch))
		assert.True(t, errors.Is(diags[1], ErrInvalid))
		assert.True(t, errors.Is(diags[2], ErrUndefinedSymbol))
		assert.True(t, errors.Is(diags[3], ErrInvalid))
		assert.True(t, errors.Is(diags[4], ErrTypeMismatch))
	})

	t.Run("Limit", func(t *testing.T) {
		_, err := Compile("void main() { a; b; c; d; e; }", WithMaxErrors(2))
		var diags nss.Diagnostics
		require.True(t, errors.As(err, &diags))
		assert.Len(t, diags, 2)
	})

	for name, tc := range map[string]struct {
		src  string
		kind error
	}{
		"ParseError":      {"void main() { int = ; }", nss.ErrParse},
		"NoEntry":         {"void helper() {}", ErrInvalid},
		"EntryParams":     {"void main(int a) {}", ErrInvalid},
		"MissingBody":     {"int f(); void main() { f(); }", ErrUndefinedSymbol},
		"Conflicting":     {"int f(); float f() { return 1.0; } void main() {}", ErrTypeMismatch},
		"DefinedTwice":    {"void f() {} void f() {} void main() {}", ErrInvalid},
		"Redeclared":      {"void main() { int a; int a; }", ErrInvalid},
		"ConstAssign":     {"const int K = 1; void main() { K = 2; }", ErrInvalid},
		"ReturnValue":     {"void main() { return 1; }", ErrTypeMismatch},
		"MissingValue":    {"int f() { return; } void main() {}", ErrTypeMismatch},
		"Condition":       {"void main() { if (\"s\") {} }", ErrTypeMismatch},
		"Operator":        {"void main() { string s = \"a\" - \"b\"; }", ErrTypeMismatch},
		"ContinueOutside": {"void main() { continue; }", ErrInvalid},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(tc.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), err.Error())
		})
	}
}

func TestEntryPointOption(t *testing.T) {
	src := "void main() {} void alt() { PrintString(\"alt\"); }"
	res := mustCompile(t, src, WithEntryPoint("alt"))
	assert.Equal(t, "alt", res.Entry)
	assert.Equal(t, "JSR @alt", res.Program.Code[0].String())
}
