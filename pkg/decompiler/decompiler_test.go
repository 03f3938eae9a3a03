package decompiler

import (
	"strings"
	"testing"

	"github.com/NickHugi/PyKotor-sub008/pkg/compiler"
	"github.com/NickHugi/PyKotor-sub008/pkg/ncs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip compiles src, decompiles the bytecode and checks the output
// compiles back to the same bytes.
func roundTrip(t *testing.T, src string) *Result {
	t.Helper()
	orig, err := compiler.Compile(src)
	require.NoError(t, err)
	data, err := orig.Bytes()
	require.NoError(t, err)

	res, err := Decompile(data)
	require.NoError(t, err)
	require.Equal(t, Full, res.Fidelity, "notes: %v\n%s", res.Notes, res.Source)
	assert.Empty(t, res.Notes)

	again, err := compiler.Compile(res.Source)
	require.NoError(t, err, res.Source)
	data2, err := again.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, data2, res.Source)
	return res
}

func TestDecompileSource(t *testing.T) {
	res := roundTrip(t, `
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
	assert.Equal(t, `int sub1(int nParam1)
{
    return nParam1 * 2;
}

void main()
{
    int nVar1 = sub1(21);
    PrintInteger(nVar1);
}
`, res.Source)
}

func TestDecompileGlobals(t *testing.T) {
	res := roundTrip(t, `
int g = 5;

int StartingConditional()
{
    g++;
    return g > 5;
}
`)
	assert.Equal(t, `int nGlobal1 = 5;

int StartingConditional()
{
    nGlobal1++;
    return nGlobal1 > 5;
}
`, res.Source)
}

func TestDecompileLoops(t *testing.T) {
	res := roundTrip(t, `
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
	assert.Contains(t, res.Source, "for (; nVar1 < 3; nVar1++)")
	assert.Contains(t, res.Source, "continue;")
	assert.Contains(t, res.Source, "break;")
	assert.Contains(t, res.Source, "while (nVar1 > 0);")

	res = roundTrip(t, `
void main()
{
    int x = 0;
    while (x < 10)
    {
        x = x + 1;
    }
}
`)
	assert.Contains(t, res.Source, "while (nVar1 < 10)")
	assert.Contains(t, res.Source, "nVar1 += 1;")

	res = roundTrip(t, `
void main()
{
    int n = 0;
    for (;;)
    {
        n++;
        if (n > 4) break;
    }
}
`)
	assert.Contains(t, res.Source, "for (;;)")
}

func TestDecompileConditions(t *testing.T) {
	res := roundTrip(t, `
void main()
{
    int a = 3;
    float f = 1.5;
    string s = "x";
    if (a > 2 && a < 5)
    {
        s = s + "y";
    }
    else if (a == 0 || f > 2.0)
    {
        f = f * 2.0;
    }
    else
    {
        PrintString(s);
    }
}
`)
	assert.Contains(t, res.Source, "if (nVar1 > 2 && nVar1 < 5)")
	assert.Contains(t, res.Source, "else if (nVar1 == 0 || fVar2 > 2.0)")
	assert.Contains(t, res.Source, `sVar3 += "y";`)
}

func TestDecompileCalls(t *testing.T) {
	res := roundTrip(t, `
void Greet(string who, int times = 2)
{
    int i;
    for (i = 0; i < times; i++)
    {
        PrintString(who);
    }
}

void main()
{
    object o = GetObjectByTag("door");
    if (GetIsObjectValid(o))
    {
        Greet("you");
    }
    o = OBJECT_SELF;
    PrintFloat(1.5);
}
`)
	assert.Contains(t, res.Source, "void sub1(string sParam1, int nParam2)")
	assert.Contains(t, res.Source, `object oVar1 = GetObjectByTag("door");`, "default argument left out")
	assert.Contains(t, res.Source, `sub1("you", 2);`)
	assert.Contains(t, res.Source, "oVar1 = OBJECT_SELF;")
	assert.Contains(t, res.Source, "PrintFloat(1.5);")

	res = roundTrip(t, `
int Add(int a, int b)
{
    return a + b;
}

void Check(int v)
{
    if (v > 3)
    {
        return;
    }
    PrintInteger(v);
}

void main()
{
    Add(1, 2);
    Check(Add(Add(1, 2), 3));
}
`)
	assert.Contains(t, res.Source, "    sub1(1, 2);\n")
	assert.Contains(t, res.Source, "sub2(sub1(sub1(1, 2), 3));")
	assert.Contains(t, res.Source, "return;")
}

func TestDecompileIncDec(t *testing.T) {
	res := roundTrip(t, `
void main()
{
    int i = 1;
    int j = i++;
    int k = ++i + 1;
    i--;
}
`)
	assert.Contains(t, res.Source, "int nVar2 = nVar1++;")
	assert.Contains(t, res.Source, "int nVar3 = ++nVar1 + 1;")
	assert.Contains(t, res.Source, "nVar1--;")
}

func TestDecompileTruncated(t *testing.T) {
	orig, err := compiler.Compile(`
void main()
{
    PrintInteger(1);
    PrintInteger(2);
    PrintInteger(3);
}
`)
	require.NoError(t, err)
	data, err := orig.Bytes()
	require.NoError(t, err)

	// Corrupt the second ACTION.
	n := 0
	for _, ins := range orig.Program.Code {
		if ins.Op != ncs.OpAction {
			continue
		}
		if n++; n == 2 {
			data[ins.Offset] = 0xEE
			break
		}
	}

	res, err := Decompile(data)
	require.NoError(t, err)
	assert.Equal(t, Partial, res.Fidelity)
	assert.NotEmpty(t, res.Notes)
	assert.Contains(t, res.Source, "PrintInteger(1);")
	assert.NotContains(t, res.Source, "PrintInteger(3)")
}

func TestDecompileGoto(t *testing.T) {
	asm := ncs.NewAssembler()
	asm.Jump(ncs.OpJSR, "@main")
	asm.Emit(ncs.Instruction{Op: ncs.OpRetn})
	require.NoError(t, asm.Bind("@main"))
	require.NoError(t, asm.Bind("top"))
	asm.Emit(ncs.Instruction{Op: ncs.OpConst, Type: ncs.QualInt, Int: 2})
	asm.Emit(ncs.Instruction{Op: ncs.OpAction, Int: 4, Size: 1})
	asm.Emit(ncs.Instruction{Op: ncs.OpConst, Type: ncs.QualInt, Int: 1})
	asm.Jump(ncs.OpJZ, "top")
	asm.Emit(ncs.Instruction{Op: ncs.OpRetn})
	prog, err := asm.Assemble()
	require.NoError(t, err)

	res := DecompileProgram(prog)
	assert.Equal(t, Partial, res.Fidelity)
	assert.Contains(t, res.Source, "loc_00000015:\n")
	assert.Contains(t, res.Source, "goto loc_00000015;")
	assert.Contains(t, res.Source, "if (!1)")
	assert.True(t, strings.Index(res.Source, "loc_00000015:") < strings.Index(res.Source, "PrintInteger(2);"))
}

func TestDecompileStackBounds(t *testing.T) {
	tests := []struct {
		name string
		body []ncs.Instruction
	}{
		{"FinalMovSP", []ncs.Instruction{
			{Op: ncs.OpMovSP, Int: -0x7FFFFFFC},
		}},
		{"InnerMovSP", []ncs.Instruction{
			{Op: ncs.OpConst, Type: ncs.QualInt, Int: 1},
			{Op: ncs.OpMovSP, Int: -0x7FFFFFFC},
			{Op: ncs.OpConst, Type: ncs.QualInt, Int: 2},
			{Op: ncs.OpAction, Int: 4, Size: 1},
		}},
		{"UnderflowingAction", []ncs.Instruction{
			{Op: ncs.OpAction, Int: 4, Size: 255},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm := ncs.NewAssembler()
			asm.Jump(ncs.OpJSR, "@main")
			asm.Emit(ncs.Instruction{Op: ncs.OpRetn})
			require.NoError(t, asm.Bind("@main"))
			for _, ins := range tt.body {
				asm.Emit(ins)
			}
			asm.Emit(ncs.Instruction{Op: ncs.OpRetn})
			prog, err := asm.Assemble()
			require.NoError(t, err)

			res := DecompileProgram(prog)
			assert.Equal(t, Partial, res.Fidelity)
			assert.NotEmpty(t, res.Notes)
			assert.Less(t, len(res.Notes), 5, "notes: %v", res.Notes)
			assert.Contains(t, res.Source, "void main()")
		})
	}
}

func TestDecompileErrors(t *testing.T) {
	_, err := Decompile([]byte("NCS V2.0"))
	assert.Error(t, err)

	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "partial", Partial.String())
}
