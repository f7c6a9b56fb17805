package compiler

import (
	"encoding/binary"
	"testing"

	"github.com/dru-blip/picoc/internal/emitter"
)

// moduleView is a tiny hand-rolled PEXB reader used only by tests, kept
// independent of the emitter package's internals so it exercises the wire
// format itself rather than the emitter's in-memory structures.
type moduleView struct {
	constPool   []interface{}
	entryFnID   uint16
	functions   []fnView
}

type fnView struct {
	id, nameIdx, paramCount, localCount uint16
	code                                []byte
}

func readModule(t *testing.T, b []byte) moduleView {
	t.Helper()
	if len(b) < 16 || string(b[:4]) != "PEXB" {
		t.Fatalf("bad magic: %q", b[:4])
	}
	pos := 16
	constCount := binary.LittleEndian.Uint16(b[pos:])
	pos += 2
	var mv moduleView
	for i := 0; i < int(constCount); i++ {
		tag := b[pos]
		pos++
		switch tag {
		case 0x01:
			v := binary.LittleEndian.Uint32(b[pos:])
			pos += 4
			mv.constPool = append(mv.constPool, int64(v))
		case 0x02:
			l := binary.LittleEndian.Uint16(b[pos:])
			pos += 2
			mv.constPool = append(mv.constPool, string(b[pos:pos+int(l)]))
			pos += int(l)
		default:
			t.Fatalf("bad const tag %x", tag)
		}
	}
	mv.entryFnID = binary.LittleEndian.Uint16(b[pos:])
	pos += 2
	fnCount := binary.LittleEndian.Uint16(b[pos:])
	pos += 2
	for i := 0; i < int(fnCount); i++ {
		var f fnView
		f.id = binary.LittleEndian.Uint16(b[pos:])
		pos += 2
		f.nameIdx = binary.LittleEndian.Uint16(b[pos:])
		pos += 2
		f.paramCount = binary.LittleEndian.Uint16(b[pos:])
		pos += 2
		f.localCount = binary.LittleEndian.Uint16(b[pos:])
		pos += 2
		size := binary.LittleEndian.Uint32(b[pos:])
		pos += 4
		f.code = b[pos : pos+int(size)]
		pos += int(size)
		mv.functions = append(mv.functions, f)
	}
	return mv
}

func mustCompile(t *testing.T, src string) moduleView {
	t.Helper()
	bin, err := Compile(src, "test.pico")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return readModule(t, bin)
}

func TestCompileReturnLiteral(t *testing.T) {
	mv := mustCompile(t, "fn main()int{return 5;}")
	if len(mv.functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(mv.functions))
	}
	fn := mv.functions[0]
	if fn.id != 0 || mv.entryFnID != 0 {
		t.Errorf("expected entry fn id 0, got fn.id=%d entry=%d", fn.id, mv.entryFnID)
	}
	if fn.paramCount != 0 || fn.localCount != 0 {
		t.Errorf("expected no params/locals, got %d/%d", fn.paramCount, fn.localCount)
	}
	wantCode := []byte{byte(emitter.LIC), 0x00, 0x00, byte(emitter.RET)}
	if string(fn.code) != string(wantCode) {
		t.Errorf("unexpected code bytes: %v, want %v", fn.code, wantCode)
	}
	if len(mv.constPool) != 2 || mv.constPool[0] != int64(5) || mv.constPool[1] != "main" {
		t.Errorf("unexpected const pool: %+v", mv.constPool)
	}
}

func TestCompileLocalsAndAdd(t *testing.T) {
	mv := mustCompile(t, "fn main()int{let a=2;let b=3;return a+b;}")
	fn := mv.functions[0]
	if fn.localCount != 2 {
		t.Errorf("expected 2 locals, got %d", fn.localCount)
	}
	if len(mv.constPool) != 3 {
		t.Errorf("expected 3 consts (2,3,main), got %+v", mv.constPool)
	}
	lastOp := fn.code[len(fn.code)-2]
	if emitter.Op(lastOp) != emitter.IADD {
		t.Errorf("expected IADD before RET, got opcode %d", lastOp)
	}
}

func TestCompileShiftAndLog(t *testing.T) {
	mv := mustCompile(t, "fn main()void{log 2>>3;}")
	fn := mv.functions[0]
	foundShr, foundLog := false, false
	for _, b := range fn.code {
		if emitter.Op(b) == emitter.ISHR {
			foundShr = true
		}
		if emitter.Op(b) == emitter.LOG {
			foundLog = true
		}
	}
	if !foundShr || !foundLog {
		t.Errorf("expected ISHR and LOG in code, got %v", fn.code)
	}
}

func TestCompileBranch(t *testing.T) {
	mv := mustCompile(t, "fn main()int{if(1){return 1;}else{return 2;}}")
	fn := mv.functions[0]
	hasJF, hasJMP := false, false
	for _, b := range fn.code {
		if emitter.Op(b) == emitter.JF {
			hasJF = true
		}
		if emitter.Op(b) == emitter.JMP {
			hasJMP = true
		}
	}
	if !hasJF || !hasJMP {
		t.Errorf("expected both JF and JMP in branch code, got %v", fn.code)
	}
}

func TestCompileExternCall(t *testing.T) {
	src := `extern @libm="m"{ fn sqrt(int x)int; } fn main()int{return libm::sqrt(9);}`
	mv := mustCompile(t, src)
	fn := mv.functions[0]
	found := false
	for _, c := range mv.constPool {
		if s, ok := c.(string); ok && s == "m_sqrt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'm_sqrt' in const pool, got %+v", mv.constPool)
	}
	hasCallExtern := false
	for _, b := range fn.code {
		if emitter.Op(b) == emitter.CALL_EXTERN {
			hasCallExtern = true
		}
	}
	if !hasCallExtern {
		t.Errorf("expected CALL_EXTERN opcode in code, got %v", fn.code)
	}
}

func TestCompileStructLiteralAndField(t *testing.T) {
	src := `struct P{int x;} fn main()int{let p=P{.x=7}; return p.x;}`
	mv := mustCompile(t, src)
	fn := mv.functions[0]
	hasAlloca, hasSetField, hasLoadField := false, false, false
	for _, b := range fn.code {
		switch emitter.Op(b) {
		case emitter.ALLOCA_STRUCT:
			hasAlloca = true
		case emitter.SET_FIELD:
			hasSetField = true
		case emitter.LOAD_FIELD:
			hasLoadField = true
		}
	}
	if !hasAlloca || !hasSetField || !hasLoadField {
		t.Errorf("expected ALLOCA_STRUCT/SET_FIELD/LOAD_FIELD in code, got %v", fn.code)
	}
}

func TestWhileDesugarMatchesLoop(t *testing.T) {
	whileSrc := `fn main()int{let i=0; while i<3 { i=i+1; } return i;}`
	loopSrc := `fn main()int{let i=0; loop { if (!(i<3)) { break; } i=i+1; } return i;}`
	whileMV := mustCompile(t, whileSrc)
	loopMV := mustCompile(t, loopSrc)
	if string(whileMV.functions[0].code) != string(loopMV.functions[0].code) {
		t.Errorf("while-desugared code differs from manually written loop form:\nwhile: %v\nloop:  %v",
			whileMV.functions[0].code, loopMV.functions[0].code)
	}
}

func TestSemanticErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"undeclared identifier", "fn main()int{return x;}"},
		{"arity mismatch", "fn add(int x,int y)int{return x+y;} fn main()int{return add(1);}"},
		{"bad assignment", "fn main()int{let a=1; a=\"oops\"; return a;}"},
		{"break outside loop", "fn main()void{break;}"},
		{"bool arithmetic rejected", "fn main()int{return true+false;}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.src, "test.pico"); err == nil {
				t.Errorf("expected a semantic error, got none")
			}
		})
	}
}
