package parser

import (
	"testing"

	"github.com/dru-blip/picoc/internal/ast"
	"github.com/dru-blip/picoc/internal/lexer"
)

func parseSource(t *testing.T, src string) []ast.Node {
	t.Helper()
	tokens, err := lexer.Tokenize(src, "test.pico")
	if err != nil {
		t.Fatalf("tokenize failed: %v", err)
	}
	decls, err := Parse(tokens, "test.pico")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return decls
}

func assertParseError(t *testing.T, src, description string) {
	t.Helper()
	tokens, err := lexer.Tokenize(src, "test.pico")
	if err != nil {
		return // a lex error also satisfies "fails before a valid tree"
	}
	if _, err := Parse(tokens, "test.pico"); err == nil {
		t.Errorf("%s: expected a parse error, got none", description)
	}
}

func TestFunctionDeclarations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no params", "fn main()int{return 0;}"},
		{"one param", "fn id(int x)int{return x;}"},
		{"multi params", "fn add(int x,int y)int{return x+y;}"},
		{"void return", "fn doit()void{log 1;}"},
		{"forward decl", "fn helper(int x)int;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decls := parseSource(t, tt.src)
			if len(decls) != 1 {
				t.Fatalf("expected 1 decl, got %d", len(decls))
			}
			if decls[0].Kind() != ast.KindFunctionDeclaration {
				t.Fatalf("expected FunctionDeclaration, got %v", decls[0].Kind())
			}
		})
	}
}

func TestExternLibBlock(t *testing.T) {
	src := `extern @libm="m"{ fn sqrt(int x)int; } fn main()int{return libm::sqrt(9);}`
	decls := parseSource(t, src)
	if len(decls) != 2 {
		t.Fatalf("expected 2 decls, got %d", len(decls))
	}
	extern, ok := decls[0].(*ast.ExternLibBlock)
	if !ok {
		t.Fatalf("expected ExternLibBlock, got %T", decls[0])
	}
	if extern.Alias != "libm" || extern.LibName != "m" {
		t.Errorf("alias/libname mismatch: %q / %q", extern.Alias, extern.LibName)
	}
	if len(extern.Protos) != 1 || extern.Protos[0].Name != "sqrt" {
		t.Errorf("unexpected prototypes: %+v", extern.Protos)
	}
}

func TestStructDeclAndLiteral(t *testing.T) {
	src := `struct Point{ int x; int y; } fn main()int{ let p = Point{.x=1,.y=2}; return p.x; }`
	decls := parseSource(t, src)
	if len(decls) != 2 {
		t.Fatalf("expected 2 decls, got %d", len(decls))
	}
	sd, ok := decls[0].(*ast.StructDecl)
	if !ok {
		t.Fatalf("expected StructDecl, got %T", decls[0])
	}
	if len(sd.Fields) != 2 {
		t.Errorf("expected 2 fields, got %d", len(sd.Fields))
	}
}

func TestWhileDesugarSurface(t *testing.T) {
	src := `fn main()int{ let i = 0; while i < 10 { i = i + 1; } return i; }`
	decls := parseSource(t, src)
	fn := decls[0].(*ast.FunctionDeclaration)
	if fn.Body.Stmts[1].Kind() != ast.KindWhileLoopStmt {
		t.Fatalf("expected WhileLoopStmt node, got %v", fn.Body.Stmts[1].Kind())
	}
}

func TestOperatorPrecedence(t *testing.T) {
	src := `fn main()int{ return 1+2*3; }`
	decls := parseSource(t, src)
	fn := decls[0].(*ast.FunctionDeclaration)
	ret := fn.Body.Stmts[0].(*ast.Return)
	bin, ok := ret.Expr.(*ast.BinOp)
	if !ok {
		t.Fatalf("expected top-level BinOp, got %T", ret.Expr)
	}
	if bin.Op != ast.OpAdd {
		t.Fatalf("expected outermost op to be ADD (lowest precedence binds loosest), got %v", bin.Op)
	}
	rhs, ok := bin.Rhs.(*ast.BinOp)
	if !ok || rhs.Op != ast.OpMul {
		t.Fatalf("expected rhs to be a MUL subtree, got %#v", bin.Rhs)
	}
}

func TestPostfixChain(t *testing.T) {
	src := `fn main()int{ return a.b.c(1,2)++; }`
	decls := parseSource(t, src)
	fn := decls[0].(*ast.FunctionDeclaration)
	ret := fn.Body.Stmts[0].(*ast.Return)
	if ret.Expr.Kind() != ast.KindUnOp {
		t.Fatalf("expected outermost node to be the postfix UnOp, got %v", ret.Expr.Kind())
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing semicolon", "fn main()int{ return 0 }"},
		{"missing return type", "fn main(){ return 0; }"},
		{"unterminated block", "fn main()int{ return 0;"},
		{"bad top level", "let x = 5;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertParseError(t, tt.src, tt.name)
		})
	}
}
