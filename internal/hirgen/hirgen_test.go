package hirgen

import (
	"testing"

	"github.com/dru-blip/picoc/internal/hir"
	"github.com/dru-blip/picoc/internal/lexer"
	"github.com/dru-blip/picoc/internal/parser"
	"github.com/dru-blip/picoc/internal/types"
)

func generate(t *testing.T, src string) *hir.Block {
	t.Helper()
	tokens, err := lexer.Tokenize(src, "test.pico")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	decls, err := parser.Parse(tokens, "test.pico")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	g := New(types.New())
	global, err := g.Generate(decls)
	if err != nil {
		t.Fatalf("hirgen: %v", err)
	}
	return global
}

func TestWhileDesugarsToLoop(t *testing.T) {
	global := generate(t, "fn main()int{let i=0; while i<3 { i=i+1; } return i;}")
	fb := global.Nodes[0].(*hir.Block)
	var sawLoop bool
	for _, n := range fb.Nodes {
		if blk, ok := n.(*hir.Block); ok && blk.Tag == hir.TagLoopBlock {
			sawLoop = true
			if len(blk.Nodes) == 0 {
				t.Fatalf("expected loop body to contain the guard branch")
			}
			if _, ok := blk.Nodes[0].(*hir.Branch); !ok {
				t.Errorf("expected first loop node to be the desugared guard Branch, got %T", blk.Nodes[0])
			}
		}
	}
	if !sawLoop {
		t.Fatalf("expected a LoopBlock in function body")
	}
}

func TestBreakOutsideLoopIsError(t *testing.T) {
	tokens, _ := lexer.Tokenize("fn main()void{break;}", "t.pico")
	decls, err := parser.Parse(tokens, "t.pico")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	g := New(types.New())
	if _, err := g.Generate(decls); err == nil {
		t.Errorf("expected an error for break outside a loop")
	}
}

func TestDuplicateFunctionDefinitionFails(t *testing.T) {
	src := "fn main()int{return 1;} fn main()int{return 2;}"
	tokens, _ := lexer.Tokenize(src, "t.pico")
	decls, err := parser.Parse(tokens, "t.pico")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	g := New(types.New())
	if _, err := g.Generate(decls); err == nil {
		t.Errorf("expected a duplicate-definition error")
	}
}

func TestForwardDeclarationThenDefinition(t *testing.T) {
	src := "fn helper(int x)int; fn main()int{return helper(1);} fn helper(int x)int{return x;}"
	global := generate(t, src)
	var fnCount int
	for _, n := range global.Nodes {
		if blk, ok := n.(*hir.Block); ok && blk.Tag == hir.TagFunctionBlock {
			fnCount++
		}
	}
	if fnCount != 2 {
		t.Fatalf("expected 2 defined function blocks (main, helper), got %d", fnCount)
	}
}

func TestDuplicateLetInSameBlockFails(t *testing.T) {
	src := "fn main()int{let x=1; let x=2; return x;}"
	tokens, _ := lexer.Tokenize(src, "t.pico")
	decls, err := parser.Parse(tokens, "t.pico")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	g := New(types.New())
	if _, err := g.Generate(decls); err == nil {
		t.Errorf("expected a duplicate-declaration error for the second let x")
	}
}

func TestNestedLetShadowsOuter(t *testing.T) {
	src := "fn main()int{let x=1; { let x=2; } return x;}"
	global := generate(t, src)
	fb := global.Nodes[0].(*hir.Block)
	outerStore := fb.Nodes[0].(*hir.StoreLocal)
	var innerStore *hir.StoreLocal
	for _, n := range fb.Nodes {
		if blk, ok := n.(*hir.Block); ok && blk.Tag == hir.TagBlock {
			innerStore = blk.Nodes[0].(*hir.StoreLocal)
		}
	}
	if innerStore == nil {
		t.Fatalf("expected a nested block containing the inner let")
	}
	if outerStore.Symbol == innerStore.Symbol {
		t.Errorf("expected the inner let to declare its own symbol, not alias the outer one")
	}
}

func TestMutuallyRecursiveStructs(t *testing.T) {
	src := "struct A{B b; int x;} struct B{A a; int y;} fn main()int{let a=A{.x=1}; return a.x;}"
	global := generate(t, src)
	if _, ok := global.Local("A"); !ok {
		t.Errorf("expected struct A registered in global scope")
	}
	if _, ok := global.Local("B"); !ok {
		t.Errorf("expected struct B registered in global scope")
	}
}
