// Package hirgen lowers an ast.Node forest into an hir.Block tree (spec §5
// "HIR Generation"). It runs in two passes per program: a type pre-pass
// that registers every struct (so forward references and mutually-recursive
// structs resolve regardless of declaration order), then a lowering pass
// that builds the HIR proper. Function symbols are defined as each function
// is lowered; calls are resolved later by Sema, so a call may still name a
// function declared further down the file.
// Grounded on the original hirgen.py's BlockLabelGenerator/scope-depth
// bookkeeping and HirGen._gen_function/_gen_fn_prototype shape.
package hirgen

import (
	"fmt"

	"github.com/dru-blip/picoc/internal/ast"
	"github.com/dru-blip/picoc/internal/errors"
	"github.com/dru-blip/picoc/internal/hir"
	"github.com/dru-blip/picoc/internal/lexer"
	"github.com/dru-blip/picoc/internal/symbols"
	"github.com/dru-blip/picoc/internal/types"
)

// labelGen hands out unique block/loop labels. One instance per compiler
// invocation, mirroring types.Registry's non-singleton scoping.
type labelGen struct {
	blockCounter int
	loopCounter  int
}

func (g *labelGen) block() string {
	v := fmt.Sprintf(".LBB%d", g.blockCounter)
	g.blockCounter++
	return v
}

func (g *labelGen) loop() string {
	v := fmt.Sprintf(".Lloop%d", g.loopCounter)
	g.loopCounter++
	return v
}

// Generator walks a parsed program once, lowering it into HIR rooted at
// Global. Create one per compile; it is not reusable across invocations.
type Generator struct {
	types  *types.Registry
	labels labelGen

	global   *hir.Block
	fnBlock  *hir.Block
	current  *hir.Block
	scope    int
	loopIDs  []string
}

func New(reg *types.Registry) *Generator {
	return &Generator{types: reg, global: hir.NewGlobalBlock()}
}

// Generate lowers every top-level declaration and returns the global block.
func (g *Generator) Generate(decls []ast.Node) (*hir.Block, error) {
	// type pre-pass: register every struct (possibly incomplete) and every
	// extern lib block's module symbol before lowering bodies, so a struct
	// field or function signature may reference a type declared later in
	// the file.
	for _, d := range decls {
		if sd, ok := d.(*ast.StructDecl); ok {
			if err := g.preRegisterStruct(sd); err != nil {
				return nil, err
			}
		}
	}
	for _, d := range decls {
		if sd, ok := d.(*ast.StructDecl); ok {
			if err := g.completeStruct(sd); err != nil {
				return nil, err
			}
		}
	}
	for _, d := range decls {
		if eb, ok := d.(*ast.ExternLibBlock); ok {
			if err := g.genExternBlock(eb); err != nil {
				return nil, err
			}
		}
	}
	for _, d := range decls {
		if fd, ok := d.(*ast.FunctionDeclaration); ok {
			if err := g.genFunction(fd); err != nil {
				return nil, err
			}
		}
	}
	return g.global, nil
}

func (g *Generator) beginScope() { g.scope++ }
func (g *Generator) endScope()   { g.scope-- }

func tokInfo(tok lexer.Token) errors.TokenInfo {
	return errors.TokenInfo{Line: tok.Loc.Line, Col: tok.Loc.Col, Start: tok.Loc.Start, End: tok.Loc.End, LineStart: tok.LineStart}
}

func semErrf(tok lexer.Token, format string, args ...interface{}) error {
	return errors.New(errors.Semantic, fmt.Sprintf(format, args...), tokInfo(tok))
}

func (g *Generator) preRegisterStruct(sd *ast.StructDecl) error {
	if _, exists := g.global.Local(sd.Name); exists {
		return semErrf(sd.Tok(), "struct %s already declared", sd.Name)
	}
	typeID := g.types.AddIncompleteStruct()
	sym := symbols.NewStruct(sd.Name, typeID)
	g.global.Define(sym)
	return nil
}

func (g *Generator) completeStruct(sd *ast.StructDecl) error {
	sym, _ := g.global.Local(sd.Name)
	fields := make([]*symbols.Symbol, len(sd.Fields))
	typeFields := make([]types.Field, len(sd.Fields))
	for i, f := range sd.Fields {
		typeID, err := g.transformType(f.Type)
		if err != nil {
			return err
		}
		fsym := &symbols.Symbol{Name: f.Name, Kind: symbols.KindStructField, TypeID: typeID, FieldIndex: i}
		fields[i] = fsym
		typeFields[i] = types.Field{Name: f.Name, TypeID: typeID}
	}
	sym.Fields = fields
	g.types.CompleteStruct(sym.TypeID, typeFields)
	return nil
}

func (g *Generator) genExternBlock(eb *ast.ExternLibBlock) error {
	block := hir.NewExternLibBlock(eb.Tok(), eb.Alias, eb.LibName, g.global)
	for _, proto := range eb.Protos {
		funcSym, err := g.registerPrototype(proto, true, eb.LibName)
		if err != nil {
			return err
		}
		block.Define(funcSym)
		block.Protos = append(block.Protos, funcSym)
	}
	modSym := symbols.NewModule(eb.Alias, block)
	g.global.Define(modSym)
	// *hir.Block already satisfies hir.Node (it embeds base); Sema's
	// top-level walk skips any TagExternLibBlock entry it finds here,
	// mirroring the original Sema.analyze's "ExternLibBlock: continue".
	g.global.AddNode(block)
	return nil
}

func (g *Generator) registerPrototype(proto *ast.FunctionPrototype, extern bool, libName string) (*symbols.Symbol, error) {
	retType, err := g.transformType(proto.ReturnType)
	if err != nil {
		return nil, err
	}
	params := make([]*symbols.Symbol, len(proto.Params))
	typeParams := make([]types.Param, len(proto.Params))
	for i, p := range proto.Params {
		pt, err := g.transformType(p.Type)
		if err != nil {
			return nil, err
		}
		params[i] = symbols.NewParameter(p.Name, pt, g.scope)
		typeParams[i] = types.Param{TypeID: pt}
	}
	funcTypeID := g.types.AddFunction(retType, typeParams)

	sym := symbols.NewFunction(proto.Name, funcTypeID)
	sym.Params = params
	sym.IsDefined = extern
	if extern {
		sym.Linkage = symbols.LinkageExternal
		sym.LibPrefix = libName
		sym.LibName = libName
	}
	return sym, nil
}

func (g *Generator) genFunction(fd *ast.FunctionDeclaration) error {
	g.beginScope()
	defer g.endScope()

	existing, hadExisting := g.global.Local(fd.Proto.Name)
	funcSym, err := g.registerPrototype(fd.Proto, false, "")
	if err != nil {
		return err
	}
	if hadExisting {
		if existing.TypeID != funcSym.TypeID {
			return semErrf(fd.Tok(), "incompatible declarations of %s", fd.Proto.Name)
		}
		if existing.IsDefined && fd.Body != nil {
			return semErrf(fd.Tok(), "function %s already defined", fd.Proto.Name)
		}
		funcSym = existing
	}
	if fd.Body != nil {
		funcSym.IsDefined = true
	}
	g.global.Define(funcSym)

	if fd.Body == nil {
		return nil
	}

	fb := hir.NewFunctionBlock(fd.Tok(), fd.Proto.Name, funcSym, funcSym.TypeID, g.global, g.scope)
	for _, p := range funcSym.Params {
		fb.Define(p)
	}
	g.fnBlock = fb
	g.current = fb
	for _, stmt := range fd.Body.Stmts {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}
	g.global.AddNode(fb)
	g.fnBlock = nil
	g.current = nil
	return nil
}

func (g *Generator) transformType(n ast.Node) (int, error) {
	nt, ok := n.(*ast.NamedType)
	if !ok {
		return 0, semErrf(n.Tok(), "expected a type")
	}
	switch nt.Name {
	case "void":
		return types.VoidType, nil
	case "int":
		return types.IntType, nil
	case "long":
		return types.LongType, nil
	case "str":
		return types.StrType, nil
	case "bool":
		return types.BoolType, nil
	default:
		sym, ok := g.global.Local(nt.Name)
		if !ok || sym.Kind != symbols.KindStruct {
			return 0, semErrf(nt.Tok(), "unknown type %s", nt.Name)
		}
		return sym.TypeID, nil
	}
}

// ---- statements ----

func (g *Generator) genStmt(n ast.Node) error {
	switch node := n.(type) {
	case *ast.Block:
		return g.genBlock(node, "")
	case *ast.Return:
		return g.genReturn(node)
	case *ast.Log:
		return g.genLog(node)
	case *ast.VarDecl:
		return g.genVarDecl(node)
	case *ast.If:
		return g.genIf(node)
	case *ast.LoopStmt:
		return g.genLoop(node)
	case *ast.WhileLoopStmt:
		return g.genWhile(node)
	case *ast.Break:
		if len(g.loopIDs) == 0 {
			return semErrf(node.Tok(), "break outside a loop")
		}
		g.current.AddNode(hir.NewBreak(node.Tok(), g.loopIDs[len(g.loopIDs)-1]))
		return nil
	case *ast.Continue:
		if len(g.loopIDs) == 0 {
			return semErrf(node.Tok(), "continue outside a loop")
		}
		g.current.AddNode(hir.NewContinue(node.Tok(), g.loopIDs[len(g.loopIDs)-1]))
		return nil
	case *ast.ExprStmt:
		expr, err := g.genExpr(node.Expr)
		if err != nil {
			return err
		}
		g.current.AddNode(expr)
		return nil
	default:
		return semErrf(n.Tok(), "statement not implemented")
	}
}

func (g *Generator) genBlock(b *ast.Block, namePrefix string) error {
	g.beginScope()
	defer g.endScope()
	name := g.labels.block()
	blk := hir.NewBlock(b.Tok(), name, g.current, g.scope)
	g.current.AddNode(blk)
	parent := g.current
	g.current = blk
	for _, stmt := range b.Stmts {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}
	g.current = parent
	return nil
}

func (g *Generator) genReturn(r *ast.Return) error {
	var expr hir.Node
	if r.Expr != nil {
		e, err := g.genExpr(r.Expr)
		if err != nil {
			return err
		}
		expr = e
	}
	g.current.AddNode(hir.NewReturn(r.Tok(), expr))
	return nil
}

func (g *Generator) genLog(l *ast.Log) error {
	expr, err := g.genExpr(l.Expr)
	if err != nil {
		return err
	}
	g.current.AddNode(hir.NewLog(l.Tok(), expr))
	return nil
}

// genVarDecl lowers `let name = init;`. A let always creates a fresh
// Variable symbol in the current block, never reuses one from an
// enclosing scope — a nested `let x` must shadow an outer `x`, not alias
// its storage slot. A second `let` of the same name at the same depth is
// a hard error (§4.4/§7).
func (g *Generator) genVarDecl(v *ast.VarDecl) error {
	if _, exists := g.current.Local(v.Name); exists {
		return semErrf(v.Tok(), "duplicate declaration of %s at same scope", v.Name)
	}
	value, err := g.genExpr(v.Init)
	if err != nil {
		return err
	}
	sym := symbols.NewVariable(v.Name, types.NoneType, g.scope)
	g.current.Define(sym)
	store := hir.NewStoreLocal(v.Tok(), v.Name, value)
	store.Symbol = sym
	g.current.AddNode(store)
	return nil
}

func (g *Generator) genIf(ifNode *ast.If) error {
	cond, err := g.genExpr(ifNode.Cond)
	if err != nil {
		return err
	}

	g.beginScope()
	thenBlk := hir.NewBlock(ifNode.Then.Tok(), g.labels.block(), g.current, g.scope)
	parent := g.current
	g.current = thenBlk
	for _, stmt := range ifNode.Then.Stmts {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}
	g.current = parent
	g.endScope()

	var elseBlk *hir.Block
	if ifNode.Else != nil {
		g.beginScope()
		elseBlk = hir.NewBlock(ifNode.Else.Tok(), g.labels.block(), g.current, g.scope)
		g.current = elseBlk
		for _, stmt := range ifNode.Else.Stmts {
			if err := g.genStmt(stmt); err != nil {
				return err
			}
		}
		g.current = parent
		g.endScope()
	}

	g.current.AddNode(hir.NewBranch(ifNode.Tok(), cond, thenBlk, elseBlk))
	return nil
}

func (g *Generator) genLoop(l *ast.LoopStmt) error {
	g.beginScope()
	defer g.endScope()
	loopID := g.labels.loop()
	g.loopIDs = append(g.loopIDs, loopID)
	defer func() { g.loopIDs = g.loopIDs[:len(g.loopIDs)-1] }()

	loopBlk := hir.NewLoopBlock(l.Tok(), loopID, g.current, g.scope)
	parent := g.current
	g.current = loopBlk
	for _, stmt := range l.Body.Stmts {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}
	g.current = parent
	g.current.AddNode(loopBlk)
	return nil
}

// genWhile desugars `while(cond) body` into `loop { if (!cond) break; body }`
// (redesign decision: surface `while` is pure sugar over `loop`, so the two
// forms must emit byte-identical code after const-pool remapping).
func (g *Generator) genWhile(w *ast.WhileLoopStmt) error {
	notCond := ast.NewUnOp(w.Cond.Tok(), ast.OpNot, w.Cond)
	breakStmt := ast.NewBreak(w.Cond.Tok())
	guard := ast.NewIf(w.Cond.Tok(), notCond, ast.NewBlock(w.Cond.Tok(), []ast.Node{breakStmt}), nil)

	stmts := make([]ast.Node, 0, len(w.Body.Stmts)+1)
	stmts = append(stmts, guard)
	stmts = append(stmts, w.Body.Stmts...)
	desugared := ast.NewLoopStmt(w.Tok(), ast.NewBlock(w.Body.Tok(), stmts))
	return g.genLoop(desugared)
}

// ---- expressions ----

func (g *Generator) genExpr(n ast.Node) (hir.Node, error) {
	switch node := n.(type) {
	case *ast.IntLiteral:
		return hir.NewConstInt(node.Tok(), node.Value, node.IsLong), nil
	case *ast.StrLiteral:
		return hir.NewConstStr(node.Tok(), node.Value), nil
	case *ast.BoolLiteral:
		return hir.NewConstBool(node.Tok(), node.Value), nil
	case *ast.Identifier:
		return hir.NewVarRef(node.Tok(), node.Name), nil
	case *ast.BinOp:
		lhs, err := g.genExpr(node.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := g.genExpr(node.Rhs)
		if err != nil {
			return nil, err
		}
		return hir.NewBinOp(node.Tok(), string(node.Op), lhs, rhs), nil
	case *ast.UnOp:
		operand, err := g.genExpr(node.Operand)
		if err != nil {
			return nil, err
		}
		return hir.NewUnOp(node.Tok(), string(node.Op), operand), nil
	case *ast.Assignment:
		return g.genAssignment(node.Tok(), node.Target, node.Value)
	case *ast.CompoundAssignment:
		combined := ast.NewBinOp(node.Tok(), node.Op, node.Target, node.Value)
		return g.genAssignment(node.Tok(), node.Target, combined)
	case *ast.Call:
		callee, err := g.genCallee(node.Callee)
		if err != nil {
			return nil, err
		}
		args := make([]hir.Node, len(node.Args))
		for i, a := range node.Args {
			arg, err := g.genExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		return hir.NewCall(node.Tok(), callee, args), nil
	case *ast.FieldAccess:
		obj, err := g.genExpr(node.Object)
		if err != nil {
			return nil, err
		}
		return hir.NewFieldAccess(node.Tok(), obj, node.Field.Name), nil
	case *ast.StructLiteral:
		values := make([]*hir.FieldValue, len(node.Fields))
		for i, f := range node.Fields {
			v, err := g.genExpr(f.Value)
			if err != nil {
				return nil, err
			}
			values[i] = hir.NewFieldValue(f.Name.Tok(), f.Name.Name, v)
		}
		nameRef := hir.NewVarRef(node.Name.Tok(), node.Name.Name)
		return hir.NewCreateStruct(node.Tok(), nameRef, values), nil
	default:
		return nil, semErrf(n.Tok(), "expression not implemented")
	}
}

// genAssignment lowers `target = value` into StoreLocal (plain identifier)
// or StoreField (`.`-access) — these carry their own assignment-type check
// in Sema, unlike a plain BinOp.
func (g *Generator) genAssignment(tok lexer.Token, target ast.Node, value ast.Node) (hir.Node, error) {
	val, err := g.genExpr(value)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case *ast.Identifier:
		return hir.NewStoreLocal(tok, t.Name, val), nil
	case *ast.FieldAccess:
		obj, err := g.genExpr(t.Object)
		if err != nil {
			return nil, err
		}
		return hir.NewStoreField(tok, obj, t.Field.Name, val), nil
	default:
		return nil, semErrf(tok, "invalid assignment target")
	}
}

func (g *Generator) genCallee(n ast.Node) (hir.Node, error) {
	switch node := n.(type) {
	case *ast.Identifier:
		return hir.NewVarRef(node.Tok(), node.Name), nil
	case *ast.StaticAccess:
		qualIdent, ok := node.Qualifier.(*ast.Identifier)
		if !ok {
			return nil, semErrf(node.Tok(), "invalid static access qualifier")
		}
		qualifier := hir.NewVarRef(qualIdent.Tok(), qualIdent.Name)
		name := hir.NewVarRef(node.Name.Tok(), node.Name.Name)
		return hir.NewStaticAccess(node.Tok(), qualifier, name), nil
	default:
		return nil, semErrf(n.Tok(), "uncallable expression")
	}
}
