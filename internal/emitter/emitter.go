// Package emitter linearises an hir.Block tree into the "PEXB" bytecode
// module format (spec §4.6, §4.7). Grounded on the original ir.py's
// IrModule/FunctionIR shape and const-pool dedup, and on
// sentra-language-sentra's internal/compiler/compiler.go jump-patch pattern
// (reserve two placeholder bytes, record the position, patch once the
// target address is known).
package emitter

import (
	"encoding/binary"
	"fmt"

	"github.com/dru-blip/picoc/internal/errors"
	"github.com/dru-blip/picoc/internal/hir"
	"github.com/dru-blip/picoc/internal/lexer"
	"github.com/dru-blip/picoc/internal/symbols"
)

const voidType = 1 // types.VoidType, duplicated to avoid an import cycle risk

// Module accumulates the constant pool, function table and extern-block
// table for one compiled program.
type Module struct {
	constPool  []interface{}
	intIndex   map[int64]int
	strIndex   map[string]int
	functions  []*functionIR
	externs    []*externIR
	entryFnID  uint16
	haveEntry  bool

	fnIDCounter uint16
}

type functionIR struct {
	functionID uint16
	nameIdx    uint16
	paramCount uint16
	localCount uint16
	code       []byte
}

type externIR struct {
	nameIdx uint16
	indices []uint16
}

func NewModule() *Module {
	return &Module{
		intIndex: make(map[int64]int),
		strIndex: make(map[string]int),
	}
}

func (m *Module) constIndexInt(v int64) int {
	if idx, ok := m.intIndex[v]; ok {
		return idx
	}
	idx := len(m.constPool)
	m.constPool = append(m.constPool, v)
	m.intIndex[v] = idx
	return idx
}

func (m *Module) constIndexStr(v string) int {
	if idx, ok := m.strIndex[v]; ok {
		return idx
	}
	idx := len(m.constPool)
	m.constPool = append(m.constPool, v)
	m.strIndex[v] = idx
	return idx
}

// Emit walks the global HIR block, assigning a dense function_id to every
// defined function (in declaration order) before emitting any bodies, so a
// forward call always finds its callee's id already allocated.
func Emit(global *hir.Block) ([]byte, error) {
	m := NewModule()

	var fnBlocks []*hir.Block
	var externBlocks []*hir.Block
	for _, n := range global.Nodes {
		blk, ok := n.(*hir.Block)
		if !ok {
			continue
		}
		switch blk.Tag {
		case hir.TagFunctionBlock:
			fnBlocks = append(fnBlocks, blk)
		case hir.TagExternLibBlock:
			externBlocks = append(externBlocks, blk)
		}
	}

	for _, eb := range externBlocks {
		nameIdx := uint16(m.constIndexStr(eb.Name))
		indices := make([]uint16, len(eb.Protos))
		for i, proto := range eb.Protos {
			externName := proto.LibName + "_" + proto.Name
			indices[i] = uint16(m.constIndexStr(externName))
		}
		m.externs = append(m.externs, &externIR{nameIdx: nameIdx, indices: indices})
	}

	for _, fb := range fnBlocks {
		fb.Symbol.FunctionID = int(m.fnIDCounter)
		m.fnIDCounter++
	}

	for _, fb := range fnBlocks {
		fn, err := m.compileFunction(fb)
		if err != nil {
			return nil, err
		}
		m.functions = append(m.functions, fn)
		if fb.Name == "main" {
			m.entryFnID = fn.functionID
			m.haveEntry = true
		}
	}

	if !m.haveEntry {
		return nil, errors.New(errors.Semantic, "no function named main", errors.TokenInfo{})
	}

	return m.serialize(), nil
}

// localAlloc assigns dense u16 offsets to a function's locals (parameters
// first, then each newly seen variable in StoreLocal order).
type localAlloc struct {
	offsets map[*symbols.Symbol]int
	next    int
}

func newLocalAlloc() *localAlloc { return &localAlloc{offsets: make(map[*symbols.Symbol]int)} }

// offsetOf assigns sym its dense local slot on first sight and stamps it
// onto sym.LocalOffset too, so the symbol itself carries its own offset
// per spec §3's symbol model, not just this function-local map.
func (l *localAlloc) offsetOf(sym *symbols.Symbol) int {
	if off, ok := l.offsets[sym]; ok {
		return off
	}
	off := l.next
	l.offsets[sym] = off
	l.next++
	sym.LocalOffset = off
	return off
}

type fnEmitter struct {
	m       *Module
	locals  *localAlloc
	code    []byte
	loopStarts []int
	breakPatches [][]int // parallel to loopStarts
}

func (m *Module) compileFunction(fb *hir.Block) (*functionIR, error) {
	fe := &fnEmitter{m: m, locals: newLocalAlloc()}
	for _, p := range fb.Symbol.Params {
		fe.locals.offsetOf(p)
	}
	for _, n := range fb.Nodes {
		if err := fe.emitStmt(n); err != nil {
			return nil, err
		}
	}
	nameIdx := m.constIndexStr(fb.Name)
	return &functionIR{
		functionID: uint16(fb.Symbol.FunctionID),
		nameIdx:    uint16(nameIdx),
		paramCount: uint16(len(fb.Symbol.Params)),
		localCount: uint16(fe.locals.next),
		code:       fe.code,
	}, nil
}

func (fe *fnEmitter) emit(op Op)        { fe.code = append(fe.code, byte(op)) }
func (fe *fnEmitter) emitU16(v uint16)  { fe.code = append(fe.code, byte(v), byte(v>>8)) }
func (fe *fnEmitter) pos() int          { return len(fe.code) }

// reserve writes two placeholder bytes and returns their position for a
// later patch.
func (fe *fnEmitter) reserve() int {
	p := len(fe.code)
	fe.code = append(fe.code, 0, 0)
	return p
}

func (fe *fnEmitter) patch(pos int, target int) {
	v := uint16(target)
	fe.code[pos] = byte(v)
	fe.code[pos+1] = byte(v >> 8)
}

func tokErr(tok lexer.Token, msg string) error {
	return errors.New(errors.Semantic, msg, errors.TokenInfo{
		Line: tok.Loc.Line, Col: tok.Loc.Col, Start: tok.Loc.Start, End: tok.Loc.End, LineStart: tok.LineStart,
	})
}

func (fe *fnEmitter) emitStmt(n hir.Node) error {
	switch node := n.(type) {
	case *hir.Return:
		if node.Expr != nil {
			if err := fe.emitExpr(node.Expr); err != nil {
				return err
			}
		}
		fe.emit(RET)
		return nil
	case *hir.Log:
		if err := fe.emitExpr(node.Expr); err != nil {
			return err
		}
		fe.emit(LOG)
		return nil
	case *hir.Block:
		return fe.emitBlockBody(node)
	case *hir.Branch:
		return fe.emitBranch(node)
	case *hir.Break:
		if len(fe.loopStarts) == 0 {
			return tokErr(node.Token(), "break outside a loop")
		}
		fe.emit(JMP)
		p := fe.reserve()
		top := len(fe.breakPatches) - 1
		fe.breakPatches[top] = append(fe.breakPatches[top], p)
		return nil
	case *hir.Continue:
		if len(fe.loopStarts) == 0 {
			return tokErr(node.Token(), "continue outside a loop")
		}
		fe.emit(JMP)
		p := fe.reserve()
		fe.patch(p, fe.loopStarts[len(fe.loopStarts)-1])
		return nil
	case *hir.StoreLocal:
		return fe.emitStoreLocal(node)
	case *hir.StoreField:
		return fe.emitStoreField(node)
	default:
		// a bare expression statement
		if expr, ok := n.(hir.Node); ok {
			return fe.emitExpr(expr)
		}
		return tokErr(n.Token(), "cannot emit node")
	}
}

func (fe *fnEmitter) emitBlockBody(blk *hir.Block) error {
	if blk.Tag == hir.TagLoopBlock {
		loopStart := fe.pos()
		fe.loopStarts = append(fe.loopStarts, loopStart)
		fe.breakPatches = append(fe.breakPatches, nil)
		for _, n := range blk.Nodes {
			if err := fe.emitStmt(n); err != nil {
				return err
			}
		}
		fe.emit(JMP)
		p := fe.reserve()
		fe.patch(p, loopStart)
		top := len(fe.breakPatches) - 1
		patches := fe.breakPatches[top]
		fe.breakPatches = fe.breakPatches[:top]
		fe.loopStarts = fe.loopStarts[:len(fe.loopStarts)-1]
		exitPos := fe.pos()
		for _, bp := range patches {
			fe.patch(bp, exitPos)
		}
		return nil
	}
	for _, n := range blk.Nodes {
		if err := fe.emitStmt(n); err != nil {
			return err
		}
	}
	return nil
}

// emitBranch follows spec §4.6's control-flow patching recipe verbatim.
func (fe *fnEmitter) emitBranch(node *hir.Branch) error {
	if err := fe.emitExpr(node.Cond); err != nil {
		return err
	}
	fe.emit(JF)
	jfPatch := fe.reserve()

	if err := fe.emitBlockBody(node.Then); err != nil {
		return err
	}

	if node.Else != nil {
		fe.emit(JMP)
		jmpPatch := fe.reserve()
		fe.patch(jfPatch, fe.pos())
		if err := fe.emitBlockBody(node.Else); err != nil {
			return err
		}
		fe.patch(jmpPatch, fe.pos())
	} else {
		fe.patch(jfPatch, fe.pos())
	}
	return nil
}

func (fe *fnEmitter) emitStoreLocal(node *hir.StoreLocal) error {
	if err := fe.emitExpr(node.Value); err != nil {
		return err
	}
	off := fe.locals.offsetOf(node.Symbol)
	fe.emit(STORE)
	fe.emitU16(uint16(off))
	return nil
}

func (fe *fnEmitter) emitStoreField(node *hir.StoreField) error {
	if err := fe.emitExpr(node.Object); err != nil {
		return err
	}
	if err := fe.emitExpr(node.Value); err != nil {
		return err
	}
	fe.emit(SET_FIELD)
	fe.emitU16(uint16(node.FieldIndex))
	return nil
}

func (fe *fnEmitter) emitExpr(n hir.Node) error {
	switch node := n.(type) {
	case *hir.ConstInt:
		idx := fe.m.constIndexInt(node.Value)
		fe.emit(LIC)
		fe.emitU16(uint16(idx))
		return nil
	case *hir.ConstStr:
		idx := fe.m.constIndexStr(node.Value)
		fe.emit(LSC)
		fe.emitU16(uint16(idx))
		return nil
	case *hir.ConstBool:
		if node.Value {
			fe.emit(LBT)
		} else {
			fe.emit(LBF)
		}
		return nil
	case *hir.VarRef:
		off := fe.locals.offsetOf(node.Symbol)
		fe.emit(LOAD)
		fe.emitU16(uint16(off))
		return nil
	case *hir.BinOp:
		return fe.emitBinOp(node)
	case *hir.UnOp:
		return fe.emitUnOp(node)
	case *hir.Cast:
		return fe.emitCast(node)
	case *hir.BoolCast:
		if err := fe.emitExpr(node.Expr); err != nil {
			return err
		}
		fe.emit(I2B)
		return nil
	case *hir.Call:
		return fe.emitCall(node)
	case *hir.FieldAccess:
		if err := fe.emitExpr(node.Object); err != nil {
			return err
		}
		fe.emit(LOAD_FIELD)
		fe.emitU16(uint16(node.FieldIndex))
		return nil
	case *hir.CreateStruct:
		return fe.emitCreateStruct(node)
	case *hir.StoreLocal:
		return fe.emitStoreLocal(node)
	case *hir.StoreField:
		return fe.emitStoreField(node)
	default:
		return tokErr(n.Token(), "cannot emit expression node")
	}
}

var binOpcode = map[string]Op{
	"ADD": IADD, "SUB": ISUB, "MUL": IMUL, "DIV": IDIV, "MOD": IREM,
	"BAND": IAND, "BOR": IOR, "BXOR": IXOR, "SHL": ISHL, "SHR": ISHR,
	"EQ": IEQ, "NEQ": INE, "LT": ILT, "LTE": ILE, "GT": IGT, "GTE": IGE,
}

func (fe *fnEmitter) emitBinOp(node *hir.BinOp) error {
	if err := fe.emitExpr(node.Lhs); err != nil {
		return err
	}
	if err := fe.emitExpr(node.Rhs); err != nil {
		return err
	}
	switch node.Op {
	case "AND":
		fe.emit(IAND)
	case "OR":
		fe.emit(IOR)
	default:
		op, ok := binOpcode[node.Op]
		if !ok {
			return tokErr(node.Token(), fmt.Sprintf("unknown binary operator %s", node.Op))
		}
		fe.emit(op)
	}
	return nil
}

// emitUnOp handles NOT and pre/post increment/decrement, both the variable
// and field-access forms. See emitIncDec for how the field-access form
// preserves the pre-increment value (spec §9 open question iii).
func (fe *fnEmitter) emitUnOp(node *hir.UnOp) error {
	switch node.Op {
	case "NOT":
		if err := fe.emitExpr(node.Operand); err != nil {
			return err
		}
		fe.emit(BNOT)
		return nil
	case "PRE_INC", "PRE_DEC", "POST_INC", "POST_DEC":
		return fe.emitIncDec(node)
	default:
		return tokErr(node.Token(), fmt.Sprintf("unknown unary operator %s", node.Op))
	}
}

func (fe *fnEmitter) emitIncDec(node *hir.UnOp) error {
	isInc := node.Op == "PRE_INC" || node.Op == "POST_INC"
	isPost := node.Op == "POST_INC" || node.Op == "POST_DEC"

	switch target := node.Operand.(type) {
	case *hir.VarRef:
		off := uint16(fe.locals.offsetOf(target.Symbol))
		if isPost {
			fe.emit(LOAD)
			fe.emitU16(off)
		}
		if isInc {
			fe.emit(IINC)
		} else {
			fe.emit(IDEC)
		}
		fe.emitU16(off)
		if !isPost {
			fe.emit(LOAD)
			fe.emitU16(off)
		}
		return nil
	case *hir.FieldAccess:
		// IFIELD_INC/IFIELD_DEC pop the object reference, mutate the field
		// in place and push nothing back — mirroring IINC/IDEC's "no stack
		// traffic for the storage side" contract for locals. Since the
		// object reference lives on the stack (not in local storage like a
		// plain variable), the object sub-expression is emitted twice: once
		// to feed the in-place op, once to feed the LOAD_FIELD that
		// recovers the value the post/pre form needs. This fixes the
		// original's bug of dropping the pre-increment value (spec §9 open
		// question iii) without needing a stack-juggling opcode; the
		// tradeoff is that Object is evaluated twice; it is always a pure
		// chain of identifier/field reads, never a call, so this is safe.
		idx := uint16(target.FieldIndex)
		if isPost {
			if err := fe.emitExpr(target.Object); err != nil {
				return err
			}
			fe.emit(LOAD_FIELD)
			fe.emitU16(idx)
		}
		if err := fe.emitExpr(target.Object); err != nil {
			return err
		}
		if isInc {
			fe.emit(IFIELD_INC)
		} else {
			fe.emit(IFIELD_DEC)
		}
		fe.emitU16(idx)
		if !isPost {
			if err := fe.emitExpr(target.Object); err != nil {
				return err
			}
			fe.emit(LOAD_FIELD)
			fe.emitU16(idx)
		}
		return nil
	default:
		return tokErr(node.Token(), "invalid increment/decrement target")
	}
}

func (fe *fnEmitter) emitCast(node *hir.Cast) error {
	if err := fe.emitExpr(node.Expr); err != nil {
		return err
	}
	op, ok := castOpcode[[2]int{node.FromType, node.ToType}]
	if !ok {
		return tokErr(node.Token(), "no cast opcode for this conversion")
	}
	fe.emit(op)
	return nil
}

func (fe *fnEmitter) emitCall(node *hir.Call) error {
	for _, arg := range node.Args {
		if err := fe.emitExpr(arg); err != nil {
			return err
		}
	}
	sym := node.FunctionSymbol
	isVoid := node.TypeID == voidType

	if sym.Linkage == symbols.LinkageExternal {
		externName := sym.LibName + "_" + sym.Name
		idx := fe.m.constIndexStr(externName)
		if isVoid {
			fe.emit(VOID_CALL_EXTERN)
		} else {
			fe.emit(CALL_EXTERN)
		}
		fe.emitU16(uint16(idx))
		return nil
	}

	if isVoid {
		fe.emit(VOID_CALL)
	} else {
		fe.emit(CALL)
	}
	fe.emitU16(uint16(sym.FunctionID))
	return nil
}

func (fe *fnEmitter) emitCreateStruct(node *hir.CreateStruct) error {
	fe.emit(ALLOCA_STRUCT)
	fe.emitU16(uint16(node.TypeID))
	for _, fv := range node.Values {
		fe.emit(DUP)
		if err := fe.emitExpr(fv.Value); err != nil {
			return err
		}
		fe.emit(SET_FIELD)
		fe.emitU16(uint16(fv.FieldIndex))
	}
	return nil
}

// ---- serialization ----

func (m *Module) serialize() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, 'P', 'E', 'X', 'B')
	buf = append(buf, make([]byte, 12)...)

	buf = appendU16(buf, uint16(len(m.constPool)))
	for _, c := range m.constPool {
		switch v := c.(type) {
		case int64:
			buf = append(buf, 0x01)
			buf = appendU32(buf, uint32(v))
		case string:
			buf = append(buf, 0x02)
			b := []byte(v)
			buf = appendU16(buf, uint16(len(b)))
			buf = append(buf, b...)
		}
	}

	buf = appendU16(buf, m.entryFnID)
	buf = appendU16(buf, uint16(len(m.functions)))
	for _, f := range m.functions {
		buf = appendU16(buf, f.functionID)
		buf = appendU16(buf, f.nameIdx)
		buf = appendU16(buf, f.paramCount)
		buf = appendU16(buf, f.localCount)
		buf = appendU32(buf, uint32(len(f.code)))
		buf = append(buf, f.code...)
	}

	buf = appendU16(buf, uint16(len(m.externs)))
	for _, e := range m.externs {
		buf = appendU16(buf, uint16(len(e.indices)))
		buf = appendU16(buf, e.nameIdx)
		for _, idx := range e.indices {
			buf = appendU16(buf, idx)
		}
	}
	return buf
}

func appendU16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}
