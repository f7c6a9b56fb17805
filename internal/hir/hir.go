// Package hir defines the high-level IR HIR-gen produces and Sema annotates
// in place (spec §5 "HIR"). Every block variant named in the spec (Block,
// FunctionBlock, LoopBlock, ExternLibBlock, and the implicit global block)
// is one Go type, Block, discriminated by a Tag field: the four variants
// differ only in which of a handful of optional fields they populate, so a
// single struct avoids four near-duplicate types and the conversions
// between them that four real types would need during Sema's walk.
package hir

import (
	"github.com/dru-blip/picoc/internal/lexer"
	"github.com/dru-blip/picoc/internal/symbols"
)

type Tag int

const (
	TagGlobal Tag = iota
	TagBlock
	TagFunctionBlock
	TagLoopBlock
	TagExternLibBlock
)

// Node is any HIR node: a Block or one of the statement/expression kinds
// below. Every node knows its own NodeTag for Sema's type-switch dispatch.
type Node interface {
	NodeTag() NodeTag
	Token() lexer.Token
}

type NodeTag int

const (
	NTBlock NodeTag = iota
	NTBranch
	NTReturn
	NTBreak
	NTContinue
	NTLog
	NTStoreLocal
	NTStoreField
	NTVarRef
	NTCall
	NTBinOp
	NTUnOp
	NTCast
	NTBoolCast
	NTCreateStruct
	NTFieldValue
	NTFieldAccess
	NTStaticAccess
	NTConstInt
	NTConstStr
	NTConstBool
)

type base struct {
	tag NodeTag
	tok lexer.Token
}

func (b base) NodeTag() NodeTag   { return b.tag }
func (b base) Token() lexer.Token { return b.tok }

// Block is every HIR scope: the global block, a function body, a loop body,
// a plain nested block, or an extern-lib declaration group. Tag says which.
type Block struct {
	base
	Tag        Tag
	Name       string
	Parent     *Block
	ScopeDepth int
	Nodes      []Node
	scope      *symbols.Scope

	// FunctionBlock-only
	Symbol *symbols.Symbol
	TypeID int

	// ExternLibBlock-only
	LibName string
	Protos  []*symbols.Symbol

	// LoopBlock-only
	LoopID string
}

func NewGlobalBlock() *Block {
	return &Block{base: base{tag: NTBlock}, Tag: TagGlobal, Name: "Global", scope: symbols.NewScope()}
}

func NewBlock(tok lexer.Token, name string, parent *Block, scopeDepth int) *Block {
	return &Block{base: base{NTBlock, tok}, Tag: TagBlock, Name: name, Parent: parent, ScopeDepth: scopeDepth, scope: symbols.NewScope()}
}

func NewFunctionBlock(tok lexer.Token, name string, sym *symbols.Symbol, typeID int, parent *Block, scopeDepth int) *Block {
	return &Block{base: base{NTBlock, tok}, Tag: TagFunctionBlock, Name: name, Symbol: sym, TypeID: typeID, Parent: parent, ScopeDepth: scopeDepth, scope: symbols.NewScope()}
}

func NewLoopBlock(tok lexer.Token, loopID string, parent *Block, scopeDepth int) *Block {
	return &Block{base: base{NTBlock, tok}, Tag: TagLoopBlock, LoopID: loopID, Parent: parent, ScopeDepth: scopeDepth, scope: symbols.NewScope()}
}

func NewExternLibBlock(tok lexer.Token, alias, libName string, parent *Block) *Block {
	return &Block{base: base{NTBlock, tok}, Tag: TagExternLibBlock, Name: alias, LibName: libName, Parent: parent, scope: symbols.NewScope()}
}

func (b *Block) AddNode(n Node) { b.Nodes = append(b.Nodes, n) }

func (b *Block) Define(sym *symbols.Symbol) { b.scope.Define(sym) }

func (b *Block) DefineLocal(sym *symbols.Symbol) { b.scope.Define(sym) }

// Local returns a symbol defined directly in this block, without walking
// parents (used for redeclaration checks and extern-block member lookup).
func (b *Block) Local(name string) (*symbols.Symbol, bool) { return b.scope.Get(name) }

// Resolve walks from this block up through Parent until name is found,
// mirroring the original HirBlock/Sema resolve() walk.
func (b *Block) Resolve(name string) *symbols.Symbol {
	for blk := b; blk != nil; blk = blk.Parent {
		if sym, ok := blk.scope.Get(name); ok {
			return sym
		}
	}
	return nil
}

// ---- statement nodes ----

type Branch struct {
	base
	Cond Node
	Then *Block
	Else *Block // nil if no else
}

func NewBranch(tok lexer.Token, cond Node, then, els *Block) *Branch {
	return &Branch{base{NTBranch, tok}, cond, then, els}
}

type Return struct {
	base
	Expr   Node // nil for bare `return;`
	TypeID int
}

func NewReturn(tok lexer.Token, expr Node) *Return { return &Return{base: base{NTReturn, tok}, Expr: expr} }

// Break always targets the innermost enclosing loop; LoopID is filled in by
// HIR-gen from its loop-id stack. The emitter does not read it: it appends
// each break to the break-patch list on top of its own loop stack.
type Break struct {
	base
	LoopID string
}

func NewBreak(tok lexer.Token, loopID string) *Break { return &Break{base{NTBreak, tok}, loopID} }

type Continue struct {
	base
	LoopID string
}

func NewContinue(tok lexer.Token, loopID string) *Continue { return &Continue{base{NTContinue, tok}, loopID} }

type Log struct {
	base
	Expr Node
}

func NewLog(tok lexer.Token, expr Node) *Log { return &Log{base{NTLog, tok}, expr} }

// StoreLocal is both `let` (Symbol set by HIR-gen to the new Variable) and
// plain assignment to an already-declared variable (Symbol nil until Sema
// resolves it).
type StoreLocal struct {
	base
	Name   string
	Symbol *symbols.Symbol
	Value  Node
	TypeID int
}

func NewStoreLocal(tok lexer.Token, name string, value Node) *StoreLocal {
	return &StoreLocal{base: base{NTStoreLocal, tok}, Name: name, Value: value}
}

type StoreField struct {
	base
	Object     Node
	FieldName  string
	FieldIndex int
	Value      Node
	TypeID     int
}

func NewStoreField(tok lexer.Token, object Node, fieldName string, value Node) *StoreField {
	return &StoreField{base: base{NTStoreField, tok}, Object: object, FieldName: fieldName, Value: value}
}

// ---- expression nodes ----

type VarRef struct {
	base
	Name   string
	Symbol *symbols.Symbol
}

func NewVarRef(tok lexer.Token, name string) *VarRef { return &VarRef{base: base{NTVarRef, tok}, Name: name} }

type Call struct {
	base
	Callee         Node // *VarRef or *StaticAccess
	Args           []Node
	FunctionSymbol *symbols.Symbol
	TypeID         int
}

func NewCall(tok lexer.Token, callee Node, args []Node) *Call {
	return &Call{base: base{NTCall, tok}, Callee: callee, Args: args}
}

type BinOp struct {
	base
	Op       string
	Lhs, Rhs Node
	TypeID   int
}

func NewBinOp(tok lexer.Token, op string, lhs, rhs Node) *BinOp {
	return &BinOp{base: base{NTBinOp, tok}, Op: op, Lhs: lhs, Rhs: rhs}
}

type UnOp struct {
	base
	Op      string
	Operand Node
	TypeID  int
}

func NewUnOp(tok lexer.Token, op string, operand Node) *UnOp {
	return &UnOp{base: base{NTUnOp, tok}, Op: op, Operand: operand}
}

// Cast and BoolCast only ever appear inserted by Sema; the parser/hirgen
// pipeline never constructs one directly from surface syntax.
type Cast struct {
	base
	Expr             Node
	FromType, ToType int
}

func NewCast(tok lexer.Token, expr Node, fromType, toType int) *Cast {
	return &Cast{base{NTCast, tok}, expr, fromType, toType}
}

type BoolCast struct {
	base
	Expr Node
}

func NewBoolCast(tok lexer.Token, expr Node) *BoolCast { return &BoolCast{base{NTBoolCast, tok}, expr} }

type CreateStruct struct {
	base
	Name   *VarRef
	Values []*FieldValue
	TypeID int
}

func NewCreateStruct(tok lexer.Token, name *VarRef, values []*FieldValue) *CreateStruct {
	return &CreateStruct{base: base{NTCreateStruct, tok}, Name: name, Values: values}
}

type FieldValue struct {
	base
	FieldName  string
	Value      Node
	FieldIndex int
}

func NewFieldValue(tok lexer.Token, fieldName string, value Node) *FieldValue {
	return &FieldValue{base: base{NTFieldValue, tok}, FieldName: fieldName, Value: value}
}

type FieldAccess struct {
	base
	Object     Node
	FieldName  string
	FieldIndex int
	TypeID     int
}

func NewFieldAccess(tok lexer.Token, object Node, fieldName string) *FieldAccess {
	return &FieldAccess{base: base{NTFieldAccess, tok}, Object: object, FieldName: fieldName}
}

type StaticAccess struct {
	base
	Qualifier *VarRef
	Name      *VarRef
}

func NewStaticAccess(tok lexer.Token, qualifier, name *VarRef) *StaticAccess {
	return &StaticAccess{base: base{NTStaticAccess, tok}, Qualifier: qualifier, Name: name}
}

type ConstInt struct {
	base
	Value  int64
	IsLong bool
}

func NewConstInt(tok lexer.Token, value int64, isLong bool) *ConstInt {
	return &ConstInt{base{NTConstInt, tok}, value, isLong}
}

type ConstStr struct {
	base
	Value string
}

func NewConstStr(tok lexer.Token, value string) *ConstStr { return &ConstStr{base{NTConstStr, tok}, value} }

type ConstBool struct {
	base
	Value bool
}

func NewConstBool(tok lexer.Token, value bool) *ConstBool { return &ConstBool{base{NTConstBool, tok}, value} }
