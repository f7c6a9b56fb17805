// Package ast defines the tagged-variant tree the parser produces: type
// expressions, declarations, statements and expressions, each carrying the
// token that started it (spec §3 "AST Nodes").
//
// Every consumer (HIR-gen) dispatches with a type switch on the concrete
// node type rather than a visitor interface — go/ast and most of the rest of
// the Go tool chain do the same for trees this wide, and it avoids a
// ~30-method interface that a double-dispatch Visitor would need here.
package ast

import "github.com/dru-blip/picoc/internal/lexer"

// OpTag names an operator independent of its surface-syntax spelling.
type OpTag string

const (
	OpAdd OpTag = "ADD"
	OpSub OpTag = "SUB"
	OpMul OpTag = "MUL"
	OpDiv OpTag = "DIV"
	OpMod OpTag = "MOD"

	OpAnd OpTag = "AND"
	OpOr  OpTag = "OR"

	OpBAnd OpTag = "BAND"
	OpBOr  OpTag = "BOR"
	OpBXor OpTag = "BXOR"
	OpShl  OpTag = "SHL"
	OpShr  OpTag = "SHR"

	OpEq  OpTag = "EQ"
	OpNeq OpTag = "NEQ"
	OpLt  OpTag = "LT"
	OpLte OpTag = "LTE"
	OpGt  OpTag = "GT"
	OpGte OpTag = "GTE"

	OpNot      OpTag = "NOT"
	OpPreInc   OpTag = "PRE_INC"
	OpPreDec   OpTag = "PRE_DEC"
	OpPostInc  OpTag = "POST_INC"
	OpPostDec  OpTag = "POST_DEC"

	OpAssign       OpTag = "ASSIGN"
	OpCall         OpTag = "CALL"
	OpStaticAccess OpTag = "STATIC_ACCESS"
	OpFieldAccess  OpTag = "FIELD_ACCESS"
	OpStructLit    OpTag = "STRUCT_LITERAL"
)

// Kind discriminates the concrete Go type of a Node.
type Kind int

const (
	KindNamedType Kind = iota

	KindFunctionPrototype
	KindFunctionDeclaration
	KindExternLibBlock
	KindStructDecl
	KindStructField
	KindVarDecl
	KindParam

	KindBlock
	KindIf
	KindLoopStmt
	KindWhileLoopStmt
	KindReturn
	KindBreak
	KindContinue
	KindLog
	KindExprStmt

	KindIntLiteral
	KindStrLiteral
	KindBoolLiteral
	KindIdentifier
	KindBinOp
	KindUnOp
	KindAssignment
	KindCompoundAssignment
	KindCall
	KindStaticAccess
	KindFieldAccess
	KindStructLiteral
)

// Node is any AST node. Every node carries the token that started it.
type Node interface {
	Kind() Kind
	Tok() lexer.Token
}

type base struct {
	kind  Kind
	token lexer.Token
}

func (b base) Kind() Kind        { return b.kind }
func (b base) Tok() lexer.Token  { return b.token }

// ---- type expressions ----

type NamedType struct {
	base
	Name string
}

func NewNamedType(tok lexer.Token, name string) *NamedType {
	return &NamedType{base{KindNamedType, tok}, name}
}

// ---- declarations ----

type Param struct {
	base
	Name string
	Type Node // *NamedType
}

func NewParam(tok lexer.Token, name string, typ Node) *Param {
	return &Param{base{KindParam, tok}, name, typ}
}

type FunctionPrototype struct {
	base
	Name       string
	ReturnType Node
	Params     []*Param
}

func NewFunctionPrototype(tok lexer.Token, name string, ret Node, params []*Param) *FunctionPrototype {
	return &FunctionPrototype{base{KindFunctionPrototype, tok}, name, ret, params}
}

type FunctionDeclaration struct {
	base
	Proto *FunctionPrototype
	Body  *Block // nil for a pure prototype (forward declaration)
}

func NewFunctionDeclaration(proto *FunctionPrototype, body *Block) *FunctionDeclaration {
	return &FunctionDeclaration{base{KindFunctionDeclaration, proto.Tok()}, proto, body}
}

// ExternLibBlock is `extern @alias="libname" { fn proto; ... }`. Alias is
// bound as the Module symbol used to qualify calls (`alias::fn(...)`);
// LibName is the string baked into the "<libname>_<fn>" extern constant.
type ExternLibBlock struct {
	base
	Alias   string
	LibName string
	Protos  []*FunctionPrototype
}

func NewExternLibBlock(tok lexer.Token, alias, libName string, protos []*FunctionPrototype) *ExternLibBlock {
	return &ExternLibBlock{base{KindExternLibBlock, tok}, alias, libName, protos}
}

type StructField struct {
	base
	Name string
	Type Node
}

func NewStructField(tok lexer.Token, name string, typ Node) *StructField {
	return &StructField{base{KindStructField, tok}, name, typ}
}

type StructDecl struct {
	base
	Name   string
	Fields []*StructField
}

func NewStructDecl(tok lexer.Token, name string, fields []*StructField) *StructDecl {
	return &StructDecl{base{KindStructDecl, tok}, name, fields}
}

type VarDecl struct {
	base
	Name string
	Init Node
}

func NewVarDecl(tok lexer.Token, name string, init Node) *VarDecl {
	return &VarDecl{base{KindVarDecl, tok}, name, init}
}

// ---- statements ----

type Block struct {
	base
	Stmts []Node
}

func NewBlock(tok lexer.Token, stmts []Node) *Block {
	return &Block{base{KindBlock, tok}, stmts}
}

type If struct {
	base
	Cond Node
	Then *Block
	Else *Block // a plain else block, an `else if` wrapped in a Block, or nil
}

func NewIf(tok lexer.Token, cond Node, then, els *Block) *If {
	return &If{base{KindIf, tok}, cond, then, els}
}

type LoopStmt struct {
	base
	Body *Block
}

func NewLoopStmt(tok lexer.Token, body *Block) *LoopStmt {
	return &LoopStmt{base{KindLoopStmt, tok}, body}
}

type WhileLoopStmt struct {
	base
	Cond Node
	Body *Block
}

func NewWhileLoopStmt(tok lexer.Token, cond Node, body *Block) *WhileLoopStmt {
	return &WhileLoopStmt{base{KindWhileLoopStmt, tok}, cond, body}
}

type Return struct {
	base
	Expr Node // nil for `return;`
}

func NewReturn(tok lexer.Token, expr Node) *Return {
	return &Return{base{KindReturn, tok}, expr}
}

type Break struct{ base }

func NewBreak(tok lexer.Token) *Break { return &Break{base{KindBreak, tok}} }

type Continue struct{ base }

func NewContinue(tok lexer.Token) *Continue { return &Continue{base{KindContinue, tok}} }

type Log struct {
	base
	Expr Node
}

func NewLog(tok lexer.Token, expr Node) *Log {
	return &Log{base{KindLog, tok}, expr}
}

type ExprStmt struct {
	base
	Expr Node
}

func NewExprStmt(tok lexer.Token, expr Node) *ExprStmt {
	return &ExprStmt{base{KindExprStmt, tok}, expr}
}

// ---- expressions ----

type IntLiteral struct {
	base
	Value  int64
	IsLong bool
}

func NewIntLiteral(tok lexer.Token, value int64, isLong bool) *IntLiteral {
	return &IntLiteral{base{KindIntLiteral, tok}, value, isLong}
}

type StrLiteral struct {
	base
	Value string
}

func NewStrLiteral(tok lexer.Token, value string) *StrLiteral {
	return &StrLiteral{base{KindStrLiteral, tok}, value}
}

type BoolLiteral struct {
	base
	Value bool
}

func NewBoolLiteral(tok lexer.Token, value bool) *BoolLiteral {
	return &BoolLiteral{base{KindBoolLiteral, tok}, value}
}

type Identifier struct {
	base
	Name string
}

func NewIdentifier(tok lexer.Token, name string) *Identifier {
	return &Identifier{base{KindIdentifier, tok}, name}
}

type BinOp struct {
	base
	Op       OpTag
	Lhs, Rhs Node
}

func NewBinOp(tok lexer.Token, op OpTag, lhs, rhs Node) *BinOp {
	return &BinOp{base{KindBinOp, tok}, op, lhs, rhs}
}

// UnOp covers logical-not and pre/post increment/decrement.
type UnOp struct {
	base
	Op      OpTag
	Operand Node
}

func NewUnOp(tok lexer.Token, op OpTag, operand Node) *UnOp {
	return &UnOp{base{KindUnOp, tok}, op, operand}
}

type Assignment struct {
	base
	Target Node // Identifier or FieldAccess
	Value  Node
}

func NewAssignment(tok lexer.Token, target, value Node) *Assignment {
	return &Assignment{base{KindAssignment, tok}, target, value}
}

// CompoundAssignment is `target op= value`; Op is the underlying arithmetic
// operator (ADD for +=, etc), not a distinct compound tag.
type CompoundAssignment struct {
	base
	Op     OpTag
	Target Node
	Value  Node
}

func NewCompoundAssignment(tok lexer.Token, op OpTag, target, value Node) *CompoundAssignment {
	return &CompoundAssignment{base{KindCompoundAssignment, tok}, op, target, value}
}

type Call struct {
	base
	Callee Node
	Args   []Node
}

func NewCall(tok lexer.Token, callee Node, args []Node) *Call {
	return &Call{base{KindCall, tok}, callee, args}
}

// StaticAccess is `qualifier::name`, used for extern-lib calls.
type StaticAccess struct {
	base
	Qualifier Node // Identifier
	Name      *Identifier
}

func NewStaticAccess(tok lexer.Token, qualifier Node, name *Identifier) *StaticAccess {
	return &StaticAccess{base{KindStaticAccess, tok}, qualifier, name}
}

type FieldAccess struct {
	base
	Object Node
	Field  *Identifier
}

func NewFieldAccess(tok lexer.Token, object Node, field *Identifier) *FieldAccess {
	return &FieldAccess{base{KindFieldAccess, tok}, object, field}
}

// StructFieldInit is one `.name = value` entry of a StructLiteral.
type StructFieldInit struct {
	Name  *Identifier
	Value Node
}

type StructLiteral struct {
	base
	Name   *Identifier
	Fields []StructFieldInit
}

func NewStructLiteral(tok lexer.Token, name *Identifier, fields []StructFieldInit) *StructLiteral {
	return &StructLiteral{base{KindStructLiteral, tok}, name, fields}
}

// Cast has no surface syntax in Pico: the keyword set has no "as"/cast
// keyword and §4.2 lists only four postfix forms (call, struct literal,
// field access, static access). Every Cast or BoolCast in the tree is
// inserted by Sema directly on the HIR; the parser never produces one.
