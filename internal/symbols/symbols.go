// Package symbols defines the Symbol table entries and scope chain HIR-gen
// and Sema share (spec §5 "Symbol Table").
package symbols

import "github.com/dolthub/swiss"

type Kind string

const (
	KindVariable    Kind = "Variable"
	KindFunction    Kind = "Function"
	KindStruct      Kind = "Struct"
	KindParameter   Kind = "Parameter"
	KindModule      Kind = "Module"
	KindStructField Kind = "StructField"
)

type Linkage string

const (
	LinkageExternal Linkage = "External"
	LinkageInternal Linkage = "Internal"
)

// BlockRef is satisfied by *hir.Block; kept as an interface here so symbols
// has no dependency on hir (hir depends on symbols, not the reverse).
type BlockRef interface {
	Resolve(name string) *Symbol
}

// Symbol is one entry of a Scope, mirroring the original symtab.Symbol
// shape (name, kind, type_id, scope_depth plus the kind-specific extras).
type Symbol struct {
	Name        string
	Kind        Kind
	TypeID      int
	ScopeDepth  int
	LocalOffset int

	// function-only
	FunctionID int
	Params     []*Symbol
	IsDefined  bool
	Linkage    Linkage
	LibPrefix  string
	LibName    string

	// module-only
	BlockRef BlockRef

	// struct-only
	Fields     []*Symbol
	FieldIndex int
}

func NewVariable(name string, typeID, scopeDepth int) *Symbol {
	return &Symbol{Name: name, Kind: KindVariable, TypeID: typeID, ScopeDepth: scopeDepth, FieldIndex: -1}
}

func NewParameter(name string, typeID, scopeDepth int) *Symbol {
	return &Symbol{Name: name, Kind: KindParameter, TypeID: typeID, ScopeDepth: scopeDepth, FieldIndex: -1}
}

func NewFunction(name string, typeID int) *Symbol {
	return &Symbol{Name: name, Kind: KindFunction, TypeID: typeID, Linkage: LinkageInternal, FieldIndex: -1}
}

func NewStruct(name string, typeID int) *Symbol {
	return &Symbol{Name: name, Kind: KindStruct, TypeID: typeID, FieldIndex: -1}
}

func NewModule(name string, blockRef BlockRef) *Symbol {
	return &Symbol{Name: name, Kind: KindModule, BlockRef: blockRef, FieldIndex: -1}
}

// Scope is a name -> Symbol table backed by a swiss.Map for lookup speed in
// deeply nested block chains, grounded on the generic-map approach in
// mna-nenuphar/lang/machine/map.go. Scope has no parent pointer itself;
// parent-chain walking is hir.Block's job (Block embeds a *Scope).
type Scope struct {
	table *swiss.Map[string, *Symbol]
}

func NewScope() *Scope {
	return &Scope{table: swiss.NewMap[string, *Symbol](8)}
}

func (s *Scope) Define(sym *Symbol) { s.table.Put(sym.Name, sym) }

func (s *Scope) Get(name string) (*Symbol, bool) { return s.table.Get(name) }
