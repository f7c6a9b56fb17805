// Package types implements the type registry Sema consults to validate
// every operator, cast, assignment and call (spec §5 "Type System"). A
// TypeRegistry is created fresh per compiler invocation rather than kept as
// a process-wide singleton, so two concurrent compiles never share mutable
// type-interning state (spec §9 design note, §5 concurrency/resource model).
package types

import "github.com/dolthub/swiss"

// Kind names the category a TypeObject belongs to.
type Kind string

const (
	KindNone     Kind = "None"
	KindVoid     Kind = "Void"
	KindInt      Kind = "int"
	KindBool     Kind = "bool"
	KindLong     Kind = "long"
	KindStr      Kind = "Str"
	KindFunction Kind = "function"
	KindStruct   Kind = "Struct"
)

// Fixed primitive type IDs. User types are interned starting at
// firstUserTypeID.
const (
	NoneType = 0
	VoidType = 1
	BoolType = 2
	IntType  = 3
	LongType = 4
	StrType  = 5

	firstUserTypeID = 6
)

// Field is the minimal shape TypeRegistry needs from a struct field symbol:
// a name (for lookup) and a type id. HIR-gen copies both out of each field's
// internal/symbols.Symbol.
type Field struct {
	Name   string
	TypeID int
}

// Param mirrors Field for function parameter signatures.
type Param struct {
	TypeID int
}

// Object is one entry of the registry: a primitive, a function signature or
// a struct layout.
type Object struct {
	Kind       Kind
	RetType    int
	Params     []Param
	Fields     []Field
	ID         int
	IsComplete bool // only meaningful for Kind == KindStruct
}

// funcKey lets the swiss map dedupe function signatures without a linear
// scan of every interned type (the original implementation's add_function
// loop, grounded here on mna-nenuphar/lang/machine/map.go's swiss.Map use).
type funcKey struct {
	ret    int
	params string
}

// Registry interns types for one compiler invocation. It is NOT safe for
// concurrent use by multiple compiles; each Compile call owns its own
// Registry instance.
type Registry struct {
	types    []*Object
	funcs    *swiss.Map[funcKey, int]
	counter  int
}

// New returns a registry pre-seeded with the six primitive types.
func New() *Registry {
	r := &Registry{
		types:   make([]*Object, firstUserTypeID, firstUserTypeID+16),
		funcs:   swiss.NewMap[funcKey, int](8),
		counter: firstUserTypeID,
	}
	r.types[NoneType] = &Object{Kind: KindNone, ID: NoneType}
	r.types[VoidType] = &Object{Kind: KindVoid, ID: VoidType}
	r.types[BoolType] = &Object{Kind: KindBool, ID: BoolType}
	r.types[IntType] = &Object{Kind: KindInt, ID: IntType}
	r.types[LongType] = &Object{Kind: KindLong, ID: LongType}
	r.types[StrType] = &Object{Kind: KindStr, ID: StrType}
	return r
}

// GetType returns the interned object for typeID. Panics on an out-of-range
// id: callers only ever pass ids this Registry itself handed out.
func (r *Registry) GetType(typeID int) *Object { return r.types[typeID] }

func (r *Registry) IsIntegerType(typeID int) bool {
	return typeID == IntType || typeID == LongType
}

func paramKey(params []Param) string {
	buf := make([]byte, 0, len(params)*2)
	for _, p := range params {
		buf = append(buf, byte(p.TypeID), '|')
	}
	return string(buf)
}

// AddFunction interns a function signature, returning an existing type id
// if an identical (ret, params) signature was already registered.
func (r *Registry) AddFunction(retType int, params []Param) int {
	key := funcKey{ret: retType, params: paramKey(params)}
	if id, ok := r.funcs.Get(key); ok {
		return id
	}
	obj := &Object{Kind: KindFunction, RetType: retType, Params: params, ID: r.counter, IsComplete: true}
	r.types = append(r.types, obj)
	r.funcs.Put(key, obj.ID)
	r.counter++
	return obj.ID
}

// AddIncompleteStruct reserves a struct type id before its field list is
// known, so a struct's own fields may reference the struct itself and so
// forward-declared structs can be referenced before their fields are
// visited (mirrors the two-pass hir-gen type pre-pass, spec §5/§9).
func (r *Registry) AddIncompleteStruct() int {
	obj := &Object{Kind: KindStruct, ID: r.counter}
	r.types = append(r.types, obj)
	r.counter++
	return obj.ID
}

// CompleteStruct fills in the field list of a struct type id previously
// reserved by AddIncompleteStruct.
func (r *Registry) CompleteStruct(typeID int, fields []Field) {
	obj := r.types[typeID]
	obj.Fields = fields
	obj.IsComplete = true
}

// ---- compatibility matrices ----
//
// Each matrix is indexed [lhs][rhs] over the six primitive type ids and
// returns 0 (NoneType, meaning incompatible) or the resulting type id.
// Values taken verbatim from the original implementation's TypeRegistry.

var arithMatrix = [6][6]int{
	{0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0},
	{0, 0, 0, IntType, LongType, 0},
	{0, 0, 0, LongType, LongType, 0},
	{0, 0, 0, 0, 0, 0},
}

var compMatrix = [6][6]int{
	{0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0},
	{0, 0, BoolType, 0, 0, 0},
	{0, 0, 0, BoolType, BoolType, 0},
	{0, 0, 0, BoolType, BoolType, 0},
	{0, 0, 0, 0, 0, 0},
}

var logicalMatrix = [6][6]int{
	{0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0},
	{0, 0, BoolType, 0, 0, 0},
	{0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0},
}

var assignMatrix = [6][6]int{
	{0, 0, 0, 0, 0, 0},
	{0, VoidType, 0, 0, 0, 0},
	{0, 0, BoolType, 0, 0, 0},
	{0, 0, 0, IntType, 0, 0},
	{0, 0, 0, LongType, LongType, 0},
	{0, 0, 0, 0, 0, StrType},
}

var castMatrix = [6][6]int{
	{0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0},
	{0, 0, BoolType, IntType, LongType, 0},
	{0, 0, BoolType, IntType, LongType, 0},
	{0, 0, BoolType, IntType, LongType, 0},
	{0, 0, 0, 0, 0, StrType},
}

func lookup(matrix [6][6]int, lhs, rhs int) int {
	if lhs < 0 || lhs >= len(matrix) || rhs < 0 || rhs >= len(matrix[lhs]) {
		return NoneType
	}
	return matrix[lhs][rhs]
}

func GetArithmeticType(lhs, rhs int) int { return lookup(arithMatrix, lhs, rhs) }
func GetComparisonType(lhs, rhs int) int { return lookup(compMatrix, lhs, rhs) }
func GetLogicalType(lhs, rhs int) int    { return lookup(logicalMatrix, lhs, rhs) }
func GetCastType(lhs, rhs int) int       { return lookup(castMatrix, lhs, rhs) }

// GetAssignmentType checks whether a value of type got can be assigned to a
// slot of type expected. When the primitive matrix reports incompatible it
// falls back to allowing a non-primitive assignment only between values of
// the same kind and the same type id (e.g. two values of one struct type);
// two different struct types are not assignable to each other.
func (r *Registry) GetAssignmentType(expected, got int) int {
	compatible := lookup(assignMatrix, expected, got)
	if compatible != NoneType {
		return compatible
	}
	expectedObj, gotObj := r.GetType(expected), r.GetType(got)
	if expectedObj.Kind != gotObj.Kind || expected != got {
		return NoneType
	}
	return got
}
