// Package parser implements a recursive-descent/Pratt parser that turns a
// lexer.Token stream into an ordered slice of top-level declarations
// (spec §4.2).
package parser

import (
	"fmt"
	"strconv"

	"github.com/dru-blip/picoc/internal/ast"
	"github.com/dru-blip/picoc/internal/errors"
	"github.com/dru-blip/picoc/internal/lexer"
)

// bindingPower is the (left, right) precedence pair for an infix operator
// token. Ties follow C-like precedence (§4.2); all operators here are
// left-associative, so right = left+1 is computed at the call site.
var bindingPower = map[lexer.Tag]int{
	lexer.PipePi:     1,
	lexer.AmpAmp:     2,
	lexer.Pipe:       3,
	lexer.Caret:      4,
	lexer.Amp:        5,
	lexer.EqualEqual: 6,
	lexer.NotEqual:   6,
	lexer.Less:       7,
	lexer.LessEq:     7,
	lexer.Greater:    7,
	lexer.GreaterEq:  7,
	lexer.LessLess:   8,
	lexer.GreatGr:    8,
	lexer.Plus:       9,
	lexer.Minus:      9,
	lexer.Star:       10,
	lexer.Slash:      10,
	lexer.Percent:    10,
}

var tokenToOp = map[lexer.Tag]ast.OpTag{
	lexer.PipePi:     ast.OpOr,
	lexer.AmpAmp:     ast.OpAnd,
	lexer.Pipe:       ast.OpBOr,
	lexer.Caret:      ast.OpBXor,
	lexer.Amp:        ast.OpBAnd,
	lexer.EqualEqual: ast.OpEq,
	lexer.NotEqual:   ast.OpNeq,
	lexer.Less:       ast.OpLt,
	lexer.LessEq:     ast.OpLte,
	lexer.Greater:    ast.OpGt,
	lexer.GreaterEq:  ast.OpGte,
	lexer.LessLess:   ast.OpShl,
	lexer.GreatGr:    ast.OpShr,
	lexer.Plus:       ast.OpAdd,
	lexer.Minus:      ast.OpSub,
	lexer.Star:       ast.OpMul,
	lexer.Slash:      ast.OpDiv,
	lexer.Percent:    ast.OpMod,
}

var compoundAssignOp = map[lexer.Tag]ast.OpTag{
	lexer.PlusEq:    ast.OpAdd,
	lexer.MinusEq:   ast.OpSub,
	lexer.StarEq:    ast.OpMul,
	lexer.SlashEq:   ast.OpDiv,
	lexer.PercentEq: ast.OpMod,
}

// Parser consumes a flat token slice. There is no error recovery: the first
// error aborts parsing (§4.2).
type Parser struct {
	filename string
	tokens   []lexer.Token
	pos      int
}

func New(tokens []lexer.Token, filename string) *Parser {
	return &Parser{filename: filename, tokens: tokens}
}

// Parse tokenizes nothing itself (the caller supplies tokens) and returns
// the ordered list of top-level declarations.
func Parse(tokens []lexer.Token, filename string) ([]ast.Node, error) {
	return New(tokens, filename).ParseProgram()
}

func (p *Parser) cur() lexer.Token { return p.tokens[p.pos] }

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.pos]
	if p.pos+1 < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) check(tag lexer.Tag) bool { return p.cur().Tag == tag }

func (p *Parser) match(tag lexer.Tag) bool {
	if p.check(tag) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(tag lexer.Tag) (lexer.Token, error) {
	if !p.check(tag) {
		return lexer.Token{}, p.syntaxErrf(p.cur(), "expected %s but got %s", tag, p.cur().Tag)
	}
	return p.advance(), nil
}

func (p *Parser) syntaxErrf(tok lexer.Token, format string, args ...interface{}) error {
	return errors.New(errors.Syntax, fmt.Sprintf(format, args...), tokenInfo(tok))
}

func tokenInfo(tok lexer.Token) errors.TokenInfo {
	return errors.TokenInfo{
		Line: tok.Loc.Line, Col: tok.Loc.Col, Start: tok.Loc.Start, End: tok.Loc.End, LineStart: tok.LineStart,
	}
}

// ParseProgram parses every top-level declaration until EOF.
func (p *Parser) ParseProgram() ([]ast.Node, error) {
	var decls []ast.Node
	for !p.check(lexer.EOF) {
		decl, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func (p *Parser) parseTopLevel() (ast.Node, error) {
	switch {
	case p.check(lexer.KwExtern):
		return p.parseExternBlock()
	case p.check(lexer.KwStruct):
		return p.parseStructDecl()
	case p.check(lexer.KwFn):
		return p.parseFunctionDeclaration()
	default:
		return nil, p.syntaxErrf(p.cur(), "expected a top-level declaration, got %s", p.cur().Tag)
	}
}

func (p *Parser) parseExternBlock() (ast.Node, error) {
	tok := p.advance() // extern
	if _, err := p.expect(lexer.At); err != nil {
		return nil, err
	}
	aliasTok, err := p.expect(lexer.ID)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Equal); err != nil {
		return nil, err
	}
	libTok, err := p.expect(lexer.StrLit)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	var protos []*ast.FunctionPrototype
	for !p.check(lexer.RBrace) {
		proto, err := p.parseFunctionPrototype()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return nil, err
		}
		protos = append(protos, proto)
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return ast.NewExternLibBlock(tok, aliasTok.Value, libTok.Value, protos), nil
}

func (p *Parser) parseStructDecl() (ast.Node, error) {
	tok := p.advance() // struct
	nameTok, err := p.expect(lexer.ID)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	var fields []*ast.StructField
	for !p.check(lexer.RBrace) {
		fieldTypeTok := p.cur()
		typ, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		fieldNameTok, err := p.expect(lexer.ID)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return nil, err
		}
		fields = append(fields, ast.NewStructField(fieldTypeTok, fieldNameTok.Value, typ))
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return ast.NewStructDecl(tok, nameTok.Value, fields), nil
}

func (p *Parser) parseFunctionDeclaration() (ast.Node, error) {
	proto, err := p.parseFunctionPrototype()
	if err != nil {
		return nil, err
	}
	if p.match(lexer.Semicolon) {
		return ast.NewFunctionDeclaration(proto, nil), nil
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewFunctionDeclaration(proto, body), nil
}

func (p *Parser) parseFunctionPrototype() (*ast.FunctionPrototype, error) {
	tok := p.advance() // fn
	nameTok, err := p.expect(lexer.ID)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	var params []*ast.Param
	for !p.check(lexer.RParen) {
		paramTok := p.cur()
		typ, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		paramName, err := p.expect(lexer.ID)
		if err != nil {
			return nil, err
		}
		params = append(params, ast.NewParam(paramTok, paramName.Value, typ))
		if p.check(lexer.Comma) {
			p.advance()
		} else {
			break
		}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	retType, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}
	return ast.NewFunctionPrototype(tok, nameTok.Value, retType, params), nil
}

func (p *Parser) parseTypeExpr() (ast.Node, error) {
	tok, err := p.expect(lexer.ID)
	if err != nil {
		return nil, err
	}
	return ast.NewNamedType(tok, tok.Value), nil
}

// ---- statements ----

func (p *Parser) parseBlock() (*ast.Block, error) {
	tok, err := p.expect(lexer.LBrace)
	if err != nil {
		return nil, err
	}
	var stmts []ast.Node
	for !p.check(lexer.RBrace) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return ast.NewBlock(tok, stmts), nil
}

func (p *Parser) parseStmt() (ast.Node, error) {
	switch {
	case p.check(lexer.KwReturn):
		return p.parseReturn()
	case p.check(lexer.KwLog):
		return p.parseLog()
	case p.check(lexer.KwLet):
		return p.parseLet()
	case p.check(lexer.KwIf):
		return p.parseIf()
	case p.check(lexer.KwLoop):
		return p.parseLoop()
	case p.check(lexer.KwWhile):
		return p.parseWhile()
	case p.check(lexer.KwBreak):
		tok := p.advance()
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return nil, err
		}
		return ast.NewBreak(tok), nil
	case p.check(lexer.KwContinue):
		tok := p.advance()
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return nil, err
		}
		return ast.NewContinue(tok), nil
	case p.check(lexer.LBrace):
		return p.parseBlock()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseReturn() (ast.Node, error) {
	tok := p.advance()
	var expr ast.Node
	if !p.check(lexer.Semicolon) {
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		expr = e
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return ast.NewReturn(tok, expr), nil
}

func (p *Parser) parseLog() (ast.Node, error) {
	tok := p.advance()
	expr, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return ast.NewLog(tok, expr), nil
}

func (p *Parser) parseLet() (ast.Node, error) {
	tok := p.advance()
	nameTok, err := p.expect(lexer.ID)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Equal); err != nil {
		return nil, err
	}
	init, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return ast.NewVarDecl(tok, nameTok.Value, init), nil
}

func (p *Parser) parseIf() (ast.Node, error) {
	tok := p.advance()
	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var els *ast.Block
	if p.match(lexer.KwElse) {
		if p.check(lexer.KwIf) {
			elseTok := p.cur()
			nested, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			els = ast.NewBlock(elseTok, []ast.Node{nested})
		} else {
			b, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			els = b
		}
	}
	return ast.NewIf(tok, cond, then, els), nil
}

func (p *Parser) parseLoop() (ast.Node, error) {
	tok := p.advance()
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewLoopStmt(tok, body), nil
}

func (p *Parser) parseWhile() (ast.Node, error) {
	tok := p.advance()
	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewWhileLoopStmt(tok, cond, body), nil
}

func (p *Parser) parseExprStmt() (ast.Node, error) {
	tok := p.cur()
	expr, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return ast.NewExprStmt(tok, expr), nil
}

// ---- expressions ----

// parseExpr parses assignment first (lowest, right-associative binding
// power), then falls through to precedence-climbed binary expressions.
func (p *Parser) parseExpr(minBP int) (ast.Node, error) {
	if minBP == 0 {
		return p.parseAssignment()
	}
	return p.parseBinary(minBP)
}

func (p *Parser) parseAssignment() (ast.Node, error) {
	lhs, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if p.check(lexer.Equal) {
		tok := p.advance()
		rhs, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return ast.NewAssignment(tok, lhs, rhs), nil
	}
	if op, ok := compoundAssignOp[p.cur().Tag]; ok {
		tok := p.advance()
		rhs, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return ast.NewCompoundAssignment(tok, op, lhs, rhs), nil
	}
	return lhs, nil
}

func (p *Parser) parseBinary(minBP int) (ast.Node, error) {
	lhs, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	for {
		bp, ok := bindingPower[p.cur().Tag]
		if !ok || bp < minBP {
			return lhs, nil
		}
		opTok := p.advance()
		rhs, err := p.parseBinary(bp + 1)
		if err != nil {
			return nil, err
		}
		lhs = ast.NewBinOp(opTok, tokenToOp[opTok.Tag], lhs, rhs)
	}
}

func (p *Parser) parsePrefix() (ast.Node, error) {
	switch {
	case p.check(lexer.Not):
		tok := p.advance()
		operand, err := p.parsePrefix()
		if err != nil {
			return nil, err
		}
		return ast.NewUnOp(tok, ast.OpNot, operand), nil
	case p.check(lexer.PlusPlus):
		tok := p.advance()
		operand, err := p.parsePrefix()
		if err != nil {
			return nil, err
		}
		return ast.NewUnOp(tok, ast.OpPreInc, operand), nil
	case p.check(lexer.MinusMin):
		tok := p.advance()
		operand, err := p.parsePrefix()
		if err != nil {
			return nil, err
		}
		return ast.NewUnOp(tok, ast.OpPreDec, operand), nil
	default:
		return p.parsePostfix()
	}
}

// parsePostfix parses a primary expression followed by any chain of `(`
// (Call), `{` (StructLiteral), `.` (FieldAccess), `::` (StaticAccess) and
// trailing ++/-- postfix operators (§4.2).
func (p *Parser) parsePostfix() (ast.Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.check(lexer.LParen):
			tok := p.advance()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RParen); err != nil {
				return nil, err
			}
			expr = ast.NewCall(tok, expr, args)
		case p.check(lexer.LBrace):
			ident, ok := expr.(*ast.Identifier)
			if !ok {
				return expr, nil
			}
			tok := p.advance()
			fields, err := p.parseStructFieldInits()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RBrace); err != nil {
				return nil, err
			}
			expr = ast.NewStructLiteral(tok, ident, fields)
		case p.check(lexer.Dot):
			tok := p.advance()
			nameTok, err := p.expect(lexer.ID)
			if err != nil {
				return nil, err
			}
			expr = ast.NewFieldAccess(tok, expr, ast.NewIdentifier(nameTok, nameTok.Value))
		case p.check(lexer.ColonColon):
			tok := p.advance()
			nameTok, err := p.expect(lexer.ID)
			if err != nil {
				return nil, err
			}
			expr = ast.NewStaticAccess(tok, expr, ast.NewIdentifier(nameTok, nameTok.Value))
		case p.check(lexer.PlusPlus):
			tok := p.advance()
			expr = ast.NewUnOp(tok, ast.OpPostInc, expr)
		case p.check(lexer.MinusMin):
			tok := p.advance()
			expr = ast.NewUnOp(tok, ast.OpPostDec, expr)
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArgs() ([]ast.Node, error) {
	var args []ast.Node
	for !p.check(lexer.RParen) {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.check(lexer.Comma) {
			p.advance()
		} else {
			break
		}
	}
	return args, nil
}

func (p *Parser) parseStructFieldInits() ([]ast.StructFieldInit, error) {
	var fields []ast.StructFieldInit
	for !p.check(lexer.RBrace) {
		if _, err := p.expect(lexer.Dot); err != nil {
			return nil, err
		}
		nameTok, err := p.expect(lexer.ID)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Equal); err != nil {
			return nil, err
		}
		value, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.StructFieldInit{Name: ast.NewIdentifier(nameTok, nameTok.Value), Value: value})
		if p.check(lexer.Comma) {
			p.advance()
		} else {
			break
		}
	}
	return fields, nil
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	tok := p.advance()
	switch tok.Tag {
	case lexer.IntLit:
		v, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.syntaxErrf(tok, "invalid integer literal %q", tok.Value)
		}
		return ast.NewIntLiteral(tok, v, false), nil
	case lexer.LongLit:
		v, err := strconv.ParseInt(tok.Value[:len(tok.Value)-1], 10, 64)
		if err != nil {
			return nil, p.syntaxErrf(tok, "invalid long literal %q", tok.Value)
		}
		return ast.NewIntLiteral(tok, v, true), nil
	case lexer.StrLit:
		return ast.NewStrLiteral(tok, tok.Value), nil
	case lexer.KwTrue:
		return ast.NewBoolLiteral(tok, true), nil
	case lexer.KwFalse:
		return ast.NewBoolLiteral(tok, false), nil
	case lexer.ID:
		return ast.NewIdentifier(tok, tok.Value), nil
	case lexer.LParen:
		expr, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, p.syntaxErrf(tok, "invalid primary expression: %s", tok.Tag)
	}
}
