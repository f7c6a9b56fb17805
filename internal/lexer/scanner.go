package lexer

import (
	"unicode"

	"github.com/dru-blip/picoc/internal/errors"
)

// Scanner turns Pico source bytes into a flat Token stream terminated by
// EOF. Whitespace is skipped silently; a newline bumps the line counter and
// resets the column and the line-start offset used for diagnostics.
type Scanner struct {
	source   string
	filename string
	tokens   []Token

	pos       int
	line      int
	col       int
	lineStart int
}

// NewScanner prepares a Scanner over source. filename is carried only for
// error messages; the core never opens files itself (§6).
func NewScanner(source, filename string) *Scanner {
	return &Scanner{
		source:   source,
		filename: filename,
		line:     1,
		col:      1,
	}
}

// Tokenize runs a Scanner over source to completion.
func Tokenize(source, filename string) ([]Token, error) {
	return NewScanner(source, filename).ScanAll()
}

// ScanAll produces the full token stream, returning the first lexical error
// encountered (unknown character, bad escape, unterminated string).
func (s *Scanner) ScanAll() ([]Token, error) {
	for !s.isAtEnd() {
		s.skipWhitespace()
		if s.isAtEnd() {
			break
		}
		tok, err := s.next()
		if err != nil {
			return nil, err
		}
		s.tokens = append(s.tokens, tok)
	}
	s.tokens = append(s.tokens, Token{Tag: EOF, Loc: Location{Line: s.line, Col: s.col, Start: s.pos, End: s.pos}, LineStart: s.lineStart})
	return s.tokens, nil
}

func (s *Scanner) isAtEnd() bool { return s.pos >= len(s.source) }

func (s *Scanner) current() byte {
	if s.isAtEnd() {
		return 0
	}
	return s.source[s.pos]
}

func (s *Scanner) check(b byte) bool {
	return s.pos < len(s.source) && s.source[s.pos] == b
}

func (s *Scanner) advance() {
	s.pos++
	s.col++
}

func (s *Scanner) skipWhitespace() {
	for !s.isAtEnd() {
		switch s.current() {
		case '\t', ' ', '\r':
			s.advance()
		case '\n':
			s.pos++
			s.line++
			s.col = 1
			s.lineStart = s.pos
		default:
			return
		}
	}
}

func (s *Scanner) lexErr(msg string) error {
	return errors.New(errors.Lex, msg, errors.TokenInfo{
		Line: s.line, Col: s.col, Start: s.pos, End: s.pos + 1, LineStart: s.lineStart,
	})
}

func (s *Scanner) next() (Token, error) {
	start := s.pos
	loc := Location{Line: s.line, Col: s.col, Start: s.pos, End: s.pos + 1}
	tok := Token{Tag: Unknown, Loc: loc, LineStart: s.lineStart}

	c := s.current()
	switch {
	case c == '{':
		s.advance()
		tok.Tag = LBrace
	case c == '}':
		s.advance()
		tok.Tag = RBrace
	case c == '(':
		s.advance()
		tok.Tag = LParen
	case c == ')':
		s.advance()
		tok.Tag = RParen
	case c == ';':
		s.advance()
		tok.Tag = Semicolon
	case c == ',':
		s.advance()
		tok.Tag = Comma
	case c == '^':
		s.advance()
		tok.Tag = Caret
	case c == '@':
		s.advance()
		tok.Tag = At
	case c == '.':
		s.advance()
		tok.Tag = Dot
	case c == '+':
		s.advance()
		switch {
		case s.check('+'):
			s.advance()
			tok.Tag = PlusPlus
		case s.check('='):
			s.advance()
			tok.Tag = PlusEq
		default:
			tok.Tag = Plus
		}
	case c == '-':
		s.advance()
		switch {
		case s.check('-'):
			s.advance()
			tok.Tag = MinusMin
		case s.check('='):
			s.advance()
			tok.Tag = MinusEq
		default:
			tok.Tag = Minus
		}
	case c == '*':
		s.advance()
		if s.check('=') {
			s.advance()
			tok.Tag = StarEq
		} else {
			tok.Tag = Star
		}
	case c == '/':
		s.advance()
		if s.check('=') {
			s.advance()
			tok.Tag = SlashEq
		} else {
			tok.Tag = Slash
		}
	case c == '%':
		s.advance()
		if s.check('=') {
			s.advance()
			tok.Tag = PercentEq
		} else {
			tok.Tag = Percent
		}
	case c == '<':
		s.advance()
		switch {
		case s.check('='):
			s.advance()
			tok.Tag = LessEq
		case s.check('<'):
			s.advance()
			tok.Tag = LessLess
		default:
			tok.Tag = Less
		}
	case c == '>':
		s.advance()
		switch {
		case s.check('='):
			s.advance()
			tok.Tag = GreaterEq
		case s.check('>'):
			s.advance()
			tok.Tag = GreatGr
		default:
			tok.Tag = Greater
		}
	case c == '=':
		s.advance()
		if s.check('=') {
			s.advance()
			tok.Tag = EqualEqual
		} else {
			tok.Tag = Equal
		}
	case c == '!':
		s.advance()
		if s.check('=') {
			s.advance()
			tok.Tag = NotEqual
		} else {
			tok.Tag = Not
		}
	case c == '&':
		s.advance()
		if s.check('&') {
			s.advance()
			tok.Tag = AmpAmp
		} else {
			tok.Tag = Amp
		}
	case c == '|':
		s.advance()
		if s.check('|') {
			s.advance()
			tok.Tag = PipePi
		} else {
			tok.Tag = Pipe
		}
	case c == ':':
		s.advance()
		if s.check(':') {
			s.advance()
			tok.Tag = ColonColon
		} else {
			tok.Tag = Colon
		}
	case c == '"':
		val, err := s.scanString()
		if err != nil {
			return Token{}, err
		}
		tok.Tag = StrLit
		tok.Value = val
	case isDigit(c):
		s.scanNumber(&tok)
	case isAlpha(c):
		s.scanIdentifier(&tok, start)
	default:
		return Token{}, s.lexErr("unknown character '" + string(c) + "'")
	}

	tok.Loc.End = s.pos
	return tok, nil
}

func (s *Scanner) scanString() (string, error) {
	s.advance() // opening quote
	var val []byte
	for {
		c := s.current()
		switch {
		case c == '"':
			s.advance()
			return string(val), nil
		case c == '\\':
			s.advance()
			esc := s.current()
			switch esc {
			case 'n':
				val = append(val, '\n')
			case 't':
				val = append(val, '\t')
			case 'r':
				val = append(val, '\r')
			case '\\':
				val = append(val, '\\')
			case '"':
				val = append(val, '"')
			default:
				return "", s.lexErr("unknown escape sequence")
			}
			s.advance()
		case s.isAtEnd():
			return "", s.lexErr("unterminated string literal")
		default:
			val = append(val, c)
			s.advance()
		}
	}
}

func (s *Scanner) scanNumber(tok *Token) {
	start := s.pos
	for isDigit(s.current()) {
		s.advance()
	}
	if s.current() == 'l' || s.current() == 'L' {
		s.advance()
		tok.Tag = LongLit
	} else {
		tok.Tag = IntLit
	}
	tok.Value = s.source[start:s.pos]
}

func (s *Scanner) scanIdentifier(tok *Token, start int) {
	for isAlphaNumeric(s.current()) {
		s.advance()
	}
	value := s.source[start:s.pos]
	if kw, ok := keywords[value]; ok {
		tok.Tag = kw
	} else {
		tok.Tag = ID
	}
	tok.Value = value
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isAlphaNumeric(c byte) bool {
	return isAlpha(c) || isDigit(c)
}
