package formulas

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Token is a lexical token of a formula.
type Token struct {
	// Text is the token text. Identifiers are folded to lower case.
	Text string
	// Kind is the token's kind.
	Kind TokenKind
	// Num is the value of a TokenNumber.
	Num float64
	// Pos is the 1-based rune column of the token in the source text.
	Pos int
}

func (t Token) String() string {
	return t.Kind.String() + ":" + t.Text + "@" + strconv.Itoa(t.Pos)
}

// TokenKind is the kind of a Token.
type TokenKind int8

const (
	// TokenEnd indicates the end of the input. Every token sequence ends with
	// exactly one.
	TokenEnd TokenKind = iota
	// TokenNumber is a numeric literal or a named constant.
	TokenNumber
	// TokenVariable is a variable name or a user function name.
	TokenVariable
	// TokenFunction is a builtin or registered function name.
	TokenFunction
	// TokenOperator is one of Operators.
	TokenOperator
	TokenLeftParen
	TokenRightParen
	TokenComma
	TokenEquals
	TokenLessThan
	TokenGreaterThan
	TokenLessEqual
	TokenGreaterEqual
)

var tokenKindNames = [...]string{
	TokenEnd:          "End",
	TokenNumber:       "Number",
	TokenVariable:     "Variable",
	TokenFunction:     "Function",
	TokenOperator:     "Operator",
	TokenLeftParen:    "LeftParen",
	TokenRightParen:   "RightParen",
	TokenComma:        "Comma",
	TokenEquals:       "Equals",
	TokenLessThan:     "LessThan",
	TokenGreaterThan:  "GreaterThan",
	TokenLessEqual:    "LessEqual",
	TokenGreaterEqual: "GreaterEqual",
}

func (k TokenKind) String() string {
	if k < 0 || int(k) >= len(tokenKindNames) {
		return "TokenKind(" + strconv.Itoa(int(k)) + ")"
	}
	return tokenKindNames[k]
}

// comparison reports whether the token kind is a relation that the parser
// folds into a subtraction.
func (k TokenKind) comparison() bool {
	return k >= TokenEquals && k <= TokenGreaterEqual
}

// Operators contains the runes which are considered to be operators.
const Operators = "+-*/^"

// constants are the named constants, which lex as numbers.
var constants = map[string]float64{
	"pi":  math.Pi,
	"e":   math.E,
	"phi": math.Phi,
	"tau": 2 * math.Pi,
}

// Tokenize converts text to tokens using the builtin function table. The
// result always ends with a TokenEnd token. Whitespace is removed before
// scanning, so "1 0" is the number 10 and "s in" is the function sin.
// Characters that cannot begin any token are dropped.
func Tokenize(text string) []Token {
	toks, _ := lex(text, &parsectx{}).all()
	return toks
}

type lexer struct {
	// src is the input with whitespace removed, and cols holds the 1-based
	// column in the original text of each rune in src.
	src  []rune
	cols []int
	i    int
	end  int
	buf  strings.Builder
	p    *parsectx
}

func lex(text string, p *parsectx) *lexer {
	l := lexer{p: p}
	col := 0
	for _, r := range text {
		col++
		if unicode.IsSpace(r) {
			continue
		}
		l.src = append(l.src, r)
		l.cols = append(l.cols, col)
	}
	l.end = col + 1
	return &l
}

// col returns the column of the rune at index i of the stripped input.
func (l *lexer) col(i int) int {
	if i < len(l.cols) {
		return l.cols[i]
	}
	return l.end
}

// peekRune returns the rune k places after the current one, or 0 past the end.
func (l *lexer) peekRune(k int) rune {
	if l.i+k < len(l.src) {
		return l.src[l.i+k]
	}
	return 0
}

// all scans the entire input. The only error is a *LexError in strict mode.
func (l *lexer) all() ([]Token, error) {
	toks := make([]Token, 0, len(l.src)+1)
	for l.i < len(l.src) {
		r := l.src[l.i]
		tok := Token{Pos: l.col(l.i)}
		switch {
		case isDigit(r), r == '.' && isDigit(l.peekRune(1)):
			toks = append(toks, l.scanNum())
			continue
		case r == '_', unicode.IsLetter(r):
			toks = l.scanIdent(toks)
			continue
		case strings.ContainsRune(Operators, r):
			tok.Kind = TokenOperator
			tok.Text = string(r)
		case r == '(':
			tok.Kind, tok.Text = TokenLeftParen, "("
		case r == ')':
			tok.Kind, tok.Text = TokenRightParen, ")"
		case r == ',':
			tok.Kind, tok.Text = TokenComma, ","
		case r == '=':
			tok.Kind, tok.Text = TokenEquals, "="
		case r == '<', r == '>':
			tok.Kind, tok.Text = TokenLessThan, "<"
			if r == '>' {
				tok.Kind, tok.Text = TokenGreaterThan, ">"
			}
			if l.peekRune(1) == '=' {
				// LessThan+2 == LessEqual, GreaterThan+2 == GreaterEqual.
				tok.Kind += 2
				tok.Text += "="
				l.i++
			}
		default:
			if l.p.strict {
				return nil, &LexError{Text: string(r), Col: tok.Pos}
			}
			l.i++
			continue
		}
		l.i++
		toks = append(toks, tok)
	}
	toks = append(toks, Token{Kind: TokenEnd, Pos: l.end})
	return toks, nil
}

func (l *lexer) scanNum() Token {
	defer l.buf.Reset()
	tok := Token{Kind: TokenNumber, Pos: l.col(l.i)}
	dot := false
	for l.i < len(l.src) {
		r := l.src[l.i]
		if r == '.' {
			if dot {
				break
			}
			dot = true
		} else if !isDigit(r) {
			break
		}
		l.buf.WriteRune(r)
		l.i++
	}
	// Only take an exponent marker that is followed by digits, so that 2e is
	// a multiplication by the constant e.
	if r := l.peekRune(0); r == 'e' || r == 'E' {
		k := 1
		if s := l.peekRune(1); s == '+' || s == '-' {
			k = 2
		}
		if isDigit(l.peekRune(k)) {
			for ; k > 0; k-- {
				l.buf.WriteRune(l.src[l.i])
				l.i++
			}
			for l.i < len(l.src) && isDigit(l.src[l.i]) {
				l.buf.WriteRune(l.src[l.i])
				l.i++
			}
		}
	}
	tok.Text = l.buf.String()
	// The scanned text is always a valid float. Overflow gives ±Inf, which
	// is what we want.
	tok.Num, _ = strconv.ParseFloat(tok.Text, 64)
	return tok
}

// scanIdent scans an identifier and appends the tokens it produces.
func (l *lexer) scanIdent(toks []Token) []Token {
	defer l.buf.Reset()
	start := l.i
	for l.i < len(l.src) {
		r := l.src[l.i]
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		l.buf.WriteRune(unicode.ToLower(r))
		l.i++
	}
	name := l.buf.String()
	pos := l.col(start)
	if v, ok := constants[name]; ok {
		return append(toks, Token{Text: name, Kind: TokenNumber, Num: v, Pos: pos})
	}
	if l.p.isFunc(name) {
		return append(toks, Token{Text: name, Kind: TokenFunction, Pos: pos})
	}
	if l.p.isUser(name) {
		return append(toks, Token{Text: name, Kind: TokenVariable, Pos: pos})
	}
	// Anything else is a product of one-letter variables: xy -> x*y.
	for k, r := range []rune(name) {
		pos := l.col(start + k)
		if k > 0 {
			toks = append(toks, Token{Text: "*", Kind: TokenOperator, Pos: pos})
		}
		toks = append(toks, Token{Text: string(r), Kind: TokenVariable, Pos: pos})
	}
	return toks
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

// LexError indicates a character that cannot start any token. It is returned
// only when parsing with StrictLex. It implements InputError.
type LexError struct {
	// Text is the offending character.
	Text string
	// Col is the column of the character in the source text.
	Col int
}

func (err *LexError) Error() string {
	return "invalid token at column " + strconv.Itoa(err.Col) + ": " + strconv.Quote(err.Text)
}

func (err *LexError) Pos() int {
	return err.Col
}
