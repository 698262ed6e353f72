package formulas

import (
	"strconv"
	"strings"
)

// TokenError is an error indicating a token that cannot appear where the
// parser found it. It implements InputError.
type TokenError struct {
	// Col is the position of the token.
	Col int
	// Token is the text of the token.
	Token string
}

func (err *TokenError) Error() string {
	return errpos(err.Col, "unexpected token "+strconv.Quote(err.Token))
}

func (err *TokenError) Pos() int {
	return err.Col
}

// BracketError is an error indicating unbalanced parentheses in the input. It
// implements InputError.
type BracketError struct {
	// Col is the position of the token found instead of the bracket.
	Col int
	// Left is the opening bracket, or empty if a close bracket has no match.
	Left string
	// Right is the unmatched closing bracket, or empty if an open bracket was
	// never closed.
	Right string
	// Func is the name of the function whose argument list is unclosed, if
	// any.
	Func string
}

func (err *BracketError) Error() string {
	if err.Left == "" {
		return errpos(err.Col, "close bracket "+err.Right+" with no open bracket")
	}
	if err.Func != "" {
		return errpos(err.Col, "open bracket "+err.Left+" with no close bracket in call to "+err.Func)
	}
	return errpos(err.Col, "open bracket "+err.Left+" with no close bracket")
}

func (err *BracketError) Pos() int {
	return err.Col
}

// CallError is an error indicating a function call without an argument list or
// a user function call with the wrong number of arguments. It implements
// InputError.
type CallError struct {
	// Col is the position of the call.
	Col int
	// Func is the function name that was called.
	Func string
	// Want is the number of parameters of the function.
	Want int
	// Len is the number of arguments in the call, or -1 if the function name
	// was not followed by an argument list.
	Len int
}

func (err *CallError) Error() string {
	if err.Len < 0 {
		return errpos(err.Col, "missing ( after function "+err.Func)
	}
	return errpos(err.Col, "cannot call "+err.Func+" with "+strconv.Itoa(err.Len)+" arguments (expected "+strconv.Itoa(err.Want)+")")
}

func (err *CallError) Pos() int {
	return err.Col
}

// EmptyExpressionError is an error indicating an empty subexpression. It
// implements InputError.
type EmptyExpressionError struct {
	// Col is the position of the token that ended the subexpression.
	Col int
	// End is the token that ended the subexpression.
	End string
}

func (err *EmptyExpressionError) Error() string {
	if err.End == "" {
		if err.Col <= 1 {
			return errpos(err.Col, "no expression")
		}
		return errpos(err.Col, "no expression at end")
	}
	return errpos(err.Col, "no expression up to "+strconv.Quote(err.End))
}

func (err *EmptyExpressionError) Pos() int {
	return err.Col
}

// BodyError is an error in parsing the body of a user function at a call site.
// It implements InputError and unwraps to the error from the body.
type BodyError struct {
	// Col is the position of the call.
	Col int
	// Func is the user function whose body failed to parse.
	Func string
	// Err is the error from parsing the body.
	Err error
}

func (err *BodyError) Error() string {
	return errpos(err.Col, "in body of "+err.Func+": "+err.Err.Error())
}

func (err *BodyError) Pos() int {
	return err.Col
}

func (err *BodyError) Unwrap() error {
	return err.Err
}

// RecursionError is an error indicating a user function that calls itself,
// directly or through other user functions. It implements InputError.
type RecursionError struct {
	// Col is the position of the call that closes the cycle, relative to the
	// body containing it.
	Col int
	// Chain is the sequence of calls, beginning and ending with the same name.
	Chain []string
}

func (err *RecursionError) Error() string {
	return errpos(err.Col, "recursive function: "+strings.Join(err.Chain, " -> "))
}

func (err *RecursionError) Pos() int {
	return err.Col
}

// DefinitionError is an error in the text of a user function definition.
type DefinitionError struct {
	// Text is the definition.
	Text string
	// Reason describes the problem.
	Reason string
}

func (err *DefinitionError) Error() string {
	return "invalid function definition " + strconv.Quote(err.Text) + ": " + err.Reason
}

// errpos is a shortcut to create an error message with a position.
func errpos(pos int, msg string) string {
	return strconv.Itoa(pos) + ": " + msg
}

// InputError is an error with position information. Every error resulting from
// invalid input to Parse implements InputError.
type InputError interface {
	error
	// Pos returns the position of the error as the number of runes up to and
	// including the start of the token that caused the error.
	Pos() int
}

var (
	_ InputError = (*TokenError)(nil)
	_ InputError = (*BracketError)(nil)
	_ InputError = (*CallError)(nil)
	_ InputError = (*EmptyExpressionError)(nil)
	_ InputError = (*BodyError)(nil)
	_ InputError = (*RecursionError)(nil)
	_ InputError = (*LexError)(nil)
)
