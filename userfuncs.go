package formulas

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// UserFunc is a function defined in formula syntax, like f(x) = x^2 + 1.
type UserFunc struct {
	// Name is the function name.
	Name string
	// Params are the formal parameter names, in order.
	Params []string
	// Body is the unparsed body text.
	Body string
}

func (f UserFunc) String() string {
	return f.Name + "(" + strings.Join(f.Params, ", ") + ") = " + f.Body
}

// UserFuncs is a registry of user functions. It is safe for concurrent use.
// The parser only reads it; a nil *UserFuncs is an empty registry.
type UserFuncs struct {
	mu sync.RWMutex
	m  map[string]UserFunc
}

// NewUserFuncs creates a registry containing fns.
func NewUserFuncs(fns ...UserFunc) *UserFuncs {
	u := &UserFuncs{m: make(map[string]UserFunc, len(fns))}
	for _, f := range fns {
		u.m[strings.ToLower(f.Name)] = normalize(f)
	}
	return u
}

// normalize folds names to lower case, as the lexer does, and copies params.
func normalize(f UserFunc) UserFunc {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = strings.ToLower(p)
	}
	return UserFunc{Name: strings.ToLower(f.Name), Params: params, Body: f.Body}
}

// Define adds or replaces a function.
func (u *UserFuncs) Define(f UserFunc) {
	f = normalize(f)
	u.mu.Lock()
	if u.m == nil {
		u.m = make(map[string]UserFunc)
	}
	u.m[f.Name] = f
	u.mu.Unlock()
}

// Remove deletes a function and reports whether it existed.
func (u *UserFuncs) Remove(name string) bool {
	name = strings.ToLower(name)
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.m[name]
	delete(u.m, name)
	return ok
}

// Replace atomically replaces every function in the registry with fns. The
// map keys are ignored in favor of each function's Name.
func (u *UserFuncs) Replace(fns map[string]UserFunc) {
	m := make(map[string]UserFunc, len(fns))
	for _, f := range fns {
		f = normalize(f)
		m[f.Name] = f
	}
	u.mu.Lock()
	u.m = m
	u.mu.Unlock()
}

// Lookup returns the function with the given name.
func (u *UserFuncs) Lookup(name string) (UserFunc, bool) {
	if u == nil {
		return UserFunc{}, false
	}
	u.mu.RLock()
	f, ok := u.m[name]
	u.mu.RUnlock()
	return f, ok
}

// Names returns the sorted names of the defined functions.
func (u *UserFuncs) Names() []string {
	if u == nil {
		return nil
	}
	u.mu.RLock()
	r := make([]string, 0, len(u.m))
	for k := range u.m {
		r = append(r, k)
	}
	u.mu.RUnlock()
	sort.Strings(r)
	return r
}

// Len returns the number of defined functions.
func (u *UserFuncs) Len() int {
	if u == nil {
		return 0
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.m)
}

// IsUserFunctionDefinition reports whether text looks like a function
// definition: an open bracket after the first character, a close bracket after
// that, and an equals sign after that. It is a heuristic for hosts deciding how
// to treat an input line; Parse does not use it.
func IsUserFunctionDefinition(text string) bool {
	open := strings.IndexByte(text, '(')
	if open <= 0 {
		return false
	}
	close := strings.IndexByte(text[open:], ')')
	if close < 0 {
		return false
	}
	return strings.IndexByte(text[open+close:], '=') >= 0
}

// ParseDefinition splits a definition like "f(x, y) = x^2 + y" into a
// UserFunc. The body is not parsed. Parameters must be single letters, since
// longer names in a body lex as products of single-letter variables.
func ParseDefinition(text string) (UserFunc, error) {
	if !IsUserFunctionDefinition(text) {
		return UserFunc{}, &DefinitionError{Text: text, Reason: "expected name(params) = body"}
	}
	open := strings.IndexByte(text, '(')
	close := open + strings.IndexByte(text[open:], ')')
	eq := close + strings.IndexByte(text[close:], '=')
	if strings.TrimSpace(text[close+1:eq]) != "" {
		return UserFunc{}, &DefinitionError{Text: text, Reason: "unexpected text before ="}
	}
	f := UserFunc{
		Name: strings.ToLower(strings.TrimSpace(text[:open])),
		Body: strings.TrimSpace(text[eq+1:]),
	}
	if !isIdent(f.Name) {
		return UserFunc{}, &DefinitionError{Text: text, Reason: "invalid function name " + quoteName(f.Name)}
	}
	if _, ok := builtins[f.Name]; ok {
		return UserFunc{}, &DefinitionError{Text: text, Reason: "cannot redefine builtin function " + f.Name}
	}
	if _, ok := constants[f.Name]; ok {
		return UserFunc{}, &DefinitionError{Text: text, Reason: "cannot redefine constant " + f.Name}
	}
	if f.Body == "" {
		return UserFunc{}, &DefinitionError{Text: text, Reason: "empty body"}
	}
	if ps := strings.TrimSpace(text[open+1 : close]); ps != "" {
		for _, p := range strings.Split(ps, ",") {
			p = strings.ToLower(strings.TrimSpace(p))
			r, sz := utf8.DecodeRuneInString(p)
			if sz == 0 || sz != len(p) || !unicode.IsLetter(r) {
				return UserFunc{}, &DefinitionError{Text: text, Reason: "parameter " + quoteName(p) + " must be a single letter"}
			}
			if _, ok := constants[p]; ok {
				return UserFunc{}, &DefinitionError{Text: text, Reason: "parameter " + p + " names a constant"}
			}
			for _, q := range f.Params {
				if q == p {
					return UserFunc{}, &DefinitionError{Text: text, Reason: "duplicate parameter " + p}
				}
			}
			f.Params = append(f.Params, p)
		}
	}
	return f, nil
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return s != ""
}

func quoteName(s string) string {
	return "\"" + s + "\""
}
