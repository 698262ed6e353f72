package formulas

// ParseOption is an option for parsing.
type ParseOption interface {
	parseOption(parsectx) parsectx
}

type (
	usersopt  struct{ u *UserFuncs }
	pfuncsopt struct{ f *Funcs }
	strictopt struct{}
)

// parsectx holds general data for parsing.
type parsectx struct {
	// users is the registry of user-defined functions that calls substitute.
	users *UserFuncs
	// funcs is the function registry whose names lex as function tokens in
	// addition to the builtins.
	funcs *Funcs
	// strict makes unknown characters a lexing error.
	strict bool
	// active is the chain of user functions whose bodies are being parsed,
	// outermost first.
	active []string
}

func (p *parsectx) isFunc(name string) bool {
	if _, ok := builtins[name]; ok {
		return true
	}
	return p.funcs.has(name)
}

func (p *parsectx) isUser(name string) bool {
	_, ok := p.users.Lookup(name)
	return ok
}

// WithUserFuncs makes calls to functions in u parse by substitution of their
// bodies. The registry is only read.
func WithUserFuncs(u *UserFuncs) ParseOption {
	return usersopt{u}
}

func (o usersopt) parseOption(p parsectx) parsectx {
	p.users = o.u
	return p
}

// ParseFuncs makes the names of functions registered in f parse as function
// calls. Builtin names always do.
func ParseFuncs(f *Funcs) ParseOption {
	return pfuncsopt{f}
}

func (o pfuncsopt) parseOption(p parsectx) parsectx {
	p.funcs = o.f
	return p
}

// StrictLex makes characters that cannot begin a token a *LexError instead of
// dropping them.
func StrictLex() ParseOption {
	return strictopt{}
}

func (strictopt) parseOption(p parsectx) parsectx {
	p.strict = true
	return p
}
