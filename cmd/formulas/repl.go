package main

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/shlex"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/zephyrtronium/formulas"
	"github.com/zephyrtronium/formulas/config"
)

const (
	historyFile = ".formulas_history"
	prompt      = "> "
)

const replHelp = `Enter an expression to evaluate it, or a definition like f(x) = x^2 to
define a function. Commands:
  :let NAME EXPR   set a variable to the value of EXPR
  :unlet NAME      remove a variable
  :def DEFINITION  define a function
  :undef NAME      remove a function
  :vars            list variables
  :funcs           list user functions
  :prec N          evaluate to N bits, or in float64 if N is 0
  :help            show this message
  :quit            exit`

// errQuit is returned by session.exec when the session should end.
var errQuit = errors.New("quit")

func newReplCmd(a *app) *cobra.Command {
	var prec uint
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Evaluate expressions interactively",
		Long:  "Start an interactive session.\n\n" + replHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stop, err := a.watch(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			s := newSession(a)
			s.prec = prec
			return runRepl(cmd, s)
		},
	}
	cmd.Flags().UintVarP(&prec, "prec", "p", 0, "evaluate to this many bits of precision instead of float64")
	return cmd
}

func runRepl(cmd *cobra.Command, s *session) error {
	out, errs := cmd.OutOrStdout(), cmd.ErrOrStderr()
	fmt.Fprintln(out, "Ctrl+C cancels input, Ctrl+D exits. Type :help for commands.")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	ctx := cmd.Context()
	for ctx.Err() == nil {
		line, err := ln.Prompt(prompt)
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(out)
			return nil
		case err != nil:
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)
		err = s.exec(line, out)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(errs, err)
		}
	}
	return nil
}

// session is the state of an interactive session.
type session struct {
	a    *app
	vars formulas.Vars
	// prec is the precision of evaluation in bits, or 0 for float64.
	prec uint
}

func newSession(a *app) *session {
	return &session{a: a, vars: a.vars(nil)}
}

// exec runs one line of input.
func (s *session) exec(line string, w io.Writer) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "" || strings.HasPrefix(line, "#"):
		return nil
	case strings.HasPrefix(line, ":"):
		return s.command(line[1:], w)
	case formulas.IsUserFunctionDefinition(line):
		f, err := s.a.define(line)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, f)
		return nil
	}
	r, err := s.evaluate(line)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, r)
	return nil
}

// evaluate evaluates src in the session's variables, returning the formatted
// result.
func (s *session) evaluate(src string) (string, error) {
	e, err := s.a.parse(src)
	if err != nil {
		return "", err
	}
	if s.prec == 0 {
		r, err := s.a.eval(e, s.vars)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(r, 'g', -1, 64), nil
	}
	vars := make(map[string]*big.Float, len(s.vars))
	for k, v := range s.vars {
		vars[k] = new(big.Float).SetPrec(s.prec).SetFloat64(v)
	}
	r, err := s.a.evalPrecise(e, vars, s.prec)
	if err != nil {
		return "", err
	}
	return r.Text('g', -1), nil
}

func (s *session) command(line string, w io.Writer) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("missing command after :")
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "quit", "q", "exit":
		return errQuit
	case "help", "h":
		fmt.Fprintln(w, replHelp)
	case "let":
		if len(args) < 2 {
			return errors.New("usage: :let NAME EXPR")
		}
		name := strings.ToLower(args[0])
		if !isVarName(name) {
			return fmt.Errorf("variable name %q must be a single letter", args[0])
		}
		e, err := s.a.parse(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		r, err := s.a.eval(e, s.vars)
		if err != nil {
			return err
		}
		s.vars[name] = r
		fmt.Fprintf(w, "%s = %g\n", name, r)
	case "unlet":
		if len(args) != 1 {
			return errors.New("usage: :unlet NAME")
		}
		name := strings.ToLower(args[0])
		if _, ok := s.vars[name]; !ok {
			return fmt.Errorf("no variable %s", name)
		}
		delete(s.vars, name)
	case "def":
		if len(args) == 0 {
			return errors.New("usage: :def f(x) = EXPR")
		}
		f, err := s.a.define(strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(w, f)
	case "undef":
		if len(args) != 1 {
			return errors.New("usage: :undef NAME")
		}
		if !s.a.undefine(args[0]) {
			return fmt.Errorf("no function %s", strings.ToLower(args[0]))
		}
	case "vars":
		names := make([]string, 0, len(s.vars))
		for k := range s.vars {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Fprintf(w, "%s = %g\n", k, s.vars[k])
		}
	case "funcs":
		for _, name := range s.a.users.Names() {
			f, _ := s.a.users.Lookup(name)
			fmt.Fprintln(w, f)
		}
	case "prec":
		if len(args) == 0 {
			fmt.Fprintln(w, s.prec)
			return nil
		}
		n, err := strconv.ParseUint(args[0], 10, 0)
		if err != nil {
			return fmt.Errorf("precision %q is not a number of bits", args[0])
		}
		if n > config.MaxPrecision {
			return fmt.Errorf("precision %d is too large", n)
		}
		s.prec = uint(n)
	default:
		return fmt.Errorf("unknown command :%s; type :help for commands", cmd)
	}
	return nil
}

func isVarName(s string) bool {
	r, n := utf8.DecodeRuneInString(s)
	return n == len(s) && n > 0 && unicode.IsLetter(r)
}
