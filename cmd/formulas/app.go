package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/zephyrtronium/formulas"
	"github.com/zephyrtronium/formulas/config"
	"github.com/zephyrtronium/formulas/library"
	"github.com/zephyrtronium/formulas/metrics"
)

// app is the state shared by commands.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	users   *formulas.UserFuncs
	ev      *formulas.Evaluator
	metrics *metrics.Collector

	// mu guards defs.
	mu sync.Mutex
	// defs are definitions from the configuration and the command line, which
	// take precedence over the library file.
	defs []formulas.UserFunc
}

// setup initializes the app from a configuration.
func (a *app) setup(cfg *config.Config, logger *slog.Logger) error {
	a.cfg = cfg
	a.log = logger
	a.users = formulas.NewUserFuncs()
	a.defs = nil
	for _, d := range cfg.Eval.Functions {
		f, err := formulas.ParseDefinition(d)
		if err != nil {
			return err
		}
		a.defs = append(a.defs, f)
	}
	if cfg.Library.Path != "" {
		n, err := library.Apply(cfg.Library.Path, a.users, a.defs...)
		if err != nil {
			return err
		}
		logger.Debug("loaded library", "path", cfg.Library.Path, "functions", n)
	} else {
		for _, f := range a.defs {
			a.users.Define(f)
		}
	}

	opts := []formulas.EvalOption{
		formulas.Threshold(cfg.Eval.Threshold),
		formulas.ChunkSize(cfg.Eval.ChunkSize),
	}
	if cfg.Eval.Workers > 0 {
		opts = append(opts, formulas.Workers(cfg.Eval.Workers))
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace, nil)
		opts = append(opts, formulas.WithObserver(a.metrics))
	}
	a.ev = formulas.NewEvaluator(opts...)
	return nil
}

// parse parses an expression with the app's functions.
func (a *app) parse(text string) (*formulas.Expr, error) {
	opts := []formulas.ParseOption{
		formulas.WithUserFuncs(a.users),
		formulas.ParseFuncs(a.ev.Funcs()),
	}
	if a.cfg.Eval.Strict {
		opts = append(opts, formulas.StrictLex())
	}
	e, err := formulas.Parse(text, opts...)
	if a.metrics != nil {
		a.metrics.ObserveParse(err)
	}
	return e, err
}

// eval evaluates e in float64.
func (a *app) eval(e *formulas.Expr, vars formulas.Vars) (float64, error) {
	r, err := a.ev.Eval(e, vars)
	if a.metrics != nil {
		a.metrics.ObserveEval("float", err)
	}
	return r, err
}

// evalPrecise evaluates e to prec bits.
func (a *app) evalPrecise(e *formulas.Expr, vars map[string]*big.Float, prec uint) (*big.Float, error) {
	ctx := formulas.NewContext(formulas.Prec(prec), formulas.SetVars(vars), formulas.UseFuncs(a.ev.Funcs()))
	r := ctx.Eval(e)
	err := ctx.Err()
	if a.metrics != nil {
		a.metrics.ObserveEval("precise", err)
	}
	return r, err
}

// vars returns the configured base variables overlaid with extra.
func (a *app) vars(extra formulas.Vars) formulas.Vars {
	v := make(formulas.Vars, len(a.cfg.Eval.Vars)+len(extra))
	for k, x := range a.cfg.Eval.Vars {
		v[strings.ToLower(k)] = x
	}
	for k, x := range extra {
		v[k] = x
	}
	return v
}

// define adds a definition like "f(x) = x^2".
func (a *app) define(text string) (formulas.UserFunc, error) {
	f, err := formulas.ParseDefinition(text)
	if err != nil {
		return f, err
	}
	if _, ok := a.ev.Funcs().Lookup(f.Name); ok {
		return f, fmt.Errorf("%s is a registered function", f.Name)
	}
	a.mu.Lock()
	a.defs = append(a.defs, f)
	a.mu.Unlock()
	a.users.Define(f)
	return f, nil
}

// reload applies the library file and the app's definitions.
func (a *app) reload() (int, error) {
	a.mu.Lock()
	defs := append([]formulas.UserFunc(nil), a.defs...)
	a.mu.Unlock()
	return library.Apply(a.cfg.Library.Path, a.users, defs...)
}

// watch starts reloading the library when it changes, if configured. The
// returned function stops watching.
func (a *app) watch(ctx context.Context) (func(), error) {
	if !a.cfg.Library.Watch || a.cfg.Library.Path == "" {
		return func() {}, nil
	}
	w, err := library.NewWatcher(a.cfg.Library.Path, 0, a.log)
	if err != nil {
		return nil, err
	}
	go func() {
		err := w.Watch(ctx, func() error {
			n, err := a.reload()
			if err == nil {
				a.log.Info("reloaded library", "path", a.cfg.Library.Path, "functions", n)
			}
			return err
		})
		if err != nil {
			a.log.Error("library watcher failed", "error", err)
		}
	}()
	return func() { w.Close() }, nil
}

// flushMetrics writes the metrics textfile, if configured.
func (a *app) flushMetrics() error {
	if a.metrics == nil || a.cfg.Metrics.TextfilePath == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// undefine removes a user function.
func (a *app) undefine(name string) bool {
	name = strings.ToLower(name)
	a.mu.Lock()
	defs := a.defs[:0]
	for _, f := range a.defs {
		if f.Name != name {
			defs = append(defs, f)
		}
	}
	a.defs = defs
	a.mu.Unlock()
	return a.users.Remove(name)
}
