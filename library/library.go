// Package library loads user function definitions from files.
//
// A definition file holds one definition per line, like
//
//	# geometry
//	area(r) = pi r^2
//	hyp(a, b) = sqrt(a^2 + b^2)
//
// Blank lines and lines starting with # are ignored.
package library

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zephyrtronium/formulas"
)

// LineError is an error in a definition file.
type LineError struct {
	// Path is the file name, if known.
	Path string
	// Line is the 1-based line number.
	Line int
	// Err is the problem with the line.
	Err error
}

func (err *LineError) Error() string {
	if err.Path == "" {
		return fmt.Sprintf("line %d: %v", err.Line, err.Err)
	}
	return fmt.Sprintf("%s:%d: %v", err.Path, err.Line, err.Err)
}

func (err *LineError) Unwrap() error {
	return err.Err
}

// Parse reads definitions from r. The result is keyed by function name.
// Defining a name twice is an error.
func Parse(r io.Reader) (map[string]formulas.UserFunc, error) {
	fns := make(map[string]formulas.UserFunc)
	lines := make(map[string]int)
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f, err := formulas.ParseDefinition(line)
		if err != nil {
			return nil, &LineError{Line: n, Err: err}
		}
		if prev, ok := lines[f.Name]; ok {
			return nil, &LineError{Line: n, Err: fmt.Errorf("%s already defined on line %d", f.Name, prev)}
		}
		fns[f.Name] = f
		lines[f.Name] = n
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return fns, nil
}

// Load reads definitions from the file at path.
func Load(path string) (map[string]formulas.UserFunc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	defer f.Close()
	fns, err := Parse(f)
	if err != nil {
		if le, ok := err.(*LineError); ok {
			le.Path = path
			return nil, le
		}
		return nil, fmt.Errorf("failed to read library %q: %w", path, err)
	}
	return fns, nil
}

// Apply loads the file at path and replaces the contents of u with its
// definitions plus extra, which take precedence. On error, u is unchanged.
// It returns the number of functions defined.
func Apply(path string, u *formulas.UserFuncs, extra ...formulas.UserFunc) (int, error) {
	fns, err := Load(path)
	if err != nil {
		return 0, err
	}
	for _, f := range extra {
		fns[strings.ToLower(f.Name)] = f
	}
	u.Replace(fns)
	return len(fns), nil
}
