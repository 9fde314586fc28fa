// Package env composes the environment handed to stage processes. Variables
// come in layers: the OS environment, .env files, global entries from the
// configuration, and per-stage overrides, later layers winning.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Var map[string]string

// put parses a "K=V" entry into m. Malformed entries and empty keys are
// skipped rather than failing the whole set.
func (m Var) put(kv string) {
	if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
		m[k] = v
	}
}

// List returns the variables in "K=V" form.
func (m Var) List() []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if k == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	return out
}

func fromOS() Var {
	environ := os.Environ()
	m := make(Var, len(environ))
	for _, kv := range environ {
		m.put(kv)
	}
	return m
}

// LoadFile parses a .env file with KEY=VALUE lines (no export keyword, no
// quoting). Blank lines and lines starting with # are ignored.
func LoadFile(path string) (Var, error) {
	b, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 path comes from operator config
	if err != nil {
		return nil, err
	}
	m := make(Var)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return m, nil
}

// Compose builds the daemon's global environment from its config sources.
// Layering order: the OS environment when useOS is set, then each file in
// order, then the literal "K=V" entries last.
func Compose(useOS bool, files []string, literals []string) ([]string, error) {
	m := make(Var)
	if useOS {
		for k, v := range fromOS() {
			m[k] = v
		}
	}
	for _, p := range files {
		vars, err := LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for k, v := range vars {
			m[k] = v
		}
	}
	for _, kv := range literals {
		m.put(kv)
	}
	return m.List(), nil
}

// Env is the stage runner's view: a cached OS base plus global overrides,
// merged with per-stage overrides at launch time.
type Env struct {
	Var Var // global variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = fromOS()
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes a global variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// Merge composes the final environment list applying order:
// base = OS env (or cached), then global e.Var overrides, then perStage
// (slice of "K=V") overrides. Returns the environment in "K=V" form with
// ${VAR} expansion performed against the composed map (no recursion).
func (e *Env) Merge(perStage []string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(perStage))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range perStage {
		m.put(kv)
	}
	expanded := make(Var, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	return expanded.List()
}

// expand performs a single ${VAR} substitution pass against m.
func expand(s string, m Var) string {
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
