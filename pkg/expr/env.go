package expr

import (
	"fmt"
	"sort"
)

// MetaVarsName is the binding under which the meta-variable mapping is
// visible to expressions, in addition to each variable's bare name.
const MetaVarsName = "meta_vars"

// MatchName is the binding of the current match object.
const MatchName = "match"

type builtinFunc func(args []any) (any, error)

type funcValue struct {
	name    string
	builtin builtinFunc
	meta    *Func
}

// Env is the evaluation environment. It holds three regions: meta-variables,
// functions (builtins plus helpers) and the current match. An Env is never
// modified after construction; WithMatch derives a new one.
type Env struct {
	vars     map[string]string
	varsDict map[string]any
	funcs    map[string]*funcValue
	match    Object
	locals   map[string]any
	depth    int
}

// NewEnv builds an environment from meta-variables and helper functions.
// Helpers may not shadow builtins, each other, or meta-variables.
func NewEnv(vars map[string]string, funcs []*Func) (*Env, error) {
	env := &Env{
		vars:     make(map[string]string, len(vars)),
		varsDict: make(map[string]any, len(vars)),
		funcs:    make(map[string]*funcValue, len(builtins)+len(funcs)),
	}
	for k, v := range vars {
		if k == MetaVarsName || k == MatchName {
			return nil, fmt.Errorf("meta-variable name %q is reserved", k)
		}
		env.vars[k] = v
		env.varsDict[k] = v
	}
	for name, fn := range builtins {
		env.funcs[name] = &funcValue{name: name, builtin: fn}
	}
	for _, f := range funcs {
		if _, dup := env.funcs[f.Name]; dup {
			return nil, fmt.Errorf("function %q is already defined", f.Name)
		}
		if _, dup := env.vars[f.Name]; dup {
			return nil, fmt.Errorf("function %q shadows a meta-variable", f.Name)
		}
		env.funcs[f.Name] = &funcValue{name: f.Name, meta: f}
	}
	return env, nil
}

// WithMatch returns a copy of env with m bound as `match`.
func (e *Env) WithMatch(m Object) *Env {
	c := *e
	c.match = m
	return &c
}

// Functions returns the sorted names of all callable functions.
func (e *Env) Functions() []string {
	names := make([]string, 0, len(e.funcs))
	for n := range e.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// callEnv is the environment a helper body runs in: parameters as locals,
// no match binding.
func (e *Env) callEnv(locals map[string]any) *Env {
	c := *e
	c.match = nil
	c.locals = locals
	c.depth = e.depth + 1
	return &c
}

func (e *Env) lookup(name string) (any, bool) {
	if v, ok := e.locals[name]; ok {
		return v, true
	}
	if name == MatchName {
		if e.match == nil {
			return nil, false
		}
		return e.match, true
	}
	if name == MetaVarsName {
		return e.varsDict, true
	}
	if v, ok := e.vars[name]; ok {
		return v, true
	}
	if f, ok := e.funcs[name]; ok {
		return f, true
	}
	return nil, false
}
