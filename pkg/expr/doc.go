// Package expr implements the small expression language used by rule
// transforms and helper functions.
//
// The language is closed: literals (ints, floats, strings, None, True,
// False, lists, dicts), arithmetic, comparisons, boolean operators, the
// conditional form `a if cond else b`, indexing, a fixed set of builtins,
// string methods, attribute and method access on host objects, and calls to
// helpers defined as `name(params) = expression`. There is no assignment and
// no access to anything outside the Env, so evaluating an expression cannot
// change any state.
package expr
