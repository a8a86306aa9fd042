package expr

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// maxCallDepth bounds helper recursion.
const maxCallDepth = 64

// Eval evaluates the expression in env.
func (e *Expr) Eval(env *Env) (any, error) {
	ev := evaluator{src: e.src}
	return ev.eval(e.root, env)
}

type evaluator struct {
	src string
}

func (ev *evaluator) errorf(n node, format string, args ...any) error {
	return &Error{Src: ev.src, Pos: n.position(), Msg: fmt.Sprintf(format, args...)}
}

// wrap attaches a position to errors raised by builtins and host objects.
func (ev *evaluator) wrap(n node, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Src: ev.src, Pos: n.position(), Msg: err.Error()}
}

func (ev *evaluator) eval(n node, env *Env) (any, error) {
	switch n := n.(type) {
	case *literalNode:
		return n.value, nil

	case *nameNode:
		v, ok := env.lookup(n.name)
		if !ok {
			return nil, ev.errorf(n, "name %q is not defined", n.name)
		}
		return v, nil

	case *unaryNode:
		x, err := ev.eval(n.x, env)
		if err != nil {
			return nil, err
		}
		return ev.unary(n, x)

	case *binaryNode:
		return ev.binary(n, env)

	case *condNode:
		test, err := ev.eval(n.test, env)
		if err != nil {
			return nil, err
		}
		if Truthy(test) {
			return ev.eval(n.then, env)
		}
		return ev.eval(n.els, env)

	case *callNode:
		return ev.call(n, env)

	case *indexNode:
		x, err := ev.eval(n.x, env)
		if err != nil {
			return nil, err
		}
		key, err := ev.eval(n.key, env)
		if err != nil {
			return nil, err
		}
		v, err := index(x, key)
		if err != nil {
			return nil, ev.wrap(n, err)
		}
		return v, nil

	case *sliceNode:
		return ev.slice(n, env)

	case *attrNode:
		x, err := ev.eval(n.x, env)
		if err != nil {
			return nil, err
		}
		obj, ok := x.(Object)
		if !ok {
			return nil, ev.errorf(n, "%s has no attribute %q", TypeName(x), n.name)
		}
		v, err := obj.Attr(n.name)
		if err != nil {
			return nil, ev.wrap(n, err)
		}
		return v, nil

	case *listNode:
		out := make([]any, len(n.elems))
		for i, el := range n.elems {
			v, err := ev.eval(el, env)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *dictNode:
		out := make(map[string]any, len(n.keys))
		for i := range n.keys {
			k, err := ev.eval(n.keys[i], env)
			if err != nil {
				return nil, err
			}
			ks, ok := k.(string)
			if !ok {
				return nil, ev.errorf(n.keys[i], "dict keys must be str, got %s", TypeName(k))
			}
			v, err := ev.eval(n.values[i], env)
			if err != nil {
				return nil, err
			}
			out[ks] = v
		}
		return out, nil
	}
	return nil, ev.errorf(n, "unsupported expression node %T", n)
}

func (ev *evaluator) unary(n *unaryNode, x any) (any, error) {
	switch n.op {
	case "not":
		return !Truthy(x), nil
	case "-":
		switch v := x.(type) {
		case int64:
			if v == math.MinInt64 {
				return nil, ev.wrap(n, errIntOverflow)
			}
			return -v, nil
		case float64:
			return -v, nil
		}
	case "+":
		switch x.(type) {
		case int64, float64:
			return x, nil
		}
	}
	return nil, ev.errorf(n, "bad operand type for unary %s: %s", n.op, TypeName(x))
}

func (ev *evaluator) binary(n *binaryNode, env *Env) (any, error) {
	x, err := ev.eval(n.x, env)
	if err != nil {
		return nil, err
	}

	// and/or short-circuit and yield an operand, not a bool
	switch n.op {
	case "and":
		if !Truthy(x) {
			return x, nil
		}
		return ev.eval(n.y, env)
	case "or":
		if Truthy(x) {
			return x, nil
		}
		return ev.eval(n.y, env)
	}

	y, err := ev.eval(n.y, env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return Equal(x, y), nil
	case "!=":
		return !Equal(x, y), nil
	case "<", "<=", ">", ">=":
		c, err := compare(x, y)
		if err != nil {
			return nil, ev.wrap(n, err)
		}
		switch n.op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		}
		return c >= 0, nil
	case "in", "not in":
		in, err := contains(y, x)
		if err != nil {
			return nil, ev.wrap(n, err)
		}
		if n.op == "in" {
			return in, nil
		}
		return !in, nil
	}

	v, err := arith(n.op, x, y)
	if err != nil {
		return nil, ev.wrap(n, err)
	}
	return v, nil
}

var errIntOverflow = errors.New("integer overflow")

func addInt(x, y int64) (any, error) {
	r := x + y
	if (x >= 0) == (y >= 0) && (r >= 0) != (x >= 0) {
		return nil, errIntOverflow
	}
	return r, nil
}

func subInt(x, y int64) (any, error) {
	r := x - y
	if (x >= 0) != (y >= 0) && (r >= 0) != (x >= 0) {
		return nil, errIntOverflow
	}
	return r, nil
}

func mulInt(x, y int64) (any, error) {
	if x == 0 || y == 0 {
		return int64(0), nil
	}
	r := x * y
	if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return nil, errIntOverflow
	}
	return r, nil
}

func arith(op string, x, y any) (any, error) {
	if op == "+" {
		if xs, ok := x.(string); ok {
			if ys, ok := y.(string); ok {
				return xs + ys, nil
			}
		}
		if xl, ok := x.([]any); ok {
			if yl, ok := y.([]any); ok {
				out := make([]any, 0, len(xl)+len(yl))
				return append(append(out, xl...), yl...), nil
			}
		}
	}

	xi, xInt := toInt(x)
	yi, yInt := toInt(y)
	if xInt && yInt {
		switch op {
		case "+":
			return addInt(xi, yi)
		case "-":
			return subInt(xi, yi)
		case "*":
			return mulInt(xi, yi)
		case "/":
			if yi == 0 {
				return nil, errors.New("division by zero")
			}
			return float64(xi) / float64(yi), nil
		case "//":
			if yi == 0 {
				return nil, errors.New("integer division by zero")
			}
			if xi == math.MinInt64 && yi == -1 {
				return nil, errIntOverflow
			}
			q := xi / yi
			if (xi%yi != 0) && ((xi < 0) != (yi < 0)) {
				q--
			}
			return q, nil
		case "%":
			if yi == 0 {
				return nil, errors.New("integer modulo by zero")
			}
			r := xi % yi
			if r != 0 && ((r < 0) != (yi < 0)) {
				r += yi
			}
			return r, nil
		}
	}

	xf, xNum := toFloat(x)
	yf, yNum := toFloat(y)
	if xNum && yNum {
		switch op {
		case "+":
			return xf + yf, nil
		case "-":
			return xf - yf, nil
		case "*":
			return xf * yf, nil
		case "/":
			if yf == 0 {
				return nil, errors.New("division by zero")
			}
			return xf / yf, nil
		case "//":
			if yf == 0 {
				return nil, errors.New("division by zero")
			}
			return math.Floor(xf / yf), nil
		case "%":
			if yf == 0 {
				return nil, errors.New("modulo by zero")
			}
			r := math.Mod(xf, yf)
			if r != 0 && ((r < 0) != (yf < 0)) {
				r += yf
			}
			return r, nil
		}
	}
	return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, TypeName(x), TypeName(y))
}

func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("'in <str>' requires str as left operand, not %s", TypeName(item))
		}
		return strings.Contains(c, s), nil
	case []any:
		for _, e := range c {
			if Equal(e, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, found := c[s]
		return found, nil
	}
	return false, fmt.Errorf("argument of type %s is not a container", TypeName(container))
}

func index(x, key any) (any, error) {
	switch c := x.(type) {
	case []any:
		i, ok := toInt(key)
		if !ok {
			return nil, fmt.Errorf("list indices must be int, not %s", TypeName(key))
		}
		if i < 0 {
			i += int64(len(c))
		}
		if i < 0 || i >= int64(len(c)) {
			return nil, errors.New("list index out of range")
		}
		return c[i], nil
	case string:
		i, ok := toInt(key)
		if !ok {
			return nil, fmt.Errorf("string indices must be int, not %s", TypeName(key))
		}
		runes := []rune(c)
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return nil, errors.New("string index out of range")
		}
		return string(runes[i]), nil
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("dict keys must be str, not %s", TypeName(key))
		}
		v, found := c[k]
		if !found {
			return nil, fmt.Errorf("key %q not found", k)
		}
		return v, nil
	case Object:
		return c.CallMethod("__getitem__", []any{key})
	}
	return nil, fmt.Errorf("%s is not subscriptable", TypeName(x))
}

func (ev *evaluator) slice(n *sliceNode, env *Env) (any, error) {
	x, err := ev.eval(n.x, env)
	if err != nil {
		return nil, err
	}
	bound := func(b node, def, length int64) (int64, error) {
		if b == nil {
			return def, nil
		}
		v, err := ev.eval(b, env)
		if err != nil {
			return 0, err
		}
		if v == nil {
			return def, nil
		}
		i, ok := toInt(v)
		if !ok {
			return 0, ev.errorf(b, "slice indices must be int, not %s", TypeName(v))
		}
		if i < 0 {
			i += length
		}
		return min(max(i, 0), length), nil
	}

	var length int64
	var runes []rune
	switch c := x.(type) {
	case string:
		runes = []rune(c)
		length = int64(len(runes))
	case []any:
		length = int64(len(c))
	default:
		return nil, ev.errorf(n, "%s cannot be sliced", TypeName(x))
	}
	lo, err := bound(n.lo, 0, length)
	if err != nil {
		return nil, err
	}
	hi, err := bound(n.hi, length, length)
	if err != nil {
		return nil, err
	}
	hi = max(hi, lo)

	if l, ok := x.([]any); ok {
		out := make([]any, hi-lo)
		copy(out, l[lo:hi])
		return out, nil
	}
	return string(runes[lo:hi]), nil
}

func (ev *evaluator) call(n *callNode, env *Env) (any, error) {
	args := make([]any, len(n.args))
	evalArgs := func() error {
		for i, a := range n.args {
			v, err := ev.eval(a, env)
			if err != nil {
				return err
			}
			args[i] = v
		}
		return nil
	}

	// method call: receiver.name(args)
	if attr, ok := n.fn.(*attrNode); ok {
		recv, err := ev.eval(attr.x, env)
		if err != nil {
			return nil, err
		}
		if err := evalArgs(); err != nil {
			return nil, err
		}
		v, err := callMethod(recv, attr.name, args)
		if err != nil {
			return nil, ev.wrap(n, err)
		}
		return v, nil
	}

	fnv, err := ev.eval(n.fn, env)
	if err != nil {
		return nil, err
	}
	fn, ok := fnv.(*funcValue)
	if !ok {
		return nil, ev.errorf(n, "%s is not callable", TypeName(fnv))
	}
	if err := evalArgs(); err != nil {
		return nil, err
	}

	if fn.builtin != nil {
		v, err := fn.builtin(args)
		if err != nil {
			return nil, ev.wrap(n, fmt.Errorf("%s(): %w", fn.name, err))
		}
		return v, nil
	}

	f := fn.meta
	if len(args) != len(f.Params) {
		return nil, ev.errorf(n, "%s() takes %d arguments, got %d", f.Name, len(f.Params), len(args))
	}
	if env.depth >= maxCallDepth {
		return nil, ev.errorf(n, "maximum call depth exceeded in %s()", f.Name)
	}
	locals := make(map[string]any, len(args))
	for i, p := range f.Params {
		locals[p] = args[i]
	}
	v, err := f.Body.Eval(env.callEnv(locals))
	if err != nil {
		return nil, fmt.Errorf("in %s(): %w", f.Name, err)
	}
	return v, nil
}

func callMethod(recv any, name string, args []any) (any, error) {
	switch r := recv.(type) {
	case Object:
		return r.CallMethod(name, args)
	case string:
		return stringMethod(r, name, args)
	case map[string]any:
		if name == "get" {
			return builtinGet(append([]any{r}, args...))
		}
	}
	return nil, fmt.Errorf("%s has no method %q", TypeName(recv), name)
}

func stringMethod(s, name string, args []any) (any, error) {
	switch name {
	case "lower", "upper", "strip", "isdigit":
		if name != "strip" && len(args) != 0 {
			return nil, fmt.Errorf("%s() takes no arguments", name)
		}
	}
	switch name {
	case "lower":
		return strings.ToLower(s), nil
	case "upper":
		return strings.ToUpper(s), nil
	case "strip":
		return builtinStrip(append([]any{s}, args...))
	case "isdigit":
		if s == "" {
			return false, nil
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return false, nil
			}
		}
		return true, nil
	case "split":
		return builtinSplit(append([]any{s}, args...))
	case "replace":
		return builtinReplace(append([]any{s}, args...))
	case "startswith", "endswith":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s() takes exactly one argument", name)
		}
		p, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s() argument must be str", name)
		}
		if name == "startswith" {
			return strings.HasPrefix(s, p), nil
		}
		return strings.HasSuffix(s, p), nil
	case "zfill":
		return builtinZfill(append([]any{s}, args...))
	case "join":
		return builtinJoin(append([]any{s}, args...))
	}
	return nil, fmt.Errorf("str has no method %q", name)
}

func runeLen(s string) int64 { return int64(utf8.RuneCountInString(s)) }
