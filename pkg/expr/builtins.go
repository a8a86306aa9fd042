package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// builtins is the fixed set of functions every environment exposes.
var builtins = map[string]builtinFunc{
	"int":     builtinInt,
	"float":   builtinFloat,
	"str":     builtinStr,
	"bool":    builtinBool,
	"len":     builtinLen,
	"abs":     builtinAbs,
	"min":     func(args []any) (any, error) { return extreme(args, -1) },
	"max":     func(args []any) (any, error) { return extreme(args, 1) },
	"round":   builtinRound,
	"lower":   stringFunc(strings.ToLower),
	"upper":   stringFunc(strings.ToUpper),
	"strip":   builtinStrip,
	"split":   builtinSplit,
	"join":    builtinJoin,
	"replace": builtinReplace,
	"index":   builtinIndex,
	"get":     builtinGet,
	"zfill":   builtinZfill,
}

func arity(args []any, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return fmt.Errorf("takes %d arguments, got %d", lo, len(args))
		}
		return fmt.Errorf("takes %d to %d arguments, got %d", lo, hi, len(args))
	}
	return nil
}

func stringArg(args []any, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d must be str, not %s", i+1, TypeName(args[i]))
	}
	return s, nil
}

func stringFunc(f func(string) string) builtinFunc {
	return func(args []any) (any, error) {
		if err := arity(args, 1, 1); err != nil {
			return nil, err
		}
		s, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return f(s), nil
	}
}

func builtinInt(args []any) (any, error) {
	if err := arity(args, 1, 2); err != nil {
		return nil, err
	}
	base := 10
	if len(args) == 2 {
		b, ok := toInt(args[1])
		if !ok {
			return nil, errors.New("base must be int")
		}
		base = int(b)
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case bool:
		i, _ := toInt(v)
		return i, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("cannot convert %v to int", v)
		}
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), base, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for int() with base %d: %q", base, v)
		}
		return i, nil
	}
	return nil, fmt.Errorf("cannot convert %s to int", TypeName(args[0]))
}

func builtinFloat(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	if f, ok := toFloat(args[0]); ok {
		return f, nil
	}
	if s, ok := args[0].(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("could not convert string to float: %q", s)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %s to float", TypeName(args[0]))
}

func builtinStr(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	return Format(args[0]), nil
}

func builtinBool(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	return Truthy(args[0]), nil
}

func builtinLen(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case string:
		return runeLen(v), nil
	case []any:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	}
	return nil, fmt.Errorf("object of type %s has no len()", TypeName(args[0]))
}

func builtinAbs(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		return math.Abs(v), nil
	}
	return nil, fmt.Errorf("bad operand type for abs(): %s", TypeName(args[0]))
}

// extreme implements min (sign -1) and max (sign 1) over arguments or a single list.
func extreme(args []any, sign int) (any, error) {
	items := args
	if len(args) == 1 {
		l, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("%s object is not iterable", TypeName(args[0]))
		}
		items = l
	}
	if len(items) == 0 {
		return nil, errors.New("empty sequence")
	}
	best := items[0]
	for _, it := range items[1:] {
		c, err := compare(it, best)
		if err != nil {
			return nil, err
		}
		if c*sign > 0 {
			best = it
		}
	}
	return best, nil
}

func builtinRound(args []any) (any, error) {
	if err := arity(args, 1, 2); err != nil {
		return nil, err
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("type %s doesn't define round()", TypeName(args[0]))
	}
	if len(args) == 1 {
		return int64(math.RoundToEven(f)), nil
	}
	n, ok := toInt(args[1])
	if !ok {
		return nil, errors.New("ndigits must be int")
	}
	p := math.Pow(10, float64(n))
	return math.RoundToEven(f*p) / p, nil
}

func builtinStrip(args []any) (any, error) {
	if err := arity(args, 1, 2); err != nil {
		return nil, err
	}
	s, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 || args[1] == nil {
		return strings.TrimSpace(s), nil
	}
	cut, err := stringArg(args, 1)
	if err != nil {
		return nil, err
	}
	return strings.Trim(s, cut), nil
}

func builtinSplit(args []any) (any, error) {
	if err := arity(args, 1, 2); err != nil {
		return nil, err
	}
	s, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	var parts []string
	if len(args) == 1 || args[1] == nil {
		parts = strings.Fields(s)
	} else {
		sep, err := stringArg(args, 1)
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, errors.New("empty separator")
		}
		parts = strings.Split(s, sep)
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

// builtinJoin follows sep.join(items): join(sep, items).
func builtinJoin(args []any) (any, error) {
	if err := arity(args, 2, 2); err != nil {
		return nil, err
	}
	sep, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	items, ok := args[1].([]any)
	if !ok {
		return nil, fmt.Errorf("can only join a list, not %s", TypeName(args[1]))
	}
	parts := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("sequence item %d: expected str, %s found", i, TypeName(it))
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}

func builtinReplace(args []any) (any, error) {
	if err := arity(args, 3, 3); err != nil {
		return nil, err
	}
	var s [3]string
	for i := range s {
		v, err := stringArg(args, i)
		if err != nil {
			return nil, err
		}
		s[i] = v
	}
	return strings.ReplaceAll(s[0], s[1], s[2]), nil
}

// builtinIndex returns the position of item in a list, or of a substring.
func builtinIndex(args []any) (any, error) {
	if err := arity(args, 2, 2); err != nil {
		return nil, err
	}
	switch c := args[0].(type) {
	case []any:
		for i, e := range c {
			if Equal(e, args[1]) {
				return int64(i), nil
			}
		}
		return nil, fmt.Errorf("%s is not in list", repr(args[1]))
	case string:
		sub, err := stringArg(args, 1)
		if err != nil {
			return nil, err
		}
		i := strings.Index(c, sub)
		if i < 0 {
			return nil, errors.New("substring not found")
		}
		return runeLen(c[:i]), nil
	}
	return nil, fmt.Errorf("index() not supported on %s", TypeName(args[0]))
}

func builtinGet(args []any) (any, error) {
	if err := arity(args, 2, 3); err != nil {
		return nil, err
	}
	d, ok := args[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("get() requires a dict, not %s", TypeName(args[0]))
	}
	k, ok := args[1].(string)
	if ok {
		if v, found := d[k]; found {
			return v, nil
		}
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return nil, nil
}

func builtinZfill(args []any) (any, error) {
	if err := arity(args, 2, 2); err != nil {
		return nil, err
	}
	s := Format(args[0])
	w, ok := toInt(args[1])
	if !ok {
		return nil, errors.New("width must be int")
	}
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	for int64(len(sign)+len(s)) < w {
		s = "0" + s
	}
	return sign + s, nil
}
