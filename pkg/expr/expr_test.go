package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalString(t *testing.T, env *Env, src string) any {
	t.Helper()
	e, err := Compile(src)
	require.NoError(t, err, "compile %q", src)
	v, err := e.Eval(env)
	require.NoError(t, err, "eval %q", src)
	return v
}

func emptyEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv(nil, nil)
	require.NoError(t, err)
	return env
}

func TestEvalLiteralsAndArithmetic(t *testing.T) {
	env := emptyEnv(t)
	tests := []struct {
		src  string
		want any
	}{
		{"1 + 2 * 3", int64(7)},
		{"(1 + 2) * 3", int64(9)},
		{"7 // 2", int64(3)},
		{"-7 // 2", int64(-4)},
		{"-7 % 3", int64(2)},
		{"7 / 2", 3.5},
		{"1.5 + 1", 2.5},
		{"'ab' + \"cd\"", "abcd"},
		{"[1] + [2]", []any{int64(1), int64(2)}},
		{"None", nil},
		{"not True", false},
		{"1 < 2", true},
		{"'a' >= 'b'", false},
		{"2 == 2.0", true},
		{"'b' in 'abc'", true},
		{"3 not in [1, 2]", true},
		{"'x' in {'x': 1}", true},
		{"0 or 'fallback'", "fallback"},
		{"1 and 2", int64(2)},
		{"'yes' if 1 > 0 else 'no'", "yes"},
		{"'yes' if 1 < 0 else 'no'", "no"},
		{"[10, 20, 30][-1]", int64(30)},
		{"{'a': 1, 'b': [2]}['b'][0]", int64(2)},
		{"'Roma'[0]", "R"},
		{"'Roma'[1:3]", "om"},
		{"'Roma'[-2:]", "ma"},
		{"'Roma'[:10]", "Roma"},
		{"[1, 2, 3][1:]", []any{int64(2), int64(3)}},
		{"''[1:]", ""},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, evalString(t, env, tt.src))
		})
	}
}

func TestEvalBuiltinsAndMethods(t *testing.T) {
	env := emptyEnv(t)
	tests := []struct {
		src  string
		want any
	}{
		{"int('0042')", int64(42)},
		{"int(' 7 ')", int64(7)},
		{"int(3.9)", int64(3)},
		{"int('ff', 16)", int64(255)},
		{"float('2.5')", 2.5},
		{"str(12)", "12"},
		{"str(2.0)", "2.0"},
		{"str(None)", "None"},
		{"len('abc')", int64(3)},
		{"len([1, 2])", int64(2)},
		{"abs(-4)", int64(4)},
		{"min(3, 1, 2)", int64(1)},
		{"max([3, 9, 2])", int64(9)},
		{"round(2.5)", int64(2)},
		{"lower('MARCH')", "march"},
		{"'  x '.strip()", "x"},
		{"'a|b|c'.split('|')", []any{"a", "b", "c"}},
		{"split('a b  c')", []any{"a", "b", "c"}},
		{"'-'.join(['1920', '03'])", "1920-03"},
		{"join('/', ['a', 'b'])", "a/b"},
		{"replace('1,920', ',', '')", "1920"},
		{"index(['jan', 'feb', 'mar'], 'mar') + 1", int64(3)},
		{"get({'a': 1}, 'b', 5)", int64(5)},
		{"{'a': 1}.get('a')", int64(1)},
		{"zfill(7, 2)", "07"},
		{"'5'.zfill(3)", "005"},
		{"'1920'.isdigit()", true},
		{"'19a'.isdigit()", false},
		{"'march'.startswith('mar')", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, evalString(t, env, tt.src))
		})
	}
}

func TestMetaVarsAndFunctions(t *testing.T) {
	month, err := ParseFunc("month_number(name) = index(split(meta_vars['month_names'], '|'), lower(name)[:3]) + 1")
	require.NoError(t, err)
	century, err := ParseFunc("full_year(y) = y if y >= 100 else 1900 + y")
	require.NoError(t, err)

	env, err := NewEnv(map[string]string{"month_names": "jan|feb|mar"}, []*Func{month, century})
	require.NoError(t, err)

	assert.Equal(t, int64(3), evalString(t, env, "month_number('March')"))
	assert.Equal(t, int64(1920), evalString(t, env, "full_year(20)"))
	assert.Equal(t, int64(2), evalString(t, env, "month_number('Feb.')"))
	assert.Equal(t, "jan|feb|mar", evalString(t, env, "month_names"))
	assert.Equal(t, []string{"abs", "bool", "float", "full_year", "get", "index", "int", "join", "len",
		"lower", "max", "min", "month_number", "replace", "round", "split", "str", "strip", "upper", "zfill"},
		env.Functions())
}

func TestHelperCannotSeeMatchOrCallerLocals(t *testing.T) {
	peek, err := ParseFunc("peek() = match")
	require.NoError(t, err)
	env, err := NewEnv(nil, []*Func{peek})
	require.NoError(t, err)

	e := MustCompile("peek()")
	_, err = e.Eval(env.WithMatch(stubObject{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `name "match" is not defined`)
}

func TestRecursionIsBounded(t *testing.T) {
	loop, err := ParseFunc("loop(n) = loop(n + 1)")
	require.NoError(t, err)
	env, err := NewEnv(nil, []*Func{loop})
	require.NoError(t, err)

	_, err = MustCompile("loop(0)").Eval(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum call depth")
}

func TestNewEnvRejectsDuplicates(t *testing.T) {
	f1, _ := ParseFunc("f(x) = x")
	f2, _ := ParseFunc("f(y) = y")
	_, err := NewEnv(nil, []*Func{f1, f2})
	assert.Error(t, err)

	shadow, _ := ParseFunc("int(x) = x")
	_, err = NewEnv(nil, []*Func{shadow})
	assert.Error(t, err)

	_, err = NewEnv(map[string]string{"meta_vars": "x"}, nil)
	assert.Error(t, err)
}

func TestCompileErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"1 +",
		"(1",
		"'open",
		"a if b",
		"1 < 2 < 3",
		"{1 2}",
		"x $ y",
		"1 2",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			require.Error(t, err)
			var e *Error
			assert.True(t, errors.As(err, &e))
		})
	}
}

func TestEvalErrors(t *testing.T) {
	env := emptyEnv(t)
	for _, src := range []string{
		"undefined_name",
		"1 / 0",
		"1 // 0",
		"int('x')",
		"'a' - 1",
		"[1][5]",
		"{'a': 1}['b']",
		"len(1)",
		"1(2)",
		"'a' < 1",
		"{1: 2}",
		"'abc'.nope()",
	} {
		t.Run(src, func(t *testing.T) {
			e, err := Compile(src)
			require.NoError(t, err)
			_, err = e.Eval(env)
			require.Error(t, err)
			var ee *Error
			assert.True(t, errors.As(err, &ee), "error %v should be an *Error", err)
		})
	}
}

func TestIntegerOverflow(t *testing.T) {
	env := emptyEnv(t)
	for _, src := range []string{
		"9223372036854775807 + 1",
		"-9223372036854775807 - 2",
		"9223372036854775807 * 2",
		"-(-9223372036854775807 - 1)",
		"(-9223372036854775807 - 1) // -1",
		"(-9223372036854775807 - 1) * -1",
	} {
		t.Run(src, func(t *testing.T) {
			e, err := Compile(src)
			require.NoError(t, err)
			_, err = e.Eval(env)
			var ee *Error
			require.ErrorAs(t, err, &ee)
			assert.Contains(t, ee.Msg, "integer overflow")
		})
	}

	assert.Equal(t, int64(9223372036854775807), evalString(t, env, "9223372036854775806 + 1"))
	assert.Equal(t, int64(-9223372036854775807-1), evalString(t, env, "-9223372036854775807 - 1"))
	assert.Equal(t, int64(-6), evalString(t, env, "-2 * 3"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, `{"day": 12, "month": "march"}`, Format(map[string]any{"month": "march", "day": int64(12)}))
	assert.Equal(t, `[1, "a", None]`, Format([]any{int64(1), "a", nil}))
	assert.Equal(t, "True", Format(true))
}

type stubObject struct{}

func (stubObject) TypeName() string { return "stub" }
func (stubObject) Attr(name string) (any, error) {
	return nil, errors.New("no attributes")
}
func (stubObject) CallMethod(name string, args []any) (any, error) {
	return nil, errors.New("no methods")
}
