package expr

import (
	"fmt"
	"strconv"
)

// Expr is a compiled expression. It is immutable and safe for concurrent use.
type Expr struct {
	src  string
	root node
}

// Func is a named helper defined as `name(p1, p2) = body`.
type Func struct {
	Name   string
	Params []string
	Body   *Expr
}

// Compile parses src into an Expr.
func Compile(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t.pos, "unexpected %s %q after expression", t.kind, t.text)
	}
	return &Expr{src: src, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source the expression was compiled from.
func (e *Expr) String() string { return e.src }

// ParseFunc parses a helper definition of the form `name(a, b) = expression`.
func ParseFunc(src string) (*Func, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}

	nameTok := p.next()
	if nameTok.kind != tokName || isKeyword(nameTok.text) {
		return nil, p.errorf(nameTok.pos, "function definition must start with a name")
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var params []string
	seen := make(map[string]bool)
	for !p.isOp(")") {
		t := p.next()
		if t.kind != tokName || isKeyword(t.text) {
			return nil, p.errorf(t.pos, "expected parameter name, got %q", t.text)
		}
		if seen[t.text] {
			return nil, p.errorf(t.pos, "duplicate parameter %q", t.text)
		}
		seen[t.text] = true
		params = append(params, t.text)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	eq, err := p.expect("=")
	if err != nil {
		return nil, err
	}

	bodySrc := src[eq.pos+1:]
	body, err := Compile(bodySrc)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", nameTok.text, err)
	}
	return &Func{Name: nameTok.text, Params: params, Body: body}, nil
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"if": true, "else": true, "None": true, "True": true, "False": true,
}

func isKeyword(s string) bool { return keywords[s] }

type parser struct {
	src  string
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *parser) isKeyword(kw string) bool {
	t := p.peek()
	return t.kind == tokName && t.text == kw
}

func (p *parser) expect(op string) (token, error) {
	t := p.next()
	if t.kind != tokOp || t.text != op {
		if t.kind == tokEOF {
			return t, p.errorf(t.pos, "expected %q, got end of expression", op)
		}
		return t, p.errorf(t.pos, "expected %q, got %q", op, t.text)
	}
	return t, nil
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &Error{Src: p.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseExpr() (node, error) {
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("if") {
		return x, nil
	}
	pos := p.next().pos
	test, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("else") {
		return nil, p.errorf(p.peek().pos, "conditional expression without else")
	}
	p.next()
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &condNode{pos: pos, then: x, test: test, els: els}, nil
}

func (p *parser) parseOr() (node, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		pos := p.next().pos
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &binaryNode{pos: pos, op: "or", x: x, y: y}
	}
	return x, nil
}

func (p *parser) parseAnd() (node, error) {
	x, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		pos := p.next().pos
		y, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		x = &binaryNode{pos: pos, op: "and", x: x, y: y}
	}
	return x, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isKeyword("not") {
		pos := p.next().pos
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{pos: pos, op: "not", x: x}, nil
	}
	return p.parseCompare()
}

// Comparisons do not chain: `a < b < c` is rejected.
func (p *parser) parseCompare() (node, error) {
	x, err := p.parseAdd()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	op := ""
	switch {
	case t.kind == tokOp && (t.text == "==" || t.text == "!=" || t.text == "<" ||
		t.text == "<=" || t.text == ">" || t.text == ">="):
		op = t.text
		p.next()
	case p.isKeyword("in"):
		op = "in"
		p.next()
	case p.isKeyword("not") && p.toks[p.i+1].kind == tokName && p.toks[p.i+1].text == "in":
		op = "not in"
		p.next()
		p.next()
	default:
		return x, nil
	}

	y, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if n := p.peek(); (n.kind == tokOp && (n.text == "==" || n.text == "!=" || n.text == "<" ||
		n.text == "<=" || n.text == ">" || n.text == ">=")) || p.isKeyword("in") {
		return nil, p.errorf(n.pos, "chained comparisons are not supported")
	}
	return &binaryNode{pos: t.pos, op: op, x: x, y: y}, nil
}

func (p *parser) parseAdd() (node, error) {
	x, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		t := p.next()
		y, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		x = &binaryNode{pos: t.pos, op: t.text, x: x, y: y}
	}
	return x, nil
}

func (p *parser) parseMul() (node, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		t := p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &binaryNode{pos: t.pos, op: t.text, x: x, y: y}
	}
	return x, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("-") || p.isOp("+") {
		t := p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{pos: t.pos, op: t.text, x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("("):
			pos := p.next().pos
			args, err := p.parseList(")")
			if err != nil {
				return nil, err
			}
			x = &callNode{pos: pos, fn: x, args: args}
		case p.isOp("["):
			pos := p.next().pos
			sub, err := p.parseSubscript(pos, x)
			if err != nil {
				return nil, err
			}
			x = sub
		case p.isOp("."):
			pos := p.next().pos
			t := p.next()
			if t.kind != tokName {
				return nil, p.errorf(t.pos, "expected attribute name after '.'")
			}
			x = &attrNode{pos: pos, x: x, name: t.text}
		default:
			return x, nil
		}
	}
}

// parseSubscript parses the part after '[': either an index or a slice.
func (p *parser) parseSubscript(pos int, x node) (node, error) {
	var lo node
	if !p.isOp(":") {
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.isOp(":") {
			if _, err := p.expect("]"); err != nil {
				return nil, err
			}
			return &indexNode{pos: pos, x: x, key: key}, nil
		}
		lo = key
	}
	p.next() // ':'
	var hi node
	if !p.isOp("]") {
		var err error
		if hi, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect("]"); err != nil {
		return nil, err
	}
	return &sliceNode{pos: pos, x: x, lo: lo, hi: hi}, nil
}

// parseList parses comma separated expressions up to the closing operator,
// allowing a trailing comma.
func (p *parser) parseList(closing string) ([]node, error) {
	var items []node
	for !p.isOp(closing) {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	if _, err := p.expect(closing); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokInt:
		v, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errorf(t.pos, "invalid integer %q", t.text)
		}
		return &literalNode{pos: t.pos, value: v}, nil

	case tokFloat:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t.pos, "invalid float %q", t.text)
		}
		return &literalNode{pos: t.pos, value: v}, nil

	case tokString:
		return &literalNode{pos: t.pos, value: t.text}, nil

	case tokName:
		switch t.text {
		case "None":
			return &literalNode{pos: t.pos}, nil
		case "True":
			return &literalNode{pos: t.pos, value: true}, nil
		case "False":
			return &literalNode{pos: t.pos, value: false}, nil
		}
		if isKeyword(t.text) {
			return nil, p.errorf(t.pos, "unexpected keyword %q", t.text)
		}
		return &nameNode{pos: t.pos, name: t.text}, nil

	case tokOp:
		switch t.text {
		case "(":
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			elems, err := p.parseList("]")
			if err != nil {
				return nil, err
			}
			return &listNode{pos: t.pos, elems: elems}, nil
		case "{":
			return p.parseDict(t.pos)
		}
		return nil, p.errorf(t.pos, "unexpected %q", t.text)

	default:
		return nil, p.errorf(t.pos, "unexpected end of expression")
	}
}

func (p *parser) parseDict(pos int) (node, error) {
	d := &dictNode{pos: pos}
	for !p.isOp("}") {
		k, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(":"); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		d.keys = append(d.keys, k)
		d.values = append(d.values, v)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return d, nil
}
