package expr

// node is an element of a parsed expression tree.
type node interface {
	position() int
}

type literalNode struct {
	pos   int
	value any
}

type nameNode struct {
	pos  int
	name string
}

type unaryNode struct {
	pos int
	op  string
	x   node
}

type binaryNode struct {
	pos  int
	op   string
	x, y node
}

// condNode is `then if test else els`.
type condNode struct {
	pos              int
	then, test, els node
}

type callNode struct {
	pos  int
	fn   node
	args []node
}

type indexNode struct {
	pos    int
	x, key node
}

// sliceNode is x[lo:hi]; lo and hi may be nil.
type sliceNode struct {
	pos       int
	x, lo, hi node
}

type attrNode struct {
	pos  int
	x    node
	name string
}

type listNode struct {
	pos   int
	elems []node
}

type dictNode struct {
	pos          int
	keys, values []node
}

func (n *literalNode) position() int { return n.pos }
func (n *nameNode) position() int    { return n.pos }
func (n *unaryNode) position() int   { return n.pos }
func (n *binaryNode) position() int  { return n.pos }
func (n *condNode) position() int    { return n.pos }
func (n *callNode) position() int    { return n.pos }
func (n *indexNode) position() int   { return n.pos }
func (n *sliceNode) position() int   { return n.pos }
func (n *attrNode) position() int    { return n.pos }
func (n *listNode) position() int    { return n.pos }
func (n *dictNode) position() int    { return n.pos }
