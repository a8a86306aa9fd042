package expr

import "fmt"

// Error reports a parse or evaluation failure at a byte offset of the source.
type Error struct {
	Src string
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("expr %q at offset %d: %s", e.Src, e.Pos, e.Msg)
}
