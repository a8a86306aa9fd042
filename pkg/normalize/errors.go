package normalize

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransform matches every *TransformError.
	ErrTransform = errors.New("transform evaluation error")

	// ErrAmbiguousTag matches every *AmbiguousTagError.
	ErrAmbiguousTag = errors.New("ambiguous tag")

	// ErrReconstruction means merged tokens no longer rebuild the sentence.
	ErrReconstruction = errors.New("token sequence does not rebuild the sentence")
)

// TransformError reports a transform that failed for a specific match.
type TransformError struct {
	Category string
	Pattern  string
	Text     string
	Err      error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("category %s: transform for %q on %q: %v", e.Category, e.Pattern, e.Text, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

func (e *TransformError) Is(target error) bool { return target == ErrTransform }

// AmbiguousTagError reports a span covering tokens with different tags.
type AmbiguousTagError struct {
	SentenceID string
	Start, End int
	Text       string
	Tags       []string
}

func (e *AmbiguousTagError) Error() string {
	return fmt.Sprintf("sentence %s: span [%d,%d) %q covers tags %s",
		e.SentenceID, e.Start, e.End, e.Text, strings.Join(e.Tags, ", "))
}

func (e *AmbiguousTagError) Is(target error) bool { return target == ErrAmbiguousTag }
