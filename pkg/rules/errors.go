package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a missing or malformed rule document.
	ErrConfiguration = errors.New("rule configuration error")
	// ErrPatternCompile marks a pattern that is not a valid regular expression
	// once meta-variables are expanded.
	ErrPatternCompile = errors.New("pattern compile error")
)

// ConfigError describes a defect in a rule document.
type ConfigError struct {
	Source string // file path or language, may be empty
	Line   int    // 1-based line in the document, 0 when unknown
	Msg    string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	switch {
	case e.Source != "" && e.Line > 0:
		return fmt.Sprintf("rules %s:%d: %s", e.Source, e.Line, msg)
	case e.Source != "":
		return fmt.Sprintf("rules %s: %s", e.Source, msg)
	case e.Line > 0:
		return fmt.Sprintf("rules line %d: %s", e.Line, msg)
	}
	return "rules: " + msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// PatternError reports a rule whose expanded pattern does not compile.
type PatternError struct {
	Category string
	Template string
	Pattern  string
	Err      error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("category %s: pattern %q (expanded %q): %v", e.Category, e.Template, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

func (e *PatternError) Is(target error) bool { return target == ErrPatternCompile }
