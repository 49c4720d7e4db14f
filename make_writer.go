// Copyright 2024 The mkforge Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mkforge

import (
	"fmt"
	"io"
	"regexp"
	"runtime"
	"strings"

	"github.com/mkforge/mkforge/shell"
)

// Syntax selects the escaping rules for one emission context.  Target and
// dependency names, function-call arguments, and shell-embedded recipe text
// each have their own set of significant characters.
type Syntax int

const (
	SyntaxUnset Syntax = iota
	SyntaxTarget
	SyntaxDependency
	SyntaxFuncArg
	SyntaxShell
	SyntaxClean
)

func (s Syntax) String() string {
	switch s {
	case SyntaxUnset:
		return "unset"
	case SyntaxTarget:
		return "target"
	case SyntaxDependency:
		return "dependency"
	case SyntaxFuncArg:
		return "function"
	case SyntaxShell:
		return "shell"
	case SyntaxClean:
		return "clean"
	default:
		return fmt.Sprintf("Syntax(%d)", int(s))
	}
}

// For targets and deps, we backslash-escape glob characters, whitespace,
// '#' (comments), and '%' (patterns), plus '~' if it's at the beginning of
// a path.  On non-Windows hosts we also escape ':', which separates targets
// from deps.  '$' is escaped too, but separately, since its escape is a
// second '$'.  Any backslashes already in front of an escaped character are
// doubled so the final backslash count is unambiguous.
var (
	hostExtraEscapes = func() string {
		if runtime.GOOS == "windows" {
			return ""
		}
		return ":"
	}()
	targetEscapeRe = regexp.MustCompile(`(\\*)(^~|[?*\[\]\s#%` + hostExtraEscapes + `])`)
	depEscapeRe    = regexp.MustCompile(`(\\*)(^~|[|?*\[\]\s#%` + hostExtraEscapes + `])`)
)

// EscapeString escapes s for the given syntax.  A newline in s is always an
// error; make's line-oriented format cannot represent it.
func EscapeString(s string, syntax Syntax) (string, error) {
	if strings.ContainsRune(s, '\n') {
		return "", fmt.Errorf("illegal newline in %q", s)
	}
	s = strings.ReplaceAll(s, "$", "$$")

	switch syntax {
	case SyntaxTarget:
		return targetEscapeRe.ReplaceAllString(s, `${1}${1}\${2}`), nil
	case SyntaxDependency:
		return depEscapeRe.ReplaceAllString(s, `${1}${1}\${2}`), nil
	case SyntaxFuncArg:
		// Literal commas would be read as argument separators; reference
		// the comma helper variable instead.
		return strings.ReplaceAll(s, ",", "$,"), nil
	case SyntaxShell, SyntaxClean:
		return s, nil
	}
	return "", fmt.Errorf("unknown syntax %q", syntax)
}

// A QuoteFunc decides whether and how to shell-quote a plain text word.  It
// returns the (possibly quoted) text and whether quoting was applied.
type QuoteFunc func(string) (string, bool)

// ShellQuote is the QuoteFunc used for recipe text by default.
var ShellQuote QuoteFunc = shell.QuoteInfo

// A Writer emits SafeString values into a stream with context-correct
// escaping.  It holds no state beyond the destination; all escaping
// decisions are a function of the value and the syntax passed to each call.
type Writer struct {
	w io.StringWriter
}

func NewWriter(w io.StringWriter) *Writer {
	return &Writer{w: w}
}

// WriteLiteral writes s with no escaping at all.
func (w *Writer) WriteLiteral(s string) error {
	_, err := w.w.WriteString(s)
	return err
}

// Write emits value under the given syntax.  quote is consulted for plain
// text in shell-like contexts (function arguments and recipe text); pass nil
// to suppress shell quoting.  The returned flag reports whether any shell
// quoting or escaping was applied, so that an enclosing span can be wrapped
// in quotes exactly once.
func (w *Writer) Write(value SafeString, syntax Syntax, quote QuoteFunc) (bool, error) {
	shelly := syntax == SyntaxFuncArg || syntax == SyntaxShell

	switch v := value.(type) {
	case Literal:
		return true, w.WriteLiteral(string(v))

	case ShellLiteral:
		escaped, err := EscapeString(string(v), syntax)
		if err != nil {
			return false, err
		}
		return true, w.WriteLiteral(escaped)

	case Text:
		s := string(v)
		quoted := false
		if shelly && quote != nil {
			s, quoted = quote(s)
		}
		escaped, err := EscapeString(s, syntax)
		if err != nil {
			return false, err
		}
		return quoted, w.WriteLiteral(escaped)

	case ContextString:
		sub := &strings.Builder{}
		subSyntax := v.Syntax
		if subSyntax == SyntaxUnset {
			subSyntax = syntax
		}
		subQuote := quote
		if v.Quoted {
			subQuote = nil
		}
		escaped, err := NewWriter(sub).Write(v.Data, subSyntax, subQuote)
		if err != nil {
			return false, err
		}
		out := sub.String()
		if v.Quoted {
			out = shell.WrapQuotes(out)
		}
		return escaped, w.WriteLiteral(out)

	case Concat:
		escaped := false
		for _, part := range v {
			e, err := w.Write(part, syntax, quote)
			if err != nil {
				return escaped, err
			}
			escaped = escaped || e
		}
		return escaped, nil

	case Path:
		// Resolve the path's root through the placeholder table, render
		// the whole span with inner quoting, and wrap it once if anything
		// needed escaping in a shell context.
		sub := &strings.Builder{}
		escaped, err := NewWriter(sub).Write(v.realize(), syntax, shell.InnerQuoteInfo)
		if err != nil {
			return false, err
		}
		out := sub.String()
		if shelly && escaped {
			out = shell.WrapQuotes(out)
		}
		return escaped, w.WriteLiteral(out)

	case Entity:
		return w.Write(v.Use(), syntax, quote)
	}

	return false, fmt.Errorf("unsupported value type %T", value)
}

// WriteEach writes values separated by delim.  prefix, if non-nil, is
// written before the first value; nothing is written for an empty list.
func (w *Writer) WriteEach(values []SafeString, syntax Syntax, delim, prefix SafeString, quote QuoteFunc) error {
	if len(values) == 0 {
		return nil
	}
	if prefix != nil {
		if _, err := w.Write(prefix, syntax, quote); err != nil {
			return err
		}
	}
	for i, v := range values {
		if i > 0 {
			if _, err := w.Write(delim, syntax, quote); err != nil {
				return err
			}
		}
		if _, err := w.Write(v, syntax, quote); err != nil {
			return err
		}
	}
	return nil
}

// WriteShell writes one shell invocation under the given syntax, prefixing
// silent commands with '@'.
func (w *Writer) WriteShell(cmd ShellCmd, syntax Syntax) error {
	if cmd.Silent {
		if err := w.WriteLiteral("@"); err != nil {
			return err
		}
	}
	return w.WriteEach(cmd.Argv, syntax, Literal(" "), nil, ShellQuote)
}

// WriteValue writes a variable value: argv-like words space-joined under the
// given syntax.
func (w *Writer) WriteValue(value []SafeString, syntax Syntax) error {
	return w.WriteEach(value, syntax, Literal(" "), nil, ShellQuote)
}
