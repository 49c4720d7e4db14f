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

// A SafeString is a string-like value whose escaping is deferred until it is
// written under a concrete Syntax.  The closed set of variants keeps every
// escaping decision in the Writer, where the ambient syntax is known; values
// never escape themselves.
type SafeString interface {
	safeString()
}

// Text is plain text.  It is escaped for the ambient syntax when written,
// and is a candidate for shell quoting in shell-like contexts.
type Text string

// Literal is emitted verbatim, with no escaping of any kind.  It is used for
// make syntax fragments the caller has already hand-escaped, such as a
// literal ':' separator or a variable reference.
type Literal string

// ShellLiteral is escaped for the ambient syntax like Text, but is never
// shell-quoted.  It is used for text that is make data but must reach the
// shell untouched.
type ShellLiteral string

// Concat is an ordered sequence of values, each written under the same
// ambient syntax.  The "was escaped" result of writing a Concat is the OR of
// its parts' results, so a caller one level up knows whether to wrap the
// whole span in quotes.
type Concat []SafeString

// ContextString forces its inner value to render under a different syntax.
// If Syntax is SyntaxUnset the ambient syntax is kept.  If Quoted is set,
// the rendered result is wrapped in shell quotes (and the inner rendering
// performs no quoting of its own, preventing double-quoting).
type ContextString struct {
	Data   SafeString
	Syntax Syntax
	Quoted bool
}

func (Text) safeString()          {}
func (Literal) safeString()       {}
func (ShellLiteral) safeString()  {}
func (Concat) safeString()        {}
func (ContextString) safeString() {}

// SpaceJoin joins values with literal spaces, for multi-valued slots such as
// a function argument that holds a word list.
func SpaceJoin(values ...SafeString) SafeString {
	if len(values) == 1 {
		return values[0]
	}
	joined := make(Concat, 0, len(values)*2)
	for i, v := range values {
		if i > 0 {
			joined = append(joined, Literal(" "))
		}
		joined = append(joined, v)
	}
	return joined
}

// Texts converts plain strings to a []SafeString value list.
func Texts(strs ...string) []SafeString {
	values := make([]SafeString, len(strs))
	for i, s := range strs {
		values[i] = Text(s)
	}
	return values
}

// A ShellCmd is a single shell invocation in a recipe: argv words joined by
// spaces at emission time.  Silent commands are prefixed with '@' so make
// does not echo them.
type ShellCmd struct {
	Argv   []SafeString
	Silent bool
}

// A Tool is a command that backs a command variable in the generated file
// (for example CXX for the C++ compiler).  Tools are registered once per
// build file and referenced through their variable afterwards.
type Tool interface {
	CommandVar() string
	Command() []SafeString
}

// ToolWord embeds a Tool invocation in an argv.  The assembler replaces it
// with the tool's backing command variable when the value is registered.
type ToolWord struct {
	Tool Tool
}

func (ToolWord) safeString() {}
