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
	"reflect"
	"regexp"
	"strings"

	"github.com/mkforge/mkforge/shell"
)

// An Entity is a named make construct (variable, function call, pattern)
// that renders itself as a SafeString.
type Entity interface {
	SafeString
	Use() SafeString
}

var varNameSanitizeRe = regexp.MustCompile(`[\s:#=]`)

// A Variable is a reference to a make variable.  Names are sanitized at
// construction so they are always safe to appear unquoted on the left-hand
// side of an assignment.
type Variable struct {
	name   string
	quoted bool
}

// NewVariable creates a variable reference, replacing characters that are
// significant in an assignment (whitespace, ':', '#', '=') with underscores.
func NewVariable(name string) Variable {
	return Variable{name: varNameSanitizeRe.ReplaceAllString(name, "_")}
}

// QuotedVariable is NewVariable with the reference wrapped in shell quotes
// when used.
func QuotedVariable(name string) Variable {
	v := NewVariable(name)
	v.quoted = true
	return v
}

func (v Variable) Name() string { return v.name }

func (v Variable) safeString() {}

// Use renders the reference: $X for single-character names, $(NAME)
// otherwise.
func (v Variable) Use() SafeString {
	var ref string
	if len(v.name) == 1 {
		ref = "$" + v.name
	} else {
		ref = "$(" + v.name + ")"
	}
	if v.quoted {
		ref = shell.WrapQuotes(ref)
	}
	return Literal(ref)
}

func (v Variable) String() string {
	ref, _ := v.Use().(Literal)
	return string(ref)
}

// A Pattern is a make %-pattern.  The template must contain exactly one
// unescaped wildcard marker.
type Pattern struct {
	template string
}

// NewPattern validates the template and returns the pattern.  A '%'
// preceded by an even number of backslashes (including zero) is a wildcard;
// an odd number escapes it.
func NewPattern(template string) (Pattern, error) {
	if countWildcards(template) != 1 {
		return Pattern{}, fmt.Errorf("pattern %q must contain exactly one %%", template)
	}
	return Pattern{template: template}, nil
}

func countWildcards(s string) int {
	n, backslashes := 0, 0
	for _, r := range s {
		switch r {
		case '\\':
			backslashes++
		case '%':
			if backslashes%2 == 0 {
				n++
			}
			backslashes = 0
		default:
			backslashes = 0
		}
	}
	return n
}

func (p Pattern) Template() string { return p.template }

func (p Pattern) safeString() {}

// Use splits the template on its wildcard and rejoins the pieces with a
// literal '%', so downstream escaping never treats the wildcard as data.
func (p Pattern) Use() SafeString {
	bits := strings.Split(p.template, "%")
	joined := make(Concat, 0, len(bits)*2)
	for i, bit := range bits {
		if i > 0 {
			joined = append(joined, Literal("%"))
		}
		joined = append(joined, Text(bit))
	}
	return joined
}

// A Function is a make function call, rendered as $(name arg1,arg2,...).
// Use SpaceJoin for argument slots that hold a word list.
type Function struct {
	name   string
	args   []SafeString
	quoted bool
}

func NewFunction(name string, args ...SafeString) Function {
	return Function{name: name, args: args}
}

func QuotedFunction(name string, args ...SafeString) Function {
	return Function{name: name, args: args, quoted: true}
}

func (f Function) Name() string { return f.name }

// Equal reports structural equality: same name and same argument values.
func (f Function) Equal(other Function) bool {
	return f.name == other.name && f.quoted == other.quoted &&
		reflect.DeepEqual(f.args, other.args)
}

func (f Function) safeString() {}

// Use renders the call.  The whole expression is marked as function-argument
// syntax so literal commas and dollars inside arguments are escaped, while
// the call's own punctuation stays literal.
func (f Function) Use() SafeString {
	parts := make(Concat, 0, len(f.args)*2+2)
	parts = append(parts, Literal("$("+f.name))
	for i, arg := range f.args {
		if i == 0 {
			parts = append(parts, Literal(" "))
		} else {
			parts = append(parts, Literal(","))
		}
		parts = append(parts, arg)
	}
	parts = append(parts, Literal(")"))
	return ContextString{Data: parts, Syntax: SyntaxFuncArg, Quoted: f.quoted}
}

// Call invokes the variable named fn through make's call function:
// $(call FN,args...).
func Call(fn string, args ...SafeString) Function {
	callArgs := append([]SafeString{Text(NewVariable(fn).Name())}, args...)
	return Function{name: "call", args: callArgs}
}
