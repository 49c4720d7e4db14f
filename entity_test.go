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

import "testing"

func TestVariableNames(t *testing.T) {
	testCases := []struct {
		in   string
		name string
		ref  string
	}{
		{"CXX", "CXX", "$(CXX)"},
		{"X", "X", "$X"},
		{"my var", "my_var", "$(my_var)"},
		{"a:b#c=d", "a_b_c_d", "$(a_b_c_d)"},
	}
	for _, tc := range testCases {
		v := NewVariable(tc.in)
		if v.Name() != tc.name {
			t.Errorf("NewVariable(%q).Name() = %q; want %q", tc.in, v.Name(), tc.name)
		}
		out, _ := writeString(t, v, SyntaxShell)
		if out != tc.ref {
			t.Errorf("NewVariable(%q) renders %q; want %q", tc.in, out, tc.ref)
		}
	}
}

func TestQuotedVariable(t *testing.T) {
	out, _ := writeString(t, QuotedVariable("NAME"), SyntaxShell)
	if want := "'$(NAME)'"; out != want {
		t.Errorf("QuotedVariable renders %q; want %q", out, want)
	}
}

func TestNewPattern(t *testing.T) {
	testCases := []struct {
		template string
		ok       bool
	}{
		{"%.o", true},
		{"%", true},
		{"dir/%.cpp", true},
		{"no wildcard", false},
		{"a%b%c", false},
		{`escaped\%only`, false},
		{`doubled\\%`, true},
		{`\%real%`, true},
	}
	for _, tc := range testCases {
		_, err := NewPattern(tc.template)
		if (err == nil) != tc.ok {
			t.Errorf("NewPattern(%q): err = %v; want ok = %v", tc.template, err, tc.ok)
		}
	}
}

func TestPatternRender(t *testing.T) {
	p, err := NewPattern("dir name/%.cpp")
	if err != nil {
		t.Fatal(err)
	}
	out, _ := writeString(t, p, SyntaxTarget)
	if want := `dir\ name/%.cpp`; out != want {
		t.Errorf("pattern renders %q; want %q", out, want)
	}
}

func TestFunctionRender(t *testing.T) {
	testCases := []struct {
		name string
		fn   Function
		out  string
	}{
		{
			"simple",
			NewFunction("wildcard", Text("*.c")),
			"$(wildcard '*.c')",
		},
		{
			"comma in argument",
			NewFunction("subst", Text("a,b"), Text("c"), Text("d")),
			"$(subst a$,b,c,d)",
		},
		{
			"word list argument",
			NewFunction("sort", SpaceJoin(Text("b"), Text("a"))),
			"$(sort b a)",
		},
		{
			"quoted wraps once",
			QuotedFunction("wildcard", Text("*.c")),
			"'$(wildcard *.c)'",
		},
		{
			"call",
			Call("do-thing", Text("arg1"), Text("arg2")),
			"$(call do-thing,arg1,arg2)",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, _ := writeString(t, tc.fn, SyntaxShell)
			if out != tc.out {
				t.Errorf("renders %q; want %q", out, tc.out)
			}
		})
	}
}

func TestFunctionEqual(t *testing.T) {
	a := NewFunction("subst", Text("x"), Text("y"))
	b := NewFunction("subst", Text("x"), Text("y"))
	c := NewFunction("subst", Text("x"), Text("z"))
	if !a.Equal(b) {
		t.Error("identical functions compare unequal")
	}
	if a.Equal(c) {
		t.Error("different functions compare equal")
	}
	if a.Equal(QuotedFunction("subst", Text("x"), Text("y"))) {
		t.Error("quoted and unquoted functions compare equal")
	}
}
