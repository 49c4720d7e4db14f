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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeTool struct {
	name string
	cmd  []string
}

func (t fakeTool) CommandVar() string    { return t.name }
func (t fakeTool) Command() []SafeString { return Texts(t.cmd...) }

func TestMakefileGolden(t *testing.T) {
	m := NewMakefile("build.toml", false)

	if _, err := m.Variable("srcdir", Texts("/path/to src"), SectionPath, false); err != nil {
		t.Fatal(err)
	}
	cxx, err := m.Variable("CXX", Texts("c++"), SectionCommand, false)
	if err != nil {
		t.Fatal(err)
	}
	cxxflags, err := m.Variable("CXXFLAGS", Texts("-g", "-O2"), SectionFlags, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.TargetVariable("DEBUG", Texts("1"), false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Define("greet", [][]SafeString{Texts("echo", "hi")}, false); err != nil {
		t.Fatal(err)
	}

	err = m.AddRule(Rule{
		Targets: []SafeString{Text("all")},
		Deps:    []SafeString{Text("prog")},
		Phony:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = m.AddRule(Rule{
		Targets: []SafeString{Text("prog")},
		Deps:    []SafeString{Text("main.o")},
		Recipe: Commands{{Argv: []SafeString{
			cxx, cxxflags, Text("main.o"), Literal("-o"), Text("prog"),
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	m.AddInclude(Text("extra.mk"), true)

	want := `# Do not edit this file! It was automatically generated by mkforge.
# Instead, you should edit the source file that created this:
# build.toml

.SUFFIXES:
, := ,

srcdir := /path/to src

CXX := c++

CXXFLAGS := -g -O2

%: DEBUG := 1

define greet
echo hi
endef

.PHONY: all
all: prog

prog: main.o
	$(CXX) $(CXXFLAGS) main.o -o prog

-include extra.mk
`

	out := &strings.Builder{}
	if err := m.Write(out); err != nil {
		t.Fatal(err)
	}
	if out.String() != want {
		t.Errorf("generated file:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestMakefileGNUHeader(t *testing.T) {
	m := NewMakefile("build.toml", true)
	out := &strings.Builder{}
	if err := m.Write(out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "MAKEFLAGS += --no-builtin-variables\n") {
		t.Error("GNU mode did not suppress built-in variables")
	}
	if strings.Contains(out.String(), ".SUFFIXES:") {
		t.Error("GNU mode emitted the POSIX suffix reset")
	}
}

func TestVariableUniqueness(t *testing.T) {
	m := NewMakefile("build.toml", false)
	if _, err := m.Variable("FOO", Texts("1"), SectionOther, false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Variable("FOO", Texts("2"), SectionOther, false); err == nil {
		t.Error("redeclaring a variable did not fail")
	}
	// Sanitized names share the uniqueness domain.
	if _, err := m.Variable("F O", Texts("1"), SectionOther, false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Variable("F:O", Texts("2"), SectionOther, false); err == nil {
		t.Error("colliding sanitized names did not fail")
	}
	// Defines and target variables collide with globals too.
	if _, err := m.Define("FOO", nil, false); err == nil {
		t.Error("define reusing a variable name did not fail")
	}
	if _, err := m.TargetVariable("FOO", Texts("1"), false); err == nil {
		t.Error("target variable reusing a global name did not fail")
	}
}

func TestVariableExistOK(t *testing.T) {
	m := NewMakefile("build.toml", false)
	if _, err := m.Variable("FOO", Texts("first"), SectionOther, false); err != nil {
		t.Fatal(err)
	}
	v, err := m.Variable("FOO", Texts("second"), SectionOther, true)
	if err != nil {
		t.Fatal(err)
	}
	if v.Name() != "FOO" {
		t.Errorf("existOK returned variable %q; want FOO", v.Name())
	}

	out := &strings.Builder{}
	if err := m.Write(out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "FOO := first\n") {
		t.Error("existOK redeclaration replaced the original value")
	}
	if strings.Contains(out.String(), "second") {
		t.Error("existOK redeclaration emitted the new value")
	}
}

func TestAddRuleErrors(t *testing.T) {
	m := NewMakefile("build.toml", false)
	if err := m.AddRule(Rule{}); err == nil {
		t.Error("rule without targets did not fail")
	}

	r := Rule{Targets: []SafeString{Text("out")}}
	if err := m.AddRule(r); err != nil {
		t.Fatal(err)
	}
	if err := m.AddRule(r); err == nil {
		t.Error("duplicate target did not fail")
	}
	if !m.HasRule(Text("out")) {
		t.Error("HasRule missed a claimed target")
	}
	if m.HasRule(Text("other")) {
		t.Error("HasRule claimed an unknown target")
	}
}

func TestCommandVariable(t *testing.T) {
	m := NewMakefile("build.toml", false)
	tool := fakeTool{name: "cxx", cmd: []string{"c++"}}

	v1, err := m.CommandVariable(tool)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := m.CommandVariable(tool)
	if err != nil {
		t.Fatal(err)
	}
	if v1.Name() != "CXX" || v2.Name() != "CXX" {
		t.Errorf("command variables = %q, %q; want CXX", v1.Name(), v2.Name())
	}

	out := &strings.Builder{}
	if err := m.Write(out); err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out.String(), "CXX := c++\n"); got != 1 {
		t.Errorf("command variable emitted %d times; want 1", got)
	}
}

func TestToolWordConversion(t *testing.T) {
	m := NewMakefile("build.toml", false)
	tool := fakeTool{name: "cxx", cmd: []string{"c++"}}

	err := m.AddRule(Rule{
		Targets: []SafeString{Text("main.o")},
		Deps:    []SafeString{Text("main.cpp")},
		Recipe: Commands{{Argv: []SafeString{
			ToolWord{Tool: tool}, Literal("-c"), Text("main.cpp"),
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	out := &strings.Builder{}
	if err := m.Write(out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "CXX := c++\n") {
		t.Error("tool reference did not declare its command variable")
	}
	if !strings.Contains(out.String(), "\t$(CXX) -c main.cpp\n") {
		t.Errorf("recipe did not reference the command variable:\n%s", out.String())
	}
}

func TestAddRuleVariableAliasing(t *testing.T) {
	m := NewMakefile("build.toml", false)
	tool := fakeTool{name: "cxx", cmd: []string{"c++"}}
	vars := []RuleVar{{
		Name:  NewVariable("EXTRA"),
		Value: []SafeString{ToolWord{Tool: tool}},
	}}

	err := m.AddRule(Rule{
		Targets:   []SafeString{Text("out")},
		Variables: vars,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := vars[0].Value[0].(ToolWord); !ok {
		t.Error("AddRule rewrote the caller's variable value in place")
	}

	out := &strings.Builder{}
	if err := m.Write(out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "out: EXTRA := $(CXX)\n") {
		t.Errorf("rule variable did not reference the command variable:\n%s", out.String())
	}
}

func TestWriteFile(t *testing.T) {
	m := NewMakefile("build.toml", false)
	path := filepath.Join(t.TempDir(), "Makefile")
	if err := m.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Do not edit this file!") {
		t.Error("written file is missing the banner")
	}

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}
