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
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// A Section groups global variables in the generated file for readability.
// The enumeration order is the emission order.
type Section int

const (
	SectionPath Section = iota
	SectionCommand
	SectionFlags
	SectionOther

	numSections
)

// A Recipe is what a rule runs: a sequence of shell commands, or a single
// inline entity appended to the rule line.
type Recipe interface {
	recipe()
}

// Commands is a multi-line recipe; each command goes on its own tab line.
type Commands []ShellCmd

func (Commands) recipe() {}

// Inline puts a single entity on the rule line itself (target: deps ; ...).
type Inline struct {
	Entity Entity
}

func (Inline) recipe() {}

// A RuleVar is a target-scoped variable assignment attached to a rule.
type RuleVar struct {
	Name  Variable
	Value []SafeString
}

// A Rule is one build edge: targets, dependencies, and the recipe that
// produces them.
type Rule struct {
	Targets   []SafeString
	Deps      []SafeString
	OrderOnly []SafeString
	Recipe    Recipe
	Variables []RuleVar
	Phony     bool
}

// An Include is an include directive appended after all rules.  Optional
// includes do not fail make when the named file is missing.
type Include struct {
	Name     SafeString
	Optional bool
}

type assignment struct {
	name  Variable
	value []SafeString
}

type defineBlock struct {
	name  Variable
	lines [][]SafeString
}

// A Makefile accumulates variables, rules, and includes from many
// independent contributors, enforcing name uniqueness as they arrive, and
// serializes them exactly once in a fixed order.  It is exclusively owned
// by a single generation run; nothing may be added once Write has been
// called.
type Makefile struct {
	projectFile string
	gnu         bool

	varNames   map[string]bool
	globalVars [numSections][]assignment
	targetVars []assignment
	defines    []defineBlock
	rules      []Rule
	targets    map[string]bool
	includes   []Include
}

// NewMakefile creates an empty build file.  projectFile names the
// originating project description for the header banner; gnu selects
// GNU-make-specific directives over plain POSIX ones.
func NewMakefile(projectFile string, gnu bool) *Makefile {
	return &Makefile{
		projectFile: projectFile,
		gnu:         gnu,
		varNames:    make(map[string]bool),
		targets:     make(map[string]bool),
	}
}

func (m *Makefile) uniqueVar(name string, existOK bool) (Variable, bool, error) {
	v := NewVariable(name)
	if m.varNames[v.Name()] {
		if !existOK {
			return Variable{}, true, fmt.Errorf("variable %q already exists", v.Name())
		}
		return v, true, nil
	}
	m.varNames[v.Name()] = true
	return v, false, nil
}

// Variable declares a global variable in the given section and returns its
// canonical reference.  Declaring a name twice is an error unless existOK is
// set, in which case the first declaration's value is preserved.
func (m *Makefile) Variable(name string, value []SafeString, section Section, existOK bool) (Variable, error) {
	v, exists, err := m.uniqueVar(name, existOK)
	if err != nil {
		return Variable{}, err
	}
	if !exists {
		value, err = m.convertValue(value)
		if err != nil {
			return Variable{}, err
		}
		m.globalVars[section] = append(m.globalVars[section], assignment{v, value})
	}
	return v, nil
}

// TargetVariable declares a variable scoped to the %-pattern target clause,
// so it applies to every rule rather than globally.
func (m *Makefile) TargetVariable(name string, value []SafeString, existOK bool) (Variable, error) {
	v, exists, err := m.uniqueVar(name, existOK)
	if err != nil {
		return Variable{}, err
	}
	if !exists {
		value, err = m.convertValue(value)
		if err != nil {
			return Variable{}, err
		}
		m.targetVars = append(m.targetVars, assignment{v, value})
	}
	return v, nil
}

// Define declares a multi-line define block.  It shares the uniqueness
// domain with regular variables.
func (m *Makefile) Define(name string, lines [][]SafeString, existOK bool) (Variable, error) {
	v, exists, err := m.uniqueVar(name, existOK)
	if err != nil {
		return Variable{}, err
	}
	if !exists {
		converted := make([][]SafeString, len(lines))
		for i, line := range lines {
			converted[i], err = m.convertValue(line)
			if err != nil {
				return Variable{}, err
			}
		}
		m.defines = append(m.defines, defineBlock{v, converted})
	}
	return v, nil
}

// CommandVariable declares (once) the command variable backing a tool and
// returns it.  Repeated calls for the same tool are idempotent.
func (m *Makefile) CommandVariable(tool Tool) (Variable, error) {
	name := strings.ToUpper(tool.CommandVar())
	return m.Variable(name, tool.Command(), SectionCommand, true)
}

// HasVariable reports whether a variable with this (sanitized) name has been
// declared in any section.
func (m *Makefile) HasVariable(name string) bool {
	return m.varNames[NewVariable(name).Name()]
}

// convertValue resolves embedded tool references to their backing command
// variables.
func (m *Makefile) convertValue(value []SafeString) ([]SafeString, error) {
	var converted []SafeString
	for i, v := range value {
		tw, ok := v.(ToolWord)
		if !ok {
			continue
		}
		cmdVar, err := m.CommandVariable(tw.Tool)
		if err != nil {
			return nil, err
		}
		if converted == nil {
			converted = append([]SafeString(nil), value...)
		}
		converted[i] = cmdVar
	}
	if converted == nil {
		return value, nil
	}
	return converted, nil
}

func (m *Makefile) convertRecipe(recipe Recipe) (Recipe, error) {
	cmds, ok := recipe.(Commands)
	if !ok {
		return recipe, nil
	}
	converted := make(Commands, len(cmds))
	for i, cmd := range cmds {
		argv, err := m.convertValue(cmd.Argv)
		if err != nil {
			return nil, err
		}
		converted[i] = ShellCmd{Argv: argv, Silent: cmd.Silent}
	}
	return converted, nil
}

func targetString(t SafeString) (string, error) {
	out := &strings.Builder{}
	if _, err := NewWriter(out).Write(t, SyntaxTarget, ShellQuote); err != nil {
		return "", err
	}
	return out.String(), nil
}

// AddRule stores a rule, claiming its target names.  A rule with no targets,
// or one whose target was already claimed, is an error.
func (m *Makefile) AddRule(r Rule) error {
	if len(r.Targets) == 0 {
		return fmt.Errorf("rule must have at least one target")
	}
	for _, t := range r.Targets {
		name, err := targetString(t)
		if err != nil {
			return err
		}
		if m.targets[name] {
			return fmt.Errorf("rule for %q already exists", name)
		}
		m.targets[name] = true
	}

	var err error
	r.Recipe, err = m.convertRecipe(r.Recipe)
	if err != nil {
		return err
	}
	if len(r.Variables) > 0 {
		converted := make([]RuleVar, len(r.Variables))
		for i, rv := range r.Variables {
			value, err := m.convertValue(rv.Value)
			if err != nil {
				return err
			}
			converted[i] = RuleVar{Name: rv.Name, Value: value}
		}
		r.Variables = converted
	}

	m.rules = append(m.rules, r)
	return nil
}

// HasRule reports whether a rule already claims the given target.
func (m *Makefile) HasRule(target SafeString) bool {
	name, err := targetString(target)
	if err != nil {
		return false
	}
	return m.targets[name]
}

// AddInclude appends an include directive.
func (m *Makefile) AddInclude(name SafeString, optional bool) {
	m.includes = append(m.includes, Include{Name: name, Optional: optional})
}

func writeVariable(out *Writer, name Variable, value []SafeString, syntax Syntax, target SafeString) error {
	if target != nil {
		if _, err := out.Write(target, SyntaxTarget, ShellQuote); err != nil {
			return err
		}
		if err := out.WriteLiteral(": "); err != nil {
			return err
		}
	}
	if err := out.WriteLiteral(name.Name() + " := "); err != nil {
		return err
	}
	if err := out.WriteValue(value, syntax); err != nil {
		return err
	}
	return out.WriteLiteral("\n")
}

func writeDefine(out *Writer, d defineBlock) error {
	if err := out.WriteLiteral("define " + d.name.Name() + "\n"); err != nil {
		return err
	}
	for _, line := range d.lines {
		if err := out.WriteValue(line, SyntaxShell); err != nil {
			return err
		}
		if err := out.WriteLiteral("\n"); err != nil {
			return err
		}
	}
	return out.WriteLiteral("endef\n\n")
}

func writeRule(out *Writer, r Rule) error {
	for _, target := range r.Targets {
		for _, rv := range r.Variables {
			if err := writeVariable(out, rv.Name, rv.Value, SyntaxShell, target); err != nil {
				return err
			}
		}
	}

	if r.Phony {
		if err := out.WriteLiteral(".PHONY: "); err != nil {
			return err
		}
		if err := out.WriteEach(r.Targets, SyntaxDependency, Literal(" "), nil, ShellQuote); err != nil {
			return err
		}
		if err := out.WriteLiteral("\n"); err != nil {
			return err
		}
	}

	if err := out.WriteEach(r.Targets, SyntaxTarget, Literal(" "), nil, ShellQuote); err != nil {
		return err
	}
	if err := out.WriteLiteral(":"); err != nil {
		return err
	}
	if err := out.WriteEach(r.Deps, SyntaxDependency, Literal(" "), Literal(" "), ShellQuote); err != nil {
		return err
	}
	if err := out.WriteEach(r.OrderOnly, SyntaxDependency, Literal(" "), Literal(" | "), ShellQuote); err != nil {
		return err
	}

	switch recipe := r.Recipe.(type) {
	case Inline:
		if err := out.WriteLiteral(" ; "); err != nil {
			return err
		}
		if err := out.WriteShell(ShellCmd{Argv: []SafeString{recipe.Entity}}, SyntaxShell); err != nil {
			return err
		}
	case Commands:
		for _, cmd := range recipe {
			if err := out.WriteLiteral("\n\t"); err != nil {
				return err
			}
			if err := out.WriteShell(cmd, SyntaxShell); err != nil {
				return err
			}
		}
	}
	return out.WriteLiteral("\n\n")
}

// Write serializes the build file in its fixed order: banner, built-in rule
// suppression, the comma-escape helper, global variable sections, target
// variables, defines, rules, includes.  The order is a compatibility
// contract for golden-file tests.
func (m *Makefile) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	out := NewWriter(bw)

	banner := "# Do not edit this file! It was automatically generated by mkforge.\n" +
		"# Instead, you should edit the source file that created this:\n" +
		"# " + m.projectFile + "\n\n"
	if err := out.WriteLiteral(banner); err != nil {
		return err
	}

	// Don't let make use built-in rules or variables.
	suffixes := ".SUFFIXES:\n"
	if m.gnu {
		suffixes = "MAKEFLAGS += --no-builtin-variables\n"
	}
	if err := out.WriteLiteral(suffixes); err != nil {
		return err
	}

	// Necessary for escaping commas in function calls.
	if err := writeVariable(out, NewVariable(","), []SafeString{Text(",")}, SyntaxShell, nil); err != nil {
		return err
	}
	if err := out.WriteLiteral("\n"); err != nil {
		return err
	}

	for section := SectionPath; section < numSections; section++ {
		// The built-in paths don't need shell quoting because they're
		// consumed by other paths, which are quoted.
		syntax := SyntaxShell
		if section == SectionPath {
			syntax = SyntaxClean
		}
		for _, a := range m.globalVars[section] {
			if err := writeVariable(out, a.name, a.value, syntax, nil); err != nil {
				return err
			}
		}
		if len(m.globalVars[section]) > 0 {
			if err := out.WriteLiteral("\n"); err != nil {
				return err
			}
		}
	}

	anyTarget := Pattern{template: "%"}
	for _, a := range m.targetVars {
		if err := writeVariable(out, a.name, a.value, SyntaxShell, anyTarget); err != nil {
			return err
		}
	}
	if len(m.targetVars) > 0 {
		if err := out.WriteLiteral("\n"); err != nil {
			return err
		}
	}

	for _, d := range m.defines {
		if err := writeDefine(out, d); err != nil {
			return err
		}
	}

	for _, r := range m.rules {
		if err := writeRule(out, r); err != nil {
			return err
		}
	}

	for _, inc := range m.includes {
		directive := "include "
		if inc.Optional {
			directive = "-include "
		}
		if err := out.WriteLiteral(directive); err != nil {
			return err
		}
		if _, err := out.Write(inc.Name, SyntaxTarget, ShellQuote); err != nil {
			return err
		}
		if err := out.WriteLiteral("\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// WriteFile serializes to path, leaving no partial file behind on failure.
func (m *Makefile) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if err := m.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
