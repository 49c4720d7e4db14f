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

package rules

import (
	"context"
	"path"
	"path/filepath"

	"github.com/mkforge/mkforge"
	"github.com/mkforge/mkforge/buildenv"
	"github.com/mkforge/mkforge/ctxlog"
	"github.com/mkforge/mkforge/deptools"
	"github.com/mkforge/mkforge/file"
	"github.com/mkforge/mkforge/toolchain"
)

// BuildFile is the name of the generated build file.
const BuildFile = "Makefile"

// FindDepsFile is the include companion recording the directory listings the
// graph depends on, so adding a file triggers regeneration.
const FindDepsFile = ".mkforge_find_deps"

// regenTool is the generator itself, re-run by the regeneration rule.
type regenTool struct{}

func (regenTool) CommandVar() string { return "mkforge" }
func (regenTool) Command() []mkforge.SafeString {
	return []mkforge.SafeString{mkforge.Text("mkforge")}
}

// Generate lowers the graph into a Makefile.  The "all" rule comes first so
// it is the default goal; the regeneration rule makes the build file depend
// on the project description that produced it.
func Generate(ctx context.Context, env *buildenv.Environment, g *Graph) (*mkforge.Makefile, error) {
	m := mkforge.NewMakefile(g.ProjectFile, true)

	if err := declarePathVars(m, env); err != nil {
		return nil, err
	}

	allDeps := make([]mkforge.SafeString, len(g.defaults))
	for i, art := range g.defaults {
		allDeps[i] = art.ArtifactPath()
	}
	err := m.AddRule(mkforge.Rule{
		Targets: []mkforge.SafeString{mkforge.Text("all")},
		Deps:    allDeps,
		Phony:   true,
	})
	if err != nil {
		return nil, err
	}

	for _, e := range g.compiles {
		if err := addCompileRule(m, e); err != nil {
			return nil, err
		}
	}
	for _, e := range g.links {
		if err := addLinkRule(m, e); err != nil {
			return nil, err
		}
	}
	for _, e := range g.aliases {
		if err := addAliasRule(m, e); err != nil {
			return nil, err
		}
	}
	for _, e := range g.commands {
		if err := addCommandRule(m, e); err != nil {
			return nil, err
		}
	}
	if err := addInstallRule(m, g); err != nil {
		return nil, err
	}
	if err := addRegenerateRule(m, g); err != nil {
		return nil, err
	}

	if len(g.FindDirs) > 0 {
		m.AddInclude(mkforge.Text(FindDepsFile), true)
	}

	ctxlog.FromContext(ctx).Info("generated build file",
		"project", g.ProjectFile,
		"rules", len(g.compiles)+len(g.links)+len(g.aliases)+len(g.commands))
	return m, nil
}

// declarePathVars fills the path section: srcdir and prefix from the
// environment, the install subdirectories derived from prefix.
func declarePathVars(m *mkforge.Makefile, env *buildenv.Environment) error {
	srcVar, _ := mkforge.PathVariable(mkforge.RootSrc)
	if _, err := m.Variable(srcVar.Name(),
		[]mkforge.SafeString{mkforge.Text(env.SrcDir)}, mkforge.SectionPath, false); err != nil {
		return err
	}
	prefixVar, _ := mkforge.PathVariable(mkforge.RootPrefix)
	prefix, err := m.Variable(prefixVar.Name(),
		[]mkforge.SafeString{mkforge.Text(env.InstallPrefix)}, mkforge.SectionPath, false)
	if err != nil {
		return err
	}

	derived := []struct {
		root mkforge.Root
		sub  string
	}{
		{mkforge.RootBin, "/bin"},
		{mkforge.RootLib, "/lib"},
		{mkforge.RootInclude, "/include"},
		{mkforge.RootMan, "/share/man"},
	}
	for _, d := range derived {
		v, _ := mkforge.PathVariable(d.root)
		value := []mkforge.SafeString{mkforge.Concat{prefix, mkforge.Literal(d.sub)}}
		if _, err := m.Variable(v.Name(), value, mkforge.SectionPath, false); err != nil {
			return err
		}
	}
	return nil
}

func addCompileRule(m *mkforge.Makefile, e *compileEdge) error {
	flagsVar, err := m.Variable(e.compiler.FlagsVar(),
		mkforge.Texts(e.compiler.GlobalFlags()...), mkforge.SectionFlags, true)
	if err != nil {
		return err
	}

	flags := []mkforge.SafeString{flagsVar}
	flags = append(flags, e.compiler.Options(toolchain.CompileContext{
		IncludeDirs: e.includes,
		Defines:     e.defines,
	})...)
	flags = append(flags, mkforge.Texts(e.extraOpts...)...)

	cmd := e.compiler.Invocation(e.source.Path, e.output.Path, flags...)
	return m.AddRule(mkforge.Rule{
		Targets: []mkforge.SafeString{e.output.Path},
		Deps:    []mkforge.SafeString{e.source.Path},
		Recipe:  mkforge.Commands{cmd},
	})
}

func addLinkRule(m *mkforge.Makefile, e *linkEdge) error {
	flagsVar, err := m.Variable(e.linker.FlagsVar(),
		mkforge.Texts(e.linker.GlobalFlags()...), mkforge.SectionFlags, true)
	if err != nil {
		return err
	}
	flags := []mkforge.SafeString{flagsVar}

	var libs []mkforge.SafeString
	if name := e.linker.LibsVar(); name != "" {
		libsVar, err := m.Variable(name,
			mkforge.Texts(e.linker.GlobalLibs()...), mkforge.SectionFlags, true)
		if err != nil {
			return err
		}
		libs = append(libs, libsVar)
	}
	libFlags, err := e.linker.LibFlags(toolchain.LinkContext{
		Libs:          e.libs,
		WholeArchives: e.wholeArchives,
		LibDirs:       e.libDirs,
	})
	if err != nil {
		return err
	}
	libs = append(libs, libFlags...)
	libs = append(libs, mkforge.Texts(e.alwaysLibs...)...)

	ins := make([]mkforge.SafeString, len(e.objects))
	deps := make([]mkforge.SafeString, 0, len(e.objects)+len(e.libs))
	for i, obj := range e.objects {
		ins[i] = obj.Path
		deps = append(deps, obj.Path)
	}
	for _, lib := range e.libs {
		if !lib.External {
			deps = append(deps, lib.Path)
		}
	}
	for _, lib := range e.wholeArchives {
		if !lib.External {
			deps = append(deps, lib.Path)
		}
	}

	var cmds mkforge.Commands
	if e.mode == toolchain.LinkStaticLibrary {
		// Archivers append to an existing archive; a leftover from a
		// previous configuration would keep stale members.
		cmds = append(cmds, mkforge.ShellCmd{
			Argv:   []mkforge.SafeString{mkforge.Literal("rm"), mkforge.Literal("-f"), e.outputs[0].ArtifactPath()},
			Silent: true,
		})
	}
	cmds = append(cmds, e.linker.Invocation(ins, e.outputs, flags, libs))

	err = m.AddRule(mkforge.Rule{
		Targets: []mkforge.SafeString{e.outputs[0].ArtifactPath()},
		Deps:    deps,
		Recipe:  cmds,
	})
	if err != nil {
		return err
	}

	// Companion outputs (import library, export file) come from the same
	// link; their rules only declare the dependency.
	for _, out := range e.outputs[1:] {
		err := m.AddRule(mkforge.Rule{
			Targets: []mkforge.SafeString{out.ArtifactPath()},
			Deps:    []mkforge.SafeString{e.outputs[0].ArtifactPath()},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func addAliasRule(m *mkforge.Makefile, e *aliasEdge) error {
	deps := make([]mkforge.SafeString, len(e.deps))
	for i, d := range e.deps {
		deps[i] = d.ArtifactPath()
	}
	return m.AddRule(mkforge.Rule{
		Targets: []mkforge.SafeString{mkforge.Text(e.name)},
		Deps:    deps,
		Phony:   true,
	})
}

func addCommandRule(m *mkforge.Makefile, e *commandEdge) error {
	deps := make([]mkforge.SafeString, len(e.deps))
	for i, d := range e.deps {
		deps[i] = d.ArtifactPath()
	}
	return m.AddRule(mkforge.Rule{
		Targets: []mkforge.SafeString{mkforge.Text(e.name)},
		Deps:    deps,
		Recipe:  mkforge.Commands(e.cmds),
		Phony:   true,
	})
}

// addInstallRule emits a phony install target copying every installable link
// output under the prefix: executables to bindir, libraries to libdir.
func addInstallRule(m *mkforge.Makefile, g *Graph) error {
	var deps []mkforge.SafeString
	var cmds mkforge.Commands
	seenDirs := make(map[mkforge.Root]bool)

	destDir := func(root mkforge.Root) mkforge.SafeString {
		dir := mkforge.SafeString(mkforge.Path{Root: root})
		if v, ok := mkforge.PathVariable(mkforge.RootDestDir); ok {
			dir = mkforge.Concat{v, dir}
		}
		return dir
	}

	for _, e := range g.links {
		for _, out := range e.outputs {
			bin, ok := out.(*file.Binary)
			if !ok || bin.Install == file.InstallNone {
				continue
			}
			root := mkforge.RootLib
			if bin.Kind == file.Executable {
				root = mkforge.RootBin
			}
			if !seenDirs[root] {
				seenDirs[root] = true
				cmds = append(cmds, mkforge.ShellCmd{Argv: []mkforge.SafeString{
					mkforge.Literal("mkdir"), mkforge.Literal("-p"), destDir(root),
				}})
			}
			deps = append(deps, bin.Path)
			cmds = append(cmds, mkforge.ShellCmd{Argv: []mkforge.SafeString{
				mkforge.Literal("cp"), mkforge.Literal("-f"), bin.Path, destDir(root),
			}})
		}
	}
	if len(cmds) == 0 {
		return nil
	}
	return m.AddRule(mkforge.Rule{
		Targets: []mkforge.SafeString{mkforge.Text("install")},
		Deps:    deps,
		Recipe:  cmds,
		Phony:   true,
	})
}

// addRegenerateRule makes the build file depend on the project description,
// re-running the generator when it changes.
func addRegenerateRule(m *mkforge.Makefile, g *Graph) error {
	cmd := mkforge.ShellCmd{Argv: []mkforge.SafeString{
		mkforge.ToolWord{Tool: regenTool{}},
		mkforge.Literal("regenerate"),
		mkforge.Literal("."),
	}}
	return m.AddRule(mkforge.Rule{
		Targets: []mkforge.SafeString{mkforge.Text(BuildFile)},
		Deps:    []mkforge.SafeString{mkforge.SrcPath(g.ProjectFile)},
		Recipe:  mkforge.Commands{cmd},
	})
}

// WriteBuildFiles generates the Makefile and writes everything a build
// directory needs: the build file, the environment snapshot, and the
// find-deps companion when directory listings matter.
func WriteBuildFiles(ctx context.Context, env *buildenv.Environment, g *Graph) error {
	m, err := Generate(ctx, env, g)
	if err != nil {
		return err
	}
	if err := m.WriteFile(filepath.Join(env.BuildDir, BuildFile)); err != nil {
		return err
	}
	if err := env.Save(env.BuildDir); err != nil {
		return err
	}
	if len(g.FindDirs) > 0 {
		deps := make([]string, len(g.FindDirs))
		for i, dir := range g.FindDirs {
			deps[i] = path.Join(env.SrcDir, dir)
		}
		// Makeified so deleting a scanned directory still regenerates the
		// build file instead of stopping make.
		companion := filepath.Join(env.BuildDir, FindDepsFile)
		if err := deptools.WriteMakeifiedDepFile(companion, BuildFile, deps); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Info("wrote build files", "dir", env.BuildDir)
	return nil
}
