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

// Package rules builds an abstract graph of compile, link, alias, and
// command edges, then lowers it into a Makefile.  Graph construction is
// where toolchains are resolved; lowering only serializes decisions already
// made.
package rules

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/mkforge/mkforge"
	"github.com/mkforge/mkforge/ctxlog"
	"github.com/mkforge/mkforge/file"
	"github.com/mkforge/mkforge/find"
	"github.com/mkforge/mkforge/toolchain"
)

var ext2lang = map[string]string{
	".c":   "c",
	".cpp": "c++",
	".cc":  "c++",
	".cxx": "c++",
	".c++": "c++",
	".C":   "c++",
	".m":   "objc",
	".mm":  "objc++",
}

// SourceLang maps a source file to its language by extension.  The
// capital-C extension is c++ even though .c is c, so the exact extension is
// tried before folding case.
func SourceLang(name string) (string, error) {
	ext := path.Ext(name)
	if lang, ok := ext2lang[ext]; ok {
		return lang, nil
	}
	if lang, ok := ext2lang[strings.ToLower(ext)]; ok {
		return lang, nil
	}
	return "", fmt.Errorf("unrecognized source extension in %q", name)
}

type compileEdge struct {
	source    *file.Source
	output    *file.Object
	includes  []*file.HeaderDir
	defines   []string
	extraOpts []string
	compiler  toolchain.Compiler
}

type linkEdge struct {
	name          string
	mode          toolchain.LinkMode
	objects       []*file.Object
	libs          []*file.Binary
	wholeArchives []*file.Binary
	libDirs       []mkforge.Path
	alwaysLibs    []string
	outputs       []file.Artifact
	linker        toolchain.Linker
}

type aliasEdge struct {
	name string
	deps []file.Artifact
}

type commandEdge struct {
	name string
	cmds []mkforge.ShellCmd
	deps []file.Artifact
}

// A Graph accumulates build edges for one project.  ProjectFile is the
// source-relative path of the project description; FindDirs lists the
// directories whose listings influenced the graph, so regeneration can
// depend on them.
type Graph struct {
	ProjectFile string
	FindDirs    []string

	compiles []*compileEdge
	links    []*linkEdge
	aliases  []*aliasEdge
	commands []*commandEdge
	defaults []file.Artifact
}

func NewGraph(projectFile string) *Graph {
	return &Graph{ProjectFile: projectFile}
}

// Default marks artifacts as built by the default goal.
func (g *Graph) Default(arts ...file.Artifact) {
	g.defaults = append(g.defaults, arts...)
}

// FindSources globs pattern under the source root and records the consulted
// directories, so the generated file regenerates itself when their listings
// change.
func (g *Graph) FindSources(srcDir, pattern string) ([]string, error) {
	res, err := find.Glob(srcDir, pattern)
	if err != nil {
		return nil, err
	}
	g.FindDirs = append(g.FindDirs, res.Dirs...)
	return res.Files, nil
}

// CompileOptions carries the optional inputs of a single compilation.
type CompileOptions struct {
	IncludeDirs []*file.HeaderDir
	Packages    []*toolchain.Package
	Defines     []string

	// ExtraOptions are raw compiler options, typically the link-mode options
	// of the binary the object is destined for.
	ExtraOptions []string
}

// ObjectFile adds a compile edge for src and returns its object.
func (g *Graph) ObjectFile(ctx context.Context, reg *toolchain.Registry, src string, opts CompileOptions) (*file.Object, error) {
	lang, err := SourceLang(src)
	if err != nil {
		return nil, err
	}
	compiler, err := reg.Compiler(ctx, lang)
	if err != nil {
		return nil, err
	}

	includes := append([]*file.HeaderDir(nil), opts.IncludeDirs...)
	for _, pkg := range opts.Packages {
		includes = append(includes, pkg.IncludeDirs...)
	}

	name := strings.TrimSuffix(src, path.Ext(src))
	outputs := compiler.OutputFile(name)
	edge := &compileEdge{
		source:    &file.Source{Attrs: file.Attrs{Path: mkforge.SrcPath(src)}, Lang: lang},
		output:    outputs[0],
		includes:  includes,
		defines:   opts.Defines,
		extraOpts: opts.ExtraOptions,
		compiler:  compiler,
	}
	g.compiles = append(g.compiles, edge)
	ctxlog.FromContext(ctx).Debug("added compile edge",
		"source", src, "lang", lang, "object", outputs[0].Path.Rel)
	return outputs[0], nil
}

// BinaryOptions carries the optional inputs of a link.
type BinaryOptions struct {
	Sources       []string
	Objects       []*file.Object
	Libs          []*file.Binary
	WholeArchives []*file.Binary
	Packages      []*toolchain.Package
	IncludeDirs   []*file.HeaderDir
	Defines       []string
	LibDirs       []mkforge.Path

	// Default marks the result as built by the default goal.
	Default bool
}

func (g *Graph) Executable(ctx context.Context, reg *toolchain.Registry, name string, opts BinaryOptions) (*file.Binary, error) {
	return g.link(ctx, reg, name, toolchain.LinkExecutable, opts)
}

func (g *Graph) SharedLibrary(ctx context.Context, reg *toolchain.Registry, name string, opts BinaryOptions) (*file.Binary, error) {
	return g.link(ctx, reg, name, toolchain.LinkSharedLibrary, opts)
}

func (g *Graph) StaticLibrary(ctx context.Context, reg *toolchain.Registry, name string, opts BinaryOptions) (*file.Binary, error) {
	return g.link(ctx, reg, name, toolchain.LinkStaticLibrary, opts)
}

func (g *Graph) link(ctx context.Context, reg *toolchain.Registry, name string, mode toolchain.LinkMode, opts BinaryOptions) (*file.Binary, error) {
	// Libraries are consumed through their link-time stand-ins (the import
	// library on DLL platforms).
	var libs []*file.Binary
	for _, lib := range opts.Libs {
		libs = append(libs, lib.LinkInput())
	}
	for _, pkg := range opts.Packages {
		for _, lib := range pkg.Libs {
			libs = append(libs, lib.LinkInput())
		}
	}

	langSet := make(map[string]bool)
	format := ""
	for _, src := range opts.Sources {
		lang, err := SourceLang(src)
		if err != nil {
			return nil, err
		}
		langSet[lang] = true
	}
	for _, obj := range opts.Objects {
		langSet[obj.Lang] = true
		format = obj.Format
	}
	for _, lib := range libs {
		for _, lang := range lib.Langs {
			langSet[lang] = true
		}
	}
	if len(langSet) == 0 {
		return nil, fmt.Errorf("%s %q has nothing to link", mode, name)
	}
	langs := make([]string, 0, len(langSet))
	for lang := range langSet {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	linker, err := reg.Linker(ctx, mode, langs)
	if err != nil {
		return nil, err
	}
	if format == "" {
		b, err := reg.Builder(ctx, linker.Language())
		if err != nil {
			return nil, err
		}
		format = b.Format
	}
	if !linker.CanLink(format, langs) {
		return nil, fmt.Errorf("%s linker for %s cannot link %s objects from languages %s",
			mode, linker.Language(), format, strings.Join(langs, ", "))
	}

	objects := append([]*file.Object(nil), opts.Objects...)
	extraOpts := linker.CompileOptions(name)
	for _, src := range opts.Sources {
		obj, err := g.ObjectFile(ctx, reg, src, CompileOptions{
			IncludeDirs:  opts.IncludeDirs,
			Packages:     opts.Packages,
			Defines:      opts.Defines,
			ExtraOptions: extraOpts,
		})
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}

	// Languages the chosen linker subsumes still contribute their runtime
	// support libraries; the linker's own language links them implicitly.
	var alwaysLibs []string
	if mode != toolchain.LinkStaticLibrary {
		seen := make(map[string]bool)
		for _, lang := range langs {
			b, err := reg.Builder(ctx, lang)
			if err != nil {
				return nil, err
			}
			ll, err := b.Linker(mode)
			if err != nil {
				continue
			}
			for _, lib := range ll.AlwaysLibs(lang == linker.Language()) {
				if !seen[lib] {
					seen[lib] = true
					alwaysLibs = append(alwaysLibs, lib)
				}
			}
		}
	}

	outputs := linker.OutputFile(name, langs)
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%s linker for %s produces no output", mode, linker.Language())
	}
	bin, ok := outputs[0].(*file.Binary)
	if !ok {
		return nil, fmt.Errorf("%s linker for %s produced %T as its primary output, not a binary",
			mode, linker.Language(), outputs[0])
	}
	edge := &linkEdge{
		name:          name,
		mode:          mode,
		objects:       objects,
		libs:          libs,
		wholeArchives: opts.WholeArchives,
		libDirs:       opts.LibDirs,
		alwaysLibs:    alwaysLibs,
		outputs:       outputs,
		linker:        linker,
	}
	g.links = append(g.links, edge)

	if opts.Default {
		g.defaults = append(g.defaults, bin)
	}
	ctxlog.FromContext(ctx).Debug("added link edge",
		"name", name, "mode", mode.String(), "langs", strings.Join(langs, ","))
	return bin, nil
}

// DualUseLibrary builds shared and static variants of one library.  The
// objects are compiled once, with the shared variant's options, and fed to
// both links.
func (g *Graph) DualUseLibrary(ctx context.Context, reg *toolchain.Registry, name string, opts BinaryOptions) (*file.DualUse, error) {
	shared, err := g.SharedLibrary(ctx, reg, name, opts)
	if err != nil {
		return nil, err
	}
	sharedEdge := g.links[len(g.links)-1]

	// Archiving takes only the objects; the shared variant's libraries are
	// a link-time concern its consumers inherit instead.
	staticOpts := BinaryOptions{
		Objects: sharedEdge.objects,
		Default: opts.Default,
	}
	static, err := g.StaticLibrary(ctx, reg, name, staticOpts)
	if err != nil {
		return nil, err
	}
	return &file.DualUse{Shared: shared, Static: static}, nil
}

// Alias adds a named phony target that builds deps.
func (g *Graph) Alias(name string, deps ...file.Artifact) {
	g.aliases = append(g.aliases, &aliasEdge{name: name, deps: deps})
}

// Command adds a named phony target running arbitrary shell commands after
// deps are built.
func (g *Graph) Command(name string, cmds []mkforge.ShellCmd, deps ...file.Artifact) {
	g.commands = append(g.commands, &commandEdge{name: name, cmds: cmds, deps: deps})
}
