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

// Package toolchain resolves compilers and linkers from the build
// environment.  Resolution probes the configured command's version banner to
// identify the vendor family, so a CXX that points at cl.exe yields an MSVC
// builder no matter what the command is called.  All state lives in an
// explicit Registry; there are no package-level registries.
package toolchain

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/mkforge/mkforge"
	"github.com/mkforge/mkforge/file"
)

// Environ is the slice of the build environment toolchain resolution needs.
// *buildenv.Environment satisfies it.
type Environ interface {
	Getvar(key, def string) string
	BinDirs() []string
	BinExts() []string
	LibDirs() []string
	IncludeDirs() []string
}

// LinkMode selects which of a builder's linkers to use.
type LinkMode int

const (
	LinkExecutable LinkMode = iota
	LinkSharedLibrary
	LinkStaticLibrary
)

func (m LinkMode) String() string {
	switch m {
	case LinkExecutable:
		return "executable"
	case LinkSharedLibrary:
		return "shared library"
	case LinkStaticLibrary:
		return "static library"
	default:
		return "unknown"
	}
}

// CompileContext carries the per-target inputs a compiler folds into its
// option list.
type CompileContext struct {
	IncludeDirs []*file.HeaderDir
	Defines     []string
}

// A Compiler turns one source file into one or more objects.  Compilers also
// satisfy the command-variable contract the build-file assembler uses to
// hoist tool invocations into variables.
type Compiler interface {
	Language() string
	CommandVar() string
	Command() []mkforge.SafeString

	// FlagsVar names the build-file variable holding user-facing flags for
	// this compiler (CFLAGS, CXXFLAGS, ...); GlobalFlags is its initial
	// value, taken from the environment.
	FlagsVar() string
	GlobalFlags() []string

	OutputFile(name string) []*file.Object
	Options(ctx CompileContext) []mkforge.SafeString
	Invocation(in, out mkforge.SafeString, flags ...mkforge.SafeString) mkforge.ShellCmd
}

// LinkContext carries the per-target inputs a linker folds into its library
// flags.
type LinkContext struct {
	Libs          []*file.Binary
	WholeArchives []*file.Binary
	LibDirs       []mkforge.Path
}

// A Linker combines objects (and libraries) into a binary.
type Linker interface {
	Language() string
	Mode() LinkMode
	CommandVar() string
	Command() []mkforge.SafeString
	FlagsVar() string
	GlobalFlags() []string
	LibsVar() string
	GlobalLibs() []string

	// CanLink reports whether this linker accepts objects of the given
	// format compiled from the given languages.
	CanLink(format string, langs []string) bool

	// OutputFile names everything one link of the given base name produces.
	// The first artifact is the primary output; companions (import library,
	// export file) follow.
	OutputFile(name string, langs []string) []file.Artifact

	// AlwaysLibs returns libraries every link in this language needs.
	// primary is true when this linker's own language drives the link, false
	// when a more capable linker subsumed it.
	AlwaysLibs(primary bool) []string

	LibFlags(ctx LinkContext) ([]mkforge.SafeString, error)

	// CompileOptions returns the extra options objects destined for this
	// link mode must be compiled with.
	CompileOptions(name string) []string

	// Invocation builds the link command.  libs are the library flags from
	// LibFlags plus any always-libs; cc-style drivers must place them after
	// the objects so archive symbol resolution works.
	Invocation(ins []mkforge.SafeString, outputs []file.Artifact, flags, libs []mkforge.SafeString) mkforge.ShellCmd
}

// A PackageResolver finds prebuilt headers and libraries on the system.
type PackageResolver interface {
	Language() string
	Header(name string, searchDirs []string) (*file.HeaderDir, error)
	Library(name string, kind PackageKind, searchDirs []string) (*file.Binary, error)
	Resolve(name string, headers, libs []string, kind PackageKind) (*Package, error)
}

// A Builder bundles everything resolution produced for one language.
type Builder struct {
	Lang     string
	Brand    string
	Version  string
	Format   string
	Compiler Compiler
	Packages PackageResolver

	linkers map[LinkMode]Linker
}

// NewBuilder assembles a builder from parts.  Frontends use the registry
// factories instead; this is for tests and custom toolchains.
func NewBuilder(lang, brand, version, format string, c Compiler, linkers map[LinkMode]Linker, p PackageResolver) *Builder {
	return &Builder{
		Lang:     lang,
		Brand:    brand,
		Version:  version,
		Format:   format,
		Compiler: c,
		Packages: p,
		linkers:  linkers,
	}
}

// Linker returns the linker for mode, or an error when this builder cannot
// link in that mode.
func (b *Builder) Linker(mode LinkMode) (Linker, error) {
	if l, ok := b.linkers[mode]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%s builder has no %s linker", b.Lang, mode)
}

// A ResolutionError reports a failed search for a tool, header, library, or
// package, naming what was looked for and where.
type ResolutionError struct {
	Kind       string // "command", "header", "library", "package"
	Name       string
	SearchDirs []string
}

func (e *ResolutionError) Error() string {
	if len(e.SearchDirs) == 0 {
		return fmt.Sprintf("unable to find %s %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("unable to find %s %q (searched %s)", e.Kind, e.Name,
		strings.Join(e.SearchDirs, ", "))
}

// NativeObjectFormat returns the object format compilers emit on the host.
func NativeObjectFormat() string {
	switch runtime.GOOS {
	case "windows":
		return "coff"
	case "darwin":
		return "mach-o"
	default:
		return "elf"
	}
}

// libraryMacro derives the preprocessor macro a library's objects are
// compiled with on toolchains that need export annotations.
func libraryMacro(name string, mode LinkMode) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	switch mode {
	case LinkSharedLibrary:
		return b.String() + "_EXPORTS"
	case LinkStaticLibrary:
		return b.String() + "_STATIC"
	default:
		return b.String()
	}
}

// words lifts plain argv words into safe strings.
func words(strs []string) []mkforge.SafeString {
	out := make([]mkforge.SafeString, len(strs))
	for i, s := range strs {
		out[i] = mkforge.Text(s)
	}
	return out
}
