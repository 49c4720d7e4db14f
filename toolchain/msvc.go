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

package toolchain

import (
	"fmt"

	"github.com/mkforge/mkforge"
	"github.com/mkforge/mkforge/file"
	"github.com/mkforge/mkforge/shell"
)

// msvcAllowedLangs maps an MSVC linker's language to the input languages it
// accepts.
var msvcAllowedLangs = map[string]map[string]bool{
	"c":   {"c": true},
	"c++": {"c": true, "c++": true},
}

func newMsvcBuilder(env Environ, lang string, info ccLangInfo, version string, argv []string) (*Builder, error) {
	const format = "coff"
	if lang != "c" && lang != "c++" {
		return nil, fmt.Errorf("msvc does not support %s", lang)
	}

	cflags, err := splitVar(env, info.flagsVar)
	if err != nil {
		return nil, err
	}
	cppflags, err := splitVar(env, "CPPFLAGS")
	if err != nil {
		return nil, err
	}
	ldflags, err := splitVar(env, "LDFLAGS")
	if err != nil {
		return nil, err
	}
	ldlibs, err := splitVar(env, "LDLIBS")
	if err != nil {
		return nil, err
	}
	linkCmd, err := shell.Split(env.Getvar("VCLINK", "link"))
	if err != nil {
		return nil, fmt.Errorf("parsing $VCLINK: %w", err)
	}
	if len(linkCmd) == 0 {
		return nil, fmt.Errorf("$VCLINK is empty")
	}
	libCmd, err := shell.Split(env.Getvar("VCLIB", "lib"))
	if err != nil {
		return nil, fmt.Errorf("parsing $VCLIB: %w", err)
	}
	if len(libCmd) == 0 {
		return nil, fmt.Errorf("$VCLIB is empty")
	}

	compiler := &msvcCompiler{
		lang:     lang,
		cmdVar:   info.cmdVar,
		flagsVar: info.flagsVar,
		argv:     argv,
		flags:    append(append([]string(nil), cflags...), cppflags...),
		format:   format,
	}
	linkers := map[LinkMode]Linker{
		LinkExecutable: &msvcLinker{
			lang: lang, mode: LinkExecutable,
			argv: linkCmd, flags: ldflags, libs: ldlibs, format: format,
		},
		LinkSharedLibrary: &msvcLinker{
			lang: lang, mode: LinkSharedLibrary,
			argv: linkCmd, flags: ldflags, libs: ldlibs, format: format,
		},
		LinkStaticLibrary: &msvcStaticLinker{
			lang: lang, argv: libCmd, format: format,
		},
	}
	packages := &msvcPackageResolver{lang: lang, env: env}
	return NewBuilder(lang, "msvc", version, format, compiler, linkers, packages), nil
}

type msvcCompiler struct {
	lang     string
	cmdVar   string
	flagsVar string
	argv     []string
	flags    []string
	format   string
}

func (c *msvcCompiler) Language() string              { return c.lang }
func (c *msvcCompiler) CommandVar() string            { return c.cmdVar }
func (c *msvcCompiler) Command() []mkforge.SafeString { return words(c.argv) }
func (c *msvcCompiler) FlagsVar() string              { return c.flagsVar }
func (c *msvcCompiler) GlobalFlags() []string         { return c.flags }

func (c *msvcCompiler) OutputFile(name string) []*file.Object {
	return []*file.Object{file.NewObject(mkforge.BuildPath(name+".obj"), c.format, c.lang)}
}

func (c *msvcCompiler) Options(ctx CompileContext) []mkforge.SafeString {
	var opts []mkforge.SafeString
	for _, dir := range ctx.IncludeDirs {
		opts = append(opts, mkforge.Concat{mkforge.Literal("/I"), dir.Path})
	}
	for _, def := range ctx.Defines {
		opts = append(opts, mkforge.Text("/D"+def))
	}
	return opts
}

func (c *msvcCompiler) Invocation(in, out mkforge.SafeString, flags ...mkforge.SafeString) mkforge.ShellCmd {
	argv := []mkforge.SafeString{
		mkforge.ToolWord{Tool: c},
		mkforge.Literal("/nologo"), mkforge.Literal("/EHsc"),
	}
	argv = append(argv, flags...)
	argv = append(argv, mkforge.Literal("/c"), in,
		mkforge.Concat{mkforge.Literal("/Fo"), out})
	return mkforge.ShellCmd{Argv: argv}
}

// msvcLinker drives link.exe for executables and DLLs.
type msvcLinker struct {
	lang   string
	mode   LinkMode
	argv   []string
	flags  []string
	libs   []string
	format string
}

func (l *msvcLinker) Language() string              { return l.lang }
func (l *msvcLinker) Mode() LinkMode                { return l.mode }
func (l *msvcLinker) CommandVar() string            { return "vclink" }
func (l *msvcLinker) Command() []mkforge.SafeString { return words(l.argv) }
func (l *msvcLinker) FlagsVar() string              { return "LDFLAGS" }
func (l *msvcLinker) GlobalFlags() []string         { return l.flags }
func (l *msvcLinker) LibsVar() string               { return "LDLIBS" }
func (l *msvcLinker) GlobalLibs() []string          { return l.libs }

func (l *msvcLinker) CanLink(format string, langs []string) bool {
	if format != l.format {
		return false
	}
	allowed := msvcAllowedLangs[l.lang]
	for _, lang := range langs {
		if !allowed[lang] {
			return false
		}
	}
	return true
}

func (l *msvcLinker) OutputFile(name string, langs []string) []file.Artifact {
	switch l.mode {
	case LinkExecutable:
		return []file.Artifact{file.NewExecutable(mkforge.BuildPath(name+".exe"), l.format, langs)}
	case LinkSharedLibrary:
		// One link produces three artifacts.  Consumers link against the
		// import library; the export file is bookkeeping output.
		dll := file.NewSharedLibrary(mkforge.BuildPath(name+".dll"), l.format, langs)
		imp := file.NewImportLibrary(mkforge.BuildPath(name+".lib"), dll)
		exp := &file.Plain{Attrs: file.Attrs{Path: mkforge.BuildPath(name + ".exp")}}
		dll.Export = exp
		return []file.Artifact{dll, imp, exp}
	default:
		return nil
	}
}

func (l *msvcLinker) AlwaysLibs(primary bool) []string { return nil }

func (l *msvcLinker) LibFlags(ctx LinkContext) ([]mkforge.SafeString, error) {
	if len(ctx.WholeArchives) > 0 {
		return nil, fmt.Errorf("msvc does not support whole-archive linking")
	}
	var out []mkforge.SafeString
	for _, dir := range ctx.LibDirs {
		out = append(out, mkforge.Concat{mkforge.Literal("/LIBPATH:"), dir})
	}
	for _, lib := range ctx.Libs {
		out = append(out, lib.Path)
	}
	return out, nil
}

func (l *msvcLinker) CompileOptions(name string) []string {
	if l.mode == LinkSharedLibrary {
		return []string{libraryMacro(name, LinkSharedLibrary)}
	}
	return nil
}

func (l *msvcLinker) Invocation(ins []mkforge.SafeString, outputs []file.Artifact, flags, libs []mkforge.SafeString) mkforge.ShellCmd {
	argv := []mkforge.SafeString{
		mkforge.ToolWord{Tool: l}, mkforge.Literal("/nologo"),
	}
	if l.mode == LinkSharedLibrary {
		argv = append(argv, mkforge.Literal("/DLL"))
		if len(outputs) > 1 {
			argv = append(argv, mkforge.Concat{
				mkforge.Literal("/IMPLIB:"), outputs[1].ArtifactPath(),
			})
		}
	}
	argv = append(argv, flags...)
	argv = append(argv, ins...)
	argv = append(argv, libs...)
	argv = append(argv, mkforge.Concat{mkforge.Literal("/OUT:"), outputs[0].ArtifactPath()})
	return mkforge.ShellCmd{Argv: argv}
}

// msvcStaticLinker drives lib.exe.
type msvcStaticLinker struct {
	lang   string
	argv   []string
	format string
}

func (l *msvcStaticLinker) Language() string              { return l.lang }
func (l *msvcStaticLinker) Mode() LinkMode                { return LinkStaticLibrary }
func (l *msvcStaticLinker) CommandVar() string            { return "vclib" }
func (l *msvcStaticLinker) Command() []mkforge.SafeString { return words(l.argv) }
func (l *msvcStaticLinker) FlagsVar() string              { return "LIBFLAGS" }
func (l *msvcStaticLinker) GlobalFlags() []string         { return nil }
func (l *msvcStaticLinker) LibsVar() string               { return "" }
func (l *msvcStaticLinker) GlobalLibs() []string          { return nil }

func (l *msvcStaticLinker) CanLink(format string, langs []string) bool {
	return format == l.format
}

func (l *msvcStaticLinker) OutputFile(name string, langs []string) []file.Artifact {
	return []file.Artifact{file.NewStaticLibrary(mkforge.BuildPath(name+".lib"), l.format, langs)}
}

func (l *msvcStaticLinker) AlwaysLibs(primary bool) []string { return nil }

func (l *msvcStaticLinker) LibFlags(ctx LinkContext) ([]mkforge.SafeString, error) {
	if len(ctx.Libs) > 0 || len(ctx.WholeArchives) > 0 {
		return nil, fmt.Errorf("static archives cannot link against libraries")
	}
	return nil, nil
}

func (l *msvcStaticLinker) CompileOptions(name string) []string {
	return []string{libraryMacro(name, LinkStaticLibrary)}
}

func (l *msvcStaticLinker) Invocation(ins []mkforge.SafeString, outputs []file.Artifact, flags, libs []mkforge.SafeString) mkforge.ShellCmd {
	argv := []mkforge.SafeString{
		mkforge.ToolWord{Tool: l}, mkforge.Literal("/nologo"),
	}
	argv = append(argv, flags...)
	argv = append(argv, mkforge.Concat{mkforge.Literal("/OUT:"), outputs[0].ArtifactPath()})
	argv = append(argv, ins...)
	return mkforge.ShellCmd{Argv: argv}
}
