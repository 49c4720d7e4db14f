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
	"context"
	"fmt"
	"path"
	"regexp"
	"runtime"

	"github.com/mkforge/mkforge"
	"github.com/mkforge/mkforge/file"
	"github.com/mkforge/mkforge/shell"
)

type ccLangInfo struct {
	envVar   string
	cmdVar   string
	flagsVar string
}

var ccLangs = map[string]ccLangInfo{
	"c":      {"CC", "cc", "CFLAGS"},
	"c++":    {"CXX", "cxx", "CXXFLAGS"},
	"objc":   {"OBJC", "objc", "OBJCFLAGS"},
	"objc++": {"OBJCXX", "objcxx", "OBJCXXFLAGS"},
}

// ccAllowedLangs maps a linker's language to the input languages it accepts.
var ccAllowedLangs = map[string]map[string]bool{
	"c":      {"c": true},
	"c++":    {"c": true, "c++": true},
	"objc":   {"c": true, "objc": true},
	"objc++": {"c": true, "c++": true, "objc": true, "objc++": true},
}

func ccDefaultCommand(lang string) string {
	if runtime.GOOS == "windows" {
		return "cl"
	}
	switch lang {
	case "c++", "objc++":
		return "c++"
	default:
		return "cc"
	}
}

// CFamily resolves the builder for a C-family language.  The configured
// command's version banner decides the vendor: a CXX pointing at cl.exe
// yields an MSVC builder even though it was configured through the generic
// variable.
func CFamily(ctx context.Context, r *Registry, lang string) (*Builder, error) {
	info, ok := ccLangs[lang]
	if !ok {
		return nil, fmt.Errorf("unrecognized c-family language %q", lang)
	}
	env := r.Env()

	cmdline := env.Getvar(info.envVar, ccDefaultCommand(lang))
	argv, err := shell.Split(cmdline)
	if err != nil {
		return nil, fmt.Errorf("parsing $%s: %w", info.envVar, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("$%s is empty", info.envVar)
	}

	banner, err := r.versionOutput(ctx, argv, "--version")
	if err != nil {
		// cl.exe rejects --version outright on some shells; its /? banner
		// still identifies it.
		banner, err = r.versionOutput(ctx, argv, "/?")
		if err != nil {
			return nil, err
		}
	}
	brand, version := detectBrand(banner)
	if brand == "msvc" {
		return newMsvcBuilder(env, lang, info, version, argv)
	}
	return newCcBuilder(env, lang, info, brand, version, argv)
}

func splitVar(env Environ, key string) ([]string, error) {
	args, err := shell.Split(env.Getvar(key, ""))
	if err != nil {
		return nil, fmt.Errorf("parsing $%s: %w", key, err)
	}
	return args, nil
}

func newCcBuilder(env Environ, lang string, info ccLangInfo, brand, version string, argv []string) (*Builder, error) {
	format := NativeObjectFormat()

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
	arCmd, err := shell.Split(env.Getvar("AR", "ar"))
	if err != nil {
		return nil, fmt.Errorf("parsing $AR: %w", err)
	}
	if len(arCmd) == 0 {
		return nil, fmt.Errorf("$AR is empty")
	}
	arFlags, err := splitVar(env, "ARFLAGS")
	if err != nil {
		return nil, err
	}
	if len(arFlags) == 0 {
		arFlags = []string{"cr"}
	}

	compiler := &ccCompiler{
		lang:     lang,
		cmdVar:   info.cmdVar,
		flagsVar: info.flagsVar,
		argv:     argv,
		flags:    append(append([]string(nil), cflags...), cppflags...),
		format:   format,
	}
	linkers := map[LinkMode]Linker{
		LinkExecutable: &ccLinker{
			lang: lang, cmdVar: info.cmdVar, mode: LinkExecutable,
			argv: argv, flags: ldflags, libs: ldlibs, format: format,
		},
		LinkSharedLibrary: &ccLinker{
			lang: lang, cmdVar: info.cmdVar, mode: LinkSharedLibrary,
			argv: argv, flags: ldflags, libs: ldlibs, format: format,
		},
		LinkStaticLibrary: &arLinker{
			lang: lang, argv: arCmd, flags: arFlags, format: format,
		},
	}
	packages := &ccPackageResolver{lang: lang, env: env}
	return NewBuilder(lang, brand, version, format, compiler, linkers, packages), nil
}

// ccCompiler drives a cc-style compiler: gcc, clang, or anything flag
// compatible with them.
type ccCompiler struct {
	lang     string
	cmdVar   string
	flagsVar string
	argv     []string
	flags    []string
	format   string
}

func (c *ccCompiler) Language() string              { return c.lang }
func (c *ccCompiler) CommandVar() string            { return c.cmdVar }
func (c *ccCompiler) Command() []mkforge.SafeString { return words(c.argv) }
func (c *ccCompiler) FlagsVar() string              { return c.flagsVar }
func (c *ccCompiler) GlobalFlags() []string         { return c.flags }

func (c *ccCompiler) OutputFile(name string) []*file.Object {
	return []*file.Object{file.NewObject(mkforge.BuildPath(name+".o"), c.format, c.lang)}
}

func (c *ccCompiler) Options(ctx CompileContext) []mkforge.SafeString {
	var opts []mkforge.SafeString
	for _, dir := range ctx.IncludeDirs {
		if dir.System {
			opts = append(opts, mkforge.Literal("-isystem"), dir.Path)
		} else {
			opts = append(opts, mkforge.Concat{mkforge.Literal("-I"), dir.Path})
		}
	}
	for _, def := range ctx.Defines {
		opts = append(opts, mkforge.Text("-D"+def))
	}
	return opts
}

func (c *ccCompiler) Invocation(in, out mkforge.SafeString, flags ...mkforge.SafeString) mkforge.ShellCmd {
	argv := []mkforge.SafeString{mkforge.ToolWord{Tool: c}}
	argv = append(argv, flags...)
	argv = append(argv, mkforge.Literal("-c"), in, mkforge.Literal("-o"), out)
	return mkforge.ShellCmd{Argv: argv}
}

// ccLinker links through the compiler driver, for executables and shared
// libraries.
type ccLinker struct {
	lang   string
	cmdVar string
	mode   LinkMode
	argv   []string
	flags  []string
	libs   []string
	format string
}

func (l *ccLinker) Language() string              { return l.lang }
func (l *ccLinker) Mode() LinkMode                { return l.mode }
func (l *ccLinker) CommandVar() string            { return l.cmdVar }
func (l *ccLinker) Command() []mkforge.SafeString { return words(l.argv) }
func (l *ccLinker) FlagsVar() string              { return "LDFLAGS" }
func (l *ccLinker) GlobalFlags() []string         { return l.flags }
func (l *ccLinker) LibsVar() string               { return "LDLIBS" }
func (l *ccLinker) GlobalLibs() []string          { return l.libs }

func (l *ccLinker) CanLink(format string, langs []string) bool {
	if format != l.format {
		return false
	}
	allowed := ccAllowedLangs[l.lang]
	for _, lang := range langs {
		if !allowed[lang] {
			return false
		}
	}
	return true
}

func (l *ccLinker) OutputFile(name string, langs []string) []file.Artifact {
	switch l.mode {
	case LinkExecutable:
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		return []file.Artifact{file.NewExecutable(mkforge.BuildPath(name), l.format, langs)}
	case LinkSharedLibrary:
		switch runtime.GOOS {
		case "windows":
			// MinGW layout: the DLL plus an import library to link against.
			dll := file.NewSharedLibrary(mkforge.BuildPath(name+".dll"), l.format, langs)
			imp := file.NewImportLibrary(mkforge.BuildPath("lib"+name+".dll.a"), dll)
			return []file.Artifact{dll, imp}
		case "darwin":
			return []file.Artifact{file.NewSharedLibrary(mkforge.BuildPath("lib"+name+".dylib"), l.format, langs)}
		default:
			return []file.Artifact{file.NewSharedLibrary(mkforge.BuildPath("lib"+name+".so"), l.format, langs)}
		}
	default:
		return nil
	}
}

func (l *ccLinker) AlwaysLibs(primary bool) []string {
	// A c++ link driven by another language's driver must name the standard
	// library explicitly; the c++ driver adds it itself.
	if !primary && (l.lang == "c++" || l.lang == "objc++") {
		return []string{"-lstdc++"}
	}
	return nil
}

var ccLibNameRe = regexp.MustCompile(`^lib(.*)\.(so(\.\d+)*|dylib|a)$`)

func (l *ccLinker) LibFlags(ctx LinkContext) ([]mkforge.SafeString, error) {
	var out []mkforge.SafeString
	for _, dir := range ctx.LibDirs {
		out = append(out, mkforge.Concat{mkforge.Literal("-L"), dir})
	}
	for _, lib := range ctx.WholeArchives {
		if runtime.GOOS == "darwin" {
			out = append(out, mkforge.Literal("-Wl,-force_load"), lib.Path)
		} else {
			out = append(out, mkforge.Literal("-Wl,--whole-archive"), lib.Path,
				mkforge.Literal("-Wl,--no-whole-archive"))
		}
	}
	for _, lib := range ctx.Libs {
		// System libraries found by package resolution link by name; build
		// products link by path, which also serves as the dependency edge.
		if lib.External {
			if m := ccLibNameRe.FindStringSubmatch(path.Base(lib.Path.Rel)); m != nil {
				out = append(out, mkforge.Text("-l"+m[1]))
				continue
			}
		}
		out = append(out, lib.Path)
	}
	return out, nil
}

func (l *ccLinker) CompileOptions(name string) []string {
	if l.mode == LinkSharedLibrary && runtime.GOOS != "windows" {
		return []string{"-fPIC"}
	}
	return nil
}

func (l *ccLinker) Invocation(ins []mkforge.SafeString, outputs []file.Artifact, flags, libs []mkforge.SafeString) mkforge.ShellCmd {
	argv := []mkforge.SafeString{mkforge.ToolWord{Tool: l}}
	argv = append(argv, flags...)
	if l.mode == LinkSharedLibrary {
		argv = append(argv, mkforge.Literal("-shared"))
		if runtime.GOOS == "windows" && len(outputs) > 1 {
			argv = append(argv, mkforge.Concat{
				mkforge.Literal("-Wl,--out-implib,"), outputs[1].ArtifactPath(),
			})
		}
	}
	argv = append(argv, ins...)
	argv = append(argv, mkforge.Literal("-o"), outputs[0].ArtifactPath())
	argv = append(argv, libs...)
	return mkforge.ShellCmd{Argv: argv}
}

// arLinker archives objects into a static library.
type arLinker struct {
	lang   string
	argv   []string
	flags  []string
	format string
}

func (l *arLinker) Language() string              { return l.lang }
func (l *arLinker) Mode() LinkMode                { return LinkStaticLibrary }
func (l *arLinker) CommandVar() string            { return "ar" }
func (l *arLinker) Command() []mkforge.SafeString { return words(l.argv) }
func (l *arLinker) FlagsVar() string              { return "ARFLAGS" }
func (l *arLinker) GlobalFlags() []string         { return l.flags }
func (l *arLinker) LibsVar() string               { return "" }
func (l *arLinker) GlobalLibs() []string          { return nil }

func (l *arLinker) CanLink(format string, langs []string) bool {
	return format == l.format
}

func (l *arLinker) OutputFile(name string, langs []string) []file.Artifact {
	return []file.Artifact{file.NewStaticLibrary(mkforge.BuildPath("lib"+name+".a"), l.format, langs)}
}

func (l *arLinker) AlwaysLibs(primary bool) []string { return nil }

func (l *arLinker) LibFlags(ctx LinkContext) ([]mkforge.SafeString, error) {
	if len(ctx.Libs) > 0 || len(ctx.WholeArchives) > 0 {
		return nil, fmt.Errorf("static archives cannot link against libraries")
	}
	return nil, nil
}

func (l *arLinker) CompileOptions(name string) []string { return nil }

func (l *arLinker) Invocation(ins []mkforge.SafeString, outputs []file.Artifact, flags, libs []mkforge.SafeString) mkforge.ShellCmd {
	argv := []mkforge.SafeString{mkforge.ToolWord{Tool: l}}
	argv = append(argv, flags...)
	argv = append(argv, outputs[0].ArtifactPath())
	argv = append(argv, ins...)
	return mkforge.ShellCmd{Argv: argv}
}
