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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkforge/mkforge"
	"github.com/mkforge/mkforge/file"
)

type fakeEnv struct {
	vars    map[string]string
	binDirs []string
	libDirs []string
	incDirs []string
}

func (e *fakeEnv) Getvar(key, def string) string {
	if v, ok := e.vars[key]; ok {
		return v
	}
	return def
}
func (e *fakeEnv) BinDirs() []string     { return e.binDirs }
func (e *fakeEnv) BinExts() []string     { return []string{""} }
func (e *fakeEnv) LibDirs() []string     { return e.libDirs }
func (e *fakeEnv) IncludeDirs() []string { return e.incDirs }

// fakeCommand installs an executable shell script into dir that prints
// banner, and returns its name.
func fakeCommand(t *testing.T, dir, name, banner string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell commands need a POSIX shell")
	}
	script := "#!/bin/sh\necho \"" + banner + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
	return name
}

func TestDetectBrand(t *testing.T) {
	testCases := []struct {
		banner  string
		brand   string
		version string
	}{
		{"gcc (GCC) 13.2.0\nCopyright (C) 2023 Free Software Foundation, Inc.", "gcc", "13.2.0"},
		{"Ubuntu clang version 17.0.6", "clang", "17.0.6"},
		{"Microsoft (R) C/C++ Optimizing Compiler Version 19.29.30133 for x64", "msvc", "19.29.30133"},
		{"mystery compiler", "unknown", ""},
	}
	for _, tc := range testCases {
		brand, version := detectBrand(tc.banner)
		assert.Equal(t, tc.brand, brand, tc.banner)
		assert.Equal(t, tc.version, version, tc.banner)
	}
}

func TestWhich(t *testing.T) {
	dir := t.TempDir()
	name := fakeCommand(t, dir, "mycc", "hi")
	env := &fakeEnv{binDirs: []string{"/nonexistent", dir}}

	path, err := which(env, name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, name), path)

	_, err = which(env, "no-such-tool")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "command", resErr.Kind)
	assert.Equal(t, "no-such-tool", resErr.Name)
	assert.Equal(t, env.binDirs, resErr.SearchDirs)
}

func TestResolutionErrorMessage(t *testing.T) {
	err := &ResolutionError{Kind: "library", Name: "ssl", SearchDirs: []string{"/a", "/b"}}
	assert.Equal(t, `unable to find library "ssl" (searched /a, /b)`, err.Error())

	err = &ResolutionError{Kind: "command", Name: "cc"}
	assert.Equal(t, `unable to find command "cc"`, err.Error())
}

func TestVersionOutputCaching(t *testing.T) {
	dir := t.TempDir()
	// The script prints its own pid, so a fresh run never matches a cached
	// result.
	if runtime.GOOS == "windows" {
		t.Skip("fake shell commands need a POSIX shell")
	}
	script := "#!/bin/sh\necho $$\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pid"), []byte(script), 0o755))

	r := NewRegistry(&fakeEnv{binDirs: []string{dir}})
	ctx := context.Background()
	first, err := r.versionOutput(ctx, []string{"pid"}, "--version")
	require.NoError(t, err)
	second, err := r.versionOutput(ctx, []string{"pid"}, "--version")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	third, err := r.versionOutput(ctx, []string{"pid"}, "-v")
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestCFamilyGcc(t *testing.T) {
	dir := t.TempDir()
	name := fakeCommand(t, dir, "fakegcc",
		"gcc (GCC) 13.2.0\nCopyright (C) 2023 Free Software Foundation, Inc.")
	env := &fakeEnv{
		vars: map[string]string{
			"CC":     name,
			"CFLAGS": "-g -O2",
			"LDLIBS": "-lm",
		},
		binDirs: []string{dir},
	}
	r := NewRegistry(env)
	ctx := context.Background()

	b, err := r.Builder(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "gcc", b.Brand)
	assert.Equal(t, "13.2.0", b.Version)
	assert.Equal(t, "c", b.Compiler.Language())
	assert.Equal(t, "CFLAGS", b.Compiler.FlagsVar())
	assert.Equal(t, []string{"-g", "-O2"}, b.Compiler.GlobalFlags())

	ld, err := b.Linker(LinkExecutable)
	require.NoError(t, err)
	assert.Equal(t, []string{"-lm"}, ld.GlobalLibs())

	ar, err := b.Linker(LinkStaticLibrary)
	require.NoError(t, err)
	assert.Equal(t, LinkStaticLibrary, ar.Mode())

	// Resolution is memoized per language.
	again, err := r.Builder(ctx, "c")
	require.NoError(t, err)
	assert.Same(t, b, again)
}

func TestCFamilyDetectsMsvcFromBanner(t *testing.T) {
	dir := t.TempDir()
	name := fakeCommand(t, dir, "fakecl",
		"Microsoft (R) C/C++ Optimizing Compiler Version 19.29.30133 for x64")
	env := &fakeEnv{
		vars:    map[string]string{"CXX": name},
		binDirs: []string{dir},
	}
	r := NewRegistry(env)

	b, err := r.Builder(context.Background(), "c++")
	require.NoError(t, err)
	assert.Equal(t, "msvc", b.Brand)
	assert.IsType(t, &msvcCompiler{}, b.Compiler)
	assert.Equal(t, "coff", b.Format)

	objs := b.Compiler.OutputFile("main")
	require.Len(t, objs, 1)
	assert.Equal(t, "main.obj", objs[0].Path.Rel)
}

func TestCFamilyUnknownLanguage(t *testing.T) {
	r := NewRegistry(&fakeEnv{})
	_, err := CFamily(context.Background(), r, "fortran")
	assert.Error(t, err)
}

func TestCcLinkerCanLink(t *testing.T) {
	l := &ccLinker{lang: "c++", mode: LinkExecutable, format: "elf"}
	assert.True(t, l.CanLink("elf", []string{"c", "c++"}))
	assert.False(t, l.CanLink("elf", []string{"objc"}))
	assert.False(t, l.CanLink("coff", []string{"c"}))

	c := &ccLinker{lang: "c", mode: LinkExecutable, format: "elf"}
	assert.False(t, c.CanLink("elf", []string{"c", "c++"}))
	assert.True(t, c.CanLink("elf", []string{"c"}))
}

func TestCcLinkerAlwaysLibs(t *testing.T) {
	l := &ccLinker{lang: "c++", mode: LinkExecutable, format: "elf"}
	assert.Empty(t, l.AlwaysLibs(true))
	assert.Equal(t, []string{"-lstdc++"}, l.AlwaysLibs(false))

	c := &ccLinker{lang: "c", mode: LinkExecutable, format: "elf"}
	assert.Empty(t, c.AlwaysLibs(false))
}

func TestMsvcSharedLibraryOutputs(t *testing.T) {
	l := &msvcLinker{lang: "c++", mode: LinkSharedLibrary, format: "coff"}
	outs := l.OutputFile("winny", []string{"c++"})
	require.Len(t, outs, 3)

	dll, ok := outs[0].(*file.Binary)
	require.True(t, ok)
	assert.Equal(t, file.SharedLib, dll.Kind)
	assert.Equal(t, "winny.dll", dll.Path.Rel)
	assert.True(t, dll.RuntimeLoadable)

	imp, ok := outs[1].(*file.Binary)
	require.True(t, ok)
	assert.Equal(t, file.ImportLib, imp.Kind)
	assert.Equal(t, "winny.lib", imp.Path.Rel)
	assert.True(t, imp.Linkable)
	assert.Equal(t, dll.Langs, imp.Langs)

	// Consumers link through the import library.
	assert.Same(t, imp, dll.LinkInput())

	exp, ok := outs[2].(*file.Plain)
	require.True(t, ok)
	assert.Equal(t, "winny.exp", exp.Path.Rel)
	assert.Same(t, exp, dll.Export)
}

func TestMsvcWholeArchiveRejected(t *testing.T) {
	l := &msvcLinker{lang: "c++", mode: LinkExecutable, format: "coff"}
	lib := file.NewStaticLibrary(mkforge.BuildPath("x.lib"), "coff", []string{"c"})
	_, err := l.LibFlags(LinkContext{WholeArchives: []*file.Binary{lib}})
	assert.Error(t, err)
}

func TestLibraryMacro(t *testing.T) {
	assert.Equal(t, "MY_LIB_EXPORTS", libraryMacro("my-lib", LinkSharedLibrary))
	assert.Equal(t, "FOO_STATIC", libraryMacro("foo", LinkStaticLibrary))
}

func TestRegistryPrecedence(t *testing.T) {
	r := NewRegistry(&fakeEnv{})
	cppLinker := &ccLinker{lang: "c++", mode: LinkExecutable, format: "elf"}
	cLinker := &ccLinker{lang: "c", mode: LinkExecutable, format: "elf"}
	r.AddBuilder(NewBuilder("c++", "gcc", "13", "elf", nil,
		map[LinkMode]Linker{LinkExecutable: cppLinker}, nil))
	r.AddBuilder(NewBuilder("c", "gcc", "13", "elf", nil,
		map[LinkMode]Linker{LinkExecutable: cLinker}, nil))

	ctx := context.Background()
	ld, err := r.Linker(ctx, LinkExecutable, []string{"c", "c++"})
	require.NoError(t, err)
	assert.Equal(t, "c++", ld.Language())

	r.SetPrecedence("c", "c++")
	ld, err = r.Linker(ctx, LinkExecutable, []string{"c", "c++"})
	require.NoError(t, err)
	assert.Equal(t, "c", ld.Language())

	_, err = r.Linker(ctx, LinkExecutable, nil)
	assert.Error(t, err)
}

func TestRegistryUnknownLanguage(t *testing.T) {
	r := NewRegistry(&fakeEnv{})
	_, err := r.Builder(context.Background(), "rust")
	assert.Error(t, err)
}

func TestPackageResolution(t *testing.T) {
	incDir := t.TempDir()
	libDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(incDir, "zlib.h"), []byte("// z\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "libz"+ccSharedLibExt()), nil, 0o644))

	r := &ccPackageResolver{
		lang: "c",
		env:  &fakeEnv{incDirs: []string{incDir}, libDirs: []string{libDir}},
	}

	pkg, err := r.Resolve("z", []string{"zlib.h"}, nil, AnyPackage)
	require.NoError(t, err)
	require.Len(t, pkg.IncludeDirs, 1)
	assert.True(t, pkg.IncludeDirs[0].System)
	assert.Equal(t, incDir, pkg.IncludeDirs[0].Path.Rel)
	require.Len(t, pkg.Libs, 1)
	assert.Equal(t, file.SharedLib, pkg.Libs[0].Kind)
	assert.True(t, pkg.Libs[0].External)

	_, err = r.Resolve("nope", []string{"nope.h"}, nil, AnyPackage)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "header", resErr.Kind)

	_, err = r.Library("missing", StaticPackage, nil)
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "library", resErr.Kind)
	assert.Equal(t, []string{libDir}, resErr.SearchDirs)
}
