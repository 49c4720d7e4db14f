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
	"os"
	"path/filepath"
	"runtime"

	"github.com/mkforge/mkforge"
	"github.com/mkforge/mkforge/file"
)

// PackageKind restricts what flavor of library Resolve accepts.
type PackageKind int

const (
	AnyPackage PackageKind = iota
	SharedPackage
	StaticPackage
)

// A Package is a resolved system dependency: the header directories to
// compile against and the libraries to link.
type Package struct {
	Name        string
	IncludeDirs []*file.HeaderDir
	Libs        []*file.Binary
}

func statFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// findHeader locates a header file and returns its containing directory as a
// system header dir.
func findHeader(lang, name string, dirs []string) (*file.HeaderDir, error) {
	for _, dir := range dirs {
		if statFile(filepath.Join(dir, name)) {
			return &file.HeaderDir{
				Attrs:  file.Attrs{Path: mkforge.AbsPath(dir), External: true},
				System: true,
				Langs:  []string{lang},
			}, nil
		}
	}
	return nil, &ResolutionError{Kind: "header", Name: name, SearchDirs: dirs}
}

// ccPackageResolver finds headers and unix-style libraries on the system
// search paths.
type ccPackageResolver struct {
	lang string
	env  Environ
}

func (r *ccPackageResolver) Language() string { return r.lang }

func (r *ccPackageResolver) Header(name string, searchDirs []string) (*file.HeaderDir, error) {
	if searchDirs == nil {
		searchDirs = r.env.IncludeDirs()
	}
	return findHeader(r.lang, name, searchDirs)
}

func ccSharedLibExt() string {
	if runtime.GOOS == "darwin" {
		return ".dylib"
	}
	return ".so"
}

func (r *ccPackageResolver) Library(name string, kind PackageKind, searchDirs []string) (*file.Binary, error) {
	if searchDirs == nil {
		searchDirs = r.env.LibDirs()
	}
	type candidate struct {
		base string
		kind file.BinaryKind
	}
	var cands []candidate
	if kind == AnyPackage || kind == SharedPackage {
		cands = append(cands, candidate{"lib" + name + ccSharedLibExt(), file.SharedLib})
	}
	if kind == AnyPackage || kind == StaticPackage {
		cands = append(cands, candidate{"lib" + name + ".a", file.StaticLib})
	}
	for _, dir := range searchDirs {
		for _, b := range cands {
			full := filepath.Join(dir, b.base)
			if !statFile(full) {
				continue
			}
			bin := &file.Binary{
				Attrs:    file.Attrs{Path: mkforge.AbsPath(full), External: true},
				Kind:     b.kind,
				Format:   NativeObjectFormat(),
				Langs:    []string{r.lang},
				Linkable: true,
			}
			bin.RuntimeLoadable = b.kind == file.SharedLib
			return bin, nil
		}
	}
	return nil, &ResolutionError{Kind: "library", Name: name, SearchDirs: searchDirs}
}

func (r *ccPackageResolver) Resolve(name string, headers, libs []string, kind PackageKind) (*Package, error) {
	return resolvePackage(r, name, headers, libs, kind)
}

// msvcPackageResolver finds headers and .lib files.  A .lib on disk may be a
// static library or a DLL import library; it is treated as whichever kind
// the caller asked for.
type msvcPackageResolver struct {
	lang string
	env  Environ
}

func (r *msvcPackageResolver) Language() string { return r.lang }

func (r *msvcPackageResolver) Header(name string, searchDirs []string) (*file.HeaderDir, error) {
	if searchDirs == nil {
		searchDirs = r.env.IncludeDirs()
	}
	return findHeader(r.lang, name, searchDirs)
}

func (r *msvcPackageResolver) Library(name string, kind PackageKind, searchDirs []string) (*file.Binary, error) {
	if searchDirs == nil {
		searchDirs = r.env.LibDirs()
	}
	binKind := file.StaticLib
	if kind == SharedPackage {
		binKind = file.ImportLib
	}
	for _, dir := range searchDirs {
		full := filepath.Join(dir, name+".lib")
		if statFile(full) {
			return &file.Binary{
				Attrs:    file.Attrs{Path: mkforge.AbsPath(full), External: true},
				Kind:     binKind,
				Format:   "coff",
				Langs:    []string{r.lang},
				Linkable: true,
			}, nil
		}
	}
	return nil, &ResolutionError{Kind: "library", Name: name, SearchDirs: searchDirs}
}

func (r *msvcPackageResolver) Resolve(name string, headers, libs []string, kind PackageKind) (*Package, error) {
	return resolvePackage(r, name, headers, libs, kind)
}

// resolvePackage assembles a Package from its header and library names.
// When no library names are given the package name itself is tried.
func resolvePackage(r PackageResolver, name string, headers, libs []string, kind PackageKind) (*Package, error) {
	pkg := &Package{Name: name}
	for _, hdr := range headers {
		dir, err := r.Header(hdr, nil)
		if err != nil {
			return nil, err
		}
		pkg.IncludeDirs = append(pkg.IncludeDirs, dir)
	}
	if libs == nil {
		libs = []string{name}
	}
	for _, lib := range libs {
		bin, err := r.Library(lib, kind, nil)
		if err != nil {
			return nil, err
		}
		pkg.Libs = append(pkg.Libs, bin)
	}
	return pkg, nil
}
