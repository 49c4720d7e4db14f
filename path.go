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

import "runtime"

// A Root is the abstract directory a Path is anchored to.  Paths keep their
// root symbolic until emission, when the root is resolved to a make variable
// reference (or nothing, for build-directory paths, which are already where
// the build runs).
type Root int

const (
	RootSrc Root = iota
	RootBuild
	RootPrefix
	RootBin
	RootLib
	RootInclude
	RootMan
	RootDestDir
	// RootAbs anchors nothing: Rel already holds an absolute path, as for
	// system headers and libraries found by package resolution.
	RootAbs
)

func (r Root) String() string {
	switch r {
	case RootSrc:
		return "srcdir"
	case RootBuild:
		return "builddir"
	case RootPrefix:
		return "prefix"
	case RootBin:
		return "bindir"
	case RootLib:
		return "libdir"
	case RootInclude:
		return "includedir"
	case RootMan:
		return "mandir"
	case RootDestDir:
		return "DESTDIR"
	case RootAbs:
		return "absolute"
	default:
		return "unknown"
	}
}

// pathVars maps each root to the variable used to render it.  Build-dir
// paths need no indirection.  DESTDIR only exists on platforms with install
// staging support.
var pathVars = map[Root]*Variable{
	RootSrc:     varPtr(NewVariable("srcdir")),
	RootBuild:   nil,
	RootPrefix:  varPtr(NewVariable("prefix")),
	RootBin:     varPtr(NewVariable("bindir")),
	RootLib:     varPtr(NewVariable("libdir")),
	RootInclude: varPtr(NewVariable("includedir")),
	RootMan:     varPtr(NewVariable("mandir")),
}

func init() {
	if runtime.GOOS != "windows" {
		pathVars[RootDestDir] = varPtr(NewVariable("DESTDIR"))
	}
}

func varPtr(v Variable) *Variable { return &v }

// PathVariable returns the variable that renders the given root, or false
// for roots that need no indirection on this platform.
func PathVariable(root Root) (Variable, bool) {
	v := pathVars[root]
	if v == nil {
		return Variable{}, false
	}
	return *v, true
}

// A Path is a file location anchored to an abstract root.  Rel uses forward
// slashes and must not be absolute.
type Path struct {
	Root Root
	Rel  string
}

func SrcPath(rel string) Path   { return Path{Root: RootSrc, Rel: rel} }
func BuildPath(rel string) Path { return Path{Root: RootBuild, Rel: rel} }
func AbsPath(p string) Path     { return Path{Root: RootAbs, Rel: p} }

func (p Path) safeString() {}

// realize resolves the root through the placeholder table and concatenates
// it with the relative remainder.
func (p Path) realize() SafeString {
	v := pathVars[p.Root]
	if v == nil {
		rel := p.Rel
		if rel == "" {
			rel = "."
		}
		return Text(rel)
	}
	if p.Rel == "" {
		return *v
	}
	return Concat{*v, Literal("/"), Text(p.Rel)}
}
