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

// Package file defines the artifact descriptors that flow between the
// build-graph frontend, the toolchain, and the rule generator.  Descriptors
// carry explicit capability fields (linkable, runtime-loadable, install
// kind) instead of encoding capabilities in a type hierarchy.
package file

import "github.com/mkforge/mkforge"

// An Artifact is anything a rule can produce or depend on.
type Artifact interface {
	ArtifactPath() mkforge.Path
}

// InstallKind says how an artifact is installed, when it is.
type InstallKind int

const (
	InstallNone InstallKind = iota
	InstallData
	InstallProgram
)

// Attrs is the descriptor core shared by every artifact.  External marks a
// pre-existing file that this graph does not build.
type Attrs struct {
	Path     mkforge.Path
	External bool
}

func (a Attrs) ArtifactPath() mkforge.Path { return a.Path }

// A Source is an input file in some source language.
type Source struct {
	Attrs
	Lang string
}

// A HeaderDir is a directory of headers added to the include path.
type HeaderDir struct {
	Attrs
	System bool
	Langs  []string
}

// An Object is one compiled translation unit.
type Object struct {
	Attrs
	Format string
	Lang   string
}

func NewObject(path mkforge.Path, format, lang string) *Object {
	return &Object{Attrs: Attrs{Path: path}, Format: format, Lang: lang}
}

// A Plain is an auxiliary artifact with no capabilities of its own, such as
// a linker export file.
type Plain struct {
	Attrs
}

// BinaryKind distinguishes the linked artifact shapes.
type BinaryKind int

const (
	Executable BinaryKind = iota
	SharedLib
	StaticLib
	// ImportLib is the stub library consumers link against in place of a
	// DLL.  It carries the DLL's format and languages so linkers treat it
	// interchangeably with the binary it fronts.
	ImportLib
)

func (k BinaryKind) String() string {
	switch k {
	case Executable:
		return "executable"
	case SharedLib:
		return "shared library"
	case StaticLib:
		return "static library"
	case ImportLib:
		return "import library"
	default:
		return "unknown"
	}
}

// A Binary is a linked artifact.  Capability fields are set explicitly at
// construction; nothing is inherited.
type Binary struct {
	Attrs
	Kind            BinaryKind
	Format          string
	Langs           []string
	Linkable        bool
	RuntimeLoadable bool
	Install         InstallKind

	// Companions produced by the same link, when the platform has them.
	Import *Binary
	Export *Plain
}

func NewExecutable(path mkforge.Path, format string, langs []string) *Binary {
	return &Binary{
		Attrs:   Attrs{Path: path},
		Kind:    Executable,
		Format:  format,
		Langs:   langs,
		Install: InstallProgram,
	}
}

func NewSharedLibrary(path mkforge.Path, format string, langs []string) *Binary {
	return &Binary{
		Attrs:           Attrs{Path: path},
		Kind:            SharedLib,
		Format:          format,
		Langs:           langs,
		Linkable:        true,
		RuntimeLoadable: true,
		Install:         InstallProgram,
	}
}

func NewStaticLibrary(path mkforge.Path, format string, langs []string) *Binary {
	return &Binary{
		Attrs:    Attrs{Path: path},
		Kind:     StaticLib,
		Format:   format,
		Langs:    langs,
		Linkable: true,
		Install:  InstallData,
	}
}

// NewImportLibrary creates the link-time stand-in for dll and wires the two
// together.
func NewImportLibrary(path mkforge.Path, dll *Binary) *Binary {
	imp := &Binary{
		Attrs:    Attrs{Path: path},
		Kind:     ImportLib,
		Format:   dll.Format,
		Langs:    dll.Langs,
		Linkable: true,
		Install:  InstallData,
	}
	dll.Import = imp
	return imp
}

// LinkInput returns the binary consumers pass to the linker: the import
// library when one exists, otherwise the binary itself.
func (b *Binary) LinkInput() *Binary {
	if b.Import != nil {
		return b.Import
	}
	return b
}

// A WholeArchive wraps a static library so the linker keeps every member
// object instead of only the referenced ones.  It forwards the wrapped
// library through an explicit accessor; nothing is proxied implicitly.
type WholeArchive struct {
	Library *Binary
}

func (w WholeArchive) ArtifactPath() mkforge.Path { return w.Library.Path }

// A DualUse pairs the shared and static builds of one library.
type DualUse struct {
	Shared *Binary
	Static *Binary
}

func (d DualUse) ArtifactPath() mkforge.Path { return d.Shared.Path }
