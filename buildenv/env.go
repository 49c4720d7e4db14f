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

// Package buildenv captures the environment a build-graph generation run
// sees: a snapshot of process environment variables plus overrides, the
// source and build directories, and the install prefix.  The snapshot is
// taken once and saved alongside the generated build file so regeneration
// runs under the same environment.
package buildenv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFile is the name of the saved environment snapshot in the build dir.
const EnvFile = ".mkforge_environ"

// Version is bumped when the snapshot format changes incompatibly.
const Version = 1

// ErrVersion is returned by Load when the saved snapshot was written by a
// newer version of the tool.
var ErrVersion = errors.New("saved environment version exceeds expected version")

// Environment is the read-only context for one generation run.  It is
// constructed once; toolchain resolution and package probing consult it but
// never modify it.
type Environment struct {
	SrcDir        string            `json:"srcdir"`
	BuildDir      string            `json:"builddir"`
	InstallPrefix string            `json:"install_prefix"`
	Variables     map[string]string `json:"variables"`
}

type envSnapshot struct {
	Version int          `json:"version"`
	Data    *Environment `json:"data"`
}

// New snapshots the process environment.
func New(srcDir, buildDir, installPrefix string) *Environment {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return &Environment{
		SrcDir:        srcDir,
		BuildDir:      buildDir,
		InstallPrefix: installPrefix,
		Variables:     vars,
	}
}

// Getvar returns the named variable, or def when unset.
func (e *Environment) Getvar(key, def string) string {
	if v, ok := e.Variables[key]; ok {
		return v
	}
	return def
}

// LoadOverrides merges a dotenv-style override file into the snapshot.
// Values in the file win over inherited ones.
func (e *Environment) LoadOverrides(path string) error {
	overrides, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("loading environment overrides: %w", err)
	}
	for k, v := range overrides {
		e.Variables[k] = v
	}
	return nil
}

// BinDirs returns the executable search path.
func (e *Environment) BinDirs() []string {
	return filepath.SplitList(e.Getvar("PATH", ""))
}

// BinExts returns the executable extensions to probe.  Only Windows-family
// hosts have more than the empty extension.
func (e *Environment) BinExts() []string {
	if runtime.GOOS == "windows" {
		return filepath.SplitList(e.Getvar("PATHEXT", ""))
	}
	return []string{""}
}

// LibDirs returns the library search path: LIBRARY_PATH entries followed by
// the platform defaults.
func (e *Environment) LibDirs() []string {
	dirs := filepath.SplitList(e.Getvar("LIBRARY_PATH", ""))
	if runtime.GOOS != "windows" {
		dirs = append(dirs, "/usr/local/lib", "/usr/lib", "/lib")
	}
	return dirs
}

// IncludeDirs returns the header search path: CPATH entries followed by the
// platform defaults.
func (e *Environment) IncludeDirs() []string {
	dirs := filepath.SplitList(e.Getvar("CPATH", ""))
	if runtime.GOOS != "windows" {
		dirs = append(dirs, "/usr/local/include", "/usr/include")
	}
	return dirs
}

// Save writes the snapshot into dir so a later regeneration run can restore
// it with Load.
func (e *Environment) Save(dir string) error {
	data, err := json.MarshalIndent(envSnapshot{Version: Version, Data: e}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, EnvFile), append(data, '\n'), 0o644)
}

// Load restores a snapshot previously written by Save.
func Load(dir string) (*Environment, error) {
	data, err := os.ReadFile(filepath.Join(dir, EnvFile))
	if err != nil {
		return nil, err
	}
	var snap envSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvFile, err)
	}
	if snap.Version > Version {
		return nil, ErrVersion
	}
	if snap.Data == nil {
		return nil, fmt.Errorf("parsing %s: missing data", EnvFile)
	}
	if snap.Data.Variables == nil {
		snap.Data.Variables = make(map[string]string)
	}
	return snap.Data, nil
}
