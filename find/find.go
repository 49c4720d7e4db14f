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

// Package find locates source files under a project root, tracking the
// directories whose listings produced the result.  The tracked directories
// feed the regeneration depfile: when a listing changes (a file is added or
// removed), the build file is stale even though no named input changed.
package find

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// A Result pairs matched paths with the directories that were listed to
// produce them.  All paths are slash-separated and relative to the search
// root.
type Result struct {
	Files []string
	Dirs  []string
}

func isWild(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// saneSplit splits a slash path into directory and base, returning "." for
// an empty directory and trimming the trailing slash otherwise.
func saneSplit(p string) (dir, base string) {
	dir, base = path.Split(p)
	switch dir {
	case "":
		dir = "."
	case "/":
		// Nothing.
	default:
		dir = dir[:len(dir)-1]
	}
	return dir, base
}

// Glob matches pattern under root.  Wildcards may appear in any component;
// every directory whose listing was consulted is recorded.
func Glob(root, pattern string) (*Result, error) {
	matches, dirs, err := glob(root, path.Clean(pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	sort.Strings(dirs)
	return &Result{Files: matches, Dirs: dirs}, nil
}

func glob(root, pattern string) (matches, dirs []string, err error) {
	if !isWild(pattern) {
		// No wildcards: the result is just whether the file exists.
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(pattern))); err == nil {
			matches = []string{pattern}
		}
		return matches, nil, nil
	}

	dir, base := saneSplit(pattern)
	dirMatches := []string{dir}
	if isWild(dir) {
		dirMatches, dirs, err = glob(root, dir)
		if err != nil {
			return nil, nil, err
		}
	}

	for _, m := range dirMatches {
		full := filepath.Join(root, filepath.FromSlash(m))
		if info, err := os.Stat(full); err != nil || !info.IsDir() {
			continue
		}
		dirs = append(dirs, m)
		entries, err := os.ReadDir(full)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range entries {
			ok, err := path.Match(base, e.Name())
			if err != nil {
				return nil, nil, err
			}
			if ok {
				matches = append(matches, path.Join(m, e.Name()))
			}
		}
	}
	return matches, dirs, nil
}

// Files recursively finds regular files under dir (relative to root) whose
// base name matches pattern.  Every directory walked is recorded, including
// empty ones, since a file appearing there would change the result.
func Files(root, dir, pattern string) (*Result, error) {
	res := &Result{}
	start := filepath.Join(root, filepath.FromSlash(dir))
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			res.Dirs = append(res.Dirs, rel)
			return nil
		}
		ok, err := path.Match(pattern, d.Name())
		if err != nil {
			return err
		}
		if ok {
			res.Files = append(res.Files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(res.Files)
	sort.Strings(res.Dirs)
	return res, nil
}
