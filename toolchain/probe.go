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
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mkforge/mkforge/ctxlog"
	"github.com/mkforge/mkforge/shell"
)

// which locates cmd on the environment's executable search path, trying each
// executable extension.  Commands containing a path separator are checked as
// given.
func which(env Environ, cmd string) (string, error) {
	exts := env.BinExts()
	if strings.ContainsAny(cmd, `/\`) {
		for _, ext := range exts {
			if isExecutableFile(cmd + ext) {
				return cmd + ext, nil
			}
		}
		return "", &ResolutionError{Kind: "command", Name: cmd}
	}
	dirs := env.BinDirs()
	for _, dir := range dirs {
		for _, ext := range exts {
			candidate := filepath.Join(dir, cmd+ext)
			if isExecutableFile(candidate) {
				return candidate, nil
			}
		}
	}
	return "", &ResolutionError{Kind: "command", Name: cmd, SearchDirs: dirs}
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// versionOutput runs argv with an extra flag and returns the combined
// output.  Results are cached per full command line; many languages alias to
// the same driver and each probe spawns a process.
func (r *Registry) versionOutput(ctx context.Context, argv []string, flag string) (string, error) {
	full := append(append([]string(nil), argv...), flag)
	key := shell.JoinCommand(full)
	if out, ok := r.probeCache.Get(key); ok {
		return out, nil
	}

	path, err := which(r.env, argv[0])
	if err != nil {
		return "", err
	}
	ctxlog.FromContext(ctx).Debug("probing command", "command", key)

	cmd := exec.CommandContext(ctx, path, full[1:]...)
	out, err := cmd.CombinedOutput()
	if len(out) == 0 && err != nil {
		return "", fmt.Errorf("probing %q: %w", argv[0], err)
	}
	// A nonzero exit with banner output is fine; some drivers reject the
	// flag but still identify themselves.
	s := string(out)
	r.probeCache.Add(key, s)
	return s, nil
}

var versionNumberRe = regexp.MustCompile(`\d+(\.\d+)+`)

// detectBrand classifies a compiler from its version banner.
func detectBrand(output string) (brand, version string) {
	version = versionNumberRe.FindString(output)
	switch {
	case strings.Contains(output, "Microsoft (R)"):
		return "msvc", version
	case strings.Contains(output, "clang"):
		return "clang", version
	case strings.Contains(output, "Free Software Foundation"):
		return "gcc", version
	default:
		return "unknown", version
	}
}
