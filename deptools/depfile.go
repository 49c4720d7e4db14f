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

// Package deptools writes make-syntax dependency files, used as include
// companions so edits to the project file trigger regeneration.
package deptools

import (
	"fmt"
	"os"
	"strings"

	"github.com/mkforge/mkforge"
)

// WriteDepFile creates a new gcc-style depfile and populates it with content
// indicating that target depends on deps.  Both sides are escaped for make's
// target and prerequisite contexts so paths with spaces or metacharacters
// survive.
func WriteDepFile(filename, target string, deps []string) error {
	return writeDepFile(filename, target, deps, false)
}

// WriteMakeifiedDepFile is WriteDepFile plus an empty rule per dependency,
// in the manner of gcc -MP, so a dependency deleted from disk does not stop
// make from rebuilding the target.
func WriteMakeifiedDepFile(filename, target string, deps []string) error {
	return writeDepFile(filename, target, deps, true)
}

func writeDepFile(filename, target string, deps []string, makeify bool) error {
	escTarget, err := mkforge.EscapeString(target, mkforge.SyntaxTarget)
	if err != nil {
		return fmt.Errorf("escaping depfile target %q: %w", target, err)
	}
	escDeps := make([]string, len(deps))
	for i, dep := range deps {
		escDeps[i], err = mkforge.EscapeString(dep, mkforge.SyntaxDependency)
		if err != nil {
			return fmt.Errorf("escaping depfile dependency %q: %w", dep, err)
		}
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s: \\\n %s\n", escTarget,
		strings.Join(escDeps, " \\\n "))
	if err != nil {
		return err
	}

	if makeify {
		for _, dep := range deps {
			escDep, err := mkforge.EscapeString(dep, mkforge.SyntaxTarget)
			if err != nil {
				return fmt.Errorf("escaping depfile target %q: %w", dep, err)
			}
			if _, err := fmt.Fprintf(f, "%s:\n", escDep); err != nil {
				return err
			}
		}
	}

	return nil
}
