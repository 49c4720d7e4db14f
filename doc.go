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

// Package mkforge generates POSIX/GNU Makefiles from an abstract build
// graph.  The package turns rules, variables, and recipes contributed by
// build-graph collaborators into a single deterministic text file, applying
// make's escaping and quoting rules per emission context so that filenames
// containing spaces, globs, or make-significant characters survive intact.
//
// The core types are SafeString (a deferred-escaping string algebra),
// Writer (the context-aware escaping engine), the Variable/Function/Pattern
// entities, and Makefile (the build-file assembler).  Toolchain resolution
// lives in the toolchain subpackage; the rules subpackage walks a build
// graph and populates a Makefile from it.
package mkforge
