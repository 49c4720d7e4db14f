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

package find

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		full := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, nil, 0o644))
	}
	return root
}

func TestGlob(t *testing.T) {
	root := makeTree(t, "main.c", "util.c", "util.h", "sub/extra.c", "sub/notes.txt")

	res, err := Glob(root, "*.c")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.c", "util.c"}, res.Files)
	assert.Equal(t, []string{"."}, res.Dirs)

	res, err = Glob(root, "sub/*.c")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/extra.c"}, res.Files)
	assert.Equal(t, []string{"sub"}, res.Dirs)
}

func TestGlobWildDirectory(t *testing.T) {
	root := makeTree(t, "a/x.c", "b/y.c", "b/z.h")

	res, err := Glob(root, "*/*.c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/x.c", "b/y.c"}, res.Files)
	assert.Equal(t, []string{".", "a", "b"}, res.Dirs)
}

func TestGlobNoWildcards(t *testing.T) {
	root := makeTree(t, "main.c")

	res, err := Glob(root, "main.c")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.c"}, res.Files)
	assert.Empty(t, res.Dirs)

	res, err = Glob(root, "missing.c")
	require.NoError(t, err)
	assert.Empty(t, res.Files)
}

func TestFiles(t *testing.T) {
	root := makeTree(t, "src/a.c", "src/deep/b.c", "src/deep/c.h", "other/d.c")

	res, err := Files(root, "src", "*.c")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.c", "src/deep/b.c"}, res.Files)
	assert.Equal(t, []string{"src", "src/deep"}, res.Dirs)
}
